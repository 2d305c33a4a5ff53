package manager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dtn "github.com/go-dtn/upcn"
)

func TestParseConfigStringMultiClause(t *testing.T) {
	configs, err := ParseConfigString("mtcp:0.0.0.0,4556;tcpclv3:0.0.0.0,4557")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, CLAConfig{Name: "mtcp", Options: []string{"0.0.0.0", "4556"}}, configs[0])
	assert.Equal(t, CLAConfig{Name: "tcpclv3", Options: []string{"0.0.0.0", "4557"}}, configs[1])
}

func TestParseConfigStringTCPSPPClause(t *testing.T) {
	configs, err := ParseConfigString("tcpspp:0.0.0.0,4223,false,1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, []string{"0.0.0.0", "4223", "false", "1"}, configs[0].Options)
}

func TestParseConfigStringUnknownCLA(t *testing.T) {
	_, err := ParseConfigString("bogus:1,2")
	require.Error(t, err)
	var cfgErr *dtn.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, dtn.ConfigErrUnknownCla, cfgErr.Code)
}

func TestParseConfigStringMissingColon(t *testing.T) {
	_, err := ParseConfigString("mtcp0.0.0.0,4556")
	require.Error(t, err)
	var cfgErr *dtn.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, dtn.ConfigErrMalformedOptions, cfgErr.Code)
}

func TestParseConfigStringEmpty(t *testing.T) {
	_, err := ParseConfigString("")
	assert.Error(t, err)
}

func TestParseHostPortOptionsRejectsBadPort(t *testing.T) {
	_, err := parseHostPortOptions([]string{"0.0.0.0", "notaport"})
	assert.Error(t, err)
}

func TestParseHostPortOptionsRejectsWrongCount(t *testing.T) {
	_, err := parseHostPortOptions([]string{"0.0.0.0"})
	assert.Error(t, err)
}

func TestParseHostPortOptionsDefaultsTCPActiveTrue(t *testing.T) {
	opts, err := parseHostPortOptions([]string{"0.0.0.0", "4556"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4556", opts.Addr)
	assert.True(t, opts.TCPActive)
}

func TestParseHostPortOptionsAcceptsTCPActive(t *testing.T) {
	opts, err := parseHostPortOptions([]string{"0.0.0.0", "4556", "false"})
	require.NoError(t, err)
	assert.False(t, opts.TCPActive)
}

func TestParseHostPortOptionsRejectsBadTCPActive(t *testing.T) {
	_, err := parseHostPortOptions([]string{"0.0.0.0", "4556", "maybe"})
	assert.Error(t, err)
}

func TestParseTCPSPPOptions(t *testing.T) {
	opts, err := parseTCPSPPOptions([]string{"0.0.0.0", "4223", "false", "1"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4223", opts.Addr)
	assert.False(t, opts.ValidateCRC)
	assert.Equal(t, uint16(1), opts.APID)
}

func TestParseTCPSPPOptionsRejectsBadBool(t *testing.T) {
	_, err := parseTCPSPPOptions([]string{"0.0.0.0", "4223", "maybe", "1"})
	assert.Error(t, err)
}

func TestParseTCPSPPOptionsAllowsOmittedValidateCRCAndAPID(t *testing.T) {
	opts, err := parseTCPSPPOptions([]string{"0.0.0.0", "4223"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4223", opts.Addr)
	assert.False(t, opts.ValidateCRC)
	assert.Equal(t, uint16(0), opts.APID)
}

func TestParseTCPSPPOptionsAllowsOmittedAPID(t *testing.T) {
	opts, err := parseTCPSPPOptions([]string{"0.0.0.0", "4223", "true"})
	require.NoError(t, err)
	assert.True(t, opts.ValidateCRC)
	assert.Equal(t, uint16(0), opts.APID)
}

func TestParseUSBOTGOptionsAcceptsNone(t *testing.T) {
	assert.NoError(t, parseUSBOTGOptions(nil))
}

func TestParseUSBOTGOptionsRejectsAny(t *testing.T) {
	assert.Error(t, parseUSBOTGOptions([]string{"/dev/ttyUSB0"}))
}
