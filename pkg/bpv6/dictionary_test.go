package bpv6

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dtn "github.com/go-dtn/upcn"
)

func TestSplitEID(t *testing.T) {
	scheme, ssp := splitEID("dtn://dst")
	assert.Equal(t, "dtn", scheme)
	assert.Equal(t, "//dst", ssp)

	scheme, ssp = splitEID(dtn.NoneEID)
	assert.Equal(t, "dtn", scheme)
	assert.Equal(t, "none", ssp)

	scheme, ssp = splitEID("")
	assert.Equal(t, "dtn", scheme)
	assert.Equal(t, "none", ssp)
}

func TestCalculateDictDestinationOnly(t *testing.T) {
	b := dtn.NewBundle()
	b.Destination = "dtn://dst"

	desc := CalculateDict(b)

	want := "dtn\x00//dst\x00dtn\x00none\x00dtn\x00none\x00dtn\x00none\x00"
	dict := make([]byte, desc.Length)
	require.NoError(t, SerializeDict(dict, b, desc))
	assert.Equal(t, want, string(dict))

	assert.EqualValues(t, 0, desc.Destination.SchemeOffset)
	assert.EqualValues(t, 4, desc.Destination.SSPOffset)
}

func TestCalculateDictIncludesBlockEIDRefs(t *testing.T) {
	b := dtn.NewBundle()
	b.Blocks = []dtn.Block{
		{
			Type:    7,
			Flags:   dtn.BlockFlagHasEIDRefField,
			EIDRefs: []dtn.EID{"dtn://relay", "ipn:1.2"},
		},
		{Type: dtn.BlockTypePayload, Flags: dtn.BlockFlagLastBlock, Data: []byte("x")},
	}

	desc := CalculateDict(b)
	require.Len(t, desc.BlockRefs, 2)
	assert.Len(t, desc.BlockRefs[0], 2)
	assert.Nil(t, desc.BlockRefs[1])

	dict := make([]byte, desc.Length)
	require.NoError(t, SerializeDict(dict, b, desc))

	relay, err := resolveEID(dict, desc.Length, desc.BlockRefs[0][0])
	require.NoError(t, err)
	assert.Equal(t, dtn.EID("dtn://relay"), relay)

	ipn, err := resolveEID(dict, desc.Length, desc.BlockRefs[0][1])
	require.NoError(t, err)
	assert.Equal(t, dtn.EID("ipn:1.2"), ipn)
}

func TestSerializeDictRejectsWrongLength(t *testing.T) {
	b := dtn.NewBundle()
	desc := CalculateDict(b)
	err := SerializeDict(make([]byte, desc.Length+1), b, desc)
	assert.Error(t, err)
}

func TestResolveEIDRejectsColonInScheme(t *testing.T) {
	dict := []byte("dt:n\x00ssp\x00")
	_, err := resolveEID(dict, uint32(len(dict)), EIDOffsets{SchemeOffset: 0, SSPOffset: 5})
	require.Error(t, err)
	var parseErr *dtn.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, dtn.ParseErrSchemeContainsColon, parseErr.Code)
}

func TestReadCStringOutOfRange(t *testing.T) {
	dict := []byte("dtn\x00")
	_, err := readCString(dict, uint32(len(dict)), 10)
	require.Error(t, err)
	var parseErr *dtn.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, dtn.ParseErrDictOffsetOutOfRange, parseErr.Code)
}

func TestReadCStringRejectsOffsetAtSentinel(t *testing.T) {
	// buf carries a parser-appended sentinel NUL past the declared
	// dictionary length; an offset pointing exactly at it must still be
	// rejected rather than resolving to an empty string.
	dictLength := uint32(4)
	buf := []byte("dtn\x00\x00")
	_, err := readCString(buf, dictLength, dictLength)
	require.Error(t, err)
	var parseErr *dtn.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, dtn.ParseErrDictOffsetOutOfRange, parseErr.Code)
}
