// Package manager implements the CLA manager: parsing the CLA
// configuration string, owning one listening socket and contact registry
// per configured CLA, running the reconnect state machine for every
// contact-parameters record, and handing out TX queue handles.
package manager

import (
	"strconv"
	"strings"

	dtn "github.com/go-dtn/upcn"
)

// CLAConfig is one `<cla_name>:<opt>(,<opt>)*` clause of the configuration
// string.
type CLAConfig struct {
	Name    string
	Options []string
}

// ParseConfigString parses the CLA manager's configuration string grammar:
// `<cla_name>:<opt>(,<opt>)*(;<cla_name>:<opt>(,<opt>)*)*`. Unknown CLA
// names fail the whole initialization; configuration is all-or-nothing.
func ParseConfigString(s string) ([]CLAConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "empty configuration string")
	}
	clauses := strings.Split(s, ";")
	configs := make([]CLAConfig, 0, len(clauses))
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		name, optsStr, ok := strings.Cut(clause, ":")
		if !ok || name == "" {
			return nil, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "missing ':' in clause "+clause)
		}
		if !isKnownCLA(name) {
			return nil, dtn.NewConfigError(dtn.ConfigErrUnknownCla, name)
		}
		var opts []string
		if optsStr != "" {
			opts = strings.Split(optsStr, ",")
		}
		configs = append(configs, CLAConfig{Name: name, Options: opts})
	}
	if len(configs) == 0 {
		return nil, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "no CLA clauses")
	}
	return configs, nil
}

func isKnownCLA(name string) bool {
	switch name {
	case "mtcp", "smtcp", "tcpclv3", "tcpspp", "usbotg":
		return true
	default:
		return false
	}
}

// mtcpOptions is the `<node>,<service>[,<tcp_active>]` option list MTCP,
// S-MTCP, and TCPCLv3 share, e.g. `mtcp:0.0.0.0,4556` or
// `tcpclv3:0.0.0.0,4557,false`. TCPActive defaults to true: the CLA
// instance dials out for every contact started on it. When false, a
// scheduled contact on this CLA only waits for the peer to dial in
// instead of actively reconnecting.
type mtcpOptions struct {
	Addr      string
	TCPActive bool
}

func parseHostPortOptions(opts []string) (mtcpOptions, error) {
	if len(opts) != 2 && len(opts) != 3 {
		return mtcpOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "expected <node>,<service>[,<tcp_active>]")
	}
	if _, err := strconv.ParseUint(opts[1], 10, 16); err != nil {
		return mtcpOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "port is not a valid uint16: "+opts[1])
	}
	tcpActive := true
	if len(opts) == 3 {
		v, err := strconv.ParseBool(opts[2])
		if err != nil {
			return mtcpOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "tcp_active is not a bool: "+opts[2])
		}
		tcpActive = v
	}
	return mtcpOptions{Addr: opts[0] + ":" + opts[1], TCPActive: tcpActive}, nil
}

// tcpsppOptions is TCPSPP's `<node>,<service>[,<validate_crc>[,<apid>]]`
// option list, e.g. `tcpspp:0.0.0.0,4223,false,1`. validate_crc occupies
// the slot the grammar reserves for tcp_active: TCPSPP has no tcp_active
// option (buildInstance always marks it active, so a scheduled contact on
// it dials out), so the position is reused for the CRC trailer check
// instead.
type tcpsppOptions struct {
	Addr        string
	ValidateCRC bool
	APID        uint16
}

func parseTCPSPPOptions(opts []string) (tcpsppOptions, error) {
	if len(opts) < 2 || len(opts) > 4 {
		return tcpsppOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "expected <node>,<service>[,<validate_crc>[,<apid>]]")
	}
	if _, err := strconv.ParseUint(opts[1], 10, 16); err != nil {
		return tcpsppOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "port is not a valid uint16: "+opts[1])
	}
	var validate bool
	if len(opts) >= 3 {
		v, err := strconv.ParseBool(opts[2])
		if err != nil {
			return tcpsppOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "validate_crc is not a bool: "+opts[2])
		}
		validate = v
	}
	var apid uint64
	if len(opts) == 4 {
		var err error
		apid, err = strconv.ParseUint(opts[3], 10, 16)
		if err != nil {
			return tcpsppOptions{}, dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "apid is not a valid uint16: "+opts[3])
		}
	}
	return tcpsppOptions{Addr: opts[0] + ":" + opts[1], ValidateCRC: validate, APID: uint16(apid)}, nil
}

// usbotgDevicePath is the fixed USB-OTG gadget serial device this CLA
// opens. Unlike every other CLA, usbotg takes no configuration options.
const usbotgDevicePath = "/dev/ttyGS0"

func parseUSBOTGOptions(opts []string) error {
	if len(opts) != 0 {
		return dtn.NewConfigError(dtn.ConfigErrMalformedOptions, "usbotg takes no options")
	}
	return nil
}
