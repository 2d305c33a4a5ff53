// Package cla implements the convergence-layer adapter framer family: the
// byte-level framing contract shared by MTCP, S-MTCP, TCPCLv3, TCPSPP, and
// USB-MTCP, plus the bundle-version discriminator the link engine uses to
// dispatch a framed payload to the right bundle parser.
package cla

import (
	"errors"
	"io"
)

// PayloadSink receives the bytes of one framed payload as they arrive. The
// link engine supplies one per frame, built around whichever bundle parser
// the payload's leading discriminator byte selects.
type PayloadSink interface {
	Feed(data []byte) (consumed int, err error)
}

// FrameSink is invoked once a framer has decoded a frame header and knows
// the payload length; it returns the sink that should receive the
// payload's bytes, or an error to abort the frame.
type FrameSink func(payloadLen int) (PayloadSink, error)

// Framer is the contract every convergence-layer adapter implements,
// mirroring the CLA vtable of the source: framing state lives in the
// concrete implementor, one instance per link.
type Framer interface {
	// Name identifies the CLA for logging and metrics labels.
	Name() string
	// SetFrameSink installs the callback invoked when a new frame's
	// payload begins.
	SetFrameSink(sink FrameSink)
	// ForwardToSpecificParser advances the framer's decode state by as
	// much of data as it can consume in one call, returning the number
	// of bytes consumed. A return of (0, nil) means the framer is
	// waiting for more bytes than data currently supplies.
	ForwardToSpecificParser(data []byte) (consumed int, err error)
	// ResetParsers discards any partially-decoded frame and returns the
	// framer to its initial state; used for RX resynchronization.
	ResetParsers()
	// BeginPacket, SendPacketData, and EndPacket bracket the
	// transmission of one bundle's serialized bytes through w.
	BeginPacket(w io.Writer, length int) error
	SendPacketData(w io.Writer, data []byte) error
	EndPacket(w io.Writer) error
	// MaxBundleSize returns mbs(link): the largest serialized bundle
	// this framer can carry.
	MaxBundleSize() int
}

// ErrUnknownDiscriminator is returned when a framed payload's first byte
// does not match any supported bundle protocol version.
var ErrUnknownDiscriminator = errors.New("cla: payload does not begin with a recognized bundle-version discriminator")

// DiscriminatorBundle6 and DiscriminatorBundle7 are the leading bytes the
// link engine peeks at to dispatch a framed payload to a parser: the
// Bundle6 primary-block version byte and the CBOR indefinite-length array
// start Bundle7 opens with, respectively.
const (
	DiscriminatorBundle6 byte = 0x06
	DiscriminatorBundle7 byte = 0x9F
)

// PeekDiscriminator routes a framed payload's first byte to the bundle
// protocol version it belongs to, the discriminator shared by every CLA.
func PeekDiscriminator(b byte) (version int, ok bool) {
	switch b {
	case DiscriminatorBundle6:
		return 6, true
	case DiscriminatorBundle7:
		return 7, true
	default:
		return 0, false
	}
}
