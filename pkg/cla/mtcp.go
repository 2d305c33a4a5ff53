package cla

import (
	"encoding/binary"
	"fmt"
	"io"

	dtn "github.com/go-dtn/upcn"
)

// mtcpHeaderState tracks how many of a CBOR byte-string header's bytes
// have been collected: the first byte tells us whether 0, 1, 2, 4, or 8
// length-extension bytes follow.
type mtcpHeaderState uint8

const (
	mtcpAwaitFirstByte mtcpHeaderState = iota
	mtcpAwaitLengthExt
	mtcpAwaitPayload
)

// MTCPFramer implements the MTCP and S-MTCP wire framing: a CBOR byte
// string header (major type forced to 0x40..0x5F) followed by that many
// raw payload bytes. S-MTCP uses the identical byte-level contract; the two
// CLAs differ only at the manager level in how many concurrent links they
// permit, so this type backs both, distinguished by name for logging.
type MTCPFramer struct {
	name string
	mbs  int

	sink FrameSink

	state       mtcpHeaderState
	extNeed     int
	extBuf      [8]byte
	extFilled   int
	payloadLen  int
	payloadSink PayloadSink
	payloadLeft int
}

// NewMTCPFramer returns a framer for the MTCP CLA.
func NewMTCPFramer(maxBundleSize int) *MTCPFramer {
	return &MTCPFramer{name: "mtcp", mbs: maxBundleSize}
}

// NewSMTCPFramer returns a framer for the S-MTCP CLA (single-link MTCP).
func NewSMTCPFramer(maxBundleSize int) *MTCPFramer {
	return &MTCPFramer{name: "smtcp", mbs: maxBundleSize}
}

func (f *MTCPFramer) Name() string { return f.name }

func (f *MTCPFramer) SetFrameSink(sink FrameSink) { f.sink = sink }

func (f *MTCPFramer) MaxBundleSize() int { return f.mbs }

func (f *MTCPFramer) ResetParsers() {
	f.state = mtcpAwaitFirstByte
	f.extNeed = 0
	f.extFilled = 0
	f.payloadLen = 0
	f.payloadSink = nil
	f.payloadLeft = 0
}

// mtcpExtBytes returns how many length-extension bytes follow a first byte
// whose low 5 bits (the CBOR additional-info field) equal info, and
// whether info is a value CBOR allows here at all.
func mtcpExtBytes(info byte) (n int, ok bool) {
	switch {
	case info < 24:
		return 0, true
	case info == 24:
		return 1, true
	case info == 25:
		return 2, true
	case info == 26:
		return 4, true
	case info == 27:
		return 8, true
	default:
		return 0, false
	}
}

func (f *MTCPFramer) ForwardToSpecificParser(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		switch f.state {
		case mtcpAwaitFirstByte:
			b := data[consumed]
			consumed++
			if b&0xE0 != 0x40 {
				return consumed, dtn.NewFramerError(dtn.FramerErrBadMagic, fmt.Sprintf("mtcp: byte %#x is not a CBOR byte-string major type", b))
			}
			info := b & 0x1F
			n, ok := mtcpExtBytes(info)
			if !ok {
				return consumed, dtn.NewFramerError(dtn.FramerErrInvalidCborHeader, "mtcp: reserved CBOR additional-info value")
			}
			if n == 0 {
				f.payloadLen = int(info)
				if err := f.startPayload(); err != nil {
					return consumed, err
				}
				continue
			}
			f.extNeed = n
			f.extFilled = 0
			f.state = mtcpAwaitLengthExt
		case mtcpAwaitLengthExt:
			n := f.extNeed - f.extFilled
			avail := len(data) - consumed
			if avail < n {
				n = avail
			}
			copy(f.extBuf[f.extFilled:], data[consumed:consumed+n])
			f.extFilled += n
			consumed += n
			if f.extFilled < f.extNeed {
				return consumed, nil
			}
			f.payloadLen = decodeMtcpLengthExt(f.extBuf[:f.extNeed])
			if err := f.startPayload(); err != nil {
				return consumed, err
			}
		case mtcpAwaitPayload:
			n := f.payloadLeft
			avail := len(data) - consumed
			if avail < n {
				n = avail
			}
			used, err := f.payloadSink.Feed(data[consumed : consumed+n])
			consumed += used
			f.payloadLeft -= used
			if err != nil {
				return consumed, err
			}
			if used == 0 && n > 0 {
				return consumed, nil
			}
			if f.payloadLeft == 0 {
				f.ResetParsers()
			}
		}
	}
	return consumed, nil
}

func decodeMtcpLengthExt(b []byte) int {
	switch len(b) {
	case 1:
		return int(b[0])
	case 2:
		return int(binary.BigEndian.Uint16(b))
	case 4:
		return int(binary.BigEndian.Uint32(b))
	case 8:
		return int(binary.BigEndian.Uint64(b))
	default:
		return 0
	}
}

func (f *MTCPFramer) startPayload() error {
	if f.payloadLen > f.mbs {
		return fmt.Errorf("mtcp: frame length %d exceeds max bundle size %d", f.payloadLen, f.mbs)
	}
	sink, err := f.sink(f.payloadLen)
	if err != nil {
		return err
	}
	f.payloadSink = sink
	f.payloadLeft = f.payloadLen
	f.state = mtcpAwaitPayload
	if f.payloadLeft == 0 {
		f.ResetParsers()
	}
	return nil
}

// EncodeMTCPHeader returns the CBOR byte-string header for a payload of the
// given length; callers writing a full frame should follow it with that
// many payload bytes. The returned slice is at most 9 bytes, matching the
// wire contract.
func EncodeMTCPHeader(length int) []byte {
	n := uint64(length)
	var b []byte
	switch {
	case n < 24:
		b = []byte{byte(n)}
	case n <= 0xFF:
		b = []byte{24, byte(n)}
	case n <= 0xFFFF:
		b = []byte{25, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
	case n <= 0xFFFFFFFF:
		b = []byte{26, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], uint32(n))
	default:
		b = []byte{27, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint64(b[1:], n)
	}
	b[0] |= 0x40
	return b
}

func (f *MTCPFramer) BeginPacket(w io.Writer, length int) error {
	_, err := w.Write(EncodeMTCPHeader(length))
	return err
}

func (f *MTCPFramer) SendPacketData(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

func (f *MTCPFramer) EndPacket(w io.Writer) error { return nil }
