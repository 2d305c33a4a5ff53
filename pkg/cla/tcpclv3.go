package cla

import (
	"fmt"
	"io"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/internal/sdnv"
)

// TCPCLv3Magic is the 4-byte handshake prefix every TCPCLv3 peer sends
// before its version/flags/keepalive/EID fields.
var TCPCLv3Magic = [4]byte{'d', 't', 'n', '!'}

// TCPCLv3MinVersion is the lowest handshake version byte this
// implementation accepts; it speaks a reduced RFC 7242 subset with no
// ACK/REFUSE/KEEPALIVE/SHUTDOWN messages.
const TCPCLv3MinVersion = 0x03

// tcpclv3DataSegmentType is the only segment type byte this subset ever
// sends or accepts: type 0x10 with start (S=0x02) and end (E=0x01) flags
// always set, since no fragmentation of a data segment is implemented.
const tcpclv3DataSegmentType = 0x13

// tcpclv3State walks the handshake bytes first, then settles into decoding
// back-to-back data segments for the lifetime of the connection.
type tcpclv3State uint8

const (
	tcpclv3AwaitMagic tcpclv3State = iota
	tcpclv3AwaitVersion
	tcpclv3AwaitFlags
	tcpclv3AwaitKeepalive
	tcpclv3AwaitEidLen
	tcpclv3AwaitEid
	tcpclv3AwaitSegmentType
	tcpclv3AwaitSegmentLen
	tcpclv3AwaitPayload
)

// TCPCLv3Framer implements the TCPCLv3 handshake and data-segment framing.
// PeerEID is populated once the handshake completes; OnHandshake, if set,
// is invoked synchronously at that point so the link engine can associate
// the connection with its peer before any data segment is processed.
type TCPCLv3Framer struct {
	localEID string
	mbs      int

	sink FrameSink

	state      tcpclv3State
	magicIdx   int
	keepIdx    int
	eidLenRdr  sdnv.Reader[uint32]
	eidBuf     []byte
	eidFilled  int
	segLenRdr  sdnv.Reader[uint32]
	payloadLen int

	payloadSink PayloadSink
	payloadLeft int

	PeerEID     string
	OnHandshake func(peerEID string) error
}

// NewTCPCLv3Framer returns a framer that will present localEID during the
// handshake.
func NewTCPCLv3Framer(localEID string, maxBundleSize int) *TCPCLv3Framer {
	return &TCPCLv3Framer{localEID: localEID, mbs: maxBundleSize}
}

func (f *TCPCLv3Framer) Name() string { return "tcpclv3" }

func (f *TCPCLv3Framer) SetFrameSink(sink FrameSink) { f.sink = sink }

func (f *TCPCLv3Framer) MaxBundleSize() int { return f.mbs }

func (f *TCPCLv3Framer) ResetParsers() {
	f.state = tcpclv3AwaitMagic
	f.magicIdx = 0
	f.keepIdx = 0
	f.eidLenRdr.Reset()
	f.eidBuf = nil
	f.eidFilled = 0
	f.segLenRdr.Reset()
	f.payloadLen = 0
	f.payloadSink = nil
	f.payloadLeft = 0
}

func (f *TCPCLv3Framer) ForwardToSpecificParser(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		switch f.state {
		case tcpclv3AwaitMagic:
			b := data[consumed]
			consumed++
			if b != TCPCLv3Magic[f.magicIdx] {
				return consumed, dtn.NewFramerError(dtn.FramerErrBadMagic, "tcpclv3: handshake magic mismatch")
			}
			f.magicIdx++
			if f.magicIdx == len(TCPCLv3Magic) {
				f.state = tcpclv3AwaitVersion
			}
		case tcpclv3AwaitVersion:
			b := data[consumed]
			consumed++
			if b < TCPCLv3MinVersion {
				return consumed, dtn.NewFramerError(dtn.FramerErrBadVersion, fmt.Sprintf("tcpclv3: version %#x below minimum %#x", b, TCPCLv3MinVersion))
			}
			f.state = tcpclv3AwaitFlags
		case tcpclv3AwaitFlags:
			consumed++ // flags byte is not validated in this subset
			f.keepIdx = 0
			f.state = tcpclv3AwaitKeepalive
		case tcpclv3AwaitKeepalive:
			consumed++
			f.keepIdx++
			if f.keepIdx == 2 {
				f.eidLenRdr.Reset()
				f.state = tcpclv3AwaitEidLen
			}
		case tcpclv3AwaitEidLen:
			b := data[consumed]
			consumed++
			f.eidLenRdr.ReadByte(b)
			switch f.eidLenRdr.Status {
			case sdnv.Error:
				return consumed, dtn.NewFramerError(dtn.FramerErrBadEidLength, "tcpclv3: peer EID length SDNV overflow")
			case sdnv.Done:
				n := int(f.eidLenRdr.Value())
				if n <= 0 {
					return consumed, dtn.NewFramerError(dtn.FramerErrBadEidLength, "tcpclv3: peer EID length is zero")
				}
				f.eidBuf = make([]byte, n)
				f.eidFilled = 0
				f.state = tcpclv3AwaitEid
			}
		case tcpclv3AwaitEid:
			n := len(f.eidBuf) - f.eidFilled
			avail := len(data) - consumed
			if avail < n {
				n = avail
			}
			copy(f.eidBuf[f.eidFilled:], data[consumed:consumed+n])
			f.eidFilled += n
			consumed += n
			if f.eidFilled < len(f.eidBuf) {
				return consumed, nil
			}
			f.PeerEID = string(f.eidBuf)
			if f.OnHandshake != nil {
				if err := f.OnHandshake(f.PeerEID); err != nil {
					return consumed, err
				}
			}
			f.state = tcpclv3AwaitSegmentType
		case tcpclv3AwaitSegmentType:
			b := data[consumed]
			consumed++
			if b != tcpclv3DataSegmentType {
				return consumed, dtn.NewFramerError(dtn.FramerErrInvalidSegmentType, fmt.Sprintf("tcpclv3: segment type %#x is not a start+end data segment", b))
			}
			f.segLenRdr.Reset()
			f.state = tcpclv3AwaitSegmentLen
		case tcpclv3AwaitSegmentLen:
			b := data[consumed]
			consumed++
			f.segLenRdr.ReadByte(b)
			switch f.segLenRdr.Status {
			case sdnv.Error:
				return consumed, fmt.Errorf("tcpclv3: data segment length SDNV overflow")
			case sdnv.Done:
				f.payloadLen = int(f.segLenRdr.Value())
				if f.payloadLen > f.mbs {
					return consumed, fmt.Errorf("tcpclv3: data segment length %d exceeds max bundle size %d", f.payloadLen, f.mbs)
				}
				sink, err := f.sink(f.payloadLen)
				if err != nil {
					return consumed, err
				}
				f.payloadSink = sink
				f.payloadLeft = f.payloadLen
				f.state = tcpclv3AwaitPayload
				if f.payloadLeft == 0 {
					f.state = tcpclv3AwaitSegmentType
				}
			}
		case tcpclv3AwaitPayload:
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
				f.state = tcpclv3AwaitSegmentType
			}
		}
	}
	return consumed, nil
}

// EncodeHandshake returns the outgoing handshake bytes: magic, version,
// flags, keepalive, and the local EID length-prefixed by an SDNV.
func (f *TCPCLv3Framer) EncodeHandshake() []byte {
	eid := []byte(f.localEID)
	lenBuf := make([]byte, sdnv.SizeOf(uint32(len(eid))))
	n := sdnv.Write(lenBuf, uint32(len(eid)))
	out := make([]byte, 0, 4+1+1+2+n+len(eid))
	out = append(out, TCPCLv3Magic[:]...)
	out = append(out, TCPCLv3MinVersion, 0x00, 0x00, 0x00)
	out = append(out, lenBuf[:n]...)
	out = append(out, eid...)
	return out
}

func (f *TCPCLv3Framer) BeginPacket(w io.Writer, length int) error {
	_, err := w.Write([]byte{tcpclv3DataSegmentType})
	if err != nil {
		return err
	}
	buf := make([]byte, sdnv.SizeOf(uint32(length)))
	n := sdnv.Write(buf, uint32(length))
	_, err = w.Write(buf[:n])
	return err
}

func (f *TCPCLv3Framer) SendPacketData(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

func (f *TCPCLv3Framer) EndPacket(w io.Writer) error { return nil }
