package cla

import (
	"fmt"
	"io"

	"github.com/go-dtn/upcn/internal/crc"
	"github.com/go-dtn/upcn/pkg/spp"
)

// tcpsppState walks a fixed-size primary header, an optional fixed-size
// secondary header (ancillary data plus timecode, both already known from
// ctx), the payload, and an optional 2-byte CRC trailer.
type tcpsppState uint8

const (
	tcpsppAwaitHeader tcpsppState = iota
	tcpsppAwaitPayload
	tcpsppAwaitCRC
)

// TCPSPPFramer implements the TCPSPP wire framing: an SPP primary header
// (plus the configured secondary header) followed by the payload and, when
// ValidateCRC or the legacy on-the-wire trailer is present, a trailing
// 2-byte CRC-16 CCITT-FALSE. A peer may send this trailer without either
// side validating it; ValidateCRC opts into checking it.
type TCPSPPFramer struct {
	ctx         *spp.Context
	apid        uint16
	mbs         int
	HasCRC      bool
	ValidateCRC bool

	sink FrameSink

	state      tcpsppState
	headerBuf  []byte
	headerHave int

	payloadSink PayloadSink
	payloadLeft int

	crcAcc  *crc.CRC16
	crcBuf  [2]byte
	crcHave int
}

// NewTCPSPPFramer returns a framer for the TCPSPP CLA, decoding/encoding
// frames against the given secondary-header context and APID.
func NewTCPSPPFramer(ctx *spp.Context, apid uint16, maxBundleSize int, hasCRC bool) *TCPSPPFramer {
	f := &TCPSPPFramer{ctx: ctx, apid: apid, mbs: maxBundleSize, HasCRC: hasCRC}
	f.ResetParsers()
	return f
}

func (f *TCPSPPFramer) Name() string { return "tcpspp" }

func (f *TCPSPPFramer) SetFrameSink(sink FrameSink) { f.sink = sink }

func (f *TCPSPPFramer) MaxBundleSize() int { return f.mbs }

func (f *TCPSPPFramer) headerSize() int {
	return spp.PrimaryHeaderSize + f.ctx.AncillaryDataLength + ctxTimecodeSize(f.ctx)
}

func ctxTimecodeSize(ctx *spp.Context) int {
	if ctx.Timecode == nil {
		return 0
	}
	return ctx.Timecode.Size()
}

func (f *TCPSPPFramer) ResetParsers() {
	f.state = tcpsppAwaitHeader
	f.headerBuf = make([]byte, f.headerSize())
	f.headerHave = 0
	f.payloadSink = nil
	f.payloadLeft = 0
	f.crcHave = 0
	if f.HasCRC {
		f.crcAcc = crc.NewCCITTFalse()
	}
}

func (f *TCPSPPFramer) ForwardToSpecificParser(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		switch f.state {
		case tcpsppAwaitHeader:
			n := len(f.headerBuf) - f.headerHave
			avail := len(data) - consumed
			if avail < n {
				n = avail
			}
			copy(f.headerBuf[f.headerHave:], data[consumed:consumed+n])
			f.headerHave += n
			consumed += n
			if f.headerHave < len(f.headerBuf) {
				return consumed, nil
			}
			header, err := spp.DecodePrimaryHeader(f.headerBuf)
			if err != nil {
				return consumed, fmt.Errorf("tcpspp: %w", err)
			}
			if f.HasCRC {
				f.crcAcc.Write(f.headerBuf)
			}
			payloadLen := header.DataLength - f.ctx.AncillaryDataLength - ctxTimecodeSize(f.ctx)
			if payloadLen < 0 || payloadLen > f.mbs {
				return consumed, fmt.Errorf("tcpspp: frame payload length %d out of range", payloadLen)
			}
			sink, err := f.sink(payloadLen)
			if err != nil {
				return consumed, err
			}
			f.payloadSink = sink
			f.payloadLeft = payloadLen
			f.state = tcpsppAwaitPayload
			if f.payloadLeft == 0 {
				f.state = f.afterPayloadState()
			}
		case tcpsppAwaitPayload:
			n := f.payloadLeft
			avail := len(data) - consumed
			if avail < n {
				n = avail
			}
			chunk := data[consumed : consumed+n]
			if f.HasCRC {
				f.crcAcc.Write(chunk)
			}
			used, err := f.payloadSink.Feed(chunk)
			consumed += used
			f.payloadLeft -= used
			if err != nil {
				return consumed, err
			}
			if used == 0 && n > 0 {
				return consumed, nil
			}
			if f.payloadLeft == 0 {
				f.state = f.afterPayloadState()
			}
		case tcpsppAwaitCRC:
			n := 2 - f.crcHave
			avail := len(data) - consumed
			if avail < n {
				n = avail
			}
			copy(f.crcBuf[f.crcHave:], data[consumed:consumed+n])
			f.crcHave += n
			consumed += n
			if f.crcHave < 2 {
				return consumed, nil
			}
			if f.ValidateCRC {
				want := uint16(f.crcBuf[0])<<8 | uint16(f.crcBuf[1])
				if f.crcAcc.Sum16() != want {
					return consumed, fmt.Errorf("tcpspp: CRC mismatch: frame has %#04x, computed %#04x", want, f.crcAcc.Sum16())
				}
			}
			f.ResetParsers()
		}
	}
	return consumed, nil
}

// afterPayloadState returns the state to resume in once a frame's payload
// (and, between frames with no CRC, the header read position) is ready for
// the next cycle; the CRC path resets via ResetParsers once the trailer is
// consumed instead.
func (f *TCPSPPFramer) afterPayloadState() tcpsppState {
	if f.HasCRC {
		f.crcHave = 0
		return tcpsppAwaitCRC
	}
	f.headerHave = 0
	return tcpsppAwaitHeader
}

func (f *TCPSPPFramer) BeginPacket(w io.Writer, length int) error {
	header, err := spp.SerializeHeader(f.ctx, spp.Meta{APID: f.apid, SegmentStatus: spp.SegmentUnsegmented}, length)
	if err != nil {
		return err
	}
	if f.HasCRC {
		f.crcAcc = crc.NewCCITTFalse()
		f.crcAcc.Write(header)
	}
	_, err = w.Write(header)
	return err
}

func (f *TCPSPPFramer) SendPacketData(w io.Writer, data []byte) error {
	if f.HasCRC {
		f.crcAcc.Write(data)
	}
	_, err := w.Write(data)
	return err
}

func (f *TCPSPPFramer) EndPacket(w io.Writer) error {
	if !f.HasCRC {
		return nil
	}
	sum := f.crcAcc.Sum16()
	_, err := w.Write([]byte{byte(sum >> 8), byte(sum)})
	return err
}
