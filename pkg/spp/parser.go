package spp

import "fmt"

type parserState uint8

const (
	statePH1MSB parserState = iota
	statePH1LSB
	statePH2MSB
	statePH2LSB
	stateLenMSB
	stateLenLSB
	stateSHTimecode
	stateSHAncillary
	stateData
	stateError
)

// Parser is a single-threaded, cooperative byte sink decoding one SPP
// packet at a time against a fixed Context, mirroring the Bundle6 parser's
// Feed-driven design: the primary header's six bytes are consumed one at a
// time, while the timecode, ancillary, and payload sections — each of known
// length once the header is decoded — are bulk-copied in a single step, the
// same way the bundle parser bulk-reads block data.
type Parser struct {
	ctx *Context

	state parserState
	err   error

	p1, p2, length uint16
	header         PrimaryHeader

	tcBuf    []byte
	tcFilled int

	ancillaryBuf    []byte
	ancillaryFilled int

	timestamp uint32
	counter   uint32

	data     []byte
	dataNeed int
	dataHave int

	// OnPacketComplete is invoked once per decoded packet, synchronously
	// from within Feed.
	OnPacketComplete func(meta Meta, ancillary, data []byte)
}

// NewParser returns a Parser ready to decode packets against ctx.
func NewParser(ctx *Context) *Parser {
	p := &Parser{ctx: ctx}
	p.reset()
	return p
}

func (p *Parser) reset() {
	p.state = statePH1MSB
	p.err = nil
	p.p1, p.p2, p.length = 0, 0, 0
	p.header = PrimaryHeader{}
	p.tcBuf = nil
	p.tcFilled = 0
	p.ancillaryBuf = nil
	p.ancillaryFilled = 0
	p.timestamp = 0
	p.counter = 0
	p.data = nil
	p.dataNeed = 0
	p.dataHave = 0
}

// Reset returns the parser to its initial state for the external
// resynchronization path.
func (p *Parser) Reset() { p.reset() }

// Err returns the error that drove the parser into its error state, if any.
func (p *Parser) Err() error { return p.err }

func (p *Parser) fail(err error) {
	p.state = stateError
	p.err = err
}

// Feed consumes as much of input as the current step allows and returns the
// number of bytes consumed, following the same contract as bpv6.Parser.Feed.
func (p *Parser) Feed(input []byte) (consumed int, err error) {
	for consumed < len(input) {
		switch p.state {
		case stateError:
			return consumed, p.err
		case stateSHTimecode:
			n := p.feedTimecode(input[consumed:])
			consumed += n
			if n == 0 {
				return consumed, nil
			}
			continue
		case stateSHAncillary:
			n := p.feedAncillary(input[consumed:])
			consumed += n
			if n == 0 {
				return consumed, nil
			}
			continue
		case stateData:
			n := p.feedData(input[consumed:])
			consumed += n
			if n == 0 {
				return consumed, nil
			}
			continue
		}

		b := input[consumed]
		consumed++
		p.stepByte(b)
		if p.state == stateError {
			return consumed, p.err
		}
	}
	if p.state == stateError {
		return consumed, p.err
	}
	return consumed, nil
}

func (p *Parser) stepByte(b byte) {
	switch p.state {
	case statePH1MSB:
		p.p1 = uint16(b) << 8
		p.state = statePH1LSB
	case statePH1LSB:
		p.p1 |= uint16(b)
		p.state = statePH2MSB
	case statePH2MSB:
		p.p2 = uint16(b) << 8
		p.state = statePH2LSB
	case statePH2LSB:
		p.p2 |= uint16(b)
		p.state = stateLenMSB
	case stateLenMSB:
		p.length = uint16(b) << 8
		p.state = stateLenLSB
	case stateLenLSB:
		p.length |= uint16(b)
		p.finishPrimaryHeader()
	default:
		p.fail(fmt.Errorf("spp: stepByte called in bulk-read state %d", p.state))
	}
}

func (p *Parser) finishPrimaryHeader() {
	p.header = PrimaryHeader{
		IsRequest:          p.p1&0x1000 != 0,
		HasSecondaryHeader: p.p1&0x0800 != 0,
		APID:               p.p1 & 0x07FF,
		SegmentStatus:      SegmentStatus((p.p2 >> 14) & 0x3),
		SegmentNumber:      p.p2 & 0x3FFF,
		DataLength:         int(p.length) + 1,
	}
	if p.ctx.Timecode != nil {
		size := p.ctx.Timecode.Size()
		if size == 0 {
			p.enterAncillary()
			return
		}
		p.tcBuf = make([]byte, size)
		p.tcFilled = 0
		p.state = stateSHTimecode
		return
	}
	p.enterAncillary()
}

func (p *Parser) feedTimecode(input []byte) int {
	remaining := len(p.tcBuf) - p.tcFilled
	n := len(input)
	if n > remaining {
		n = remaining
	}
	copy(p.tcBuf[p.tcFilled:], input[:n])
	p.tcFilled += n
	if p.tcFilled == len(p.tcBuf) {
		ts, counter, err := ParseTimecode(p.ctx.Timecode, p.tcBuf)
		if err != nil {
			p.fail(err)
			return n
		}
		p.timestamp = ts
		p.counter = counter
		p.enterAncillary()
	}
	return n
}

func (p *Parser) enterAncillary() {
	if p.ctx.AncillaryDataLength > 0 {
		p.ancillaryBuf = make([]byte, p.ctx.AncillaryDataLength)
		p.ancillaryFilled = 0
		p.state = stateSHAncillary
		return
	}
	p.enterData()
}

func (p *Parser) feedAncillary(input []byte) int {
	remaining := len(p.ancillaryBuf) - p.ancillaryFilled
	n := len(input)
	if n > remaining {
		n = remaining
	}
	copy(p.ancillaryBuf[p.ancillaryFilled:], input[:n])
	p.ancillaryFilled += n
	if p.ancillaryFilled == len(p.ancillaryBuf) {
		p.enterData()
	}
	return n
}

func (p *Parser) enterData() {
	need := p.header.DataLength - p.ctx.AncillaryDataLength - p.ctx.timecodeSize()
	if need < 0 {
		p.fail(fmt.Errorf("spp: data_length %d too small for configured secondary header", p.header.DataLength))
		return
	}
	p.dataNeed = need
	p.dataHave = 0
	p.data = make([]byte, need)
	if need == 0 {
		p.completePacket()
		return
	}
	p.state = stateData
}

func (p *Parser) feedData(input []byte) int {
	remaining := p.dataNeed - p.dataHave
	n := len(input)
	if n > remaining {
		n = remaining
	}
	copy(p.data[p.dataHave:], input[:n])
	p.dataHave += n
	if p.dataHave == p.dataNeed {
		p.completePacket()
	}
	return n
}

func (p *Parser) completePacket() {
	meta := Meta{
		IsRequest:     p.header.IsRequest,
		APID:          p.header.APID,
		SegmentStatus: p.header.SegmentStatus,
		SegmentNumber: p.header.SegmentNumber,
		Timestamp:     p.timestamp,
		Counter:       p.counter,
	}
	ancillary := p.ancillaryBuf
	data := p.data
	p.reset()
	if p.OnPacketComplete != nil {
		p.OnPacketComplete(meta, ancillary, data)
	}
}
