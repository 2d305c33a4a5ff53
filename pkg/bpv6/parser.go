package bpv6

import (
	"log/slog"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/internal/sdnv"
)

type parserState uint8

const (
	stateVersion parserState = iota
	stateProcFlags
	stateBlockLength
	stateDestSch
	stateDestSsp
	stateSrcSch
	stateSrcSsp
	stateRptSch
	stateRptSsp
	stateCustSch
	stateCustSsp
	stateTimestamp
	stateSeqNum
	stateLifetime
	stateDictLength
	stateDictionary
	stateFragOffset
	stateAduLength
	stateBlockType
	stateBlockFlags
	stateEidRefCnt
	stateEidRefSch
	stateEidRefSsp
	stateBlockDataLength
	stateBlockData
	stateDone
	stateError
)

// primaryVersionByte is the only protocol_version byte this parser acts on;
// anything else is either an error or, at the outer link-engine
// discriminator, a dispatch to the sibling Bundle7 parser.
const primaryVersionByte = 0x06

// Parser is a single-threaded, cooperative byte sink implementing the v6
// state machine from the core specification. Feed may be called with
// arbitrarily small or large chunks; the parser never blocks and never
// runs a goroutine of its own — the caller (the CLA link engine's RX
// worker) drives it.
type Parser struct {
	logger *slog.Logger
	quota  *dtn.Quota

	state parserState
	err   error

	r8  sdnv.Reader[uint8]
	r32 sdnv.Reader[uint32]
	r64 sdnv.Reader[uint64]

	bundle *dtn.Bundle

	primaryBytesRemaining uint32
	reservedBytes         uint64

	destOffsets EIDOffsets
	srcOffsets  EIDOffsets
	rptOffsets  EIDOffsets
	custOffsets EIDOffsets

	dict       []byte
	dictLength uint32
	dictFilled uint32

	curBlock            dtn.Block
	eidRefCnt           uint32
	eidRefs             []dtn.EID
	pendingSchemeOffset uint32

	blockData     []byte
	blockDataNeed uint32
	blockDataHave uint32

	// OnBundleComplete is invoked once per valid bundle, synchronously
	// from within Feed, on the Done transition.
	OnBundleComplete func(*dtn.Bundle)
}

// NewParser returns a Parser ready to accept bytes starting at Version. A
// nil logger defaults to slog.Default().
func NewParser(quota *dtn.Quota, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{logger: logger.With("component", "bpv6.parser"), quota: quota}
	p.reset()
	return p
}

// reset returns the parser to Version without discarding the
// OnBundleComplete binding, matching §4.C's reset() contract.
func (p *Parser) reset() {
	p.state = stateVersion
	p.err = nil
	p.bundle = nil
	p.primaryBytesRemaining = 0
	p.dict = nil
	p.dictLength = 0
	p.dictFilled = 0
	p.curBlock = dtn.Block{}
	p.eidRefCnt = 0
	p.eidRefs = nil
	p.blockData = nil
	p.blockDataNeed = 0
	p.blockDataHave = 0
	if p.reservedBytes > 0 && p.quota != nil {
		p.quota.Release(p.reservedBytes)
	}
	p.reservedBytes = 0
}

// Reset is the exported form of reset, for external callers (the RX
// worker's resynchronization path).
func (p *Parser) Reset() { p.reset() }

// Err returns the error that drove the parser into Error, if any.
func (p *Parser) Err() error { return p.err }

func (p *Parser) fail(err error) {
	p.state = stateError
	p.err = err
}

func (p *Parser) reserve(n uint32) bool {
	if p.quota == nil {
		return true
	}
	if !p.quota.TryReserve(uint64(n)) {
		return false
	}
	p.reservedBytes += uint64(n)
	return true
}

// Feed consumes as much of input as the current state machine step allows
// and returns the number of bytes consumed. It never consumes more than
// len(input); callers loop, feeding the remainder, until consumed == 0 (at
// which point a framer-level resynchronization is needed) or input is
// exhausted.
func (p *Parser) Feed(input []byte) (consumed int, err error) {
	for consumed < len(input) {
		if p.state == stateError {
			return consumed, p.err
		}
		if p.state == stateBlockData {
			n := p.feedBlockData(input[consumed:])
			consumed += n
			if n == 0 {
				return consumed, nil
			}
			continue
		}
		if p.state == stateBlockType {
			p.startBlock(input[consumed])
			consumed++
			continue
		}
		b := input[consumed]
		consumed++
		if p.primaryCountingState() {
			if p.primaryBytesRemaining == 0 {
				p.fail(dtn.NewParseError(dtn.ParseErrBlockLengthExhausted))
				return consumed, p.err
			}
			p.primaryBytesRemaining--
		}
		p.stepByte(b)
		if p.state == stateError {
			return consumed, p.err
		}
	}
	return consumed, nil
}

// primaryCountingState reports whether the byte about to be consumed falls
// inside the primary_bytes_remaining accounting window: DestSch through
// the end of Dictionary (and the fragment fields, if present).
func (p *Parser) primaryCountingState() bool {
	switch p.state {
	case stateDestSch, stateDestSsp, stateSrcSch, stateSrcSsp,
		stateRptSch, stateRptSsp, stateCustSch, stateCustSsp,
		stateTimestamp, stateSeqNum, stateLifetime,
		stateDictLength, stateDictionary,
		stateFragOffset, stateAduLength:
		return true
	default:
		return false
	}
}

func (p *Parser) stepByte(b byte) {
	switch p.state {
	case stateVersion:
		if b != primaryVersionByte {
			p.fail(dtn.NewParseError(dtn.ParseErrInvalidVersion))
			return
		}
		p.bundle = dtn.NewBundle()
		p.bundle.ProtocolVersion = dtn.ProtocolVersion6
		p.r64.Reset()
		p.state = stateProcFlags

	case stateProcFlags:
		p.r64.ReadByte(b)
		if !checkSDNV(p, &p.r64) {
			return
		}
		if p.r64.Status == sdnv.Done {
			p.bundle.ProcessingFlags = dtn.ProcessingFlags(p.r64.Value())
			p.r32.Reset()
			p.state = stateBlockLength
		}

	case stateBlockLength:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			p.primaryBytesRemaining = p.r32.Value()
			p.r32.Reset()
			p.state = stateDestSch

		}

	case stateDestSch:
		p.stepOffsetField(b, &p.destOffsets.SchemeOffset, stateDestSsp)
	case stateDestSsp:
		p.stepOffsetField(b, &p.destOffsets.SSPOffset, stateSrcSch)
	case stateSrcSch:
		p.stepOffsetField(b, &p.srcOffsets.SchemeOffset, stateSrcSsp)
	case stateSrcSsp:
		p.stepOffsetField(b, &p.srcOffsets.SSPOffset, stateRptSch)
	case stateRptSch:
		p.stepOffsetField(b, &p.rptOffsets.SchemeOffset, stateRptSsp)
	case stateRptSsp:
		p.stepOffsetField(b, &p.rptOffsets.SSPOffset, stateCustSch)
	case stateCustSch:
		p.stepOffsetField(b, &p.custOffsets.SchemeOffset, stateCustSsp)
	case stateCustSsp:
		p.stepOffsetField(b, &p.custOffsets.SSPOffset, stateTimestamp)
		if p.state == stateTimestamp {
			p.r64.Reset()
		}

	case stateTimestamp:
		p.r64.ReadByte(b)
		if !checkSDNV(p, &p.r64) {
			return
		}
		if p.r64.Status == sdnv.Done {
			p.bundle.CreationTimestamp = p.r64.Value()
			p.r64.Reset()
			p.state = stateSeqNum
		}

	case stateSeqNum:
		p.r64.ReadByte(b)
		if !checkSDNV(p, &p.r64) {
			return
		}
		if p.r64.Status == sdnv.Done {
			p.bundle.SequenceNumber = p.r64.Value()
			p.r64.Reset()
			p.state = stateLifetime
		}

	case stateLifetime:
		p.r64.ReadByte(b)
		if !checkSDNV(p, &p.r64) {
			return
		}
		if p.r64.Status == sdnv.Done {
			p.bundle.Lifetime = p.r64.Value() * 1_000_000
			p.r32.Reset()
			p.state = stateDictLength
		}

	case stateDictLength:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			if p.r32.Value() == 0 {
				p.fail(dtn.NewParseError(dtn.ParseErrDictLengthZero))
				return
			}
			p.dictLength = p.r32.Value()
			if !p.reserve(p.dictLength + 1) {
				p.fail(dtn.NewParseError(dtn.ParseErrQuotaExceeded))
				return
			}
			p.dict = make([]byte, p.dictLength+1)
			p.dictFilled = 0
			p.state = stateDictionary
		}

	case stateDictionary:
		p.dict[p.dictFilled] = b
		p.dictFilled++
		if p.dictFilled == p.dictLength {
			p.dict[p.dictLength] = 0
			if err := p.resolveDictionary(); err != nil {
				p.fail(err)
				return
			}
			if p.bundle.ProcessingFlags&dtn.FlagIsFragment != 0 {
				p.r32.Reset()
				p.state = stateFragOffset
			} else {
				p.state = stateBlockType
			}
		}

	case stateFragOffset:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			p.bundle.FragmentOffset = p.r32.Value()
			p.r32.Reset()
			p.state = stateAduLength
		}

	case stateAduLength:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			p.bundle.TotalADULength = p.r32.Value()
			p.state = stateBlockType
		}

	case stateBlockFlags:
		p.r8.ReadByte(b)
		if !checkSDNV(p, &p.r8) {
			return
		}
		if p.r8.Status == sdnv.Done {
			p.curBlock.Flags = dtn.BlockFlags(p.r8.Value())
			if p.curBlock.Flags&dtn.BlockFlagHasEIDRefField != 0 {
				p.r32.Reset()
				p.state = stateEidRefCnt
			} else {
				p.r32.Reset()
				p.state = stateBlockDataLength
			}
		}

	case stateEidRefCnt:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			p.eidRefCnt = p.r32.Value()
			p.eidRefs = make([]dtn.EID, 0, p.eidRefCnt)
			if p.eidRefCnt == 0 {
				p.r32.Reset()
				p.state = stateBlockDataLength
			} else {
				p.r32.Reset()
				p.state = stateEidRefSch
			}
		}

	case stateEidRefSch:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			p.pendingSchemeOffset = p.r32.Value()
			p.r32.Reset()
			p.state = stateEidRefSsp
		}

	case stateEidRefSsp:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			eid, err := resolveEID(p.dict, p.dictLength, EIDOffsets{SchemeOffset: p.pendingSchemeOffset, SSPOffset: p.r32.Value()})
			if err != nil {
				p.fail(err)
				return
			}
			p.eidRefs = append(p.eidRefs, eid)
			if uint32(len(p.eidRefs)) < p.eidRefCnt {
				p.r32.Reset()
				p.state = stateEidRefSch
			} else {
				p.curBlock.EIDRefs = p.eidRefs
				p.r32.Reset()
				p.state = stateBlockDataLength
			}
		}

	case stateBlockDataLength:
		p.r32.ReadByte(b)
		if !checkSDNV(p, &p.r32) {
			return
		}
		if p.r32.Status == sdnv.Done {
			n := p.r32.Value()
			if !p.reserve(n) {
				p.fail(dtn.NewParseError(dtn.ParseErrQuotaExceeded))
				return
			}
			p.blockData = make([]byte, n)
			p.blockDataNeed = n
			p.blockDataHave = 0
			if n == 0 {
				p.finishBlock()
			} else {
				p.state = stateBlockData
			}
		}

	default:
		p.fail(dtn.NewParseError(dtn.ParseErrAllocation))
	}
}

// stepOffsetField decodes one of the eight primary-block EID offset SDNVs.
func (p *Parser) stepOffsetField(b byte, dst *uint32, next parserState) {
	p.r32.ReadByte(b)
	if !checkSDNV(p, &p.r32) {
		return
	}
	if p.r32.Status == sdnv.Done {
		*dst = p.r32.Value()
		p.r32.Reset()
		p.state = next
	}
}

// checkSDNV maps an SDNV reader's Error status onto the parser's own error
// states. It returns false (and leaves the parser in Error) if the reader
// failed. It is a free function, not a method, because Go methods cannot
// carry their own type parameters independent of the receiver's.
func checkSDNV[T sdnv.Unsigned](p *Parser, r *sdnv.Reader[T]) bool {
	if r.Status != sdnv.Error {
		return true
	}
	if r.Err == sdnv.ErrAlreadyDone {
		p.fail(dtn.NewParseError(dtn.ParseErrSDNVAlreadyDone))
	} else {
		p.fail(dtn.NewParseError(dtn.ParseErrSDNVOverflow))
	}
	return false
}

func (p *Parser) startBlock(typeByte byte) {
	p.curBlock = dtn.Block{Type: typeByte}
	p.r8.Reset()
	p.state = stateBlockFlags
}

// feedBlockData bulk-copies as many bytes as are available from input into
// the current block's data buffer: no sentinel byte, no outer replay — it
// just takes whatever is available and reports how much it consumed.
func (p *Parser) feedBlockData(input []byte) int {
	remaining := p.blockDataNeed - p.blockDataHave
	n := uint32(len(input))
	if n > remaining {
		n = remaining
	}
	copy(p.blockData[p.blockDataHave:], input[:n])
	p.blockDataHave += n
	if p.blockDataHave == p.blockDataNeed {
		p.curBlock.Data = p.blockData
		p.finishBlock()
	}
	return int(n)
}

// finishBlock appends the completed block to the bundle and either starts
// the next block or, on LAST_BLOCK, completes the bundle.
func (p *Parser) finishBlock() {
	last := p.curBlock.IsLast()
	p.bundle.Blocks = append(p.bundle.Blocks, p.curBlock)
	p.curBlock = dtn.Block{}
	p.eidRefs = nil
	p.eidRefCnt = 0
	if last {
		p.complete()
		return
	}
	p.state = stateBlockType
}

// complete finalizes the bundle: drop it silently if it has no payload
// block, otherwise hand it to OnBundleComplete and reset for the next one.
func (p *Parser) complete() {
	b := p.bundle
	valid := b.Valid() && b.PayloadBlock() != nil
	p.reset()
	if !valid {
		p.logger.Debug("dropping bundle with no payload block")
		return
	}
	if p.OnBundleComplete != nil {
		p.OnBundleComplete(b)
	}
}

// resolveDictionary fills in the four fixed EIDs from the buffered
// dictionary, now that dictFilled == dictLength.
func (p *Parser) resolveDictionary() error {
	dst, err := resolveEID(p.dict, p.dictLength, p.destOffsets)
	if err != nil {
		return err
	}
	src, err := resolveEID(p.dict, p.dictLength, p.srcOffsets)
	if err != nil {
		return err
	}
	rpt, err := resolveEID(p.dict, p.dictLength, p.rptOffsets)
	if err != nil {
		return err
	}
	cust, err := resolveEID(p.dict, p.dictLength, p.custOffsets)
	if err != nil {
		return err
	}
	p.bundle.Destination = dst
	p.bundle.Source = src
	p.bundle.ReportTo = rpt
	p.bundle.CurrentCustodian = cust
	return nil
}
