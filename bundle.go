// Package dtn holds the data model shared by every component of the bundle
// codec and convergence-layer engine: bundles, blocks, endpoint identifiers,
// and the process-wide storage quota they are checked against.
package dtn

import "github.com/rs/xid"

// ProtocolVersion identifies which bundle wire format a Bundle was parsed
// from, or should be serialized with.
type ProtocolVersion uint8

const (
	ProtocolVersion6 ProtocolVersion = 6
	ProtocolVersion7 ProtocolVersion = 7
)

// ProcessingFlags is the primary-block bitset from RFC 5050 §4.2.
type ProcessingFlags uint64

const (
	FlagIsFragment ProcessingFlags = 1 << iota
	FlagAdminRecord
	FlagNoFragment
	FlagCustodyRequested
	FlagSingletonEndpoint
	FlagAckRequested
	_ // reserved, RFC 5050 bit 6
	FlagNormalPriority
	FlagExpeditedPriority
	_ // reserved, RFC 5050 bits 9-13
	_
	_
	_
	_
	FlagReportReception
	FlagReportCustody
	FlagReportForwarding
	FlagReportDelivery
	FlagReportDeletion
)

// BlockFlags is the per-block bitset from RFC 5050 §4.3.
type BlockFlags uint32

const (
	BlockFlagMustBeReplicated BlockFlags = 1 << iota
	_
	_
	BlockFlagLastBlock
	_
	_
	BlockFlagHasEIDRefField
)

// BlockTypePayload is the canonical block type reserved for a bundle's
// application data unit; exactly one block of this type may appear in a
// valid bundle, and it must be the last block.
const BlockTypePayload = 1

// EID is a DTN endpoint identifier of the form "scheme:ssp". The zero value
// is not a valid EID; use NoneEID for the "dtn:none" sentinel.
type EID string

// NoneEID is the distinguished null endpoint.
const NoneEID EID = "dtn:none"

// Block is one canonical block of a bundle: a typed, length-prefixed
// section owning its own data buffer.
type Block struct {
	Type    uint8
	Flags   BlockFlags
	Data    []byte
	EIDRefs []EID
}

// IsLast reports whether this block carries the LAST_BLOCK flag.
func (b *Block) IsLast() bool {
	return b.Flags&BlockFlagLastBlock != 0
}

// Bundle is the in-memory representation of a parsed or to-be-serialized
// bundle, addressed internally by an opaque id that never appears on the
// wire.
type Bundle struct {
	ID xid.ID

	ProtocolVersion  ProtocolVersion
	ProcessingFlags  ProcessingFlags
	Destination      EID
	Source           EID
	ReportTo         EID
	CurrentCustodian EID

	CreationTimestamp uint64
	SequenceNumber    uint64
	// Lifetime is stored in microseconds; the wire format carries seconds.
	Lifetime uint64

	FragmentOffset uint32
	TotalADULength uint32

	Blocks []Block
}

// NewBundle returns a Bundle with a fresh opaque id and dtn:none endpoints.
func NewBundle() *Bundle {
	return &Bundle{
		ID:               xid.New(),
		ProtocolVersion:  ProtocolVersion6,
		Destination:      NoneEID,
		Source:           NoneEID,
		ReportTo:         NoneEID,
		CurrentCustodian: NoneEID,
	}
}

// PayloadBlock returns the bundle's single payload block, or nil if none is
// present yet.
func (b *Bundle) PayloadBlock() *Block {
	for i := range b.Blocks {
		if b.Blocks[i].Type == BlockTypePayload {
			return &b.Blocks[i]
		}
	}
	return nil
}

// Valid reports whether the block sequence satisfies the v6 structural
// invariant: exactly one payload block, it is the last block, and exactly
// one block carries LAST_BLOCK and it is the last block.
func (b *Bundle) Valid() bool {
	if len(b.Blocks) == 0 {
		return false
	}
	payloadCount := 0
	lastFlagCount := 0
	for i, blk := range b.Blocks {
		if blk.Type == BlockTypePayload {
			payloadCount++
			if i != len(b.Blocks)-1 {
				return false
			}
		}
		if blk.IsLast() {
			lastFlagCount++
			if i != len(b.Blocks)-1 {
				return false
			}
		}
	}
	return payloadCount == 1 && lastFlagCount == 1
}
