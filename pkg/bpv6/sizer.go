package bpv6

import (
	dtn "github.com/go-dtn/upcn"
)

// zeroPayloadVariant returns a copy of b with its payload block's data
// truncated to zero bytes, used by the three fragment-sizing helpers below
// since all three compute sizes against a 0-byte payload header.
func zeroPayloadVariant(b *dtn.Bundle) *dtn.Bundle {
	clone := *b
	clone.Blocks = make([]dtn.Block, len(b.Blocks))
	copy(clone.Blocks, b.Blocks)
	for i := range clone.Blocks {
		if clone.Blocks[i].Type == dtn.BlockTypePayload {
			clone.Blocks[i].Data = nil
		}
	}
	return &clone
}

func payloadIndex(b *dtn.Bundle) int {
	for i, blk := range b.Blocks {
		if blk.Type == dtn.BlockTypePayload {
			return i
		}
	}
	return -1
}

// FirstFragmentMinSize returns the smallest serialized size a first
// fragment can have: the primary block, every block preceding the payload,
// every MUST_BE_REPLICATED block after the payload, and a 0-byte payload
// header. Actual payload bytes are excluded.
func FirstFragmentMinSize(b *dtn.Bundle) int {
	pi := payloadIndex(b)
	if pi < 0 {
		return SerializedSize(zeroPayloadVariant(b))
	}
	clone := zeroPayloadVariant(b)
	kept := make([]dtn.Block, pi, len(clone.Blocks))
	copy(kept, clone.Blocks[:pi])
	for _, blk := range clone.Blocks[pi+1:] {
		if blk.Flags&dtn.BlockFlagMustBeReplicated != 0 {
			kept = append(kept, blk)
		}
	}
	kept = append(kept, clone.Blocks[pi])
	clone.Blocks = markLast(kept)
	return SerializedSize(clone)
}

// MidFragmentMinSize returns the smallest serialized size a middle fragment
// can have: only MUST_BE_REPLICATED blocks around a 0-byte payload header.
func MidFragmentMinSize(b *dtn.Bundle) int {
	pi := payloadIndex(b)
	clone := zeroPayloadVariant(b)
	if pi < 0 {
		clone.Blocks = nil
		return SerializedSize(clone)
	}
	var kept []dtn.Block
	for i, blk := range clone.Blocks {
		if i == pi {
			kept = append(kept, blk)
			continue
		}
		if blk.Flags&dtn.BlockFlagMustBeReplicated != 0 {
			kept = append(kept, blk)
		}
	}
	clone.Blocks = markLast(kept)
	return SerializedSize(clone)
}

// LastFragmentMinSize returns the smallest serialized size a last fragment
// can have: blocks after the payload plus MUST_BE_REPLICATED blocks from
// before it, plus a 0-byte payload header.
func LastFragmentMinSize(b *dtn.Bundle) int {
	pi := payloadIndex(b)
	clone := zeroPayloadVariant(b)
	if pi < 0 {
		return SerializedSize(clone)
	}
	var kept []dtn.Block
	for _, blk := range clone.Blocks[:pi] {
		if blk.Flags&dtn.BlockFlagMustBeReplicated != 0 {
			kept = append(kept, blk)
		}
	}
	kept = append(kept, clone.Blocks[pi])
	kept = append(kept, clone.Blocks[pi+1:]...)
	clone.Blocks = markLast(kept)
	return SerializedSize(clone)
}

// markLast returns blocks with LAST_BLOCK cleared on every block but the
// last, and set on the last, so the result still satisfies the structural
// invariant Serialize relies on.
func markLast(blocks []dtn.Block) []dtn.Block {
	out := make([]dtn.Block, len(blocks))
	copy(out, blocks)
	for i := range out {
		if i == len(out)-1 {
			out[i].Flags |= dtn.BlockFlagLastBlock
		} else {
			out[i].Flags &^= dtn.BlockFlagLastBlock
		}
	}
	return out
}
