package bpv6

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dtn "github.com/go-dtn/upcn"
)

func fragmentableBundle() *dtn.Bundle {
	b := dtn.NewBundle()
	b.Blocks = []dtn.Block{
		{Type: 5, Flags: 0, Data: []byte("preceding")},
		{Type: 6, Flags: dtn.BlockFlagMustBeReplicated, Data: []byte("replicated-before")},
		{Type: dtn.BlockTypePayload, Flags: 0, Data: []byte("the actual payload bytes")},
		{Type: 7, Flags: dtn.BlockFlagMustBeReplicated, Data: []byte("replicated-after")},
		{Type: 8, Flags: dtn.BlockFlagLastBlock, Data: []byte("trailing")},
	}
	return b
}

func TestFirstFragmentMinSizeExcludesNonReplicatedTailBlocks(t *testing.T) {
	b := fragmentableBundle()

	withReplicated := FirstFragmentMinSize(b)

	// Drop the non-replicated trailing block; the first-fragment size must
	// not change, since it only keeps MUST_BE_REPLICATED blocks from after
	// the payload.
	b2 := fragmentableBundle()
	b2.Blocks = append([]dtn.Block{}, b2.Blocks[:3]...)
	b2.Blocks = append(b2.Blocks, b.Blocks[3])
	withoutTrailing := FirstFragmentMinSize(b2)

	assert.Equal(t, withReplicated, withoutTrailing)
}

func TestFirstFragmentMinSizeExcludesPayloadBytes(t *testing.T) {
	b := fragmentableBundle()
	size := FirstFragmentMinSize(b)

	b2 := fragmentableBundle()
	b2.Blocks[2].Data = make([]byte, 10000)
	size2 := FirstFragmentMinSize(b2)

	assert.Equal(t, size, size2)
}

func TestMidFragmentMinSizeKeepsOnlyReplicatedBlocks(t *testing.T) {
	b := fragmentableBundle()
	size := MidFragmentMinSize(b)

	only := dtn.NewBundle()
	only.Blocks = []dtn.Block{
		b.Blocks[1], // replicated-before
		{Type: dtn.BlockTypePayload, Flags: 0},
		b.Blocks[3], // replicated-after
	}
	require.NotEmpty(t, only.Blocks)
	want := MidFragmentMinSize(only)

	assert.Equal(t, want, size)
}

func TestLastFragmentMinSizeKeepsTailAndReplicatedHead(t *testing.T) {
	b := fragmentableBundle()
	size := LastFragmentMinSize(b)

	b2 := fragmentableBundle()
	// Swap the non-replicated preceding block's data; last-fragment size
	// must not notice since that block isn't kept at all.
	b2.Blocks[0].Data = []byte("totally different length of data here")
	size2 := LastFragmentMinSize(b2)

	assert.Equal(t, size, size2)
}

func TestFragmentMinSizesWithoutPayloadBlockDoNotPanic(t *testing.T) {
	b := dtn.NewBundle()
	b.Blocks = []dtn.Block{{Type: 5, Flags: dtn.BlockFlagLastBlock, Data: []byte("x")}}

	// None of the three helpers should panic on a bundle with no payload
	// block; first and last size the block sequence as given, mid sizes an
	// empty one.
	assert.NotPanics(t, func() {
		FirstFragmentMinSize(b)
		MidFragmentMinSize(b)
		LastFragmentMinSize(b)
	})
}
