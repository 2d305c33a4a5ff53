package spp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeTimecodeExampleVector(t *testing.T) {
	ctx := &TimecodeContext{BaseUnitOctets: 4, FractionalOctets: 4}

	got := SerializeTimecode(ctx, 577279245, 0x000676AB)

	want := []byte{0x71, 0x68, 0x37, 0x0d, 0x00, 0x06, 0x76, 0xab}
	assert.Equal(t, want, got)
}

func TestParseTimecodeExampleVector(t *testing.T) {
	ctx := &TimecodeContext{BaseUnitOctets: 4, FractionalOctets: 4}
	wire := []byte{0x71, 0x68, 0x37, 0x0d, 0x00, 0x06, 0x76, 0xab}

	ts, counter, err := ParseTimecode(ctx, wire)
	require.NoError(t, err)
	assert.EqualValues(t, 577279245, ts)
	assert.EqualValues(t, 0x000676AB, counter)
}

func TestTimecodeRoundTripWithoutPField(t *testing.T) {
	// base_unit_octets must be large enough to hold ts+CCSDSEpochOffset
	// (the offset alone needs 4 bytes), so every case here uses at least 4.
	for _, tc := range []struct{ base, frac uint8 }{
		{4, 0}, {4, 3}, {7, 6}, {5, 4},
	} {
		ctx := &TimecodeContext{BaseUnitOctets: tc.base, FractionalOctets: tc.frac}
		wire := SerializeTimecode(ctx, 1000, 42)
		assert.Len(t, wire, ctx.Size())

		ts, counter, err := ParseTimecode(ctx, wire)
		require.NoError(t, err)
		assert.EqualValues(t, 1000, ts)
		if tc.frac > 0 {
			// The fractional octets carry the counter's high-order bytes;
			// with fewer than 4 the low-order bytes are truncated.
			want := uint32(42)
			if tc.frac < 4 {
				want &^= 0xFFFFFFFF >> (8 * uint(tc.frac))
			}
			assert.EqualValues(t, want, counter)
		}
	}
}

func TestTimecodeRoundTripWithPField(t *testing.T) {
	for _, tc := range []struct{ base, frac uint8 }{
		{4, 3}, // fits in a single P-octet
		{5, 4}, // needs the second P-octet (both wide)
		{7, 0}, // base wide, fractional not
		{4, 6}, // fractional wide, base not
	} {
		write := &TimecodeContext{WithPField: true, BaseUnitOctets: tc.base, FractionalOctets: tc.frac}
		wire := SerializeTimecode(write, 1000, 7)
		assert.Len(t, wire, write.Size())

		read := &TimecodeContext{WithPField: true}
		ts, counter, err := ParseTimecode(read, wire)
		require.NoError(t, err)
		assert.Equal(t, tc.base, read.BaseUnitOctets)
		assert.Equal(t, tc.frac, read.FractionalOctets)
		assert.EqualValues(t, 1000, ts)
		if tc.frac > 0 {
			want := uint32(7)
			if tc.frac < 4 {
				want &^= 0xFFFFFFFF >> (8 * uint(tc.frac))
			}
			assert.EqualValues(t, want, counter)
		}
	}
}

func TestParseTimecodeRejectsPredatingDTNEpoch(t *testing.T) {
	ctx := &TimecodeContext{BaseUnitOctets: 4, FractionalOctets: 0}
	wire := []byte{0x00, 0x00, 0x00, 0x00} // seconds=0 < CCSDSEpochOffset
	_, _, err := ParseTimecode(ctx, wire)
	assert.Error(t, err)
}
