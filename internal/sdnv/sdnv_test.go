package sdnv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed[T Unsigned](bytes []byte) *Reader[T] {
	r := &Reader[T]{}
	for _, b := range bytes {
		if r.Status != InProgress {
			break
		}
		r.ReadByte(b)
	}
	return r
}

func TestWriteMaxValues(t *testing.T) {
	assert.Equal(t, []byte{0x83, 0xFF, 0x7F}, encode(uint16(0xFFFF)))
	assert.Equal(t, []byte{0x8F, 0xFF, 0xFF, 0xFF, 0x7F}, encode(uint32(0xFFFFFFFF)))
	assert.Equal(t, []byte{0x81, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, encode(uint64(0xFFFFFFFFFFFFFFFF)))
}

func encode[T Unsigned](v T) []byte {
	buf := make([]byte, SizeOf(v))
	Write(buf, v)
	return buf
}

func TestRoundTripMaxValues(t *testing.T) {
	r16 := feed[uint16](encode(uint16(0xFFFF)))
	require.Equal(t, Done, r16.Status)
	assert.EqualValues(t, 0xFFFF, r16.Value())

	r32 := feed[uint32](encode(uint32(0xFFFFFFFF)))
	require.Equal(t, Done, r32.Status)
	assert.EqualValues(t, 0xFFFFFFFF, r32.Value())

	r64 := feed[uint64](encode(uint64(0xFFFFFFFFFFFFFFFF)))
	require.Equal(t, Done, r64.Status)
	assert.EqualValues(t, uint64(0xFFFFFFFFFFFFFFFF), r64.Value())
}

func TestOverflow(t *testing.T) {
	r := feed[uint16]([]byte{0x87, 0xFF, 0x7F})
	require.Equal(t, Error, r.Status)
	assert.ErrorIs(t, r.Err, ErrOverflow)
}

func TestAlreadyDone(t *testing.T) {
	r := &Reader[uint8]{}
	r.ReadByte(0x01)
	require.Equal(t, Done, r.Status)
	r.ReadByte(0x01)
	assert.Equal(t, Error, r.Status)
	assert.ErrorIs(t, r.Err, ErrAlreadyDone)
}

func TestRoundTripAllWidthsSample(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 16383, 16384, 2097151, 1 << 40, 1<<63 - 1} {
		buf := encode(v)
		r := feed[uint64](buf)
		require.Equal(t, Done, r.Status, "value %d", v)
		assert.Equal(t, v, r.Value())
		assert.Equal(t, len(buf), SizeOf(v))
	}
}
