package spp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePrimaryHeaderRoundTrip(t *testing.T) {
	h := PrimaryHeader{
		IsRequest:          true,
		HasSecondaryHeader: true,
		APID:               0x123,
		SegmentStatus:      SegmentFirst,
		SegmentNumber:      0x2AAA,
		DataLength:         42,
	}
	wire, err := EncodePrimaryHeader(h)
	require.NoError(t, err)

	got, err := DecodePrimaryHeader(wire[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestEncodePrimaryHeaderRejectsOutOfRangeFields(t *testing.T) {
	_, err := EncodePrimaryHeader(PrimaryHeader{APID: MaxAPID + 1, DataLength: 1})
	assert.Error(t, err)

	_, err = EncodePrimaryHeader(PrimaryHeader{SegmentNumber: MaxSegmentNumber + 1, DataLength: 1})
	assert.Error(t, err)

	_, err = EncodePrimaryHeader(PrimaryHeader{DataLength: 0})
	assert.Error(t, err)

	_, err = EncodePrimaryHeader(PrimaryHeader{DataLength: MaxDataLength + 1})
	assert.Error(t, err)
}

func TestDecodePrimaryHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodePrimaryHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}
