package cla

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	buf bytes.Buffer
}

func (s *recordingSink) Feed(data []byte) (int, error) {
	s.buf.Write(data)
	return len(data), nil
}

func TestEncodeMTCPHeaderExampleVector(t *testing.T) {
	got := EncodeMTCPHeader(260)
	assert.Equal(t, []byte{0x59, 0x01, 0x04}, got)
}

func TestMTCPFramerParsesHeaderAcrossTwoCalls(t *testing.T) {
	f := NewMTCPFramer(65536)
	sink := &recordingSink{}
	f.SetFrameSink(func(payloadLen int) (PayloadSink, error) {
		assert.Equal(t, 260, payloadLen)
		return sink, nil
	})

	header := EncodeMTCPHeader(260)
	n, err := f.ForwardToSpecificParser(header)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	payload := bytes.Repeat([]byte{0x42}, 260)
	n, err = f.ForwardToSpecificParser(payload)
	require.NoError(t, err)
	assert.Equal(t, 260, n)
	assert.Equal(t, payload, sink.buf.Bytes())
}

func TestMTCPFramerSmallHeaderSingleByte(t *testing.T) {
	f := NewMTCPFramer(65536)
	sink := &recordingSink{}
	f.SetFrameSink(func(payloadLen int) (PayloadSink, error) {
		return sink, nil
	})

	wire := append(EncodeMTCPHeader(5), []byte{1, 2, 3, 4, 5}...)
	n, err := f.ForwardToSpecificParser(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, sink.buf.Bytes())
}

func TestMTCPFramerFeedByteAtATimeMatchesWholeBuffer(t *testing.T) {
	wire := append(EncodeMTCPHeader(4), []byte{9, 9, 9, 9}...)

	whole := &recordingSink{}
	fWhole := NewMTCPFramer(65536)
	fWhole.SetFrameSink(func(int) (PayloadSink, error) { return whole, nil })
	_, err := fWhole.ForwardToSpecificParser(wire)
	require.NoError(t, err)

	piecewise := &recordingSink{}
	fPiece := NewMTCPFramer(65536)
	fPiece.SetFrameSink(func(int) (PayloadSink, error) { return piecewise, nil })
	for _, b := range wire {
		_, err := fPiece.ForwardToSpecificParser([]byte{b})
		require.NoError(t, err)
	}

	assert.Equal(t, whole.buf.Bytes(), piecewise.buf.Bytes())
}

func TestMTCPFramerRejectsBadMajorType(t *testing.T) {
	f := NewMTCPFramer(65536)
	f.SetFrameSink(func(int) (PayloadSink, error) { return &recordingSink{}, nil })
	_, err := f.ForwardToSpecificParser([]byte{0x00})
	assert.Error(t, err)
}

func TestMTCPFramerBeginSendEndRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	f := NewMTCPFramer(65536)
	payload := []byte("hello world")
	require.NoError(t, f.BeginPacket(&wire, len(payload)))
	require.NoError(t, f.SendPacketData(&wire, payload))
	require.NoError(t, f.EndPacket(&wire))

	sink := &recordingSink{}
	reader := NewMTCPFramer(65536)
	reader.SetFrameSink(func(int) (PayloadSink, error) { return sink, nil })
	n, err := reader.ForwardToSpecificParser(wire.Bytes())
	require.NoError(t, err)
	assert.Equal(t, wire.Len(), n)
	assert.Equal(t, payload, sink.buf.Bytes())
}
