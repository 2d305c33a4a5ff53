package cla

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPCLv3EncodeHandshakeExampleVector(t *testing.T) {
	f := NewTCPCLv3Framer("dtn://a", 65536)
	got := f.EncodeHandshake()
	want := []byte{0x64, 0x74, 0x6e, 0x21, 0x03, 0x00, 0x00, 0x00, 0x07, 0x64, 0x74, 0x6e, 0x3a, 0x2f, 0x2f, 0x61}
	assert.Equal(t, want, got)
}

func TestTCPCLv3ParsesOwnHandshake(t *testing.T) {
	sender := NewTCPCLv3Framer("dtn://a", 65536)
	wire := sender.EncodeHandshake()

	receiver := NewTCPCLv3Framer("dtn://b", 65536)
	receiver.SetFrameSink(func(int) (PayloadSink, error) { return &recordingSink{}, nil })

	var handshakeEID string
	receiver.OnHandshake = func(peerEID string) error {
		handshakeEID = peerEID
		return nil
	}

	n, err := receiver.ForwardToSpecificParser(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, "dtn://a", handshakeEID)
	assert.Equal(t, "dtn://a", receiver.PeerEID)
}

func TestTCPCLv3RejectsBadMagic(t *testing.T) {
	receiver := NewTCPCLv3Framer("dtn://b", 65536)
	_, err := receiver.ForwardToSpecificParser([]byte{0x00, 0x00, 0x00, 0x00})
	assert.Error(t, err)
}

func TestTCPCLv3RejectsOldVersion(t *testing.T) {
	receiver := NewTCPCLv3Framer("dtn://b", 65536)
	wire := []byte{'d', 't', 'n', '!', 0x02}
	_, err := receiver.ForwardToSpecificParser(wire)
	assert.Error(t, err)
}

func TestTCPCLv3DataSegmentRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	f := NewTCPCLv3Framer("dtn://a", 65536)
	payload := []byte("a bundle's worth of bytes")
	require.NoError(t, f.BeginPacket(&wire, len(payload)))
	require.NoError(t, f.SendPacketData(&wire, payload))
	require.NoError(t, f.EndPacket(&wire))

	sender := NewTCPCLv3Framer("dtn://a", 65536)
	handshake := sender.EncodeHandshake()

	receiver := NewTCPCLv3Framer("dtn://b", 65536)
	sink := &recordingSink{}
	receiver.SetFrameSink(func(int) (PayloadSink, error) { return sink, nil })

	full := append(append([]byte(nil), handshake...), wire.Bytes()...)
	n, err := receiver.ForwardToSpecificParser(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	assert.Equal(t, payload, sink.buf.Bytes())
}

func TestTCPCLv3TwoDataSegmentsBackToBack(t *testing.T) {
	var wire bytes.Buffer
	f := NewTCPCLv3Framer("dtn://a", 65536)
	require.NoError(t, f.BeginPacket(&wire, 3))
	require.NoError(t, f.SendPacketData(&wire, []byte{1, 2, 3}))
	require.NoError(t, f.EndPacket(&wire))
	require.NoError(t, f.BeginPacket(&wire, 2))
	require.NoError(t, f.SendPacketData(&wire, []byte{4, 5}))
	require.NoError(t, f.EndPacket(&wire))

	sender := NewTCPCLv3Framer("dtn://a", 65536)
	handshake := sender.EncodeHandshake()

	receiver := NewTCPCLv3Framer("dtn://b", 65536)
	sink := &recordingSink{}
	receiver.SetFrameSink(func(int) (PayloadSink, error) { return sink, nil })

	full := append(append([]byte(nil), handshake...), wire.Bytes()...)
	n, err := receiver.ForwardToSpecificParser(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, sink.buf.Bytes())
}
