package link

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/pkg/cla"
)

func testBundle() *dtn.Bundle {
	b := dtn.NewBundle()
	b.Destination = "dtn://dst"
	b.Source = "dtn://src"
	b.CreationTimestamp = 1
	b.SequenceNumber = 1
	b.Lifetime = 3_600_000_000
	b.Blocks = []dtn.Block{
		{Type: dtn.BlockTypePayload, Flags: dtn.BlockFlagLastBlock, Data: []byte("hi")},
	}
	return b
}

func TestLinkTransmitsAndReceivesOneBundle(t *testing.T) {
	rxWire, txWire := io.Pipe()

	txLink := New(rxWire, txWire, txWire, Config{
		Framer: cla.NewMTCPFramer(1 << 20),
		Quota:  dtn.NewQuota(dtn.DefaultBundleQuota),
	})

	var received *dtn.Bundle
	rxLink := New(rxWire, io.Discard, nil, Config{
		Framer: cla.NewMTCPFramer(1 << 20),
		Quota:  dtn.NewQuota(dtn.DefaultBundleQuota),
	})
	rxLink.OnBundleComplete = func(b *dtn.Bundle) { received = b }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rxLink.Start(ctx)
	t.Cleanup(func() { txWire.Close() })

	require.NoError(t, txLink.sendOne(testBundle()))

	assert.Eventually(t, func() bool {
		return received != nil
	}, time.Second, 5*time.Millisecond)
	require.NotNil(t, received)
	assert.Equal(t, dtn.EID("dtn://dst"), received.Destination)
}

func TestLinkEnqueueBundleRejectsWhenInactive(t *testing.T) {
	rxWire, txWire := io.Pipe()
	defer rxWire.Close()

	l := New(rxWire, txWire, txWire, Config{
		Framer: cla.NewMTCPFramer(1 << 20),
		Quota:  dtn.NewQuota(dtn.DefaultBundleQuota),
	})
	l.disconnect(io.EOF)

	err := l.EnqueueBundle(context.Background(), testBundle())
	assert.Error(t, err)
}

func TestLinkDisconnectsOnReadEOF(t *testing.T) {
	rxWire, wireWriter := io.Pipe()

	var disconnected bool
	l := New(rxWire, io.Discard, nil, Config{
		Framer: cla.NewMTCPFramer(1 << 20),
		Quota:  dtn.NewQuota(dtn.DefaultBundleQuota),
	})
	l.OnDisconnect = func(*Link) { disconnected = true }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	wireWriter.Close()

	assert.Eventually(t, func() bool {
		return disconnected
	}, time.Second, 5*time.Millisecond)
	assert.False(t, l.Active())
}

func TestLinkDrainsTxQueueOnExit(t *testing.T) {
	rxWire, rxWriteEnd := io.Pipe()
	txReader, txWire := io.Pipe()
	go io.Copy(io.Discard, txReader)

	l := New(rxWire, txWire, txWire, Config{
		Framer: cla.NewMTCPFramer(1 << 20),
		Quota:  dtn.NewQuota(dtn.DefaultBundleQuota),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- l.EnqueueBundle(context.Background(), testBundle()) }()
	require.NoError(t, <-done)

	l.EnqueueExit()
	rxWriteEnd.Close()
	l.wg.Wait()
}
