package link

import (
	"context"
	"fmt"
	"io"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/pkg/bpv6"
	"github.com/go-dtn/upcn/pkg/cla"
)

// sendPacketWriter adapts a framer's SendPacketData bracket method into a
// plain io.Writer so a protocol-version codec's Serialize function can
// write through it without knowing about framing at all.
type sendPacketWriter struct {
	framer cla.Framer
	w      io.Writer
}

func (s sendPacketWriter) Write(p []byte) (int, error) {
	if err := s.framer.SendPacketData(s.w, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// DefaultSerializeBundle6 brackets pkg/bpv6's wire serialization inside the
// framer's BeginPacket/SendPacketData/EndPacket calls.
func DefaultSerializeBundle6(framer cla.Framer, w io.Writer, b *dtn.Bundle) error {
	length := bpv6.SerializedSize(b)
	if err := framer.BeginPacket(w, length); err != nil {
		return err
	}
	if err := bpv6.Serialize(sendPacketWriter{framer: framer, w: w}, b); err != nil {
		return err
	}
	return framer.EndPacket(w)
}

// runTX takes one command at a time, brackets its serialization inside
// BeginPacket/SendPacketData/EndPacket, and disconnects on any write
// error. An exit command drains the queue, releasing any blocked
// producers with an error, and returns.
func (l *Link) runTX(ctx context.Context) {
	for {
		var cmd txCommand
		select {
		case cmd = <-l.txQueue:
		case <-ctx.Done():
			l.drainTxQueue(ctx.Err())
			return
		}
		if cmd.exit {
			l.drainTxQueue(nil)
			return
		}

		err := l.sendOne(cmd.bundle)
		if cmd.result != nil {
			cmd.result <- err
		}
		if err != nil {
			l.logger.Error("tx write error, disconnecting", "error", err)
			l.disconnect(err)
			return
		}
	}
}

func (l *Link) sendOne(b *dtn.Bundle) error {
	switch b.ProtocolVersion {
	case dtn.ProtocolVersion6:
		if l.serializeBundle6 == nil {
			return fmt.Errorf("link: no Bundle6 serializer configured")
		}
		return l.serializeBundle6(l.framer, l.writer, b)
	case dtn.ProtocolVersion7:
		if l.serializeBundle7 == nil {
			return fmt.Errorf("link: no Bundle7 serializer configured")
		}
		return l.serializeBundle7(l.framer, l.writer, b)
	default:
		return fmt.Errorf("link: unsupported bundle protocol version %d", b.ProtocolVersion)
	}
}
