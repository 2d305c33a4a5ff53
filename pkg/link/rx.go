package link

import (
	"context"
	"io"
)

// runRX reads up to rxBufferSize bytes at a time, hands them to the
// framer until it has consumed them all or signals loss of sync, and
// disconnects on any read error or EOF.
func (l *Link) runRX(ctx context.Context) {
	buf := make([]byte, rxBufferSize)
	for {
		if ctx.Err() != nil {
			l.disconnect(ctx.Err())
			return
		}
		n, err := l.conn.Read(buf)
		if n > 0 {
			l.feedFramer(buf[:n])
		}
		if err != nil {
			l.disconnect(err)
			return
		}
		if n == 0 {
			l.disconnect(io.ErrNoProgress)
			return
		}
	}
}

// feedFramer drives data through the framer to completion. Both a framer
// error and a zero-byte-consumed report reset the parsers and drop the
// rest of this read's bytes; neither disconnects the link.
func (l *Link) feedFramer(data []byte) {
	for len(data) > 0 {
		consumed, err := l.framer.ForwardToSpecificParser(data)
		if err != nil {
			l.logger.Warn("framer error, resynchronizing", "error", err)
			l.framer.ResetParsers()
			l.rxParser = nil
			return
		}
		if consumed == 0 {
			l.framer.ResetParsers()
			l.rxParser = nil
			return
		}
		data = data[consumed:]
	}
}
