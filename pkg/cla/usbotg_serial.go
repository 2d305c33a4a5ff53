package cla

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// usbQueueCapacity is both the size in bytes of each device read the RX
// pump makes, matching the fixed 64-byte RX chunk the link engine reads at
// a time, and the depth in chunks of the RX queue. The TX direction has no
// queue.
const usbQueueCapacity = 64

// usbBurstPollTimeout is how long USBOTGTransport.Read waits for
// additional bytes after the first have arrived, coalescing a burst into
// one RX-worker read the way the source's USB driver does.
const usbBurstPollTimeout = 5 * time.Millisecond

// USBOTGTransport backs the USB-MTCP CLA's read/write contract with a real
// serial/USB-CDC device: a background goroutine pumps device reads into a
// bounded channel, and Read drains it with blocks-then-polls-a-burst
// semantics.
type USBOTGTransport struct {
	port serial.Port
	rxCh chan []byte
	done chan struct{}

	pending []byte
}

// NewUSBOTGTransport opens the read pump over an already-configured serial
// port and returns a transport satisfying io.ReadWriteCloser.
func NewUSBOTGTransport(port serial.Port) *USBOTGTransport {
	t := &USBOTGTransport{port: port, rxCh: make(chan []byte, usbQueueCapacity), done: make(chan struct{})}
	go t.pump()
	return t
}

func (t *USBOTGTransport) pump() {
	buf := make([]byte, usbQueueCapacity)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case t.rxCh <- chunk:
			case <-t.done:
				return
			}
		}
		if err != nil {
			close(t.rxCh)
			return
		}
	}
}

// Read blocks until at least one byte is queued, then keeps draining
// already-queued chunks for up to usbBurstPollTimeout before returning.
func (t *USBOTGTransport) Read(buf []byte) (int, error) {
	n := 0
	if len(t.pending) > 0 {
		n = copy(buf, t.pending)
		t.pending = t.pending[n:]
		if n == len(buf) {
			return n, nil
		}
	} else {
		chunk, ok := <-t.rxCh
		if !ok {
			return 0, io.EOF
		}
		n = copy(buf, chunk)
		if n < len(chunk) {
			t.pending = chunk[n:]
			return n, nil
		}
	}

	timeout := time.After(usbBurstPollTimeout)
	for n < len(buf) {
		select {
		case chunk, ok := <-t.rxCh:
			if !ok {
				return n, nil
			}
			m := copy(buf[n:], chunk)
			n += m
			if m < len(chunk) {
				t.pending = chunk[m:]
				return n, nil
			}
		case <-timeout:
			return n, nil
		}
	}
	return n, nil
}

// Write sends p directly to the device; the outbound direction has no
// queueing of its own since the TX worker already serializes one bundle at
// a time.
func (t *USBOTGTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// Close stops the read pump and closes the underlying device.
func (t *USBOTGTransport) Close() error {
	close(t.done)
	return t.port.Close()
}

// NewUSBOTGFramer returns the MTCP wire framer used by the USB-OTG CLA;
// framing is byte-for-byte identical to MTCP/S-MTCP, only the transport
// differs.
func NewUSBOTGFramer(maxBundleSize int) *MTCPFramer {
	return NewMTCPFramer(maxBundleSize)
}
