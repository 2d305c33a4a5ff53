// Package link implements the per-connection RX/TX concurrency engine:
// one goroutine reads bytes off the wire and drives a CLA framer and
// bundle parser, another owns a bounded transmission queue and
// serializes bundles back out through the same framer.
package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/pkg/bpv6"
	"github.com/go-dtn/upcn/pkg/cla"
)

// rxBufferSize is the fixed chunk size the RX worker reads into per
// iteration.
const rxBufferSize = 64

// txQueueCapacity is the bounded TX command queue length.
const txQueueCapacity = 3

type txCommand struct {
	bundle *dtn.Bundle
	result chan<- error
	exit   bool
}

// NewBundleParser constructs the persistent payload sink for one bundle
// protocol version, used for a version this package has no built-in codec
// for (Bundle Protocol v7 has no built-in codec here; only the dispatch
// seam is provided). A nil factory means that version is never dispatched
// to.
type NewBundleParser func() cla.PayloadSink

// Serializer writes one bundle's wire bytes through framer's
// BeginPacket/SendPacketData/EndPacket bracket.
type Serializer func(framer cla.Framer, w io.Writer, b *dtn.Bundle) error

// Link is a per-connection record: a socket, its CLA framer, RX/TX worker
// state, and the bounded TX queue.
type Link struct {
	logger *slog.Logger
	quota  *dtn.Quota

	conn   io.Reader
	writer io.Writer
	closer io.Closer
	framer cla.Framer

	newBundle7Parser NewBundleParser
	serializeBundle6 Serializer
	serializeBundle7 Serializer

	mu     sync.Mutex
	active bool

	txQueue chan txCommand
	// txSem is the TX-queue semaphore of the CLA manager's
	// "acquire the TX-queue semaphore before releasing the registry
	// lock" protocol; it is not used internally by this package beyond
	// exposing it.
	txSem *semaphore.Weighted

	wg sync.WaitGroup

	rxParser cla.PayloadSink

	// OnBundleComplete is invoked once per bundle the RX side fully
	// parses, synchronously from the RX worker goroutine.
	OnBundleComplete func(*dtn.Bundle)
	// OnDisconnect is invoked at most once, when the link transitions to
	// inactive, either because of a read error or a TX write error.
	OnDisconnect func(*Link)
}

// Config collects the dependencies a Link needs beyond the transport
// itself.
type Config struct {
	Logger *slog.Logger
	Quota  *dtn.Quota
	Framer cla.Framer
	// NewBundle7Parser is left nil unless the caller has a Bundle
	// Protocol v7 codec to plug in; Bundle6 always uses pkg/bpv6.
	NewBundle7Parser NewBundleParser
	SerializeBundle6 Serializer
	SerializeBundle7 Serializer
}

// New constructs a Link over conn (read side) and w (write side; for a
// plain TCP/USB connection both are the same io.ReadWriteCloser), ready to
// have Start called on it.
func New(conn io.Reader, w io.Writer, closer io.Closer, cfg Config) *Link {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serializeBundle6 := cfg.SerializeBundle6
	if serializeBundle6 == nil {
		serializeBundle6 = DefaultSerializeBundle6
	}
	l := &Link{
		logger:           logger.With("service", "[LINK]", "cla", cfg.Framer.Name()),
		quota:            cfg.Quota,
		conn:             conn,
		writer:           w,
		closer:           closer,
		framer:           cfg.Framer,
		newBundle7Parser: cfg.NewBundle7Parser,
		serializeBundle6: serializeBundle6,
		serializeBundle7: cfg.SerializeBundle7,
		active:           true,
		txQueue:          make(chan txCommand, txQueueCapacity),
		txSem:            semaphore.NewWeighted(1),
	}
	l.framer.SetFrameSink(l.onFrameStart)
	return l
}

// TxSem returns the link's TX-queue binary semaphore, acquired by the CLA
// manager's contact registry before it releases its own map lock and
// returns a queue handle to an enqueue caller.
func (l *Link) TxSem() *semaphore.Weighted { return l.txSem }

// Active reports whether the link is still accepting work.
func (l *Link) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Start launches the RX and TX worker goroutines.
func (l *Link) Start(ctx context.Context) {
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.runRX(ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.runTX(ctx)
	}()
}

// Wait blocks until both workers have exited.
func (l *Link) Wait() { l.wg.Wait() }

// EnqueueBundle pushes b onto the TX queue in arrival order, blocking if
// the queue is full, and returns an error if the link is no longer active.
// The bundle's on-wire bytes will be sent in the order EnqueueBundle calls
// return.
func (l *Link) EnqueueBundle(ctx context.Context, b *dtn.Bundle) error {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return fmt.Errorf("link: enqueue on inactive link")
	}
	l.mu.Unlock()

	result := make(chan error, 1)
	select {
	case l.txQueue <- txCommand{bundle: b, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueExit pushes an EXIT command onto the TX queue, causing the TX
// worker to drain any queued commands (releasing their producers with an
// error) and return without touching the socket itself.
func (l *Link) EnqueueExit() {
	l.txQueue <- txCommand{exit: true}
}

// disconnect marks the link inactive, drains the TX queue (releasing every
// blocked producer with an error), and fires OnDisconnect exactly once.
func (l *Link) disconnect(cause error) {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	l.mu.Unlock()

	if l.closer != nil {
		l.closer.Close()
	}
	l.drainTxQueue(cause)

	if l.OnDisconnect != nil {
		l.OnDisconnect(l)
	}
}

func (l *Link) drainTxQueue(cause error) {
	for {
		select {
		case cmd := <-l.txQueue:
			if cmd.result != nil {
				cmd.result <- fmt.Errorf("link: disconnected: %w", cause)
			}
		default:
			return
		}
	}
}

// onFrameStart is the CLA framer's FrameSink. The bundle protocol version
// is decided from the discriminator byte of the first frame's first byte,
// and then sticks for later frames until the RX worker resynchronizes after
// a framer error, which clears it.
func (l *Link) onFrameStart(payloadLen int) (cla.PayloadSink, error) {
	if l.rxParser != nil {
		return l.rxParser, nil
	}
	return &sniffSink{l: l}, nil
}

// sniffSink buffers nothing itself: it peeks the first byte handed to it,
// picks the matching bundle parser, installs it on the link so later
// frames bypass the sniff, and forwards this call's bytes straight through.
type sniffSink struct{ l *Link }

func (s *sniffSink) Feed(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	version, ok := cla.PeekDiscriminator(data[0])
	if !ok {
		return 0, fmt.Errorf("link: unrecognized bundle discriminator %#02x", data[0])
	}
	var sink cla.PayloadSink
	switch version {
	case 6:
		p := bpv6.NewParser(s.l.quota, s.l.logger)
		p.OnBundleComplete = s.l.OnBundleComplete
		sink = p
	case 7:
		if s.l.newBundle7Parser == nil {
			return 0, fmt.Errorf("link: bundle protocol v7 is not supported by this build")
		}
		sink = s.l.newBundle7Parser()
	default:
		return 0, fmt.Errorf("link: unhandled bundle version %d", version)
	}
	s.l.rxParser = sink
	return sink.Feed(data)
}
