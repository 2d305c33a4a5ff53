package manager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/pkg/cla"
	"github.com/go-dtn/upcn/pkg/link"
	"github.com/go-dtn/upcn/pkg/metrics"
	"github.com/go-dtn/upcn/pkg/spp"
)

// Retry budget for the management task's Connecting state.
const (
	claTCPRetryInterval   = 5 * time.Second
	claTCPMaxRetryAttempt = 5
)

// claInstance is one configured CLA: its listening socket (if any), the
// framer family it constructs per connection, and its contact registry —
// a key→contact_parameters hash table guarded by its own mutex.
type claInstance struct {
	name          string
	listenAddr    string
	newFramer     func() cla.Framer
	keyedByPeer   bool
	tcpActive     bool
	devicePath    string // usbotg only; empty elsewhere
	maxBundleSize int

	mgr *Manager

	mu       sync.Mutex
	contacts map[string]*contactParams
	listener net.Listener
}

// Manager is the CLA manager: one Manager owns every configured CLA and
// the contacts running under it.
type Manager struct {
	logger *slog.Logger
	quota  *dtn.Quota
	metrics *metrics.Registry

	localEID dtn.EID

	mu   sync.Mutex
	clas map[string]*claInstance
}

// Config collects the dependencies a Manager needs.
type Config struct {
	Logger   *slog.Logger
	Quota    *dtn.Quota
	Metrics  *metrics.Registry
	LocalEID dtn.EID
	// MaxBundleSize bounds every framer's accepted frame length.
	MaxBundleSize int
}

// New builds a Manager from a CLA configuration string parsed via
// ParseConfigString.
func New(configString string, cfg Config) (*Manager, error) {
	configs, err := ParseConfigString(configString)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mbs := cfg.MaxBundleSize
	if mbs == 0 {
		mbs = 1 << 20
	}
	m := &Manager{
		logger:   logger.With("service", "[MANAGER]"),
		quota:    cfg.Quota,
		metrics:  cfg.Metrics,
		localEID: cfg.LocalEID,
		clas:     make(map[string]*claInstance),
	}
	for _, c := range configs {
		inst, err := m.buildInstance(c, mbs)
		if err != nil {
			return nil, err
		}
		m.clas[c.Name] = inst
	}
	return m, nil
}

func (m *Manager) buildInstance(c CLAConfig, mbs int) (*claInstance, error) {
	inst := &claInstance{
		name:          c.Name,
		mgr:           m,
		contacts:      make(map[string]*contactParams),
		maxBundleSize: mbs,
	}
	switch c.Name {
	case "mtcp":
		opts, err := parseHostPortOptions(c.Options)
		if err != nil {
			return nil, err
		}
		inst.listenAddr = opts.Addr
		inst.tcpActive = opts.TCPActive
		inst.newFramer = func() cla.Framer { return cla.NewMTCPFramer(mbs) }
	case "smtcp":
		opts, err := parseHostPortOptions(c.Options)
		if err != nil {
			return nil, err
		}
		inst.listenAddr = opts.Addr
		inst.tcpActive = opts.TCPActive
		inst.newFramer = func() cla.Framer { return cla.NewSMTCPFramer(mbs) }
	case "tcpclv3":
		opts, err := parseHostPortOptions(c.Options)
		if err != nil {
			return nil, err
		}
		inst.listenAddr = opts.Addr
		inst.tcpActive = opts.TCPActive
		inst.keyedByPeer = true
		localEID := string(m.localEID)
		inst.newFramer = func() cla.Framer { return cla.NewTCPCLv3Framer(localEID, mbs) }
	case "tcpspp":
		opts, err := parseTCPSPPOptions(c.Options)
		if err != nil {
			return nil, err
		}
		inst.listenAddr = opts.Addr
		inst.tcpActive = true
		validate := opts.ValidateCRC
		apid := opts.APID
		inst.newFramer = func() cla.Framer {
			f := cla.NewTCPSPPFramer(&spp.Context{}, apid, mbs, true)
			f.ValidateCRC = validate
			return f
		}
	case "usbotg":
		if err := parseUSBOTGOptions(c.Options); err != nil {
			return nil, err
		}
		inst.devicePath = usbotgDevicePath
		inst.tcpActive = true
		inst.newFramer = func() cla.Framer { return cla.NewUSBOTGFramer(mbs) }
	default:
		return nil, dtn.NewConfigError(dtn.ConfigErrUnknownCla, c.Name)
	}
	return inst, nil
}

// Run launches every configured CLA's listener (if any) and blocks until
// ctx is canceled or a listening socket fails; a broken listening socket
// is fatal to its CLA instance. errgroup.WithContext makes the first such
// failure observable and cancels the sibling CLAs.
func (m *Manager) Run(ctx context.Context, onBundle func(*dtn.Bundle)) error {
	g, ctx := errgroup.WithContext(ctx)
	m.mu.Lock()
	instances := make([]*claInstance, 0, len(m.clas))
	for _, inst := range m.clas {
		instances = append(instances, inst)
	}
	m.mu.Unlock()

	for _, inst := range instances {
		inst := inst
		if inst.devicePath != "" {
			g.Go(func() error { return inst.runActiveUSB(ctx, onBundle) })
			continue
		}
		g.Go(func() error { return inst.runListener(ctx, onBundle) })
	}
	return g.Wait()
}

func (ci *claInstance) runListener(ctx context.Context, onBundle func(*dtn.Bundle)) error {
	lst, err := cla.Listen(ctx, ci.listenAddr)
	if err != nil {
		return fmt.Errorf("manager: %s: listen %s: %w", ci.name, ci.listenAddr, err)
	}
	ci.mu.Lock()
	ci.listener = lst
	ci.mu.Unlock()

	go func() {
		<-ctx.Done()
		lst.Close()
	}()

	for {
		conn, err := lst.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("manager: %s: accept: %w", ci.name, err)
		}
		go ci.acceptConnection(ctx, conn, onBundle)
	}
}

// acceptConnection registers a freshly accepted socket under a provisional
// key (its remote address), then runs the contact to completion. A passive
// connection arrives already connected, so it skips the Connecting step of
// the management state machine; for TCPCLv3 it still has to clear the
// Connected handshake before becoming Established, which is what
// re-keys it under the peer's EID.
func (ci *claInstance) acceptConnection(ctx context.Context, conn net.Conn, onBundle func(*dtn.Bundle)) {
	key := conn.RemoteAddr().String()
	cp := &contactParams{key: key, claName: ci.name, claAddr: key, state: StateConnected, opportunistic: true}

	ci.mu.Lock()
	ci.contacts[key] = cp
	ci.mu.Unlock()

	ci.runEstablished(ctx, cp, conn, onBundle)

	cp.mu.Lock()
	finalKey := cp.key
	cp.mu.Unlock()

	ci.mu.Lock()
	if ci.contacts[finalKey] == cp {
		delete(ci.contacts, finalKey)
	}
	ci.mu.Unlock()
}

// runEstablished initializes a link over conn, runs the CLA-specific
// handshake if one is required, and waits for both of the link's workers
// to exit. MTCP, S-MTCP, and TCPSPP have no handshake: cp transitions to
// Established immediately. TCPCLv3 writes the local "dtn!" handshake and
// only transitions once the peer's handshake has been read back and the
// association rule has resolved which contact record is primary for that
// peer EID; the losing side of a duplicate connection has its socket
// closed so its RX worker's next read fails and tears the link down the
// ordinary way.
func (ci *claInstance) runEstablished(ctx context.Context, cp *contactParams, conn io.ReadWriteCloser, onBundle func(*dtn.Bundle)) {
	provisionalKey := cp.key
	framer := ci.newFramer()

	l := link.New(conn, conn, conn, link.Config{
		Logger: ci.mgr.logger,
		Quota:  ci.mgr.quota,
		Framer: framer,
	})
	l.OnBundleComplete = onBundle

	if tcpcl, ok := framer.(*cla.TCPCLv3Framer); ok {
		tcpcl.OnHandshake = func(peerEID string) error {
			primary, won := ci.associatePeer(provisionalKey, cp, dtn.EID(peerEID))
			if !won {
				ci.mgr.logger.Info("tcpclv3 handshake lost association contest, closing duplicate", "cla", ci.name, "peer", peerEID)
				cp.mu.Lock()
				cp.superseded = true
				cp.mu.Unlock()
				conn.Close()
				return nil
			}
			primary.mu.Lock()
			primary.state = StateEstablished
			primary.link = l
			primary.mu.Unlock()
			if ci.mgr.metrics != nil {
				ci.mgr.metrics.LinksEstablished.WithLabelValues(ci.name).Inc()
			}
			return nil
		}
		if _, err := conn.Write(tcpcl.EncodeHandshake()); err != nil {
			conn.Close()
			return
		}
	} else {
		cp.mu.Lock()
		cp.state = StateEstablished
		cp.link = l
		cp.mu.Unlock()
		if ci.mgr.metrics != nil {
			ci.mgr.metrics.LinksEstablished.WithLabelValues(ci.name).Inc()
		}
	}

	linkCtx, cancel := context.WithCancel(ctx)
	l.Start(linkCtx)
	l.Wait()
	cancel()

	cp.mu.Lock()
	wasEstablished := cp.state == StateEstablished
	cp.state = StateInactive
	cp.link = nil
	cp.mu.Unlock()

	if wasEstablished && ci.mgr.metrics != nil {
		ci.mgr.metrics.LinksEstablished.WithLabelValues(ci.name).Dec()
	}
}

// associatePeer applies the TCPCLv3 association rule once a handshake
// reveals peerEID: cp moves from its provisional key to the peer-EID key,
// contesting with any existing entry already registered there. If the
// existing entry is not Established or its link is no longer active, cp
// replaces it as primary; otherwise the existing entry stays primary. The
// loser's "planned" status (in_contact/opportunistic) and CLA address
// always migrate onto whichever record ends up primary.
func (ci *claInstance) associatePeer(provisionalKey string, cp *contactParams, peerEID dtn.EID) (primary *contactParams, won bool) {
	finalKey := string(peerEID)

	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.contacts[provisionalKey] == cp {
		delete(ci.contacts, provisionalKey)
	}
	cp.mu.Lock()
	cp.peerEID = peerEID
	cp.key = finalKey
	cp.mu.Unlock()

	existing, exists := ci.contacts[finalKey]
	if !exists || existing == cp {
		ci.contacts[finalKey] = cp
		return cp, true
	}

	existing.mu.Lock()
	existingAlive := existing.state == StateEstablished && existing.link != nil && existing.link.Active()
	existing.mu.Unlock()

	if !existingAlive {
		existing.mu.Lock()
		inContact, opportunistic, claAddr := existing.inContact, existing.opportunistic, existing.claAddr
		existing.mu.Unlock()
		cp.mu.Lock()
		cp.inContact, cp.opportunistic = inContact, opportunistic
		if claAddr != "" {
			cp.claAddr = claAddr
		}
		cp.mu.Unlock()
		ci.contacts[finalKey] = cp
		return cp, true
	}

	cp.mu.Lock()
	inContact, opportunistic, claAddr := cp.inContact, cp.opportunistic, cp.claAddr
	cp.mu.Unlock()
	existing.mu.Lock()
	existing.inContact, existing.opportunistic = inContact, opportunistic
	if claAddr != "" {
		existing.claAddr = claAddr
	}
	existing.mu.Unlock()
	return existing, false
}

func (ci *claInstance) runActiveUSB(ctx context.Context, onBundle func(*dtn.Bundle)) error {
	mode := &serial.Mode{BaudRate: 115200}
	port, err := serial.Open(ci.devicePath, mode)
	if err != nil {
		return fmt.Errorf("manager: %s: open %s: %w", ci.name, ci.devicePath, err)
	}
	transport := cla.NewUSBOTGTransport(port)

	cp := &contactParams{key: ci.devicePath, claName: ci.name, claAddr: ci.devicePath}
	ci.mu.Lock()
	ci.contacts[cp.key] = cp
	ci.mu.Unlock()

	ci.runEstablished(ctx, cp, &readWriteCloserAdapter{r: transport, w: transport, c: transport}, onBundle)
	return nil
}

// readWriteCloserAdapter lets a cla.USBOTGTransport (a Reader/Writer/Closer
// that is not a net.Conn) stand in wherever net.Conn's superset is
// expected; only Read/Write/Close are ever used on it.
type readWriteCloserAdapter struct {
	r interface {
		Read([]byte) (int, error)
	}
	w interface {
		Write([]byte) (int, error)
	}
	c interface{ Close() error }
}

func (a *readWriteCloserAdapter) Read(p []byte) (int, error)  { return a.r.Read(p) }
func (a *readWriteCloserAdapter) Write(p []byte) (int, error) { return a.w.Write(p) }
func (a *readWriteCloserAdapter) Close() error                { return a.c.Close() }

// StartScheduledContact creates or updates a contact-parameters record for
// peerEID/claAddr with opportunistic=false, in_contact=true, launching its
// management task if this is a new record.
func (m *Manager) StartScheduledContact(claName string, peerEID dtn.EID, claAddr string) error {
	ci, err := m.instance(claName)
	if err != nil {
		return err
	}
	key := claAddr
	if ci.keyedByPeer {
		key = string(peerEID)
	}

	ci.mu.Lock()
	cp, exists := ci.contacts[key]
	if exists {
		cp.mu.Lock()
		cp.opportunistic = false
		cp.inContact = true
		cp.mu.Unlock()
		ci.mu.Unlock()
		return nil
	}
	cp = &contactParams{key: key, claName: claName, peerEID: peerEID, claAddr: claAddr, opportunistic: false, inContact: true}
	ctx, cancel := context.WithCancel(context.Background())
	cp.cancel = cancel
	ci.contacts[key] = cp
	ci.mu.Unlock()

	go ci.runManagementTask(ctx, cp, nil)
	return nil
}

// EndScheduledContact flips in_contact off and opportunistic on for the
// named record; it does not by itself tear down an Established link.
func (m *Manager) EndScheduledContact(claName string, peerEID dtn.EID, claAddr string) error {
	ci, err := m.instance(claName)
	if err != nil {
		return err
	}
	key := claAddr
	if ci.keyedByPeer {
		key = string(peerEID)
	}
	ci.mu.Lock()
	cp, exists := ci.contacts[key]
	ci.mu.Unlock()
	if !exists {
		return fmt.Errorf("manager: no contact record for %q on %s", key, claName)
	}
	cp.mu.Lock()
	cp.inContact = false
	cp.opportunistic = true
	cp.mu.Unlock()
	return nil
}

func (m *Manager) instance(claName string) (*claInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ci, ok := m.clas[claName]
	if !ok {
		return nil, dtn.NewConfigError(dtn.ConfigErrUnknownCla, claName)
	}
	return ci, nil
}

// runManagementTask drives one contact-parameters record's
// Connecting→Connected→Established state machine. onBundle may be nil
// only in tests that never reach Established.
func (ci *claInstance) runManagementTask(ctx context.Context, cp *contactParams, onBundle func(*dtn.Bundle)) {
	defer func() {
		ci.mu.Lock()
		if ci.contacts[cp.key] == cp {
			delete(ci.contacts, cp.key)
		}
		ci.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if !ci.tcpActive {
			// Passive contact: wait for the peer to dial in instead of
			// reconnecting ourselves. The record exists for introspection
			// and scheduling only; a matching inbound connection is
			// handled by acceptConnection.
			cp.mu.Lock()
			cp.state = StateConnecting
			cp.mu.Unlock()
			<-ctx.Done()
			return
		}

		cp.mu.Lock()
		cp.state = StateConnecting
		cp.mu.Unlock()

		conn, err := ci.connectWithRetry(ctx, cp)
		if err != nil {
			ci.mgr.logger.Warn("contact retry budget exhausted, terminating", "cla", ci.name, "key", cp.key)
			return
		}

		cp.mu.Lock()
		cp.state = StateConnected
		cp.mu.Unlock()

		if ci.mgr.metrics != nil {
			ci.mgr.metrics.LinkReconnects.WithLabelValues(ci.name).Inc()
		}

		ci.runEstablished(ctx, cp, conn, onBundle)

		cp.mu.Lock()
		superseded := cp.superseded
		opportunistic := cp.opportunistic
		claAddr := cp.claAddr
		cp.mu.Unlock()
		if superseded || (opportunistic && claAddr == "") {
			return
		}
	}
}

func (ci *claInstance) connectWithRetry(ctx context.Context, cp *contactParams) (net.Conn, error) {
	for attempt := 0; attempt < claTCPMaxRetryAttempt; attempt++ {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", cp.claAddr)
		if err == nil {
			return conn, nil
		}
		cp.mu.Lock()
		cp.retryCount++
		cp.mu.Unlock()
		select {
		case <-time.After(claTCPRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("manager: %s: exhausted retry budget connecting to %s", ci.name, cp.claAddr)
}

// Contacts returns a point-in-time snapshot of every contact-parameters
// record across every configured CLA.
func (m *Manager) Contacts() []ContactSnapshot {
	m.mu.Lock()
	instances := make([]*claInstance, 0, len(m.clas))
	for _, ci := range m.clas {
		instances = append(instances, ci)
	}
	m.mu.Unlock()

	var out []ContactSnapshot
	for _, ci := range instances {
		ci.mu.Lock()
		for _, cp := range ci.contacts {
			out = append(out, cp.snapshot())
		}
		ci.mu.Unlock()
	}
	return out
}

// GetTxQueue looks up the link for peer/claAddr and returns a handle ready
// for EnqueueBundle, acquiring the link's TX-queue semaphore before
// releasing the registry lock; the returned func releases it. Link
// teardown does not take the semaphore, so holding it does not keep the
// link active.
func (m *Manager) GetTxQueue(ctx context.Context, claName string, peerEID dtn.EID, claAddr string) (*link.Link, func(), error) {
	ci, err := m.instance(claName)
	if err != nil {
		return nil, nil, err
	}
	key := claAddr
	if ci.keyedByPeer {
		key = string(peerEID)
	}

	ci.mu.Lock()
	cp, exists := ci.contacts[key]
	if !exists {
		ci.mu.Unlock()
		return nil, nil, fmt.Errorf("manager: no contact record for %q on %s", key, claName)
	}
	cp.mu.Lock()
	l := cp.link
	cp.mu.Unlock()
	if l == nil {
		ci.mu.Unlock()
		return nil, nil, fmt.Errorf("manager: contact %q on %s is not Established", key, claName)
	}
	sem := l.TxSem()
	if err := sem.Acquire(ctx, 1); err != nil {
		ci.mu.Unlock()
		return nil, nil, err
	}
	ci.mu.Unlock()

	return l, func() { sem.Release(1) }, nil
}
