package manager

import (
	"encoding/json"
	"sync"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/pkg/link"
)

// ContactState is a contact-parameters record's connection state.
type ContactState uint8

const (
	StateInactive ContactState = iota
	StateConnecting
	StateConnected
	StateEstablished
)

func (s ContactState) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders a ContactState as its name, so adminapi's JSON
// responses read as "Established" rather than a bare integer.
func (s ContactState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// contactParams is one hash-table entry of a CLA's contact registry,
// keyed by CLA address for MTCP-family CLAs or peer EID for TCPCLv3.
type contactParams struct {
	mu sync.Mutex

	key           string
	claName       string
	peerEID       dtn.EID
	claAddr       string
	state         ContactState
	inContact     bool
	opportunistic bool
	retryCount    int
	// superseded is set when this record lost a TCPCLv3 association
	// contest to an already-Established entry for the same peer EID.
	superseded bool

	link *link.Link

	// cancel stops this record's management task; nil once it has exited.
	cancel func()
}

// ContactSnapshot is a read-only point-in-time copy of a contact-parameters
// record, backing `cmd/dtnd contact list`.
type ContactSnapshot struct {
	CLA           string
	Key           string
	PeerEID       dtn.EID
	CLAAddr       string
	State         ContactState
	InContact     bool
	Opportunistic bool
	RetryCount    int
}

func (c *contactParams) snapshot() ContactSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ContactSnapshot{
		CLA:           c.claName,
		Key:           c.key,
		PeerEID:       c.peerEID,
		CLAAddr:       c.claAddr,
		State:         c.state,
		InContact:     c.inContact,
		Opportunistic: c.opportunistic,
		RetryCount:    c.retryCount,
	}
}
