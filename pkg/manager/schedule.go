package manager

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	dtn "github.com/go-dtn/upcn"
)

// ScheduledContact is one row of the on-disk schedule file the router
// reads at startup before calling StartScheduledContact/EndScheduledContact
// for each window.
type ScheduledContact struct {
	CLAName string
	PeerEID dtn.EID
	CLAAddr string
	Start   time.Time
	End     time.Time
}

const scheduleTimeLayout = time.RFC3339

// LoadScheduleFile parses an ini file into a list of scheduled contact
// windows, one per named section whatever its name, with `cla`, `peer_eid`,
// `cla_addr`, `start`, and `end` keys.
func LoadScheduleFile(path string) ([]ScheduledContact, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("manager: loading schedule file: %w", err)
	}
	var contacts []ScheduledContact
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		claName := section.Key("cla").String()
		peerEID := section.Key("peer_eid").String()
		claAddr := section.Key("cla_addr").String()
		if claName == "" || peerEID == "" || claAddr == "" {
			return nil, fmt.Errorf("manager: schedule section %q missing cla, peer_eid, or cla_addr", section.Name())
		}
		start, err := time.Parse(scheduleTimeLayout, section.Key("start").String())
		if err != nil {
			return nil, fmt.Errorf("manager: schedule section %q: invalid start: %w", section.Name(), err)
		}
		end, err := time.Parse(scheduleTimeLayout, section.Key("end").String())
		if err != nil {
			return nil, fmt.Errorf("manager: schedule section %q: invalid end: %w", section.Name(), err)
		}
		contacts = append(contacts, ScheduledContact{
			CLAName: claName,
			PeerEID: dtn.EID(peerEID),
			CLAAddr: claAddr,
			Start:   start,
			End:     end,
		})
	}
	return contacts, nil
}

// RunSchedule blocks until ctx is canceled, calling start/end at the
// boundaries of every window in contacts. Windows already open when called
// are started immediately.
func RunSchedule(ctx context.Context, contacts []ScheduledContact, start, end func(ScheduledContact)) {
	type edge struct {
		at      time.Time
		contact ScheduledContact
		isStart bool
	}
	var edges []edge
	now := time.Now()
	for _, c := range contacts {
		if !c.Start.After(now) {
			start(c)
		} else {
			edges = append(edges, edge{at: c.Start, contact: c, isStart: true})
		}
		if c.End.After(now) {
			edges = append(edges, edge{at: c.End, contact: c, isStart: false})
		}
	}
	timers := make([]*time.Timer, 0, len(edges))
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for _, e := range edges {
		e := e
		d := time.Until(e.at)
		if d < 0 {
			d = 0
		}
		timers = append(timers, time.AfterFunc(d, func() {
			if e.isStart {
				start(e.contact)
			} else {
				end(e.contact)
			}
		}))
	}
	<-ctx.Done()
}
