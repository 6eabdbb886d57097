// Package subscription implements the subscription registry and status
// fanout spec.md §4.6 describes: (subscriber, rig, field-set) tuples, and
// delivery of only the fields a status update and a subscription have in
// common.
//
// The source ecosystem exposes measurement delivery through a
// callback-registration protocol (sttp/transport/DataSubscriber.go); spec.md
// §9 "Replacing event connection points" redesigns this as message passing,
// so Manager hands out a receive-only channel per subscription instead of
// registering a callback.
package subscription

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Notification is one delivery to a subscriber: the rig it came from, which
// subscription it matched, and only the fields that subscription asked for.
type Notification struct {
	RigID          string
	SubscriptionID string
	Updates        map[string]any
}

type subscriber struct {
	id     string
	rigID  string
	fields map[string]struct{}
	out    chan Notification

	mu       sync.Mutex
	degraded bool
}

// Manager holds every live subscription, indexed by both id and rig id so
// Publish can fan out without scanning the whole registry.
type Manager struct {
	mu         sync.Mutex
	byID       map[string]*subscriber
	byRig      map[string][]*subscriber
	queueDepth int
	nextID     atomic.Int64
}

// NewManager builds an empty Manager. queueDepth is Q (spec.md §4.6): the
// per-subscriber outbound backlog before the oldest update is dropped.
func NewManager(queueDepth int) *Manager {
	if queueDepth <= 0 {
		queueDepth = 32
	}
	return &Manager{
		byID:       map[string]*subscriber{},
		byRig:      map[string][]*subscriber{},
		queueDepth: queueDepth,
	}
}

// Subscribe registers interest in a subset of one rig's status fields and
// returns the subscription id (the "sub_<n>" form §6 specifies) plus the
// channel notifications arrive on.
func (m *Manager) Subscribe(rigID string, fields []string) (string, <-chan Notification, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("subscribe_status requires at least one field")
	}

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}

	id := fmt.Sprintf("sub_%d", m.nextID.Add(1))
	sub := &subscriber{
		id:     id,
		rigID:  rigID,
		fields: set,
		out:    make(chan Notification, m.queueDepth),
	}

	m.mu.Lock()
	m.byID[id] = sub
	m.byRig[rigID] = append(m.byRig[rigID], sub)
	m.mu.Unlock()

	return id, sub.out, nil
}

// Unsubscribe removes a subscription, e.g. on client disconnect.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)

	rigSubs := m.byRig[sub.rigID]
	for i, s := range rigSubs {
		if s == sub {
			m.byRig[sub.rigID] = append(rigSubs[:i], rigSubs[i+1:]...)
			break
		}
	}
	close(sub.out)
}

// Degraded reports whether a subscription has dropped at least one update
// due to backpressure since it was created.
func (m *Manager) Degraded(id string) bool {
	m.mu.Lock()
	sub, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.degraded
}

// Publish implements runtime.StatusSink: it is handed a rig's
// {changed_fields, new_values} snapshot and delivers one notification per
// subscriber whose field set intersects changed (spec.md §4.6), dropping
// the oldest queued notification for a subscriber whose outbound channel is
// full rather than blocking the rig's own task.
func (m *Manager) Publish(rigID string, changed []string, values map[string]any) {
	m.mu.Lock()
	subs := append([]*subscriber(nil), m.byRig[rigID]...)
	m.mu.Unlock()

	for _, sub := range subs {
		updates := intersect(sub.fields, changed, values)
		if len(updates) == 0 {
			continue
		}
		notif := Notification{RigID: rigID, SubscriptionID: sub.id, Updates: updates}
		deliver(sub, notif)
	}
}

func intersect(fields map[string]struct{}, changed []string, values map[string]any) map[string]any {
	out := map[string]any{}
	for _, f := range changed {
		if _, ok := fields[f]; ok {
			out[f] = values[f]
		}
	}
	return out
}

// deliver sends notif to sub, dropping the oldest queued notification and
// marking the subscription degraded if the outbound channel is already full
// (spec.md §4.6 backpressure policy).
func deliver(sub *subscriber, notif Notification) {
	select {
	case sub.out <- notif:
		return
	default:
	}

	select {
	case <-sub.out:
	default:
	}

	sub.mu.Lock()
	sub.degraded = true
	sub.mu.Unlock()

	select {
	case sub.out <- notif:
	default:
	}
}
