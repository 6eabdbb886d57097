package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Notification, timeout time.Duration) (Notification, bool) {
	t.Helper()
	select {
	case n, ok := <-ch:
		return n, ok
	case <-time.After(timeout):
		return Notification{}, false
	}
}

// TestPublishDeliversOnlyIntersectingFields is the §8 S4 scenario: a
// subscriber interested in {freq} must not see an unrelated {vfo} change,
// and must receive only the fields it asked for out of a larger change set.
func TestPublishDeliversOnlyIntersectingFields(t *testing.T) {
	m := NewManager(8)
	id, ch, err := m.Subscribe("ic7300", []string{"freq"})
	require.NoError(t, err)

	m.Publish("ic7300", []string{"vfo"}, map[string]any{"vfo": "A"})
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification for non-intersecting field: %+v", n)
	case <-time.After(20 * time.Millisecond):
	}

	m.Publish("ic7300", []string{"freq", "vfo"}, map[string]any{"freq": int64(14250000), "vfo": "A"})
	n, ok := recv(t, ch, time.Second)
	require.True(t, ok, "expected a notification")
	require.Equal(t, id, n.SubscriptionID)
	require.NotContains(t, n.Updates, "vfo")
	require.Equal(t, int64(14250000), n.Updates["freq"])
}

// TestPublishIgnoresOtherRigs ensures fanout is scoped to the publishing rig.
func TestPublishIgnoresOtherRigs(t *testing.T) {
	m := NewManager(8)
	_, ch, _ := m.Subscribe("ic7300", []string{"freq"})

	m.Publish("ft891", []string{"freq"}, map[string]any{"freq": int64(7100000)})
	select {
	case n := <-ch:
		t.Fatalf("unexpected cross-rig notification: %+v", n)
	case <-time.After(20 * time.Millisecond):
	}
}

// TestUnsubscribeStopsDelivery confirms Unsubscribe removes the subscriber
// from future fanout and closes its channel.
func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager(8)
	id, ch, _ := m.Subscribe("ic7300", []string{"freq"})
	m.Unsubscribe(id)

	m.Publish("ic7300", []string{"freq"}, map[string]any{"freq": int64(1)})

	_, ok := <-ch
	require.False(t, ok, "expected closed channel after Unsubscribe")
}

// TestBackpressureDropsOldestAndMarksDegraded is Testable Property 6: a slow
// subscriber never blocks the publisher, and drops the oldest queued update
// rather than the newest, flagging itself degraded.
func TestBackpressureDropsOldestAndMarksDegraded(t *testing.T) {
	m := NewManager(1)
	id, ch, _ := m.Subscribe("ic7300", []string{"freq"})

	m.Publish("ic7300", []string{"freq"}, map[string]any{"freq": int64(1)})
	m.Publish("ic7300", []string{"freq"}, map[string]any{"freq": int64(2)})

	require.True(t, m.Degraded(id), "expected subscription to be marked degraded after a drop")

	n, ok := recv(t, ch, time.Second)
	require.True(t, ok, "expected the surviving notification to still be delivered")
	require.Equal(t, int64(2), n.Updates["freq"], "oldest should be dropped, newest should survive")
}

func TestSubscribeRequiresFields(t *testing.T) {
	m := NewManager(8)
	_, _, err := m.Subscribe("ic7300", nil)
	require.Error(t, err)
}
