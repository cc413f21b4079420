package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifa-clinics/booking-gateway/internal/events"
)

func newTestLocalStore(t *testing.T, bus *events.Bus) *LocalStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLocalStore(client, time.Hour, bus, nil)
}

func TestLocalStoreAddListRemove(t *testing.T) {
	store := newTestLocalStore(t, events.NewBus())
	ctx := context.Background()

	added, err := store.Add(ctx, "visitor-1", LocalItem{ServiceID: "12", Title: "Teeth cleaning", Price: 250})
	require.NoError(t, err)
	assert.NotEmpty(t, added.LocalID)
	assert.False(t, added.AddedAt.IsZero())

	second, err := store.Add(ctx, "visitor-1", LocalItem{StaffID: "7", Title: "Dr. Huda", Price: 300})
	require.NoError(t, err)
	assert.NotEqual(t, added.LocalID, second.LocalID)

	items, err := store.List(ctx, "visitor-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Teeth cleaning", items[0].Title)
	assert.Equal(t, "Dr. Huda", items[1].Title)

	kept, err := store.Remove(ctx, "visitor-1", added.LocalID)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, second.LocalID, kept[0].LocalID)
}

func TestLocalStoreAddRequiresIdentifier(t *testing.T) {
	store := newTestLocalStore(t, events.NewBus())
	_, err := store.Add(context.Background(), "visitor-1", LocalItem{Title: "orphan"})
	require.Error(t, err)
}

func TestLocalStoreRemoveUnknownIDIsNoOp(t *testing.T) {
	store := newTestLocalStore(t, events.NewBus())
	ctx := context.Background()
	_, err := store.Add(ctx, "visitor-1", LocalItem{ServiceID: "12", Title: "X"})
	require.NoError(t, err)

	bus := events.NewBus()
	ch, cancel := bus.Subscribe(events.TopicCartChanged)
	defer cancel()
	store.bus = bus

	kept, err := store.Remove(ctx, "visitor-1", "missing-id")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	select {
	case <-ch:
		t.Fatal("no-op removal must not broadcast")
	default:
	}
}

func TestLocalStoreMutationsBroadcast(t *testing.T) {
	bus := events.NewBus()
	store := newTestLocalStore(t, bus)
	ch, cancel := bus.Subscribe(events.TopicCartChanged)
	defer cancel()
	ctx := context.Background()

	added, err := store.Add(ctx, "visitor-2", LocalItem{ServiceID: "3", Title: "X"})
	require.NoError(t, err)
	assertEvent(t, ch, "visitor-2")

	_, err = store.Remove(ctx, "visitor-2", added.LocalID)
	require.NoError(t, err)
	assertEvent(t, ch, "visitor-2")

	require.NoError(t, store.Clear(ctx, "visitor-2"))
	assertEvent(t, ch, "visitor-2")
}

func TestLocalStoreIsolatedPerVisitor(t *testing.T) {
	store := newTestLocalStore(t, events.NewBus())
	ctx := context.Background()

	_, err := store.Add(ctx, "visitor-a", LocalItem{ServiceID: "1", Title: "A"})
	require.NoError(t, err)

	items, err := store.List(ctx, "visitor-b")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func assertEvent(t *testing.T, ch <-chan events.Event, visitorID string) {
	t.Helper()
	select {
	case evt := <-ch:
		if evt.VisitorID != visitorID {
			t.Fatalf("event for wrong visitor: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected cart.changed broadcast")
	}
}
