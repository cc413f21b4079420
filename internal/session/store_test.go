package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shifa-clinics/booking-gateway/internal/events"
)

func newTestStore(t *testing.T, ttl time.Duration, bus *events.Bus) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, ttl, bus, nil), mr
}

func TestTokenRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, time.Hour, events.NewBus())
	ctx := context.Background()

	token, err := store.Token(ctx, "visitor-1")
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		t.Fatalf("expected anonymous visitor, got token %q", token)
	}

	if err := store.SetToken(ctx, "visitor-1", "opaque-token"); err != nil {
		t.Fatal(err)
	}
	token, err = store.Token(ctx, "visitor-1")
	if err != nil {
		t.Fatal(err)
	}
	if token != "opaque-token" {
		t.Fatalf("unexpected token %q", token)
	}

	if err := store.Clear(ctx, "visitor-1"); err != nil {
		t.Fatal(err)
	}
	token, err = store.Token(ctx, "visitor-1")
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		t.Fatalf("expected cleared session, got %q", token)
	}
}

func TestSetTokenRejectsEmpty(t *testing.T) {
	store, _ := newTestStore(t, time.Hour, events.NewBus())
	if err := store.SetToken(context.Background(), "visitor-1", ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSetTokenBroadcastsChange(t *testing.T) {
	bus := events.NewBus()
	store, _ := newTestStore(t, time.Hour, bus)
	ch, cancel := bus.Subscribe(events.TopicSessionChanged)
	defer cancel()

	if err := store.SetToken(context.Background(), "visitor-9", "tok"); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		if evt.VisitorID != "visitor-9" {
			t.Fatalf("unexpected visitor id %q", evt.VisitorID)
		}
	case <-time.After(time.Second):
		t.Fatal("no session.changed event published")
	}
}

func TestEffectiveTTLCappedByJWTExpiry(t *testing.T) {
	store, mr := newTestStore(t, 7*24*time.Hour, events.NewBus())
	ctx := context.Background()

	claims := jwt.MapClaims{"exp": time.Now().Add(30 * time.Minute).Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetToken(ctx, "visitor-1", signed); err != nil {
		t.Fatal(err)
	}
	ttl := mr.TTL(keyPrefix + "visitor-1")
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("expected TTL capped near 30m, got %s", ttl)
	}
}

func TestEffectiveTTLOpaqueTokenUsesConfigured(t *testing.T) {
	store, mr := newTestStore(t, time.Hour, events.NewBus())
	if err := store.SetToken(context.Background(), "visitor-1", "not-a-jwt"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(keyPrefix + "visitor-1"); ttl != time.Hour {
		t.Fatalf("expected configured TTL, got %s", ttl)
	}
}
