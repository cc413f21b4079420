package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shifa-clinics/booking-gateway/internal/events"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

const localKeyPrefix = "cart:local:"

// LocalItem is one intended purchase of an anonymous visitor. Local items
// carry no quantity; each record is one unit.
type LocalItem struct {
	LocalID   string         `json:"local_id"`
	ServiceID upstream.ID    `json:"service_id,omitempty"`
	StaffID   upstream.ID    `json:"staff_id,omitempty"`
	Title     string         `json:"title"`
	Price     upstream.Money `json:"price"`
	Image     string         `json:"image,omitempty"`
	AddedAt   time.Time      `json:"added_at"`
}

// LocalStore persists the anonymous cart per visitor under a single fixed key.
// Every successful mutation broadcasts cart.changed so mounted views refresh
// their counts without polling.
type LocalStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	bus    *events.Bus
	logger *logging.Logger
}

// NewLocalStore creates a local cart store.
func NewLocalStore(rdb *redis.Client, ttl time.Duration, bus *events.Bus, logger *logging.Logger) *LocalStore {
	if rdb == nil {
		panic("cart: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LocalStore{rdb: rdb, ttl: ttl, bus: bus, logger: logger.Component("localcart")}
}

// List returns the stored items in insertion order.
func (s *LocalStore) List(ctx context.Context, visitorID string) ([]LocalItem, error) {
	data, err := s.rdb.Get(ctx, localKeyPrefix+visitorID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load local cart: %w", err)
	}
	var items []LocalItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("cart: decode local cart: %w", err)
	}
	return items, nil
}

// Add appends an item stamped with a generated id and timestamp.
func (s *LocalStore) Add(ctx context.Context, visitorID string, item LocalItem) (*LocalItem, error) {
	if item.ServiceID.IsZero() && item.StaffID.IsZero() {
		return nil, fmt.Errorf("cart: local item needs a service or staff id")
	}
	items, err := s.List(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	item.LocalID = uuid.NewString()
	item.AddedAt = time.Now().UTC()
	items = append(items, item)
	if err := s.persist(ctx, visitorID, items); err != nil {
		return nil, err
	}
	s.bus.Publish(events.TopicCartChanged, visitorID)
	return &item, nil
}

// Remove drops the item with the given local id. Removing an unknown id is a
// no-op that still reports the resulting list.
func (s *LocalStore) Remove(ctx context.Context, visitorID, localID string) ([]LocalItem, error) {
	items, err := s.List(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	kept := make([]LocalItem, 0, len(items))
	removed := false
	for _, it := range items {
		if it.LocalID == localID {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	if !removed {
		return kept, nil
	}
	if err := s.persist(ctx, visitorID, kept); err != nil {
		return nil, err
	}
	s.bus.Publish(events.TopicCartChanged, visitorID)
	return kept, nil
}

// Clear drops the whole local cart (used after a successful sync).
func (s *LocalStore) Clear(ctx context.Context, visitorID string) error {
	if err := s.rdb.Del(ctx, localKeyPrefix+visitorID).Err(); err != nil {
		return fmt.Errorf("cart: clear local cart: %w", err)
	}
	s.bus.Publish(events.TopicCartChanged, visitorID)
	return nil
}

func (s *LocalStore) persist(ctx context.Context, visitorID string, items []LocalItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("cart: encode local cart: %w", err)
	}
	if err := s.rdb.Set(ctx, localKeyPrefix+visitorID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cart: store local cart: %w", err)
	}
	return nil
}
