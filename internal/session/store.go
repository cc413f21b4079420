package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shifa-clinics/booking-gateway/internal/events"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

const keyPrefix = "session:"

// Store keeps the opaque bearer token the upstream API issues per visitor.
// The token is treated as opaque, but when it happens to be a JWT its exp
// claim caps the redis TTL so the gateway never holds a token longer than the
// upstream considers it valid.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	bus    *events.Bus
	logger *logging.Logger
}

// NewStore creates a session store.
func NewStore(rdb *redis.Client, ttl time.Duration, bus *events.Bus, logger *logging.Logger) *Store {
	if rdb == nil {
		panic("session: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{rdb: rdb, ttl: ttl, bus: bus, logger: logger.Component("session")}
}

// Token returns the stored bearer token, or "" when the visitor is anonymous.
func (s *Store) Token(ctx context.Context, visitorID string) (string, error) {
	token, err := s.rdb.Get(ctx, keyPrefix+visitorID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: load token: %w", err)
	}
	return token, nil
}

// SetToken stores a freshly issued bearer token and broadcasts the change.
func (s *Store) SetToken(ctx context.Context, visitorID, token string) error {
	if token == "" {
		return fmt.Errorf("session: empty token")
	}
	ttl := s.effectiveTTL(token)
	if err := s.rdb.Set(ctx, keyPrefix+visitorID, token, ttl).Err(); err != nil {
		return fmt.Errorf("session: store token: %w", err)
	}
	s.logger.Info("session established", "visitor_id", visitorID, "ttl", ttl.String())
	s.bus.Publish(events.TopicSessionChanged, visitorID)
	return nil
}

// Clear drops the visitor's credential.
func (s *Store) Clear(ctx context.Context, visitorID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+visitorID).Err(); err != nil {
		return fmt.Errorf("session: clear token: %w", err)
	}
	s.bus.Publish(events.TopicSessionChanged, visitorID)
	return nil
}

// effectiveTTL caps the configured TTL by the token's exp claim when the
// opaque token parses as a JWT. Parse failures fall back to the configured TTL.
func (s *Store) effectiveTTL(token string) time.Duration {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return s.ttl
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return s.ttl
	}
	until := time.Until(exp.Time)
	if until <= 0 {
		return time.Minute
	}
	if until < s.ttl {
		return until
	}
	return s.ttl
}
