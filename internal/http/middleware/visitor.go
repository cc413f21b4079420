package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const visitorKey contextKey = "visitor_id"

// VisitorCookieName identifies a browser across sessions. Local cart items
// and the booking draft are keyed by it, so it outlives any login.
const VisitorCookieName = "shifa_visitor"

// Visitor assigns each browser a stable id via a long-lived cookie and puts
// it on the request context. Requests arriving without the cookie get a
// fresh id and the Set-Cookie response header in the same round trip.
func Visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(VisitorCookieName); err == nil {
			if _, parseErr := uuid.Parse(c.Value); parseErr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     VisitorCookieName,
				Value:    id,
				Path:     "/",
				Expires:  time.Now().Add(365 * 24 * time.Hour),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), visitorKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// VisitorID returns the visitor id from the request context, or "" when the
// Visitor middleware did not run.
func VisitorID(ctx context.Context) string {
	id, _ := ctx.Value(visitorKey).(string)
	return id
}
