package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AuthStore holds login challenges and bearer sessions. Both live in
// TTL-bounded caches: a challenge for a user replaces any prior one, a
// session token maps back to its user until it expires.
type AuthStore struct {
	challenges *expirable.LRU[string, string]
	sessions   *expirable.LRU[string, string]
}

func newAuthStore(challengeTTL, sessionTTL time.Duration) *AuthStore {
	return &AuthStore{
		challenges: expirable.NewLRU[string, string](challengeCacheSize, nil, challengeTTL),
		sessions:   expirable.NewLRU[string, string](sessionCacheSize, nil, sessionTTL),
	}
}

// NewChallenge mints a login challenge for userID: 24 random bytes followed
// by the epoch seconds as 8 big-endian bytes, base64. Replaces any prior
// challenge for the same user.
func (as *AuthStore) NewChallenge(userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf[:24]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[24:], uint64(time.Now().Unix()))
	challenge := base64.StdEncoding.EncodeToString(buf)
	as.challenges.Add(userID, challenge)
	return challenge, nil
}

// Challenge returns the outstanding challenge for userID, if any.
func (as *AuthStore) Challenge(userID string) (string, bool) {
	return as.challenges.Get(userID)
}

// DropChallenge discards the outstanding challenge after a successful
// login; challenges are single-use.
func (as *AuthStore) DropChallenge(userID string) {
	as.challenges.Remove(userID)
}

// NewSession mints a bearer token bound to userID.
func (as *AuthStore) NewSession(userID string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.StdEncoding.EncodeToString(buf)
	as.sessions.Add(token, userID)
	return token, nil
}

// SessionUser resolves a bearer token to its user.
func (as *AuthStore) SessionUser(token string) (string, bool) {
	return as.sessions.Get(token)
}

type ctxKey int

const ctxUserID ctxKey = iota + 1

// authUser returns the user_id the auth middleware attached to the request.
func authUser(r *http.Request) string {
	userID, _ := r.Context().Value(ctxUserID).(string)
	return userID
}

// requireAuth guards a route with bearer-session auth and stores the
// resolved user_id in the request context.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, errAuthf("missing authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, errAuthf("invalid authorization header"))
			return
		}
		userID, ok := a.auth.SessionUser(strings.TrimSpace(parts[1]))
		if !ok {
			writeError(w, errAuthf("invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserID, userID)))
	})
}
