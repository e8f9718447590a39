package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// User is the identity carried by a verified session token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// JWTVerifier validates session JWTs against a JWKS endpoint. Keys are
// cached and refreshed in the background so verification never blocks on
// network I/O.
type JWTVerifier struct {
	jwksURL    string
	cache      *jwk.Cache
	keySet     jwk.Set
	keySetMu   sync.RWMutex
	refreshTTL time.Duration
}

// NewJWTVerifier creates a verifier with JWKS caching and background
// refresh.
func NewJWTVerifier(jwksURL string) (*JWTVerifier, error) {
	v := &JWTVerifier{
		jwksURL:    jwksURL,
		refreshTTL: 5 * time.Minute,
	}

	cache := jwk.NewCache(context.Background())
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(v.refreshTTL)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	v.cache = cache

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keySet, err := v.fetchKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch: %w", err)
	}
	v.keySet = keySet

	go v.backgroundRefresh()
	return v, nil
}

func (v *JWTVerifier) fetchKeySet(ctx context.Context) (jwk.Set, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return jwk.Fetch(ctx, v.jwksURL)
	}
	return keySet, nil
}

func (v *JWTVerifier) backgroundRefresh() {
	ticker := time.NewTicker(v.refreshTTL)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		keySet, err := v.fetchKeySet(ctx)
		cancel()

		if err == nil {
			v.keySetMu.Lock()
			v.keySet = keySet
			v.keySetMu.Unlock()
		}
		// Errors retry on the next tick.
	}
}

func (v *JWTVerifier) getKeySet() jwk.Set {
	v.keySetMu.RLock()
	defer v.keySetMu.RUnlock()
	return v.keySet
}

// UserFromRequest validates the bearer token on r and returns the user it
// names.
func (v *JWTVerifier) UserFromRequest(r *http.Request) (*User, error) {
	token, err := jwt.ParseRequest(
		r,
		jwt.WithKeySet(v.getKeySet()),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	userID := token.Subject()
	if userID == "" {
		return nil, fmt.Errorf("token missing user ID (subject)")
	}

	var email string
	if claim, ok := token.Get("email"); ok {
		email, _ = claim.(string)
	}

	return &User{ID: userID, Email: email}, nil
}
