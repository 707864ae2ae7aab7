package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lclpaste/pkg/domain"
)

var testKey = []byte("unit-test-signing-key-0123456789abcdef")

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(testKey)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	return s
}

func TestNewResolverRejectsShortKey(t *testing.T) {
	if _, err := NewResolver([]byte("too short")); err == nil {
		t.Error("short key accepted")
	}
}

func TestResolveMissingHeaderIsAnonymous(t *testing.T) {
	r := newTestResolver(t)
	actor, err := r.Resolve("")
	if err != ErrNoToken {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
	if actor.Authenticated {
		t.Error("missing header produced an authenticated actor")
	}
}

func TestResolveValidToken(t *testing.T) {
	r := newTestResolver(t)
	token := signed(t, jwt.MapClaims{"name": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	actor, err := r.Resolve("Bearer " + token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !actor.Authenticated || actor.Name != "alice" {
		t.Errorf("actor = %+v", actor)
	}
}

func TestResolveSubFallback(t *testing.T) {
	r := newTestResolver(t)
	token := signed(t, jwt.MapClaims{"sub": "carol"})
	actor, err := r.Resolve("Bearer " + token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if actor.Name != "carol" {
		t.Errorf("actor name = %q, want carol", actor.Name)
	}
}

func TestResolveRejections(t *testing.T) {
	r := newTestResolver(t)
	expired := signed(t, jwt.MapClaims{"name": "alice", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "alice"}).
		SignedString([]byte("a-different-key-that-is-long-enough-000"))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"name": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	cases := map[string]string{
		"no bearer prefix":  signed(t, jwt.MapClaims{"name": "alice"}),
		"garbage":           "Bearer not.a.token",
		"expired":           "Bearer " + expired,
		"wrong key":         "Bearer " + wrongKey,
		"alg none":          "Bearer " + unsigned,
		"nameless claims":   "Bearer " + signed(t, jwt.MapClaims{"other": 1}),
		"reserved identity": "Bearer " + signed(t, jwt.MapClaims{"name": domain.AnonymousName}),
	}
	for label, header := range cases {
		actor, err := r.Resolve(header)
		if err != ErrInvalidToken {
			t.Errorf("%s: error = %v, want ErrInvalidToken", label, err)
		}
		if actor.Authenticated {
			t.Errorf("%s: produced an authenticated actor", label)
		}
	}
}
