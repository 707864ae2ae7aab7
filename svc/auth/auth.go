// Package auth resolves the calling identity from bearer tokens minted
// by the external identity provider. No sessions or credentials are
// managed here; a token is either valid and names an actor, or the
// caller is anonymous.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"lclpaste/pkg/domain"
)

var (
	ErrNoToken      = errors.New("no bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type Resolver struct {
	key []byte
}

func NewResolver(key []byte) (*Resolver, error) {
	if len(key) < 32 {
		return nil, errors.New("auth token key must be at least 32 bytes")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Resolver{key: k}, nil
}

// Resolve parses an Authorization header value. An absent header yields
// ErrNoToken so callers can treat the request as anonymous; a present but
// invalid token is always an error, never a silent downgrade.
func (r *Resolver) Resolve(authorization string) (domain.Actor, error) {
	if authorization == "" {
		return domain.Anonymous, ErrNoToken
	}
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return domain.Anonymous, ErrInvalidToken
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.key, nil
	})
	if err != nil || !token.Valid {
		return domain.Anonymous, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Anonymous, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["sub"].(string)
	}
	if name == "" || name == domain.AnonymousName {
		return domain.Anonymous, ErrInvalidToken
	}
	return domain.Actor{Name: name, Authenticated: true}, nil
}
