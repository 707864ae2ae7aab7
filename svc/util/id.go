package util

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// urlSafeChars matches the nanoid alphabet: every character is legal in a
// URL path segment without escaping.
const urlSafeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

const maxIDRetries = 5

// GenID returns length random characters over the URL-safe alphabet.
// Length is caller-supplied: public ids and internal handles use
// different sizes.
func GenID(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("id length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	out := make([]byte, length)
	for i, b := range buf {
		// 64 characters divide 256 evenly, so masking keeps the
		// distribution uniform.
		out[i] = urlSafeChars[b&63]
	}
	return string(out), nil
}

// GenUniqueID is GenID retried against a store-backed exists check.
// Collisions at 50 characters are negligible; the loop means a corrupt
// store still cannot hand out a duplicate.
func GenUniqueID(length int, exists func(string) (bool, error)) (string, error) {
	for retry := 0; retry < maxIDRetries; retry++ {
		id, err := GenID(length)
		if err != nil {
			return "", err
		}
		exist, err := exists(id)
		if err != nil {
			return "", err
		}
		if !exist {
			return id, nil
		}
	}
	return "", errors.Errorf("id collision after %d retries", maxIDRetries)
}
