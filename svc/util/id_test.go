package util

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestGenIDLength(t *testing.T) {
	for _, length := range []int{1, 8, 16, 50, 128} {
		id, err := GenID(length)
		if err != nil {
			t.Fatalf("GenID(%d) failed: %v", length, err)
		}
		if len(id) != length {
			t.Errorf("GenID(%d) returned %d characters", length, len(id))
		}
	}
}

func TestGenIDRejectsNonPositiveLength(t *testing.T) {
	for _, length := range []int{0, -1} {
		if _, err := GenID(length); err == nil {
			t.Errorf("GenID(%d) did not fail", length)
		}
	}
}

func TestGenIDAlphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := GenID(50)
		if err != nil {
			t.Fatalf("GenID failed: %v", err)
		}
		for _, c := range id {
			if !strings.ContainsRune(urlSafeChars, c) {
				t.Fatalf("id %q contains %q outside the alphabet", id, c)
			}
		}
	}
}

func TestGenIDUnique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id, err := GenID(50)
		if err != nil {
			t.Fatalf("GenID failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id after %d generations: %s", i, id)
		}
		seen[id] = true
	}
}

func TestGenUniqueIDRetriesOnCollision(t *testing.T) {
	calls := 0
	id, err := GenUniqueID(50, func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("GenUniqueID failed: %v", err)
	}
	if id == "" {
		t.Error("GenUniqueID returned empty id")
	}
	if calls != 3 {
		t.Errorf("exists called %d times, want 3", calls)
	}
}

func TestGenUniqueIDGivesUp(t *testing.T) {
	calls := 0
	_, err := GenUniqueID(50, func(string) (bool, error) {
		calls++
		return true, nil
	})
	if err == nil {
		t.Fatal("GenUniqueID did not fail on permanent collision")
	}
	if calls != maxIDRetries {
		t.Errorf("exists called %d times, want %d", calls, maxIDRetries)
	}
}

func TestGenUniqueIDPropagatesCheckError(t *testing.T) {
	boom := errors.New("store down")
	_, err := GenUniqueID(50, func(string) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("GenUniqueID error = %v, want %v", err, boom)
	}
}
