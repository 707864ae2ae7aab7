package db

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"lclpaste/pkg/domain"
)

// Memory is the reference Store: a map guarded by a RWMutex. Tests run
// against it, and STORE=memory selects it for throwaway dev runs.
type Memory struct {
	mu       sync.RWMutex
	byRef    map[string]domain.Paste
	refOfPub map[string]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		byRef:    make(map[string]domain.Paste),
		refOfPub: make(map[string]string),
	}
}

func (m *Memory) Insert(ctx context.Context, p *domain.Paste) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refOfPub[p.PublicID]; ok {
		return errors.New("public id already exists")
	}
	if p.StorageRef == "" {
		p.StorageRef = uuid.NewString()
	}
	m.byRef[p.StorageRef] = *p
	m.refOfPub[p.PublicID] = p.StorageRef
	return nil
}

func (m *Memory) GetByPublicID(ctx context.Context, publicID string) (*domain.Paste, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refOfPub[publicID]
	if !ok {
		return nil, domain.ErrPasteNotFound
	}
	p := m.byRef[ref]
	return &p, nil
}

func (m *Memory) GetByRef(ctx context.Context, ref string) (*domain.Paste, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrPasteNotFound
	}
	return &p, nil
}

func (m *Memory) Merge(ctx context.Context, ref string, patch domain.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byRef[ref]
	if !ok {
		return domain.ErrPasteNotFound
	}
	m.byRef[ref] = patch.Apply(p)
	return nil
}

func (m *Memory) ListLatest(ctx context.Context, limit int) ([]domain.Paste, error) {
	m.mu.RLock()
	out := make([]domain.Paste, 0, limit)
	for _, p := range m.byRef {
		if !p.IsPrivate {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListOwned(ctx context.Context, owner string) ([]domain.Paste, error) {
	m.mu.RLock()
	var out []domain.Paste
	for _, p := range m.byRef {
		if p.IsOwnedByUser && p.OwnerName == owner {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ExistsPublicID(ctx context.Context, publicID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.refOfPub[publicID]
	return ok, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
