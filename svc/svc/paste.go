package svc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"lclpaste/cfg"
	"lclpaste/metrics"
	"lclpaste/pkg/domain"
	"lclpaste/pkg/lang"
	"lclpaste/svc/cache"
	"lclpaste/svc/db"
	"lclpaste/svc/util"
)

// ExpiryPolicy decides whether a paste is visible at the given instant.
// Expiry is advisory metadata enforced only at read time; there is no
// background sweep and no deletion.
type ExpiryPolicy func(p *domain.Paste, now time.Time) bool

func DefaultExpiryPolicy(p *domain.Paste, now time.Time) bool {
	return !p.Expired(now)
}

// Paste orchestrates identifier generation, language resolution and the
// ownership/privacy policy on top of a Store, with an LRU and optional
// Redis tier in front of public-id reads.
type Paste struct {
	store   db.Store
	lru     *cache.LRU
	rdb     *db.Redis
	cfg     *cfg.Cfg
	visible ExpiryPolicy
	loads   singleflight.Group
	now     func() time.Time
}

func NewPaste(store db.Store, lru *cache.LRU, rdb *db.Redis, c *cfg.Cfg) *Paste {
	if store == nil || lru == nil || c == nil {
		panic("paste service: nil dependency (store, lru, or cfg)")
	}
	return &Paste{
		store:   store,
		lru:     lru,
		rdb:     rdb,
		cfg:     c,
		visible: DefaultExpiryPolicy,
		now:     time.Now,
	}
}

// SetExpiryPolicy swaps the read-time visibility check. Must be called
// before the service starts taking requests.
func (p *Paste) SetExpiryPolicy(policy ExpiryPolicy) {
	if policy != nil {
		p.visible = policy
	}
}

// Create validates the payload, resolves the language from the filename
// (any client-supplied language is ignored by construction: it is not
// part of CreateParams), applies the ownership rule and performs a
// single atomic insert. Store failures propagate unchanged; there are
// no retries and no side effects beyond the insert.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams, actor domain.Actor, anonymous bool) (*domain.Paste, error) {
	if params.Content == "" {
		return nil, domain.ErrContentRequired
	}
	if int64(len(params.Content)) > p.cfg.MaxPasteSize {
		return nil, domain.ErrPasteTooLarge
	}
	now := p.now()
	if params.ExpiryDate != nil && !params.ExpiryDate.After(now) {
		return nil, domain.ErrInvalidExpiry
	}

	language, ok := lang.Resolve(params.Filename)
	if !ok {
		language = lang.Default
	}

	owned := false
	ownerName := domain.AnonymousName
	if !anonymous && actor.Authenticated {
		owned = true
		ownerName = actor.Name
	}

	publicID, err := util.GenUniqueID(p.cfg.PublicIDLength, func(id string) (bool, error) {
		return p.store.ExistsPublicID(ctx, id)
	})
	if err != nil {
		return nil, errors.Wrap(domain.ErrIDGenerationFailed, err.Error())
	}

	paste := &domain.Paste{
		PublicID:      publicID,
		Content:       params.Content,
		Filename:      params.Filename,
		Description:   params.Description,
		IsPrivate:     params.IsPrivate,
		IsCode:        language.Category == lang.Programming,
		CodeLanguage:  language.Name,
		CreatedAt:     now,
		IsOwnedByUser: owned,
		OwnerName:     ownerName,
		WillExpire:    params.ExpiryDate != nil,
	}
	if params.ExpiryDate != nil {
		t := *params.ExpiryDate
		paste.ExpiryDate = &t
	}

	if err := p.store.Insert(ctx, paste); err != nil {
		return nil, errors.Wrap(err, "insert paste")
	}

	p.lru.Set(ctx, paste, p.cacheTTL(paste))
	if p.rdb != nil {
		if err := p.rdb.CachePaste(ctx, paste, p.cacheTTL(paste)); err != nil {
			util.Warn().Err(err).Str("paste_id", paste.PublicID).Msg("failed to cache in Redis")
		}
		if !paste.IsPrivate {
			if err := p.rdb.DropLatest(ctx); err != nil {
				util.Warn().Err(err).Msg("failed to drop latest feed cache")
			}
		}
	}
	metrics.PasteCreated.Inc()
	return paste, nil
}

// Update applies the ownership policy, computes the sparse diff and
// persists it as a single partial write. Anonymous pastes never pass the
// policy: with no identity to match they are permanently immutable.
func (p *Paste) Update(ctx context.Context, ref string, proposed domain.ProposedChanges, actor domain.Actor) (*domain.Paste, error) {
	existing, err := p.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !p.visible(existing, p.now()) {
		return nil, domain.ErrPasteNotFound
	}
	if !existing.IsOwnedByUser || existing.OwnerName == domain.AnonymousName {
		return nil, domain.ErrPasteForbidden
	}
	if !actor.Authenticated || actor.Name != existing.OwnerName {
		return nil, domain.ErrPasteForbidden
	}

	patch, err := p.diff(existing, proposed)
	if err != nil {
		return nil, err
	}

	// The attempt is recorded even when nothing differs.
	now := p.now()
	updated := true
	patch.Updated = &updated
	patch.UpdatedAt = &now

	if err := p.store.Merge(ctx, ref, patch); err != nil {
		return nil, errors.Wrap(err, "merge paste")
	}

	result := patch.Apply(*existing)

	p.lru.Delete(existing.PublicID)
	if p.rdb != nil {
		if err := p.rdb.DeletePaste(ctx, existing.PublicID); err != nil {
			util.Warn().Err(err).Str("paste_id", existing.PublicID).Msg("failed to invalidate Redis entry")
		}
		if err := p.rdb.DropLatest(ctx); err != nil {
			util.Warn().Err(err).Msg("failed to drop latest feed cache")
		}
	}
	metrics.PasteUpdated.Inc()
	return &result, nil
}

// diff produces the sparse patch: a field appears iff its proposed value
// differs from the stored one. Explicit comparisons, no reflection.
func (p *Paste) diff(existing *domain.Paste, proposed domain.ProposedChanges) (domain.Patch, error) {
	var patch domain.Patch

	if proposed.Content != nil && *proposed.Content != existing.Content {
		if *proposed.Content == "" {
			return patch, domain.ErrContentRequired
		}
		if int64(len(*proposed.Content)) > p.cfg.MaxPasteSize {
			return patch, domain.ErrPasteTooLarge
		}
		patch.Content = proposed.Content
	}
	if proposed.Filename != nil && *proposed.Filename != existing.Filename {
		patch.Filename = proposed.Filename
		// A new filename re-resolves the language; the stored label is
		// always the resolver's output.
		language, ok := lang.Resolve(*proposed.Filename)
		if !ok {
			language = lang.Default
		}
		if language.Name != existing.CodeLanguage {
			name := language.Name
			patch.CodeLanguage = &name
		}
		isCode := language.Category == lang.Programming
		if isCode != existing.IsCode {
			patch.IsCode = &isCode
		}
	}
	if proposed.Description != nil && *proposed.Description != existing.Description {
		patch.Description = proposed.Description
	}
	if proposed.IsPrivate != nil && *proposed.IsPrivate != existing.IsPrivate {
		patch.IsPrivate = proposed.IsPrivate
	}

	switch {
	case proposed.ClearExpiry:
		if existing.WillExpire {
			willExpire := false
			patch.WillExpire = &willExpire
		}
		if existing.ExpiryDate != nil {
			patch.ClearExpiry = true
		}
	case proposed.ExpiryDate != nil:
		if !proposed.ExpiryDate.After(p.now()) {
			return patch, domain.ErrInvalidExpiry
		}
		if existing.ExpiryDate == nil || !existing.ExpiryDate.Equal(*proposed.ExpiryDate) {
			t := *proposed.ExpiryDate
			patch.ExpiryDate = &t
		}
		if !existing.WillExpire {
			willExpire := true
			patch.WillExpire = &willExpire
		}
	}

	return patch, nil
}

// GetByPublicID serves the public share-link path: LRU, then Redis, then
// the store with concurrent cold reads collapsed per id.
func (p *Paste) GetByPublicID(ctx context.Context, publicID string) (*domain.Paste, error) {
	if cached := p.lru.Get(ctx, publicID); cached != nil {
		if !p.visible(cached, p.now()) {
			p.evict(ctx, publicID)
			return nil, domain.ErrPasteNotFound
		}
		metrics.CacheHits.Inc()
		metrics.PasteRetrieved.Inc()
		return cached, nil
	}
	metrics.CacheMisses.Inc()

	if p.rdb != nil {
		if cached, err := p.rdb.GetPaste(ctx, publicID); err == nil && cached != nil {
			if !p.visible(cached, p.now()) {
				p.evict(ctx, publicID)
				return nil, domain.ErrPasteNotFound
			}
			p.lru.Set(ctx, cached, p.cacheTTL(cached))
			metrics.PasteRetrieved.Inc()
			return cached, nil
		}
	}

	v, err, _ := p.loads.Do(publicID, func() (interface{}, error) {
		return p.store.GetByPublicID(ctx, publicID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			return nil, domain.ErrPasteNotFound
		}
		return nil, errors.Wrap(err, "get paste")
	}
	paste := v.(*domain.Paste)
	if !p.visible(paste, p.now()) {
		return nil, domain.ErrPasteNotFound
	}

	p.lru.Set(ctx, paste, p.cacheTTL(paste))
	if p.rdb != nil {
		if err := p.rdb.CachePaste(ctx, paste, p.cacheTTL(paste)); err != nil {
			util.Warn().Err(err).Str("paste_id", publicID).Msg("failed to cache in Redis")
		}
	}
	metrics.PasteRetrieved.Inc()
	return paste, nil
}

// GetByRef is the owner-facing point lookup. It always hits the store:
// the caller already holds the ref, so caches add nothing but staleness.
// Only the owner may resolve a ref; anonymous pastes have no owner to
// satisfy that, so their refs resolve for nobody.
func (p *Paste) GetByRef(ctx context.Context, ref string, actor domain.Actor) (*domain.Paste, error) {
	paste, err := p.store.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !p.visible(paste, p.now()) {
		return nil, domain.ErrPasteNotFound
	}
	if !paste.IsOwnedByUser || !actor.Authenticated || actor.Name != paste.OwnerName {
		return nil, domain.ErrPasteForbidden
	}
	metrics.PasteRetrieved.Inc()
	return paste, nil
}

// GetLatest returns the bounded, privacy-filtered, newest-first public
// feed. Entries never carry storage refs.
func (p *Paste) GetLatest(ctx context.Context) ([]domain.Paste, error) {
	if p.rdb != nil {
		if feed, err := p.rdb.GetLatest(ctx); err == nil && feed != nil {
			metrics.PasteListed.WithLabelValues("latest").Inc()
			return feed, nil
		}
	}
	rows, err := p.store.ListLatest(ctx, p.cfg.LatestLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list latest")
	}
	now := p.now()
	feed := make([]domain.Paste, 0, len(rows))
	for i := range rows {
		if rows[i].IsPrivate || !p.visible(&rows[i], now) {
			continue
		}
		feed = append(feed, *rows[i].Public())
	}
	if p.rdb != nil {
		if err := p.rdb.CacheLatest(ctx, feed, p.cfg.FeedCacheTTL); err != nil {
			util.Warn().Err(err).Msg("failed to cache latest feed")
		}
	}
	metrics.PasteListed.WithLabelValues("latest").Inc()
	return feed, nil
}

// GetOwnedBy returns every paste owned by the actor, private ones
// included: the owner's view has no privacy filter.
func (p *Paste) GetOwnedBy(ctx context.Context, actor domain.Actor) ([]domain.Paste, error) {
	if !actor.Authenticated {
		return nil, domain.ErrUnauthorized
	}
	rows, err := p.store.ListOwned(ctx, actor.Name)
	if err != nil {
		return nil, errors.Wrap(err, "list owned")
	}
	now := p.now()
	out := make([]domain.Paste, 0, len(rows))
	for i := range rows {
		if !p.visible(&rows[i], now) {
			continue
		}
		out = append(out, rows[i])
	}
	metrics.PasteListed.WithLabelValues("owned").Inc()
	return out, nil
}

func (p *Paste) cacheTTL(paste *domain.Paste) time.Duration {
	ttl := p.cfg.CacheTTL
	if paste.WillExpire && paste.ExpiryDate != nil {
		if until := time.Until(*paste.ExpiryDate); until < ttl {
			ttl = until
		}
	}
	return ttl
}

func (p *Paste) evict(ctx context.Context, publicID string) {
	p.lru.Delete(publicID)
	if p.rdb != nil {
		if err := p.rdb.DeletePaste(ctx, publicID); err != nil {
			util.Warn().Err(err).Str("paste_id", publicID).Msg("failed to evict Redis entry")
		}
	}
}
