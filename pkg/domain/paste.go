package domain

import (
	"time"
)

const AnonymousName = "anonymous"

// Paste is the central entity. StorageRef is the store-assigned internal
// handle; it is serialized only on owner-facing responses.
type Paste struct {
	PublicID      string     `json:"pasteId"`
	StorageRef    string     `json:"ref,omitempty"`
	Content       string     `json:"content"`
	Filename      string     `json:"filename,omitempty"`
	Description   string     `json:"description,omitempty"`
	IsPrivate     bool       `json:"isPrivate"`
	IsCode        bool       `json:"isCode"`
	CodeLanguage  string     `json:"codeLanguage"`
	CreatedAt     time.Time  `json:"createdDate"`
	Updated       bool       `json:"updated"`
	UpdatedAt     *time.Time `json:"updatedDate,omitempty"`
	IsOwnedByUser bool       `json:"isOwnedByUser"`
	OwnerName     string     `json:"ownedByUsername"`
	WillExpire    bool       `json:"willExpire"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
}

// Expired reports whether the paste's expiry has passed at the given instant.
func (p *Paste) Expired(now time.Time) bool {
	return p.WillExpire && p.ExpiryDate != nil && now.After(*p.ExpiryDate)
}

// Public returns a copy safe for unauthenticated responses: the storage
// ref must never leak onto discovery routes.
func (p *Paste) Public() *Paste {
	cp := *p
	cp.StorageRef = ""
	return &cp
}

// Actor is the calling identity context.
type Actor struct {
	Name          string
	Authenticated bool
}

var Anonymous = Actor{}

type CreateParams struct {
	Content     string
	Filename    string
	Description string
	IsPrivate   bool
	ExpiryDate  *time.Time
}

// ProposedChanges carries the fields a caller wants to change. A nil
// pointer means "not proposed", which is distinct from a zero value.
type ProposedChanges struct {
	Content     *string
	Filename    *string
	Description *string
	IsPrivate   *bool
	ExpiryDate  *time.Time
	ClearExpiry bool
}

// Patch is the sparse set of changed fields applied during an update.
// Each pointer is present iff the proposed value differs from the stored
// one. Updated/UpdatedAt are bookkeeping stamped by the service.
type Patch struct {
	Content      *string
	Filename     *string
	Description  *string
	IsPrivate    *bool
	IsCode       *bool
	CodeLanguage *string
	WillExpire   *bool
	ExpiryDate   *time.Time
	ClearExpiry  bool

	Updated   *bool
	UpdatedAt *time.Time
}

// IsEmpty reports whether the patch carries no field changes. The
// bookkeeping stamps do not count.
func (p *Patch) IsEmpty() bool {
	return p.Content == nil &&
		p.Filename == nil &&
		p.Description == nil &&
		p.IsPrivate == nil &&
		p.IsCode == nil &&
		p.CodeLanguage == nil &&
		p.WillExpire == nil &&
		p.ExpiryDate == nil &&
		!p.ClearExpiry
}

// Apply folds the patch into a copy of the given paste. Stores that keep
// whole records in memory use this; SQL stores translate the patch into a
// partial UPDATE instead.
func (p *Patch) Apply(base Paste) Paste {
	if p.Content != nil {
		base.Content = *p.Content
	}
	if p.Filename != nil {
		base.Filename = *p.Filename
	}
	if p.Description != nil {
		base.Description = *p.Description
	}
	if p.IsPrivate != nil {
		base.IsPrivate = *p.IsPrivate
	}
	if p.IsCode != nil {
		base.IsCode = *p.IsCode
	}
	if p.CodeLanguage != nil {
		base.CodeLanguage = *p.CodeLanguage
	}
	if p.WillExpire != nil {
		base.WillExpire = *p.WillExpire
	}
	if p.ExpiryDate != nil {
		t := *p.ExpiryDate
		base.ExpiryDate = &t
	}
	if p.ClearExpiry {
		base.ExpiryDate = nil
	}
	if p.Updated != nil {
		base.Updated = *p.Updated
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		base.UpdatedAt = &t
	}
	return base
}
