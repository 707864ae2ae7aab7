package domain

import (
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	p := Paste{}
	if p.Expired(now) {
		t.Error("paste without expiry reported expired")
	}
	p = Paste{WillExpire: true, ExpiryDate: &future}
	if p.Expired(now) {
		t.Error("paste with future expiry reported expired")
	}
	if !p.Expired(future.Add(time.Second)) {
		t.Error("paste past its expiry reported alive")
	}
	p = Paste{WillExpire: true, ExpiryDate: &past}
	if !p.Expired(now) {
		t.Error("paste with past expiry reported alive")
	}
	// WillExpire false means the date is meaningless leftover state.
	p = Paste{WillExpire: false, ExpiryDate: &past}
	if p.Expired(now) {
		t.Error("paste with willExpire=false reported expired")
	}
}

func TestPublicStripsStorageRef(t *testing.T) {
	p := Paste{PublicID: "abc", StorageRef: "internal-handle", Content: "hi"}
	pub := p.Public()
	if pub.StorageRef != "" {
		t.Errorf("Public kept the storage ref: %q", pub.StorageRef)
	}
	if pub.PublicID != "abc" || pub.Content != "hi" {
		t.Error("Public altered unrelated fields")
	}
	if p.StorageRef != "internal-handle" {
		t.Error("Public mutated the receiver")
	}
}

func TestPatchIsEmpty(t *testing.T) {
	var patch Patch
	if !patch.IsEmpty() {
		t.Error("zero patch not empty")
	}

	now := time.Now()
	updated := true
	patch = Patch{Updated: &updated, UpdatedAt: &now}
	if !patch.IsEmpty() {
		t.Error("bookkeeping-only patch should count as empty")
	}

	content := "new"
	patch = Patch{Content: &content}
	if patch.IsEmpty() {
		t.Error("patch with content change reported empty")
	}
	patch = Patch{ClearExpiry: true}
	if patch.IsEmpty() {
		t.Error("patch clearing expiry reported empty")
	}
}

func TestPatchApply(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	base := Paste{
		PublicID:     "abc",
		Content:      "old content",
		Filename:     "old.txt",
		Description:  "old",
		IsPrivate:    false,
		IsCode:       false,
		CodeLanguage: "text",
		WillExpire:   true,
		ExpiryDate:   &exp,
	}

	content := "new content"
	filename := "new.py"
	isCode := true
	language := "Python"
	isPrivate := true
	updated := true
	stamp := time.Now()
	patch := Patch{
		Content:      &content,
		Filename:     &filename,
		IsCode:       &isCode,
		CodeLanguage: &language,
		IsPrivate:    &isPrivate,
		Updated:      &updated,
		UpdatedAt:    &stamp,
	}
	got := patch.Apply(base)

	if got.Content != content || got.Filename != filename || got.CodeLanguage != language {
		t.Errorf("Apply result = %+v", got)
	}
	if !got.IsCode || !got.IsPrivate || !got.Updated {
		t.Errorf("Apply missed boolean fields: %+v", got)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(stamp) {
		t.Errorf("Apply missed updatedDate: %v", got.UpdatedAt)
	}
	if got.Description != "old" {
		t.Error("Apply touched a field the patch did not carry")
	}
	if got.ExpiryDate == nil || !got.ExpiryDate.Equal(exp) {
		t.Error("Apply touched expiry without a patch field")
	}
	if base.Content != "old content" {
		t.Error("Apply mutated the base")
	}
}

func TestPatchApplyClearExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	base := Paste{WillExpire: true, ExpiryDate: &exp}
	willExpire := false
	patch := Patch{WillExpire: &willExpire, ClearExpiry: true}
	got := patch.Apply(base)
	if got.WillExpire {
		t.Error("Apply kept willExpire set")
	}
	if got.ExpiryDate != nil {
		t.Errorf("Apply kept the expiry date: %v", got.ExpiryDate)
	}
}

func TestErrStatusAndResp(t *testing.T) {
	if Status(ErrPasteNotFound) != http.StatusNotFound {
		t.Error("not-found status wrong")
	}
	if Status(ErrUnauthorized) != http.StatusUnauthorized {
		t.Error("unauthorized status wrong")
	}
	if Status(errors.New("opaque")) != http.StatusInternalServerError {
		t.Error("opaque errors must map to 500")
	}

	wrapped := errors.Wrap(ErrPasteTooLarge, "checking payload")
	if Status(wrapped) != http.StatusBadRequest {
		t.Error("wrapped sentinel lost its status")
	}
	if ToResp(wrapped).Error.Code != "PASTE_TOO_LARGE" {
		t.Error("wrapped sentinel lost its code")
	}
}

func TestForbiddenIndistinguishableFromMissing(t *testing.T) {
	if Status(ErrPasteForbidden) != Status(ErrPasteNotFound) {
		t.Error("ownership failures must not reveal existence via status")
	}
	if ToResp(ErrPasteForbidden).Error.Msg != ToResp(ErrPasteNotFound).Error.Msg {
		t.Error("ownership failures must not reveal existence via message")
	}
	if ErrPasteForbidden.Code == ErrPasteNotFound.Code {
		t.Error("internal codes must stay distinct for logs")
	}
}
