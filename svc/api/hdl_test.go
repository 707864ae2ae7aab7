package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lclpaste/cfg"
	"lclpaste/pkg/domain"
	"lclpaste/svc/auth"
	"lclpaste/svc/cache"
	"lclpaste/svc/db"
	"lclpaste/svc/lim"
	"lclpaste/svc/svc"
)

var testKey = []byte("unit-test-signing-key-0123456789abcdef")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	c := &cfg.Cfg{
		Port:           "0",
		Environment:    "development",
		PublicIDLength: 50,
		MaxPasteSize:   64 * 1024,
		LatestLimit:    30,
		CacheTTL:       time.Minute,
		FeedCacheTTL:   30 * time.Second,
		ContextTimeout: 5 * time.Second,
		AllowedOrigins: []string{"*"},
	}
	lru, err := cache.NewLRU(128)
	if err != nil {
		t.Fatalf("NewLRU failed: %v", err)
	}
	store := db.NewMemory()
	pasteSvc := svc.NewPaste(store, lru, nil, c)
	limiter := lim.New(100000, 1000, 100000, nil, nil)
	t.Cleanup(limiter.Stop)
	resolver, err := auth.NewResolver(testKey)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return NewServer(c, pasteSvc, limiter, store, nil, resolver)
}

func bearerFor(t *testing.T, name string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testKey)
	if err != nil {
		t.Fatalf("signing token failed: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, srv *Server, method, target, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
		// httptest.NewRequest sets r.ContentLength but not the header a
		// real server request carries; readJSON checks the header.
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func createVia(t *testing.T, srv *Server, target, bearer, body string) domain.Paste {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, target, bearer, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var p domain.Paste
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	return p
}

func TestCreatePasteAnonymous(t *testing.T) {
	srv := newTestServer(t)
	p := createVia(t, srv, "/pastes", "", `{"content":"hello","filename":"hello.go"}`)

	if len(p.PublicID) != 50 {
		t.Errorf("pasteId length = %d, want 50", len(p.PublicID))
	}
	if p.IsOwnedByUser || p.OwnerName != "anonymous" {
		t.Errorf("ownership = %v/%q", p.IsOwnedByUser, p.OwnerName)
	}
	if !p.IsCode || p.CodeLanguage != "Go" {
		t.Errorf("language = %v/%q", p.IsCode, p.CodeLanguage)
	}
}

func TestCreatePasteOwned(t *testing.T) {
	srv := newTestServer(t)
	p := createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"hello"}`)
	if !p.IsOwnedByUser || p.OwnerName != "alice" {
		t.Errorf("ownership = %v/%q", p.IsOwnedByUser, p.OwnerName)
	}
	if p.StorageRef == "" {
		t.Error("create response missing ref")
	}
}

func TestCreatePasteAnonymousQueryOverridesToken(t *testing.T) {
	srv := newTestServer(t)
	p := createVia(t, srv, "/pastes?isAnonymous=true", bearerFor(t, "alice"), `{"content":"hello"}`)
	if p.IsOwnedByUser || p.OwnerName != "anonymous" {
		t.Errorf("ownership = %v/%q", p.IsOwnedByUser, p.OwnerName)
	}
}

func TestCreatePasteViaPut(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPut, "/pastes", "", `{"content":"hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT create returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreatePasteRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader(`{"content":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("wrong media type returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/pastes", "", `{"content":"x","bogus":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/pastes", "", `{"content":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty content returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/pastes", "", `{"content":"x","expiryDate":"not-a-date"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad expiry returned %d", rec.Code)
	}
}

func TestInvalidTokenRejectedNotDowngraded(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/pastes", "Bearer garbage", `{"content":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token returned %d", rec.Code)
	}
}

func TestGetPasteByID(t *testing.T) {
	srv := newTestServer(t)
	created := createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"hello"}`)

	rec := doJSON(t, srv, http.MethodGet, "/pastes/"+created.PublicID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := body["ref"]; ok {
		t.Error("public lookup leaked the storage ref")
	}
	if body["content"] != "hello" {
		t.Errorf("content = %v", body["content"])
	}
}

func TestGetPasteNotFoundShape(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/pastes/doesnotexist", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing paste returned %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] == "" || body["request_id"] == "" {
		t.Errorf("error body missing fields: %v", body)
	}
}

func TestGetPasteByRefRequiresOwner(t *testing.T) {
	srv := newTestServer(t)
	created := createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"hello"}`)

	rec := doJSON(t, srv, http.MethodGet, "/pastes/ref/"+created.StorageRef, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated ref lookup returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/pastes/ref/"+created.StorageRef, bearerFor(t, "bob"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign ref lookup returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/pastes/ref/"+created.StorageRef, bearerFor(t, "alice"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("owner ref lookup returned %d", rec.Code)
	}
	var p domain.Paste
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if p.StorageRef != created.StorageRef {
		t.Error("owner lookup missing the ref")
	}
}

func TestUpdatePaste(t *testing.T) {
	srv := newTestServer(t)
	created := createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"v1","description":"keep"}`)

	rec := doJSON(t, srv, http.MethodPatch, "/pastes/ref/"+created.StorageRef, bearerFor(t, "alice"), `{"content":"v2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}
	var p domain.Paste
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if p.Content != "v2" || p.Description != "keep" {
		t.Errorf("after update: content=%q description=%q", p.Content, p.Description)
	}
	if !p.Updated || p.UpdatedAt == nil {
		t.Error("update not stamped")
	}
}

func TestUpdatePasteOwnershipOnWire(t *testing.T) {
	srv := newTestServer(t)
	owned := createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"v1"}`)
	anon := createVia(t, srv, "/pastes", "", `{"content":"v1"}`)

	rec := doJSON(t, srv, http.MethodPatch, "/pastes/ref/"+owned.StorageRef, "", `{"content":"v2"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated update returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPatch, "/pastes/ref/"+owned.StorageRef, bearerFor(t, "bob"), `{"content":"v2"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign update returned %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPatch, "/pastes/ref/"+anon.StorageRef, bearerFor(t, "alice"), `{"content":"v2"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("anonymous paste update returned %d", rec.Code)
	}
}

func TestUpdatePasteClearAndSetExpiryConflict(t *testing.T) {
	srv := newTestServer(t)
	created := createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"v1"}`)
	body := `{"clearExpiry":true,"expiryDate":"2030-01-01T00:00:00Z"}`
	rec := doJSON(t, srv, http.MethodPatch, "/pastes/ref/"+created.StorageRef, bearerFor(t, "alice"), body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("conflicting expiry request returned %d", rec.Code)
	}
}

func TestGetLatestExcludesPrivate(t *testing.T) {
	srv := newTestServer(t)
	pub := createVia(t, srv, "/pastes", "", `{"content":"public"}`)
	createVia(t, srv, "/pastes", "", `{"content":"secret","isPrivate":true}`)

	rec := doJSON(t, srv, http.MethodGet, "/pastes/latest", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest returned %d", rec.Code)
	}
	var feed []domain.Paste
	if err := json.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decoding feed: %v", err)
	}
	if len(feed) != 1 || feed[0].PublicID != pub.PublicID {
		t.Errorf("feed = %+v", feed)
	}
	if feed[0].StorageRef != "" {
		t.Error("feed entry leaks the storage ref")
	}
}

func TestGetMine(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/pastes/mine", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated mine returned %d", rec.Code)
	}

	createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"a"}`)
	createVia(t, srv, "/pastes", bearerFor(t, "alice"), `{"content":"b","isPrivate":true}`)
	createVia(t, srv, "/pastes", bearerFor(t, "bob"), `{"content":"c"}`)

	rec = doJSON(t, srv, http.MethodGet, "/pastes/mine", bearerFor(t, "alice"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("mine returned %d", rec.Code)
	}
	var mine []domain.Paste
	if err := json.Unmarshal(rec.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decoding listing: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("mine has %d entries, want 2", len(mine))
	}
	for _, p := range mine {
		if p.OwnerName != "alice" {
			t.Errorf("foreign paste in listing: %+v", p)
		}
	}
}

func TestGetLanguages(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/config/languages", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("languages returned %d", rec.Code)
	}
	var langs []LanguageResp
	if err := json.Unmarshal(rec.Body.Bytes(), &langs); err != nil {
		t.Fatalf("decoding languages: %v", err)
	}
	if len(langs) == 0 {
		t.Fatal("empty language list")
	}
	for _, l := range langs {
		if l.Extension == "" || l.Name == "" {
			t.Errorf("incomplete entry: %+v", l)
		}
		if l.Category != "programming" && l.Category != "prose" {
			t.Errorf("unknown category: %+v", l)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health returned %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ready returned %d", rec.Code)
	}
}

func TestSanitizeContent(t *testing.T) {
	got := sanitizeContent("a\tb\nc\x00d\x07e")
	if got != "a\tb\ncde" {
		t.Errorf("sanitizeContent = %q", got)
	}
	// Code must survive untouched, including markup characters.
	src := `if a < b && c > d { fmt.Println("<ok>") }`
	if sanitizeContent(src) != src {
		t.Errorf("sanitizeContent altered code: %q", sanitizeContent(src))
	}
}
