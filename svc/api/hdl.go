package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"lclpaste/cfg"
	"lclpaste/pkg/domain"
	"lclpaste/pkg/lang"
	"lclpaste/svc/auth"
	"lclpaste/svc/svc"
	"lclpaste/svc/util"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

type CreateReq struct {
	Content     string `json:"content"`
	Filename    string `json:"filename,omitempty"`
	Description string `json:"description,omitempty"`
	IsPrivate   bool   `json:"isPrivate,omitempty"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
}

// UpdateReq distinguishes "field absent" from "field set to zero": a nil
// pointer is not proposed at all.
type UpdateReq struct {
	Content     *string `json:"content,omitempty"`
	Filename    *string `json:"filename,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPrivate   *bool   `json:"isPrivate,omitempty"`
	ExpiryDate  *string `json:"expiryDate,omitempty"`
	ClearExpiry bool    `json:"clearExpiry,omitempty"`
}

type LanguageResp struct {
	Extension string `json:"extension"`
	Name      string `json:"name"`
	Category  string `json:"category"`
}

// readJSON enforces the content negotiation rules shared by every body
// route: JSON media type, honest Content-Length, no compressed bodies,
// unknown fields rejected.
func (h *Hdl) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return false
	}

	limit := h.cfg.MaxPasteSize * 2
	clHeader := r.Header.Get("Content-Length")
	if clHeader == "" {
		log.Warn().Msg("missing Content-Length")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	cl, err := strconv.ParseInt(clHeader, 10, 64)
	if err != nil || cl < 0 {
		log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	if cl > limit {
		log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return false
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" {
		log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	return true
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	var req CreateReq
	if !h.readJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		log.Warn().Msg("empty content")
		writeErr(w, domain.ErrContentRequired, requestID)
		return
	}
	if int64(len(req.Content)) > h.cfg.MaxPasteSize {
		log.Warn().Int("content_length", len(req.Content)).Msg("content exceeds maximum size")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return
	}

	params := domain.CreateParams{
		Content:     sanitizeContent(req.Content),
		Filename:    strings.TrimSpace(req.Filename),
		Description: strings.TrimSpace(req.Description),
		IsPrivate:   req.IsPrivate,
	}
	if req.ExpiryDate != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiryDate)
		if err != nil {
			log.Warn().Err(err).Str("expiry_date", req.ExpiryDate).Msg("invalid expiry date")
			writeErr(w, domain.ErrInvalidExpiry, requestID)
			return
		}
		params.ExpiryDate = &t
	}

	actor := auth.ActorFrom(r.Context())
	anonymous := r.URL.Query().Get("isAnonymous") == "true"

	paste, err := h.paste.Create(r.Context(), params, actor, anonymous)
	if err != nil {
		log.Error().Err(err).Msg("failed to create paste")
		if errors.Is(err, domain.ErrContentRequired) ||
			errors.Is(err, domain.ErrPasteTooLarge) ||
			errors.Is(err, domain.ErrInvalidExpiry) ||
			errors.Is(err, domain.ErrIDGenerationFailed) {
			writeErr(w, err, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.PublicID).
		Bool("anonymous", !paste.IsOwnedByUser).
		Bool("private", paste.IsPrivate).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(paste)
}

func (h *Hdl) UpdatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	ref := chi.URLParam(r, "ref")
	var req UpdateReq
	if !h.readJSON(w, r, &req) {
		return
	}
	if req.ClearExpiry && req.ExpiryDate != nil {
		log.Warn().Msg("clearExpiry and expiryDate both present")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	proposed := domain.ProposedChanges{
		IsPrivate:   req.IsPrivate,
		ClearExpiry: req.ClearExpiry,
	}
	if req.Content != nil {
		s := sanitizeContent(*req.Content)
		proposed.Content = &s
	}
	if req.Filename != nil {
		s := strings.TrimSpace(*req.Filename)
		proposed.Filename = &s
	}
	if req.Description != nil {
		s := strings.TrimSpace(*req.Description)
		proposed.Description = &s
	}
	if req.ExpiryDate != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiryDate)
		if err != nil {
			log.Warn().Err(err).Str("expiry_date", *req.ExpiryDate).Msg("invalid expiry date")
			writeErr(w, domain.ErrInvalidExpiry, requestID)
			return
		}
		proposed.ExpiryDate = &t
	}

	actor := auth.ActorFrom(r.Context())
	paste, err := h.paste.Update(r.Context(), ref, proposed, actor)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) || errors.Is(err, domain.ErrPasteForbidden) {
			log.Warn().Err(err).Str("ref", ref).Msg("update refused")
			writeErr(w, err, requestID)
			return
		}
		if errors.Is(err, domain.ErrContentRequired) ||
			errors.Is(err, domain.ErrPasteTooLarge) ||
			errors.Is(err, domain.ErrInvalidExpiry) {
			writeErr(w, err, requestID)
			return
		}
		log.Error().Err(err).Str("ref", ref).Msg("failed to update paste")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.PublicID).
		Msg("paste updated")
	json.NewEncoder(w).Encode(paste)
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	paste, err := h.paste.GetByPublicID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			writeErr(w, domain.ErrPasteNotFound, requestID)
			return
		}
		log.Error().Err(err).Str("paste_id", id).Msg("get failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	json.NewEncoder(w).Encode(paste.Public())
}

func (h *Hdl) GetPasteByRef(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	ref := chi.URLParam(r, "ref")
	actor := auth.ActorFrom(r.Context())
	paste, err := h.paste.GetByRef(r.Context(), ref, actor)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) || errors.Is(err, domain.ErrPasteForbidden) {
			log.Warn().Err(err).Str("ref", ref).Msg("ref lookup refused")
			writeErr(w, err, requestID)
			return
		}
		log.Error().Err(err).Str("ref", ref).Msg("ref lookup failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	json.NewEncoder(w).Encode(paste)
}

func (h *Hdl) GetLatest(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	feed, err := h.paste.GetLatest(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list latest pastes")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	json.NewEncoder(w).Encode(feed)
}

func (h *Hdl) GetMine(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	actor := auth.ActorFrom(r.Context())
	pastes, err := h.paste.GetOwnedBy(r.Context(), actor)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeErr(w, err, requestID)
			return
		}
		log.Error().Err(err).Str("owner", actor.Name).Msg("failed to list owned pastes")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	json.NewEncoder(w).Encode(pastes)
}

func (h *Hdl) GetLanguages(w http.ResponseWriter, r *http.Request) {
	exts := lang.Extensions()
	out := make([]LanguageResp, 0, len(exts))
	for _, ext := range exts {
		l, ok := lang.Lookup(ext)
		if !ok {
			continue
		}
		out = append(out, LanguageResp{
			Extension: ext,
			Name:      l.Name,
			Category:  string(l.Category),
		})
	}
	json.NewEncoder(w).Encode(out)
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}

// sanitizeContent normalizes to NFC and strips control characters other
// than newline, carriage return and tab. Content is stored raw beyond
// that: pastes hold source code, so no markup escaping.
func sanitizeContent(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
