package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/jredh-dev/shroud/services/secure/internal/token"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	tokens *token.Service
	log    zerolog.Logger
}

// New creates a new Handler.
func New(tokens *token.Service, log zerolog.Logger) *Handler {
	return &Handler{tokens: tokens, log: log}
}

type loginReq struct {
	Username string `json:"username"`
}

type loginResp struct {
	Token string `json:"token"`
}

type profileResp struct {
	OK   bool          `json:"ok"`
	User *token.Claims `json:"user"`
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// NFC so visually identical names share a subject.
	username := norm.NFC.String(strings.TrimSpace(req.Username))
	if username == "" {
		jsonError(w, "Username required", http.StatusBadRequest)
		return
	}

	tok, err := h.tokens.Issue(username, token.DefaultRole)
	if err != nil {
		h.log.Error().Err(err).Msg("issue token")
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("user", username).Msg("login")
	jsonOK(w, http.StatusOK, loginResp{Token: tok})
}

// Profile handles GET /api/profile. Requires AuthMiddleware.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		jsonError(w, "Unauthorized: Missing token", http.StatusUnauthorized)
		return
	}
	jsonOK(w, http.StatusOK, profileResp{OK: true, User: claims})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func jsonOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonOK(w, status, map[string]string{"error": msg})
}
