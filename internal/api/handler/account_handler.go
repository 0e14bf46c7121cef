package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/notify-svc/scheduler/internal/auth"
	"github.com/notify-svc/scheduler/internal/domain"
	"github.com/notify-svc/scheduler/internal/session"
	"github.com/notify-svc/scheduler/internal/store"
)

// AccountHandler implements /register, /login, /logout, and /user,
// grounded on the original service's app/auth.rs and app/user.rs.
type AccountHandler struct {
	store    store.Store
	sessions *session.Manager
	logger   *zap.Logger
}

func NewAccountHandler(s store.Store, sessions *session.Manager, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{store: s, sessions: sessions, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	if err := auth.ValidateUsername(req.Username); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	created, err := h.store.CreateAccount(r.Context(), req.Username, hash)
	if err != nil {
		h.logger.Error("failed to create account", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !created {
		respondError(w, http.StatusConflict, "someone has beaten you to the punch and taken your username; please choose another one")
		return
	}

	if err := h.sessions.Set(w, req.Username); err != nil {
		h.logger.Error("failed to set session cookie", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

// Login handles POST /login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	hash, found, err := h.store.GetAccountPasswordHash(r.Context(), req.Username)
	if err != nil {
		h.logger.Error("failed to get account password hash", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found || !auth.VerifyPassword(req.Password, hash) {
		mapError(w, domain.ErrInvalidCredentials)
		return
	}

	if err := h.sessions.Set(w, req.Username); err != nil {
		h.logger.Error("failed to set session cookie", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"username": req.Username})
}

// Logout handles POST /logout, expiring the session cookie. Supplements
// the distilled spec's endpoint list with the original service's
// logout_handler (app/auth.rs), which the spec omitted.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type userNotification struct {
	ID    string           `json:"id"`
	Title string           `json:"title"`
	Plan  []domain.QueueRow `json:"plan"`
}

// User handles GET /user: returns the authenticated username and every
// notification it owns, each with its full plan.
func (h *AccountHandler) User(w http.ResponseWriter, r *http.Request) {
	username := session.UsernameFromContext(r.Context())

	notifications, err := h.store.ListUserNotifications(r.Context(), username)
	if err != nil {
		h.logger.Error("failed to list user notifications", zap.String("username", username), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]userNotification, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, userNotification{ID: n.ID.String(), Title: n.Title, Plan: n.Plan})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"username":      username,
		"notifications": out,
	})
}
