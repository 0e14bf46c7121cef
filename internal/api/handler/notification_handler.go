package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notify-svc/scheduler/internal/domain"
	"github.com/notify-svc/scheduler/internal/planexpander"
	"github.com/notify-svc/scheduler/internal/session"
	"github.com/notify-svc/scheduler/internal/store"
)

// NotificationHandler handles the notification creation and lookup
// endpoints described in spec.md §6.
type NotificationHandler struct {
	store  store.Store
	logger *zap.Logger
}

func NewNotificationHandler(s store.Store, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: s, logger: logger}
}

// Create handles POST /notifications. Requires an authenticated session;
// the notification's owner is the session's username, never a
// client-supplied field.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	var rep *domain.Repetitions
	if req.Repetitions != nil {
		rep = &domain.Repetitions{
			Count:    req.Repetitions.Count,
			Interval: time.Duration(req.Repetitions.Interval) * time.Second,
		}
	}

	now := time.Now().UTC()
	if err := planexpander.Validate(req.Title, req.Content, req.NotifyAt, rep, now); err != nil {
		mapError(w, err)
		return
	}

	username := session.UsernameFromContext(r.Context())
	id, err := h.store.CreateNotification(r.Context(), username, domain.CreateNotificationOpts{
		Title:       req.Title,
		Content:     req.Content,
		NotifyAt:    req.NotifyAt,
		Repetitions: rep,
	})
	if err != nil {
		h.logger.Error("failed to create notification", zap.String("username", username), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"notification_id": id.String()})
}

// GetByID handles GET /notification/{id}. No authentication is required:
// spec.md §6 treats the notification ID itself as the access credential.
// An ID that is not a well-formed UUID is treated the same as one that
// does not exist: both return 404.
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, domain.ErrNotFound)
		return
	}

	n, found, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get notification", zap.String("id", id.String()), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		mapError(w, domain.ErrNotFound)
		return
	}

	respondJSON(w, http.StatusOK, n)
}
