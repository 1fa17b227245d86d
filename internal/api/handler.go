package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/db"
)

// SubscriptionStore defines the interface for subscription persistence.
type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, sub *db.Subscription) error
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) (int64, error)
}

// SubscribeRequest is the browser's PushSubscription JSON.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		Auth   string `json:"auth"`
		P256dh string `json:"p256dh"`
	} `json:"keys"`
}

// SubscribeResponse is returned after storing a subscription.
type SubscribeResponse struct {
	ID string `json:"id"`
}

// UnsubscribeRequest identifies the subscription to remove by endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger         *zap.Logger
	store          SubscriptionStore
	vapidPublicKey string
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, store SubscriptionStore, vapidPublicKey string) *Handler {
	return &Handler{
		logger:         logger,
		store:          store,
		vapidPublicKey: vapidPublicKey,
	}
}

// CreateSubscription handles POST /v1/subscriptions.
// User identity arrives pre-validated in the X-User-ID header; storing the
// same (user, endpoint) pair twice leaves exactly one row.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userIDStr := r.Header.Get("X-User-ID")
	if userIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user", "X-User-ID header is required")
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user", "X-User-ID must be a valid UUID")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Endpoint == "" || req.Keys.Auth == "" || req.Keys.P256dh == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "endpoint, keys.auth, and keys.p256dh are required")
		return
	}

	sub := &db.Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}

	if err := h.store.SaveSubscription(ctx, sub); err != nil {
		h.logger.Error("failed to save subscription",
			zap.Error(err),
			zap.String("user_id", userIDStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save subscription", "")
		return
	}

	h.logger.Info("subscription stored",
		zap.String("id", sub.ID.String()),
		zap.String("user_id", userIDStr),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(SubscribeResponse{ID: sub.ID.String()})
}

// DeleteSubscription handles DELETE /v1/subscriptions.
// Removing an endpoint that is already gone still returns 204.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint", "endpoint is required")
		return
	}

	deleted, err := h.store.DeleteSubscriptionByEndpoint(ctx, req.Endpoint)
	if err != nil {
		h.logger.Error("failed to delete subscription", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete subscription", "")
		return
	}

	h.logger.Info("subscription deleted",
		zap.Int64("rows", deleted),
	)

	w.WriteHeader(http.StatusNoContent)
}

// GetVAPIDKey handles GET /v1/vapid-key. The service worker needs the public
// key to create its PushSubscription.
func (h *Handler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"publicKey": h.vapidPublicKey,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
