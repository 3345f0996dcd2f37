package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strivehq/hookgate/internal/models"
	"github.com/strivehq/hookgate/internal/storage"
)

type SubscriptionHandler struct {
	store storage.Storage
}

func NewSubscriptionHandler(store storage.Storage) *SubscriptionHandler {
	return &SubscriptionHandler{store: store}
}

type createSubscriptionRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be a valid HTTP or HTTPS URL")
		return
	}
	if len(req.EventTypes) == 0 {
		writeError(w, http.StatusBadRequest, "event_types is required")
		return
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:         models.NewID("sub"),
		UserID:     identity.UserID,
		URL:        req.URL,
		EventTypes: req.EventTypes,
		Secret:     models.NewSigningSecret(),
		Status:     models.SubscriptionActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateSubscription(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// The secret is included once in the create response so the receiver
	// can verify signatures; reads omit it.
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subs, err := h.store.ListSubscriptions(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	for i := range subs {
		subs[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, subs)
}

// ownedSubscription loads a subscription and enforces that it belongs to
// the caller; other users' subscriptions read as not found.
func (h *SubscriptionHandler) ownedSubscription(w http.ResponseWriter, r *http.Request) *models.Subscription {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id := chi.URLParam(r, "id")
	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return nil
	}
	if sub == nil || sub.UserID != identity.UserID {
		writeError(w, http.StatusNotFound, "subscription not found")
		return nil
	}
	return sub
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubscription(w, r)
	if sub == nil {
		return
	}
	sub.Secret = ""
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Enable(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubscription(w, r)
	if sub == nil {
		return
	}

	if err := h.store.EnableSubscription(r.Context(), sub.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enable subscription")
		return
	}

	sub.Status = models.SubscriptionActive
	sub.FailureCount = 0
	sub.Secret = ""
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubscription(w, r)
	if sub == nil {
		return
	}

	if err := h.store.DeleteSubscription(r.Context(), sub.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubscription(w, r)
	if sub == nil {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.store.ListDeliveryLogs(r.Context(), sub.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list delivery logs")
		return
	}
	if entries == nil {
		entries = []models.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}
