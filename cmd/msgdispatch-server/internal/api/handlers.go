// Package api provides HTTP handlers for the msgdispatch server REST API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/model"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Dependencies are the services exposed by the API. Subscriptions and Worker
// are only available with the outbox broker; their endpoints answer 501
// otherwise.
type Dependencies struct {
	Publisher     *msgdispatch.Publisher
	Listeners     []*msgdispatch.Listener
	Subscriptions *msgdispatch.SubscriptionManager
	Worker        *msgdispatch.QueueWorker
	Logger        msgdispatch.Logger

	// TypeField is the payload field the publisher resolver reads the
	// message type from. The "type" of a publish request is written there.
	TypeField string

	// Broker names the configured transport for the health endpoint.
	Broker string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Dependencies
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.Logger == nil {
		deps.Logger = &msgdispatch.NoopLogger{}
	}
	return &Handler{deps: deps}
}

// Register installs the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/publish", h.HandlePublish)
	mux.HandleFunc("GET /api/v1/listeners", h.HandleListListeners)
	mux.HandleFunc("POST /api/v1/subscribe", h.HandleSubscribe)
	mux.HandleFunc("GET /api/v1/subscriptions", h.HandleListSubscriptions)
	mux.HandleFunc("DELETE /api/v1/subscriptions/{id}", h.HandleUnsubscribe)
	mux.HandleFunc("GET /api/v1/dlq/stats", h.HandleDLQStats)
	mux.HandleFunc("GET /api/v1/health", h.HandleHealth)
}

// PublishRequest represents a publish message request.
type PublishRequest struct {
	Destination  string         `json:"destination"`
	Type         string         `json:"type"`
	Key          *string        `json:"key"`
	PartitionKey string         `json:"partitionKey"`
	Payload      map[string]any `json:"payload"`
}

// Validate implements validation.Validatable.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Destination, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Type, validation.Length(0, 255)),
		validation.Field(&r.PartitionKey, validation.Length(0, 255)),
	)
}

// SubscribeRequest represents a subscription creation request.
type SubscribeRequest struct {
	Destination string `json:"destination"`
	ListenerID  string `json:"listenerId"`
}

// ListenerInfo describes a listener and its dispatch table.
type ListenerInfo struct {
	ID       string                `json:"id"`
	Bindings []msgdispatch.Binding `json:"bindings"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePublish handles POST /api/v1/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), msgdispatch.ErrCodeValidation)
		return
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	if req.Type != "" && h.deps.TypeField != "" {
		payload[h.deps.TypeField] = req.Type
	}

	var key any
	if req.Key != nil {
		key = *req.Key
	}

	result, err := h.deps.Publisher.Publish(r.Context(), msgdispatch.PublishRequest{
		Destination:  req.Destination,
		Payload:      payload,
		MessageKey:   key,
		PartitionKey: req.PartitionKey,
	})
	if err != nil {
		h.deps.Logger.Errorf("Failed to publish message: %v", err)
		h.respondError(w, publishStatus(err), "Failed to publish message", msgdispatch.ErrorCode(err))
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Message published successfully")
}

func publishStatus(err error) int {
	switch msgdispatch.ErrorCode(err) {
	case msgdispatch.ErrCodeArgument, msgdispatch.ErrCodeValidation, msgdispatch.ErrCodeDecode:
		return http.StatusBadRequest
	case msgdispatch.ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleListListeners handles GET /api/v1/listeners
func (h *Handler) HandleListListeners(w http.ResponseWriter, _ *http.Request) {
	listeners := make([]ListenerInfo, 0, len(h.deps.Listeners))
	for _, l := range h.deps.Listeners {
		listeners = append(listeners, ListenerInfo{ID: l.ID(), Bindings: l.Bindings()})
	}
	h.respondSuccess(w, http.StatusOK, listeners, "")
}

// HandleSubscribe handles POST /api/v1/subscribe
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !h.requireOutbox(w) {
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if !h.knownListener(req.ListenerID) {
		h.respondError(w, http.StatusBadRequest, "Unknown listener: "+req.ListenerID, msgdispatch.ErrCodeValidation)
		return
	}

	subscription, err := h.deps.Subscriptions.Subscribe(r.Context(), msgdispatch.SubscribeRequest{
		Destination: req.Destination,
		ListenerID:  req.ListenerID,
	})
	if err != nil {
		if msgdispatch.IsCode(err, msgdispatch.ErrCodeValidation) {
			h.respondError(w, http.StatusBadRequest, err.Error(), msgdispatch.ErrCodeValidation)
			return
		}
		h.deps.Logger.Errorf("Failed to create subscription: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to create subscription", "SUBSCRIBE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, subscription, "Subscription created successfully")
}

// HandleListSubscriptions handles GET /api/v1/subscriptions
func (h *Handler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if !h.requireOutbox(w) {
		return
	}

	subscriptions, err := h.deps.Subscriptions.ListSubscriptions(r.Context(), r.URL.Query().Get("destination"))
	if err != nil {
		h.deps.Logger.Errorf("Failed to list subscriptions: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list subscriptions", "LIST_ERROR")
		return
	}
	if len(subscriptions) == 0 {
		h.respondSuccess(w, http.StatusOK, []model.Subscription{}, "No subscriptions found")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscriptions, "")
}

// HandleUnsubscribe handles DELETE /api/v1/subscriptions/{id}
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if !h.requireOutbox(w) {
		return
	}

	subscriptionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || subscriptionID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid subscription ID", "INVALID_ID")
		return
	}

	subscription, err := h.deps.Subscriptions.Unsubscribe(r.Context(), subscriptionID)
	if err != nil {
		if msgdispatch.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
			return
		}
		h.deps.Logger.Errorf("Failed to unsubscribe: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to unsubscribe", "UNSUBSCRIBE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscription, "Unsubscribed successfully")
}

// HandleDLQStats handles GET /api/v1/dlq/stats
func (h *Handler) HandleDLQStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Worker == nil {
		h.respondError(w, http.StatusNotImplemented, "Dead letter queue requires the outbox broker", "NOT_SUPPORTED")
		return
	}

	stats, err := h.deps.Worker.GetDLQStats(r.Context())
	if err != nil {
		h.deps.Logger.Errorf("Failed to load DLQ stats: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load DLQ stats", "DLQ_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, map[string]interface{}{
		"stats":         stats,
		"retrySchedule": h.deps.Worker.GetRetrySchedule(),
	}, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"broker":    h.deps.Broker,
		"listeners": len(h.deps.Listeners),
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

func (h *Handler) requireOutbox(w http.ResponseWriter) bool {
	if h.deps.Subscriptions == nil {
		h.respondError(w, http.StatusNotImplemented, "Subscriptions require the outbox broker", "NOT_SUPPORTED")
		return false
	}
	return true
}

func (h *Handler) knownListener(id string) bool {
	id = strings.TrimSpace(id)
	for _, l := range h.deps.Listeners {
		if l.ID() == id {
			return true
		}
	}
	return false
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(next http.Handler, logger msgdispatch.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
