// Package webhook implements the signed billing webhook endpoint. The
// endpoint verifies deliveries, dispatches them to the reconciliation engine,
// and always acknowledges verified input with a success status: surfacing
// internal failures to the provider would only trigger retry storms and
// duplicate side effects.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yokaihq/paddlesync/pkg/accountsync"
)

const defaultMaxBodyBytes = 256 * 1024

// Verifier validates a delivery using the provider's official signature
// scheme. *paddle.WebhookVerifier from the Paddle SDK satisfies this
// interface. When set, it replaces the built-in HMAC check.
type Verifier interface {
	Verify(req *http.Request) (bool, error)
}

// Config holds webhook endpoint configuration.
type Config struct {
	// Engine processes verified events (required).
	Engine *accountsync.Engine

	// Secret is the shared HMAC secret for the built-in signature check.
	Secret string

	// Verifier replaces the built-in HMAC check with the provider's official
	// scheme (optional).
	Verifier Verifier

	// StrictSignature rejects deliveries without a signature. The permissive
	// default mirrors deployments where the provider's sandbox omits
	// signatures; production should enable it.
	StrictSignature bool

	// MaxBodyBytes caps the request body size (default 256 KiB).
	MaxBodyBytes int64

	// Logger for structured logging (optional, defaults to noop).
	Logger accountsync.Logger

	// Metrics collector (optional, defaults to noop).
	Metrics accountsync.Metrics
}

// Handler is the HTTP handler for the billing webhook endpoint.
type Handler struct {
	engine       *accountsync.Engine
	secret       []byte
	verifier     Verifier
	strict       bool
	maxBodyBytes int64
	logger       accountsync.Logger
	metrics      accountsync.Metrics
}

// envelope is the outer shape every provider event shares.
type envelope struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// ack is the acknowledgment body returned for every processed delivery.
type ack struct {
	Success        bool   `json:"success"`
	EventProcessed string `json:"event_processed"`
	Error          string `json:"error,omitempty"`
}

// NewHandler creates a webhook endpoint handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("%w: engine is required", accountsync.ErrInvalidConfig)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = &accountsync.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &accountsync.NoopMetrics{}
	}
	return &Handler{
		engine:       cfg.Engine,
		secret:       []byte(cfg.Secret),
		verifier:     cfg.Verifier,
		strict:       cfg.StrictSignature,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if status, reason := h.authenticate(r, body); status != 0 {
		h.logger.Warn("webhook rejected", accountsync.Field{Key: "reason", Value: reason})
		writeJSON(w, status, map[string]string{"error": reason})
		return
	}

	// Malformed payloads are the one case where a non-success response is
	// appropriate: retrying them is harmless and the provider may correct it.
	var evt envelope
	if err := json.Unmarshal(body, &evt); err != nil || evt.EventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	start := time.Now()
	processErr := h.engine.Process(r.Context(), &accountsync.Event{
		ID:   evt.EventID,
		Type: evt.EventType,
		Data: evt.Data,
	})
	if processErr != nil {
		// Swallowed on purpose: the provider retries non-success responses
		// without bound, which amplifies duplicates. The failure is already
		// logged and persisted to the debug sink by the engine.
		h.logger.Error("webhook processing failed",
			accountsync.Field{Key: "event_type", Value: evt.EventType},
			accountsync.Field{Key: "duration", Value: time.Since(start).String()},
			accountsync.Field{Key: "error", Value: processErr.Error()})
	}

	resp := ack{Success: processErr == nil, EventProcessed: evt.EventType}
	if processErr != nil {
		resp.Error = processErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticate returns a non-zero status and reason when the delivery must
// be rejected. A missing signature is tolerated unless strict mode is on.
func (h *Handler) authenticate(r *http.Request, body []byte) (int, string) {
	if h.verifier != nil {
		if r.Header.Get(HeaderSignature) == "" && !h.strict {
			return 0, ""
		}
		// The verifier consumes a request body, so hand it a copy.
		vr, err := http.NewRequestWithContext(r.Context(), http.MethodPost, r.URL.String(), bytes.NewReader(body))
		if err != nil {
			return http.StatusInternalServerError, "verification error"
		}
		vr.Header = r.Header.Clone()
		valid, err := h.verifier.Verify(vr)
		if err != nil {
			return http.StatusUnauthorized, "verification error"
		}
		if !valid {
			return http.StatusUnauthorized, "invalid signature"
		}
		return 0, ""
	}

	signature := r.Header.Get(HeaderSignature)
	timestamp := r.Header.Get(HeaderTimestamp)

	if len(h.secret) == 0 || signature == "" || timestamp == "" {
		if h.strict {
			return http.StatusUnauthorized, "signature required"
		}
		return 0, ""
	}
	if !VerifySignature(h.secret, timestamp, body, signature) {
		return http.StatusUnauthorized, "invalid signature"
	}
	return 0, ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
