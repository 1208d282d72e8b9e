package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/writique/writique/internal/auth"
)

// Delivery header names used by the provider's webhook transport.
const (
	headerID        = "svix-id"
	headerTimestamp = "svix-timestamp"
	headerSignature = "svix-signature"
)

// maxEventBytes caps how much of a webhook body we will read. Lifecycle
// events are small; anything bigger is not one of ours.
const maxEventBytes = 1 << 20

// UserStore is the slice of the user service the webhook needs. All three
// operations are idempotent with respect to redelivered events.
type UserStore interface {
	// ProvisionFromAccount creates the local user if absent; a re-delivered
	// user.created for an existing subject is a no-op.
	ProvisionFromAccount(ctx context.Context, acct *auth.Account) error
	// ApplyAccountUpdate applies only the fields present in the account
	// payload, never overwriting an existing value with an absent one.
	ApplyAccountUpdate(ctx context.Context, acct *auth.Account) error
	// RemoveByExternalID deletes the user record only; authored posts stay.
	RemoveByExternalID(ctx context.Context, externalID string) error
}

// event is the envelope of a lifecycle delivery.
type event struct {
	Type string       `json:"type"`
	Data auth.Account `json:"data"`
}

// Handler verifies and applies account lifecycle events.
type Handler struct {
	verifier *SignatureVerifier
	users    UserStore
	logger   *slog.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(verifier *SignatureVerifier, users UserStore, logger *slog.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// ServeHTTP processes one delivery.
//
// The signature covers the raw body, so the body is read before any JSON
// decoding. Verification failures are the sender's problem (400); failures
// applying a verified event are ours (500), scoped to that one event — the
// provider will redeliver and the handlers are idempotent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		h.logger.Warn("webhook: reading body failed", slog.String("error", err.Error()))
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	err = h.verifier.Verify(
		r.Header.Get(headerID),
		r.Header.Get(headerTimestamp),
		r.Header.Get(headerSignature),
		body,
	)
	if err != nil {
		h.logger.Warn("webhook: signature rejected", slog.String("error", err.Error()))
		http.Error(w, "webhook verification failed", http.StatusBadRequest)
		return
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("webhook: undecodable payload", slog.String("error", err.Error()))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	h.logger.Info("webhook event received",
		slog.String("type", evt.Type),
		slog.String("subjectID", evt.Data.ID),
	)

	switch evt.Type {
	case "user.created":
		err = h.users.ProvisionFromAccount(r.Context(), &evt.Data)
	case "user.updated":
		err = h.users.ApplyAccountUpdate(r.Context(), &evt.Data)
	case "user.deleted":
		err = h.users.RemoveByExternalID(r.Context(), evt.Data.ID)
	default:
		// Unknown event types are acknowledged and ignored; the provider
		// adds types over time and redelivers anything we NAK.
		h.logger.Info("webhook: ignoring event type", slog.String("type", evt.Type))
	}

	if err != nil {
		h.logger.Error("webhook event processing failed",
			slog.String("type", evt.Type),
			slog.String("subjectID", evt.Data.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "error processing webhook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}
