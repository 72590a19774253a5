package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/usecase/escrow"
)

const HeaderSignature = "X-Escrow-Signature"

// Deduper drops webhook deliveries that were already processed.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type WebhookHandler struct {
	escrow *escrow.Service
	dedupe Deduper
	secret []byte
}

func NewWebhookHandler(s *escrow.Service, d Deduper, secret string) *WebhookHandler {
	return &WebhookHandler{escrow: s, dedupe: d, secret: []byte(secret)}
}

type escrowWebhookReq struct {
	EventID string `json:"event_id" validate:"required,max=128"`
	HoldID  string `json:"hold_id"  validate:"required"`
	Status  string `json:"status"   validate:"required,oneof=DEPOSITED RELEASED REFUNDED"`
	TxRef   string `json:"tx_ref"   validate:"max=128"`
	// idempotency key the transition was issued with, when the gateway echoes it
	EventHash string `json:"event_hash" validate:"omitempty,len=64,hexadecimal"`
}

// Sign returns the hex HMAC-SHA256 of body, as expected in X-Escrow-Signature.
func Sign(secret, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func (h *WebhookHandler) verify(body []byte, sig string) bool {
	if len(h.secret) == 0 {
		return true
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	m := hmac.New(sha256.New, h.secret)
	m.Write(body)
	return hmac.Equal(m.Sum(nil), want)
}

func (h *WebhookHandler) Escrow(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if !h.verify(body, c.Request().Header.Get(HeaderSignature)) {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
	}

	var req escrowWebhookReq
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}

	ctx := c.Request().Context()
	first, err := h.dedupe.Claim(ctx, req.EventID)
	if err != nil {
		return fail(c, err)
	}
	if !first {
		return c.JSON(http.StatusOK, map[string]any{"event_id": req.EventID, "duplicate": true})
	}

	hold, err := h.escrow.HandleConfirmation(ctx, escrow.Confirmation{
		EventID:   req.EventID,
		HoldID:    req.HoldID,
		Status:    escrowDomain.ExecutorState(req.Status),
		TxRef:     req.TxRef,
		EventHash: req.EventHash,
	})
	if err != nil {
		// let the sender's retry through
		if ferr := h.dedupe.Forget(ctx, req.EventID); ferr != nil {
			c.Logger().Warnf("webhook: forget %s: %v", req.EventID, ferr)
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"event_id": req.EventID, "duplicate": false, "hold": hold})
}
