// api/handlers/webhook_handlers.go
package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"funnelsight/api/models"
)

// EntryUpserter persists the webhook's lightweight entry stub.
type EntryUpserter interface {
	UpsertEntry(ctx context.Context, entry *models.Entry) error
}

type WebhookHandlers struct {
	Entries EntryUpserter
	Secret  string
}

func NewWebhookHandlers(entries EntryUpserter, secret string) *WebhookHandlers {
	return &WebhookHandlers{Entries: entries, Secret: secret}
}

// webhookEnvelope accepts both the wrapped {type, data} shape and a flat
// payload; whichever fields are present are used.
type webhookEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	EntryToken string `json:"entry_token"`
	FormID     string `json:"form_id"`
	Completed  bool   `json:"completed"`
}

// HandleEvent upserts an entry stub from a pushed event. Webhook pushes
// deliberately never write aggregate rows: the periodic sync is the single
// authority for those, so pushes and pulls cannot double count.
func (h *WebhookHandlers) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if h.Secret != "" && !h.verifySignature(c, body) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if len(envelope.Data) > 0 {
		// Wrapped shape: the entry fields live under data.
		var inner webhookEnvelope
		if err := json.Unmarshal(envelope.Data, &inner); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event data"})
			return
		}
		inner.Type = envelope.Type
		envelope = inner
	}
	if envelope.EntryToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing entry_token"})
		return
	}

	entry := &models.Entry{
		EntryToken: envelope.EntryToken,
		FormID:     envelope.FormID,
		Completed:  envelope.Completed,
		RawPayload: body,
	}
	if err := h.Entries.UpsertEntry(c.Request.Context(), entry); err != nil {
		log.Error().Err(err).Str("entry_token", envelope.EntryToken).Msg("failed to upsert webhook entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record entry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received", "entry_token": entry.EntryToken})
}

func (h *WebhookHandlers) verifySignature(c *gin.Context, body []byte) bool {
	signature := c.GetHeader("X-Webhook-Signature")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
