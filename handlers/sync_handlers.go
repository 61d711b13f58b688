// api/handlers/sync_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"funnelsight/api/source"
	"funnelsight/api/sync"
)

// SyncRunner is the piece of the sync pipeline the handler needs.
type SyncRunner interface {
	Run(ctx context.Context) (*sync.RunResult, error)
}

type SyncHandlers struct {
	Runner    SyncRunner
	RunBudget time.Duration
}

func NewSyncHandlers(runner SyncRunner, runBudget time.Duration) *SyncHandlers {
	return &SyncHandlers{Runner: runner, RunBudget: runBudget}
}

// TriggerSync runs one full sync and reports what it processed. A run that
// hit its fetch budget still returns 200 with partial=true; callers are
// expected to check the flag and re-invoke, not to treat it as a failure.
func (h *SyncHandlers) TriggerSync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.RunBudget)
	defer cancel()

	result, err := h.Runner.Run(ctx)
	if err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("sync run failed")
		status := http.StatusInternalServerError
		if errors.Is(err, source.ErrUpstream) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}
