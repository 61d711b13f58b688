package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelsight/api/source"
	"funnelsight/api/sync"
)

type stubRunner struct {
	result *sync.RunResult
	err    error
}

func (s *stubRunner) Run(_ context.Context) (*sync.RunResult, error) {
	return s.result, s.err
}

func syncRouter(runner SyncRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/sync/funnel", NewSyncHandlers(runner, time.Minute).TriggerSync)
	return r
}

func doSync(router *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sync/funnel", nil)
	router.ServeHTTP(w, req)
	return w
}

func TestTriggerSync_Success(t *testing.T) {
	runner := &stubRunner{result: &sync.RunResult{EntriesProcessed: 42, DaysWritten: 3}}
	w := doSync(syncRouter(runner))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool           `json:"success"`
		Result  sync.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 42, resp.Result.EntriesProcessed)
	assert.Equal(t, 3, resp.Result.DaysWritten)
}

func TestTriggerSync_PartialIsStillOK(t *testing.T) {
	runner := &stubRunner{result: &sync.RunResult{EntriesProcessed: 10, Partial: true}}
	w := doSync(syncRouter(runner))

	assert.Equal(t, http.StatusOK, w.Code, "a budget-limited run is a success, not an error")
	var resp struct {
		Result sync.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Partial)
}

func TestTriggerSync_ConcurrentRunConflicts(t *testing.T) {
	runner := &stubRunner{err: sync.ErrSyncInProgress}
	w := doSync(syncRouter(runner))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerSync_UpstreamFailureIsBadGateway(t *testing.T) {
	runner := &stubRunner{err: fmt.Errorf("event fetch failed: %w: status 503: maintenance", source.ErrUpstream)}
	w := doSync(syncRouter(runner))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestTriggerSync_OtherErrorsAreInternal(t *testing.T) {
	runner := &stubRunner{err: errors.New("replace step day: connection refused")}
	w := doSync(syncRouter(runner))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
