package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelsight/api/config"
	"funnelsight/api/models"
)

func testClient(t *testing.T, baseURL string, mutate func(cfg *config.SourceConfig)) *Client {
	t.Helper()
	cfg := config.SourceConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		FormID:      "form-1",
		PageSize:    2,
		MaxRecords:  100,
		FetchBudget: time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, zerolog.Nop())
}

func eventsOfSize(n int, formID string, startToken int) []models.RawEvent {
	events := make([]models.RawEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, models.RawEvent{
			EntryToken: fmt.Sprintf("tok-%d", startToken+i),
			FormID:     formID,
			CreatedAt:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		})
	}
	return events
}

// pagesServer serves a fixed sequence of batches keyed by offset.
func pagesServer(t *testing.T, pages map[int][]models.RawEvent) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		batch, ok := pages[offset]
		if !ok {
			batch = []models.RawEvent{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(batch)
	}))
}

func TestFetchAll_StopsOnShortBatch(t *testing.T) {
	srv := pagesServer(t, map[int][]models.RawEvent{
		0: eventsOfSize(2, "form-1", 0),
		2: eventsOfSize(1, "form-1", 2),
	})
	defer srv.Close()

	result, err := testClient(t, srv.URL, nil).FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Events, 3)
	assert.Equal(t, 2, result.Pages)
	assert.False(t, result.Partial)
}

func TestFetchAll_StopsAtHardCap(t *testing.T) {
	srv := pagesServer(t, map[int][]models.RawEvent{
		0: eventsOfSize(2, "form-1", 0),
		2: eventsOfSize(2, "form-1", 2),
		4: eventsOfSize(2, "form-1", 4),
	})
	defer srv.Close()

	client := testClient(t, srv.URL, func(cfg *config.SourceConfig) { cfg.MaxRecords = 3 })
	result, err := client.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Events, 4, "the cap stops pagination after the batch that crossed it")
	assert.Equal(t, 2, result.Pages)
	assert.False(t, result.Partial)
}

func TestFetchAll_DeadlineMidPaginationReturnsPartial(t *testing.T) {
	srv := pagesServer(t, map[int][]models.RawEvent{
		0: eventsOfSize(2, "form-1", 0),
		2: eventsOfSize(2, "form-1", 2),
		4: eventsOfSize(2, "form-1", 4),
	})
	defer srv.Close()

	client := testClient(t, srv.URL, func(cfg *config.SourceConfig) { cfg.FetchBudget = 90 * time.Second })
	// Fake clock: every now() call advances 50s, so the second loop check
	// lands past the 90s budget after one full page.
	clock := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time {
		clock = clock.Add(50 * time.Second)
		return clock
	}

	result, err := client.FetchAll(context.Background())
	require.NoError(t, err, "a spent budget is a partial result, not an error")

	assert.True(t, result.Partial)
	assert.Len(t, result.Events, 2, "events fetched before the deadline are kept")
	assert.Equal(t, 1, result.Pages)
}

func TestFetchAll_Non2xxAbortsWithDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"maintenance window"}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, nil).FetchAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance window")
}

func TestFetchAll_FiltersByFormIDPerBatch(t *testing.T) {
	mixed := append(eventsOfSize(1, "form-1", 0), eventsOfSize(1, "other-form", 10)...)
	srv := pagesServer(t, map[int][]models.RawEvent{0: mixed})
	defer srv.Close()

	client := testClient(t, srv.URL, func(cfg *config.SourceConfig) { cfg.FilterFormID = "form-1" })
	result, err := client.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	assert.Equal(t, "form-1", result.Events[0].FormID)
}

func TestFetchAll_MissingCredentialsFailFast(t *testing.T) {
	client := testClient(t, "http://localhost:0", func(cfg *config.SourceConfig) { cfg.APIKey = "" })
	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestFetchAll_DropsEventsWithoutToken(t *testing.T) {
	batch := []models.RawEvent{
		{EntryToken: "tok-1", FormID: "form-1"},
		{EntryToken: "", FormID: "form-1"},
	}
	srv := pagesServer(t, map[int][]models.RawEvent{0: batch})
	defer srv.Close()

	result, err := testClient(t, srv.URL, nil).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "tok-1", result.Events[0].EntryToken)
}

func TestSanitizeEvent_DefaultsTimestamps(t *testing.T) {
	visitAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	ev := sanitizeEvent(models.RawEvent{
		EntryToken: "tok",
		PageVisits: []models.PageVisit{{StepKey: "landing", VisitedAt: visitAt}},
	})
	assert.Equal(t, visitAt, ev.CreatedAt, "a missing created_at falls back to the first visit")
	assert.Equal(t, visitAt, ev.UpdatedAt)
}
