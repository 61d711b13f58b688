// api/source/client.go
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"funnelsight/api/config"
	"funnelsight/api/models"
	"funnelsight/api/utils"
)

// maxErrorBodyBytes caps how much of an upstream error body is copied into
// the returned error.
const maxErrorBodyBytes = 512

// ErrUpstream marks fetch failures the event source itself reported, as
// opposed to local request-building or decoding problems. Callers branch on
// it with errors.Is to map upstream outages to a gateway error.
var ErrUpstream = errors.New("event source returned an error")

// Client fetches completion events from the external form platform. Fetching
// is strictly read-only: the platform treats the event list as append-only
// history and the client never mutates it, so repeated fetches are safe.
type Client struct {
	baseURL      string
	apiKey       string
	formID       string
	filterFormID string
	pageSize     int
	maxRecords   int
	fetchBudget  time.Duration
	http         *http.Client
	logger       zerolog.Logger

	// now is swapped out in tests to drive the deadline.
	now func() time.Time
}

// FetchResult is the outcome of one paginated fetch. Partial means the fetch
// deadline elapsed mid-pagination and Events holds only what was retrieved so
// far; callers should process it and re-run later rather than discard it.
type FetchResult struct {
	Events  []models.RawEvent
	Pages   int
	Partial bool
}

func NewClient(cfg config.SourceConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		formID:       cfg.FormID,
		filterFormID: cfg.FilterFormID,
		pageSize:     cfg.PageSize,
		maxRecords:   cfg.MaxRecords,
		fetchBudget:  cfg.FetchBudget,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger.With().Str("component", "source").Logger(),
		now:          time.Now,
	}
}

// FetchAll paginates through the event endpoint until a short batch signals
// the end of data, the hard record cap is reached, or the fetch budget is
// spent. A spent budget is not an error: the result is flagged Partial and
// the accumulated events are returned for processing.
func (c *Client) FetchAll(ctx context.Context) (*FetchResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("event source API key is not configured")
	}
	if c.formID == "" {
		return nil, fmt.Errorf("event source form ID is not configured")
	}

	deadline := c.now().Add(c.fetchBudget)
	result := &FetchResult{}
	offset := 0

	for {
		if c.now().After(deadline) {
			c.logger.Warn().
				Int("events", len(result.Events)).
				Int("pages", result.Pages).
				Msg("fetch budget exhausted mid-pagination, returning partial result")
			result.Partial = true
			break
		}

		batch, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		result.Pages++

		// Filter immediately, before accumulating, to bound peak memory.
		kept := batch
		if c.filterFormID != "" {
			kept = kept[:0]
			for _, ev := range batch {
				if ev.FormID == c.filterFormID {
					kept = append(kept, ev)
				}
			}
		}
		for _, ev := range kept {
			if ev.EntryToken == "" {
				c.logger.Warn().Msg("dropping event with empty entry token")
				continue
			}
			result.Events = append(result.Events, sanitizeEvent(ev))
		}

		if len(batch) < c.pageSize {
			break
		}
		if len(result.Events) >= c.maxRecords {
			c.logger.Warn().
				Int("max_records", c.maxRecords).
				Msg("hard record cap reached, stopping pagination")
			break
		}
		offset += c.pageSize
	}

	c.logger.Info().
		Int("events", len(result.Events)).
		Int("pages", result.Pages).
		Bool("partial", result.Partial).
		Msg("fetch complete")
	return result, nil
}

func (c *Client) fetchPage(ctx context.Context, offset int) ([]models.RawEvent, error) {
	u := fmt.Sprintf("%s/forms/%s/events?%s", c.baseURL, url.PathEscape(c.formID), url.Values{
		"limit":  {fmt.Sprintf("%d", c.pageSize)},
		"offset": {fmt.Sprintf("%d", offset)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build event source request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, utils.TruncateString(string(body), maxErrorBodyBytes))
	}

	var batch []models.RawEvent
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode event source response: %w", err)
	}
	return batch, nil
}

// sanitizeEvent applies the defaulting the upstream schema leaves implicit,
// so nothing downstream has to guard against zero timestamps.
func sanitizeEvent(ev models.RawEvent) models.RawEvent {
	if ev.CreatedAt.IsZero() {
		if !ev.UpdatedAt.IsZero() {
			ev.CreatedAt = ev.UpdatedAt
		} else if len(ev.PageVisits) > 0 && !ev.PageVisits[0].VisitedAt.IsZero() {
			ev.CreatedAt = ev.PageVisits[0].VisitedAt
		}
	}
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = ev.CreatedAt
	}
	return ev
}
