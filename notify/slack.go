// api/notify/slack.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"funnelsight/api/models"
)

// SlackNotifier posts alerts to a Slack incoming webhook as block-formatted
// messages. An empty webhook URL disables it without erroring, so alert
// detection keeps working in environments with no channel configured.
type SlackNotifier struct {
	webhookURL string
	http       *http.Client
	logger     zerolog.Logger
}

func NewSlackNotifier(webhookURL string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "notify").Logger(),
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// SendAlert posts one alert. Callers treat failures as log-and-continue.
func (n *SlackNotifier) SendAlert(ctx context.Context, alert *models.Alert) error {
	if n.webhookURL == "" {
		return nil
	}

	var detail strings.Builder
	fmt.Fprintf(&detail, "*Current:* %.1f", alert.CurrentValue)
	if alert.PreviousValue != nil {
		fmt.Fprintf(&detail, "  *Yesterday:* %.1f", *alert.PreviousValue)
	}
	if alert.SevenDayAvg != nil {
		fmt.Fprintf(&detail, "  *7-day avg:* %.1f", *alert.SevenDayAvg)
	}
	fmt.Fprintf(&detail, "  *Change:* %+.1f%%", alert.ChangePercent)

	msg := slackMessage{
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("%s funnel alert: %s", strings.ToUpper(string(alert.Severity)), alert.Type)}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: alert.Message}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: detail.String()}},
		},
	}
	if alert.Recommendation != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: ":bulb: " + alert.Recommendation},
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
