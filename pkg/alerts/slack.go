package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// levelColors is the attachment sidebar color per level.
var levelColors = map[AlertLevel]string{
	AlertWarning:  "#ff9900",
	AlertCritical: "#ff0000",
	AlertExceeded: "#cc0000",
}

// SlackNotifier posts budget alerts to a Slack incoming webhook as a
// Block Kit message.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, channel: channel, client: newHTTPClient()}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(s.message(alert))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return postJSON(ctx, s.client, "slack", s.webhookURL, body, nil)
}

func (s *SlackNotifier) message(alert Alert) slackMessage {
	color, ok := levelColors[alert.Level]
	if !ok {
		color = "#36a64f"
	}

	fields := []slackText{
		mrkdwn(fmt.Sprintf("*Spend*\n$%.2f", alert.SpendUSD)),
		mrkdwn(fmt.Sprintf("*Limit*\n$%.2f", alert.LimitUSD)),
		mrkdwn(fmt.Sprintf("*Usage*\n%.1f%%", alert.UsagePct)),
		mrkdwn(fmt.Sprintf("*In flight*\n%d reservations", alert.Outstanding)),
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: alert.Title()}},
	}
	if alert.Message != "" {
		msg := mrkdwn(alert.Message)
		blocks = append(blocks, slackBlock{Type: "section", Text: &msg})
	}
	blocks = append(blocks,
		slackBlock{Type: "section", Fields: fields},
		slackBlock{Type: "context", Elements: []slackText{
			mrkdwn(fmt.Sprintf("warning threshold %.0f%% · llm-provider-gateway", alert.ThresholdPct)),
		}},
	)

	return slackMessage{
		Channel:     s.channel,
		Text:        alert.Title(),
		Attachments: []slackAttachment{{Color: color, Blocks: blocks}},
	}
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(text string) slackText {
	return slackText{Type: "mrkdwn", Text: text}
}
