package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackClient delivers chat notifications through a Slack-compatible
// incoming webhook.
type SlackClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackClient creates a new Slack notification client.
func NewSlackClient(webhookURL string) (*SlackClient, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}

	return &SlackClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// slackMessage represents a Slack webhook message.
type slackMessage struct {
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string          `json:"type"`
	Text   *slackTextBlock `json:"text,omitempty"`
	Fields []slackField    `json:"fields,omitempty"`
}

type slackTextBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackField struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendChatNotification delivers one message to the configured webhook.
func (c *SlackClient) SendChatNotification(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(c.buildMessage(msg))
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Limit response body to 1MB to protect against oversized responses.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// buildMessage builds the Slack payload from the notification message.
func (c *SlackClient) buildMessage(msg Message) slackMessage {
	blocks := make([]slackBlock, 0, 3)

	if msg.Title != "" {
		blocks = append(blocks, slackBlock{
			Type: "header",
			Text: &slackTextBlock{
				Type:  "plain_text",
				Text:  msg.Title,
				Emoji: true,
			},
		})
	}

	if msg.Body != "" {
		body := msg.Body
		if msg.URL != "" {
			body = fmt.Sprintf("%s\n<%s|View details>", body, msg.URL)
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackTextBlock{
				Type: "mrkdwn",
				Text: body,
			},
		})
	}

	if len(msg.Fields) > 0 {
		fields := make([]slackField, 0, len(msg.Fields))
		for key, value := range msg.Fields {
			fields = append(fields, slackField{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s:*\n%s", key, value),
			})
		}
		blocks = append(blocks, slackBlock{
			Type:   "section",
			Fields: fields,
		})
	}

	return slackMessage{
		Attachments: []slackAttachment{
			{
				Color:  SeverityColor(msg.Severity),
				Blocks: blocks,
			},
		},
	}
}
