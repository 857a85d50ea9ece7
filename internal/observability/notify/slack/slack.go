// Package slack posts admin events to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const (
	defaultUsername = "slopecast"
	defaultTimeout  = 5 * time.Second

	colorDanger  = "#d00000"
	colorNeutral = "#439fe0"
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Config describes one webhook destination.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	// Client overrides the HTTP client, mainly for tests.
	Client *resty.Client
}

// Client delivers admin events to a Slack webhook.
type Client struct {
	url      string
	channel  string
	username string
	http     *resty.Client
}

type payload struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Color  string  `json:"color"`
	Fields []field `json:"fields,omitempty"`
	Footer string  `json:"footer"`
	TS     int64   `json:"ts"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewClient validates cfg and builds a client. 5xx, 429 and transport errors are retried
// up to RetryLimit times.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		return nil, errors.New("slack webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultUsername
	}

	hc := cfg.Client
	if hc == nil {
		hc = resty.New()
	}
	hc.SetTimeout(timeout).
		SetRetryCount(max(cfg.RetryLimit, 0)).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(retryable)

	return &Client{
		url:      url,
		channel:  strings.TrimSpace(cfg.Channel),
		username: username,
		http:     hc,
	}, nil
}

func retryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code == 429 || code >= 500
}

// Send posts event to the webhook.
func (c *Client) Send(ctx context.Context, event model.AdminEvent) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(c.render(event)).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func (c *Client) render(event model.AdminEvent) payload {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	text := "*" + escaper.Replace(event.Type) + "*"
	if msg := strings.TrimSpace(event.Message); msg != "" {
		text += "\n" + escaper.Replace(msg)
	}

	return payload{
		Channel:  c.channel,
		Username: c.username,
		Text:     text,
		Attachments: []attachment{{
			Color:  eventColor(event.Type),
			Fields: metadataFields(event.Metadata),
			Footer: at.UTC().Format(time.RFC3339),
			TS:     at.Unix(),
		}},
	}
}

func eventColor(eventType string) string {
	switch eventType {
	case model.AdminEventJobFailed, model.AdminEventFetchFailed:
		return colorDanger
	default:
		return colorNeutral
	}
}

// metadataFields renders non-empty metadata values sorted by key.
func metadataFields(meta map[string]any) []field {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]field, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimSpace(fmt.Sprint(meta[k]))
		if v == "" || v == "<nil>" {
			continue
		}
		out = append(out, field{Title: k, Value: escaper.Replace(v), Short: len(v) <= 40})
	}
	return out
}
