// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery in Pocket Coach.
package twiliowhatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// Sender abstracts outbound WhatsApp delivery via Twilio (real client or mock).
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendTemplate(ctx context.Context, to string, body string, template models.TemplateHint, buttons []models.Button) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID  string
	AuthToken   string
	FromWhats   string
	ContentSIDs map[models.TemplateHint]string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender number in "whatsapp:+1234567890" format.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithContentSID maps a template hint to a Twilio content template SID (HX...).
func WithContentSID(template models.TemplateHint, sid string) Option {
	return func(o *Opts) {
		if o.ContentSIDs == nil {
			o.ContentSIDs = make(map[models.TemplateHint]string)
		}
		o.ContentSIDs[template] = sid
	}
}

// contentSIDEnvVars maps template hints to the environment variables that
// carry their Twilio content template SIDs.
var contentSIDEnvVars = map[models.TemplateHint]string{
	models.TemplateGreeting: "TWILIO_CONTENT_SID_GREETING",
	models.TemplatePlanView: "TWILIO_CONTENT_SID_AREA_VIEW",
	models.TemplateHelp:     "TWILIO_CONTENT_SID_HELP",
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	client      *twilio.RestClient
	fromWhats   string // WhatsApp number in "whatsapp:+1234567890" format
	contentSIDs map[models.TemplateHint]string
}

// NewClient creates a Twilio WhatsApp client, falling back to environment
// variables for any option not provided explicitly.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ContentSIDs == nil {
		cfg.ContentSIDs = make(map[models.TemplateHint]string)
	}
	for hint, envVar := range contentSIDEnvVars {
		if cfg.ContentSIDs[hint] == "" {
			cfg.ContentSIDs[hint] = os.Getenv(envVar)
		}
	}

	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "",
		"content_templates", len(cfg.ContentSIDs))

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:      client,
		fromWhats:   cfg.FromWhats,
		contentSIDs: cfg.ContentSIDs,
	}, nil
}

// SendMessage sends a plain-text WhatsApp message using the Twilio API.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("Twilio message sent", "to", to)
	return nil
}

// SendTemplate sends a message through a Twilio content template so WhatsApp
// renders quick-reply buttons. When no content SID is configured for the
// template, or the template send fails, it falls back to plain text with the
// button labels appended as reply hints.
func (c *Client) SendTemplate(ctx context.Context, to string, body string, template models.TemplateHint, buttons []models.Button) error {
	sid := c.contentSIDs[template]
	if sid != "" {
		if err := c.sendWithContentSID(to, body, sid); err == nil {
			return nil
		}
		slog.Warn("Twilio content template send failed, falling back to plain text", "to", to, "template", template)
	}
	return c.SendMessage(ctx, to, AppendButtonHints(body, buttons))
}

func (c *Client) sendWithContentSID(to, body, sid string) error {
	// Content variables are a JSON object keyed by template placeholder
	// number, so {"1": body} fills {{1}}.
	vars, err := json.Marshal(map[string]string{"1": body})
	if err != nil {
		return fmt.Errorf("failed to encode content variables: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + to)
	params.SetFrom(c.fromWhats)
	params.SetContentSid(sid)
	params.SetContentVariables(string(vars))

	_, err = c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio content template send failed", "to", to, "content_sid", sid, "error", err)
		return fmt.Errorf("failed to send template message to %s: %w", to, err)
	}

	slog.Debug("Twilio content template sent", "to", to, "content_sid", sid)
	return nil
}

// AppendButtonHints renders buttons as text reply hints for transports that
// cannot show real quick-reply buttons.
func AppendButtonHints(body string, buttons []models.Button) string {
	if len(buttons) == 0 {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n📱 *Reply with:*")
	for _, btn := range buttons {
		fmt.Fprintf(&b, "\n• \"%s\" - %s", btn.Action, btn.Label)
	}
	return b.String()
}

// MockClient records sent messages for tests.
type MockClient struct {
	SentMessages     []SentMessage
	TemplateMessages []TemplateMessage
	Err              error
}

// SentMessage records a plain-text send.
type SentMessage struct {
	To   string
	Body string
}

// TemplateMessage records a template send with its buttons.
type TemplateMessage struct {
	To       string
	Body     string
	Template models.TemplateHint
	Buttons  []models.Button
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendTemplate(ctx context.Context, to string, body string, template models.TemplateHint, buttons []models.Button) error {
	if m.Err != nil {
		return m.Err
	}
	m.TemplateMessages = append(m.TemplateMessages, TemplateMessage{To: to, Body: body, Template: template, Buttons: buttons})
	return nil
}
