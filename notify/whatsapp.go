package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppConfig carries messaging provider credentials.
type WhatsAppConfig struct {
	BaseURL      string
	Token        string
	FromNumberID string
}

// WhatsAppSender delivers plain-text messages through a Graph-style
// messaging API.
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsAppSender(cfg WhatsAppConfig, client *http.Client) *WhatsAppSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WhatsAppSender{cfg: cfg, client: client}
}

// Configured reports whether the provider credentials are present.
func (s *WhatsAppSender) Configured() bool {
	return s.cfg.Token != "" && s.cfg.FromNumberID != ""
}

// Send submits one text message to the recipient's number.
func (s *WhatsAppSender) Send(ctx context.Context, to, body string) error {
	if !s.Configured() {
		return fmt.Errorf("notify: whatsapp not configured")
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.FromNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("notify: build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notify: whatsapp rejected message: status %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
