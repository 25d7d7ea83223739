package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
)

// ChatProvider sends chat confirmations through a WhatsApp-Cloud-style
// graph API.
type ChatProvider struct {
	Client  *http.Client
	BaseURL string

	cfg merchants.ChatConfig
}

func NewChatProvider(cfg merchants.ChatConfig, client *http.Client) (*ChatProvider, error) {
	if cfg.BusinessID == "" || cfg.PhoneNumberID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("chat: %w", ErrInvalidConfig)
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v18.0"
	}
	return &ChatProvider{
		Client:  client,
		BaseURL: "https://graph.facebook.com/" + version,
		cfg:     cfg,
	}, nil
}

func (p *ChatProvider) Name() string { return "chat" }

func (p *ChatProvider) Send(ctx context.Context, params SendParams) SendResult {
	var body map[string]interface{}
	to := digitsOnly(params.To)

	if params.TemplateID != "" {
		components := templateComponents(params.Variables)
		body = map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "template",
			"template": map[string]interface{}{
				"name":       params.TemplateID,
				"language":   map[string]string{"code": "en"},
				"components": components,
			},
		}
	} else {
		body = map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "text",
			"text":              map[string]string{"body": params.Message},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(p.Name(), err.Error())
	}

	url := fmt.Sprintf("%s/%s/messages", p.BaseURL, p.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	defer resp.Body.Close()

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failure(p.Name(), fmt.Sprintf("decode response: %v", err))
	}
	if resp.StatusCode >= 300 || len(out.Messages) == 0 {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if out.Error != nil {
			msg = out.Error.Message
		}
		return failure(p.Name(), msg)
	}

	return SendResult{Success: true, MessageID: out.Messages[0].ID, Provider: p.Name()}
}

// GetStatus: the graph API reports status only via webhooks, so the best
// local answer is "sent".
func (p *ChatProvider) GetStatus(ctx context.Context, messageID string) (MessageStatus, error) {
	return MessageStatus{MessageID: messageID, Status: orders.DeliverySent}, nil
}

func templateComponents(vars map[string]string) []map[string]interface{} {
	if len(vars) == 0 {
		return nil
	}
	params := make([]map[string]string, 0, len(vars))
	for _, v := range vars {
		params = append(params, map[string]string{"type": "text", "text": v})
	}
	return []map[string]interface{}{
		{"type": "body", "parameters": params},
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
