package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
)

// MSG91Provider sends SMS through the MSG91 flow API.
type MSG91Provider struct {
	Client  *http.Client
	BaseURL string

	cfg merchants.MSG91Config
}

func NewMSG91Provider(cfg merchants.MSG91Config, client *http.Client) (*MSG91Provider, error) {
	if cfg.AuthKey == "" || cfg.Sender == "" {
		return nil, fmt.Errorf("msg91: %w", ErrInvalidConfig)
	}
	return &MSG91Provider{
		Client:  client,
		BaseURL: "https://api.msg91.com/api/v5/flow/",
		cfg:     cfg,
	}, nil
}

func (p *MSG91Provider) Name() string { return "msg91" }

func (p *MSG91Provider) Send(ctx context.Context, params SendParams) SendResult {
	body := map[string]string{
		"template_id": params.TemplateID,
		"sender":      p.cfg.Sender,
		"short_url":   "0",
		"mobiles":     digitsOnly(params.To),
		"message":     params.Message,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return failure(p.Name(), err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	req.Header.Set("authkey", p.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	defer resp.Body.Close()

	var out struct {
		RequestID string `json:"request_id"`
		Type      string `json:"type"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failure(p.Name(), fmt.Sprintf("decode response: %v", err))
	}
	if resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return failure(p.Name(), msg)
	}

	id := out.RequestID
	if id == "" {
		id = out.Type
	}
	return SendResult{Success: true, MessageID: id, Provider: p.Name()}
}

// GetStatus: MSG91 pushes delivery reports over webhooks.
func (p *MSG91Provider) GetStatus(ctx context.Context, messageID string) (MessageStatus, error) {
	return MessageStatus{MessageID: messageID, Status: orders.DeliverySent}, nil
}

// TwilioProvider sends SMS through the Twilio messages API.
type TwilioProvider struct {
	Client  *http.Client
	BaseURL string

	cfg merchants.TwilioConfig
}

func NewTwilioProvider(cfg merchants.TwilioConfig, client *http.Client) (*TwilioProvider, error) {
	if cfg.SID == "" || cfg.Token == "" || cfg.From == "" {
		return nil, fmt.Errorf("twilio: %w", ErrInvalidConfig)
	}
	return &TwilioProvider{
		Client:  client,
		BaseURL: "https://api.twilio.com/2010-04-01",
		cfg:     cfg,
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Send(ctx context.Context, params SendParams) SendResult {
	form := url.Values{}
	form.Set("From", p.cfg.From)
	form.Set("To", phoneOnly(params.To))
	form.Set("Body", params.Message)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.BaseURL, p.cfg.SID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	req.SetBasicAuth(p.cfg.SID, p.cfg.Token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	defer resp.Body.Close()

	var out struct {
		SID     string `json:"sid"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failure(p.Name(), fmt.Sprintf("decode response: %v", err))
	}
	if resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return failure(p.Name(), msg)
	}

	return SendResult{Success: true, MessageID: out.SID, Provider: p.Name()}
}

func (p *TwilioProvider) GetStatus(ctx context.Context, messageID string) (MessageStatus, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages/%s.json", p.BaseURL, p.cfg.SID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return MessageStatus{}, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(p.cfg.SID, p.cfg.Token)

	resp, err := p.Client.Do(req)
	if err != nil {
		return MessageStatus{MessageID: messageID, Status: orders.DeliveryFailed, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	var out struct {
		Status      string `json:"status"`
		DateUpdated string `json:"date_updated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MessageStatus{}, fmt.Errorf("decode response: %w", err)
	}

	status := orders.DeliverySent
	switch out.Status {
	case "delivered":
		status = orders.DeliveryDelivered
	case "read":
		status = orders.DeliveryRead
	case "failed", "undelivered":
		status = orders.DeliveryFailed
	}

	ms := MessageStatus{MessageID: messageID, Status: status}
	if t, err := time.Parse(time.RFC1123Z, out.DateUpdated); err == nil {
		ms.Timestamp = &t
	}
	return ms, nil
}

// phoneOnly keeps digits and a leading plus.
func phoneOnly(s string) string {
	var b strings.Builder
	for i, r := range s {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
