package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
)

const defaultEmailSubject = "Please confirm your order"

// SendGridProvider sends email through the SendGrid v3 mail API.
type SendGridProvider struct {
	Client  *http.Client
	BaseURL string

	cfg merchants.SendGridConfig
}

func NewSendGridProvider(cfg merchants.SendGridConfig, client *http.Client) (*SendGridProvider, error) {
	if cfg.APIKey == "" || cfg.From == "" {
		return nil, fmt.Errorf("sendgrid: %w", ErrInvalidConfig)
	}
	return &SendGridProvider{
		Client:  client,
		BaseURL: "https://api.sendgrid.com/v3",
		cfg:     cfg,
	}, nil
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

func (p *SendGridProvider) Send(ctx context.Context, params SendParams) SendResult {
	subject := params.Metadata["subject"]
	if subject == "" {
		subject = defaultEmailSubject
	}

	personalization := map[string]interface{}{
		"to": []map[string]string{{"email": params.To}},
	}
	if len(params.Variables) > 0 {
		personalization["dynamic_template_data"] = params.Variables
	}
	body := map[string]interface{}{
		"personalizations": []map[string]interface{}{personalization},
		"from":             map[string]string{"email": p.cfg.From},
		"subject":          subject,
	}
	if params.TemplateID != "" {
		body["template_id"] = params.TemplateID
	} else {
		body["content"] = []map[string]string{{"type": "text/html", "value": params.Message}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/mail/send", bytes.NewReader(payload))
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var out struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if len(out.Errors) > 0 {
			msg = out.Errors[0].Message
		}
		return failure(p.Name(), msg)
	}

	// SendGrid returns the message id in a header, not the body.
	id := resp.Header.Get("X-Message-Id")
	if id == "" {
		id = "sendgrid-" + strconv.FormatInt(nowUnixNano(), 10)
	}
	return SendResult{Success: true, MessageID: id, Provider: p.Name()}
}

func nowUnixNano() int64 { return time.Now().UnixNano() }

// GetStatus: SendGrid reports delivery through event webhooks.
func (p *SendGridProvider) GetStatus(ctx context.Context, messageID string) (MessageStatus, error) {
	return MessageStatus{MessageID: messageID, Status: orders.DeliverySent}, nil
}

// SESProvider sends email through Amazon SES using the ambient AWS
// credentials.
type SESProvider struct {
	client awsx.SESAPI
	cfg    merchants.SESConfig
}

func NewSESProvider(cfg merchants.SESConfig, client awsx.SESAPI) (*SESProvider, error) {
	if cfg.From == "" || client == nil {
		return nil, fmt.Errorf("ses: %w", ErrInvalidConfig)
	}
	return &SESProvider{client: client, cfg: cfg}, nil
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) Send(ctx context.Context, params SendParams) SendResult {
	subject := params.Metadata["subject"]
	if subject == "" {
		subject = defaultEmailSubject
	}

	out, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: sdkaws.String(p.cfg.From),
		Destination: &sestypes.Destination{
			ToAddresses: []string{params.To},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: sdkaws.String(subject)},
			Body: &sestypes.Body{
				Html: &sestypes.Content{Data: sdkaws.String(params.Message)},
			},
		},
	})
	if err != nil {
		return failure(p.Name(), err.Error())
	}
	return SendResult{Success: true, MessageID: sdkaws.ToString(out.MessageId), Provider: p.Name()}
}

// GetStatus: SES reports bounces and deliveries through SNS notifications.
func (p *SESProvider) GetStatus(ctx context.Context, messageID string) (MessageStatus, error) {
	return MessageStatus{MessageID: messageID, Status: orders.DeliverySent}, nil
}
