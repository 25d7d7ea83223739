package webhooks

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

// ParseTwilio normalizes Twilio's form-encoded callbacks. Status callbacks
// carry MessageStatus + MessageSid; inbound SMS carries Body + From and no
// reference to the outbound message.
func ParseTwilio(form url.Values) []InboundEvent {
	status := form.Get("MessageStatus")
	if status != "" {
		kind := twilioStatusKind(status)
		if kind == "" {
			return nil
		}
		sid := form.Get("MessageSid")
		if sid == "" {
			sid = form.Get("SmsSid")
		}
		return []InboundEvent{{
			Channel:   orders.ChannelSMS,
			MessageID: sid,
			Kind:      kind,
		}}
	}

	body := form.Get("Body")
	if body == "" {
		return nil
	}
	return []InboundEvent{{
		Channel:   orders.ChannelSMS,
		Phone:     form.Get("From"),
		Kind:      KindReplied,
		ReplyText: body,
	}}
}

func twilioStatusKind(status string) string {
	switch status {
	case "delivered":
		return KindDelivered
	case "read":
		return KindRead
	case "failed", "undelivered":
		return KindBounced
	default:
		return ""
	}
}

// msg91Payload is the delivery report shape MSG91 posts per message.
type msg91Payload struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Mobile    string `json:"mobile,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ParseMSG91 normalizes an MSG91 delivery report. Inbound replies arrive
// on a separate long-code hook with a message body and no request id.
func ParseMSG91(body []byte) ([]InboundEvent, error) {
	var payload msg91Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode msg91 webhook: %w", err)
	}

	if payload.RequestID != "" {
		kind := msg91StatusKind(payload.Status)
		if kind == "" {
			return nil, nil
		}
		return []InboundEvent{{
			Channel:   orders.ChannelSMS,
			MessageID: payload.RequestID,
			Kind:      kind,
		}}, nil
	}

	if payload.Message != "" && payload.Mobile != "" {
		phone := payload.Mobile
		if !strings.HasPrefix(phone, "+") {
			phone = "+" + phone
		}
		return []InboundEvent{{
			Channel:   orders.ChannelSMS,
			Phone:     phone,
			Kind:      KindReplied,
			ReplyText: payload.Message,
		}}, nil
	}
	return nil, nil
}

func msg91StatusKind(status string) string {
	switch strings.ToUpper(status) {
	case "DELIVERED":
		return KindDelivered
	case "FAILED", "REJECTED", "NDNC":
		return KindBounced
	default:
		return ""
	}
}
