package webhooks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

// chatPayload mirrors the WhatsApp Cloud API webhook envelope, trimmed to
// the fields the engine reads.
type chatPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					Timestamp string `json:"timestamp"`
				} `json:"statuses"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
					Context *struct {
						ID string `json:"id"`
					} `json:"context"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseChat normalizes a chat webhook body. Replies are correlated through
// the quoted message (context.id) when present, otherwise through the
// sender's phone number.
func ParseChat(body []byte) ([]InboundEvent, error) {
	var payload chatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode chat webhook: %w", err)
	}

	var events []InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				kind := chatStatusKind(st.Status)
				if kind == "" {
					continue
				}
				events = append(events, InboundEvent{
					Channel:    orders.ChannelChat,
					MessageID:  st.ID,
					Kind:       kind,
					OccurredAt: unixTimestamp(st.Timestamp),
				})
			}
			for _, msg := range change.Value.Messages {
				ev := InboundEvent{
					Channel:    orders.ChannelChat,
					Kind:       KindReplied,
					ReplyText:  msg.Text.Body,
					OccurredAt: unixTimestamp(msg.Timestamp),
				}
				if msg.Context != nil && msg.Context.ID != "" {
					ev.MessageID = msg.Context.ID
				} else {
					ev.Phone = "+" + msg.From
				}
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

// VerifyChat answers the subscription handshake: echo the challenge when
// the verify token matches.
func VerifyChat(mode, token, challenge, expectedToken string) (string, bool) {
	if mode == "subscribe" && expectedToken != "" && token == expectedToken {
		return challenge, true
	}
	return "", false
}

func chatStatusKind(status string) string {
	switch status {
	case "delivered":
		return KindDelivered
	case "read":
		return KindRead
	case "failed":
		return KindBounced
	default:
		// "sent" restates what dispatch already recorded
		return ""
	}
}

func unixTimestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
