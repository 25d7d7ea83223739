package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

// sendGridEvent is one element of SendGrid's event webhook batch.
type sendGridEvent struct {
	SGMessageID string `json:"sg_message_id"`
	Event       string `json:"event"`
	Timestamp   int64  `json:"timestamp"`
}

// ParseSendGrid normalizes a SendGrid event batch. The sg_message_id
// carries a routing suffix after the first dot that the send API never
// returned, so it is stripped before correlation.
func ParseSendGrid(body []byte) ([]InboundEvent, error) {
	var batch []sendGridEvent
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("decode sendgrid webhook: %w", err)
	}

	var events []InboundEvent
	for _, ev := range batch {
		kind := sendGridEventKind(ev.Event)
		if kind == "" {
			continue
		}
		id := ev.SGMessageID
		if dot := strings.Index(id, "."); dot > 0 {
			id = id[:dot]
		}
		out := InboundEvent{
			Channel:   orders.ChannelEmail,
			MessageID: id,
			Kind:      kind,
		}
		if ev.Timestamp > 0 {
			out.OccurredAt = time.Unix(ev.Timestamp, 0).UTC()
		}
		events = append(events, out)
	}
	return events, nil
}

func sendGridEventKind(event string) string {
	switch event {
	case "delivered":
		return KindDelivered
	case "open":
		return KindRead
	case "bounce", "dropped":
		return KindBounced
	default:
		return ""
	}
}
