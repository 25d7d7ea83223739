package orders

import "time"

// Status is the order lifecycle state. Transitions between statuses are
// governed by the table in machine.go.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusUnconfirmed Status = "unconfirmed"
	StatusCanceled    Status = "canceled"
	StatusFulfilled   Status = "fulfilled"
)

// Channel is a communication medium a confirmation can be sent over.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Payment modes.
const (
	PaymentCOD     = "cod"
	PaymentPrepaid = "prepaid"
)

// Delivery status of a single confirmation attempt.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryReplied   DeliveryStatus = "replied"
	DeliveryFailed    DeliveryStatus = "failed"
)

// AutoAction types appended by the automation engine.
const (
	ActionAutoConfirm = "auto_confirm"
	ActionAutoCancel  = "auto_cancel"
	ActionReConfirm   = "re_confirm"
)

// Customer is the contact block captured at ingestion.
type Customer struct {
	Name    string `dynamodbav:"name" json:"name"`
	Address string `dynamodbav:"address,omitempty" json:"address,omitempty"`
	City    string `dynamodbav:"city,omitempty" json:"city,omitempty"`
	Pincode string `dynamodbav:"pincode,omitempty" json:"pincode,omitempty"`
}

// Confirmation is one attempt to reach the customer on one channel.
// Records are append-only; webhook ingestion and the orchestrator mutate
// their delivery fields but never remove them.
type Confirmation struct {
	Channel     Channel        `dynamodbav:"channel" json:"channel"`
	Status      DeliveryStatus `dynamodbav:"status" json:"status"`
	Reply       string         `dynamodbav:"reply,omitempty" json:"reply,omitempty"`
	MessageID   string         `dynamodbav:"message_id,omitempty" json:"messageId,omitempty"`
	Error       string         `dynamodbav:"error,omitempty" json:"error,omitempty"`
	SentAt      *time.Time     `dynamodbav:"sent_at,omitempty" json:"sentAt,omitempty"`
	DeliveredAt *time.Time     `dynamodbav:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	ReadAt      *time.Time     `dynamodbav:"read_at,omitempty" json:"readAt,omitempty"`
	RepliedAt   *time.Time     `dynamodbav:"replied_at,omitempty" json:"repliedAt,omitempty"`
}

// AutoAction is an audit record of an automation decision.
type AutoAction struct {
	Type string    `dynamodbav:"type" json:"type"`
	At   time.Time `dynamodbav:"at" json:"at"`
}

// Order is the item stored in the orders table.
type Order struct {
	OrderID         string         `dynamodbav:"order_id" json:"orderId"` // PK
	MerchantID      string         `dynamodbav:"merchant_id" json:"merchantId"`
	Platform        string         `dynamodbav:"platform,omitempty" json:"platform,omitempty"`
	PlatformOrderID string         `dynamodbav:"platform_order_id,omitempty" json:"platformOrderId,omitempty"`
	Email           string         `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone           string         `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Customer        Customer       `dynamodbav:"customer" json:"customer"`
	Amount          float64        `dynamodbav:"amount" json:"amount"`
	Currency        string         `dynamodbav:"currency" json:"currency"`
	PaymentMode     string         `dynamodbav:"payment_mode" json:"paymentMode"`
	Status          Status         `dynamodbav:"status" json:"status"`
	RiskScore       *int           `dynamodbav:"risk_score,omitempty" json:"riskScore,omitempty"`
	Confirmations   []Confirmation `dynamodbav:"confirmations,omitempty" json:"confirmations,omitempty"`
	AutoActions     []AutoAction   `dynamodbav:"auto_actions,omitempty" json:"autoActions,omitempty"`
	CreatedAt       time.Time      `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `dynamodbav:"updated_at" json:"updatedAt"`
}

// Recipient returns the contact address for a channel.
func (o *Order) Recipient(ch Channel) string {
	switch ch {
	case ChannelChat, ChannelSMS:
		return o.Phone
	default:
		return o.Email
	}
}
