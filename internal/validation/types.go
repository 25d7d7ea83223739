package validation

// CustomerPayload is the contact block of an incoming order.
type CustomerPayload struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

// CreateOrderRequest is the payload for POST /v1/orders. Platform payload
// translation happens upstream; this is already the internal shape.
type CreateOrderRequest struct {
	MerchantID      string            `json:"merchantId" validate:"required"`
	Platform        string            `json:"platform,omitempty"`
	PlatformOrderID string            `json:"platformOrderId,omitempty"`
	Email           string            `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string            `json:"phone,omitempty" validate:"omitempty,e164"`
	Customer        CustomerPayload   `json:"customer" validate:"required"`
	Amount          float64           `json:"amount" validate:"required,gt=0"`
	Currency        string            `json:"currency" validate:"required,len=3"`
	PaymentMode     string            `json:"paymentMode" validate:"required,oneof=cod prepaid"`
	RiskScore       *int              `json:"riskScore,omitempty" validate:"omitempty,min=0,max=100"`
	Variables       map[string]string `json:"variables,omitempty"`
}

// SendConfirmationRequest is the payload for POST /v1/orders/:id/send-confirmation.
// Empty channels means "every channel the merchant has configured".
type SendConfirmationRequest struct {
	Channels   []string          `json:"channels,omitempty" validate:"omitempty,min=1,dive,oneof=chat sms email"`
	TemplateID string            `json:"templateId,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// PolicyRulePayload is one rule of a merchant policy.
type PolicyRulePayload struct {
	Key      string      `json:"key" validate:"required"`
	Operator string      `json:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains in"`
	Value    interface{} `json:"value" validate:"required"`
	Effect   string      `json:"effect" validate:"required,oneof=confirm skip cancel"`
}

// SavePolicyRequest replaces a merchant's rule set wholesale.
type SavePolicyRequest struct {
	Rules []PolicyRulePayload `json:"rules" validate:"required,dive"`
}

// TestPolicyRequest previews a policy against an ad-hoc order snapshot.
type TestPolicyRequest struct {
	Order map[string]interface{} `json:"order" validate:"required"`
}
