package policy

import "time"

// Effect of a matched rule.
type Effect string

const (
	EffectConfirm Effect = "confirm"
	EffectSkip    Effect = "skip"
	EffectCancel  Effect = "cancel"
)

// Operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpIn          = "in"
)

// Rule is one condition -> effect mapping. Key is a dotted path into order
// attributes ("riskScore", "customer.city", ...). Value is whatever the
// merchant configured; coercion happens per operator at evaluation time.
type Rule struct {
	Key      string      `dynamodbav:"key" json:"key"`
	Operator string      `dynamodbav:"operator" json:"operator"`
	Value    interface{} `dynamodbav:"value" json:"value"`
	Effect   Effect      `dynamodbav:"effect" json:"effect"`
}

// Policy is a merchant's ordered rule set. Rule order is significant: the
// first matching rule wins. Saved wholesale, never patched.
type Policy struct {
	MerchantID string    `dynamodbav:"merchant_id" json:"merchantId"` // PK
	Rules      []Rule    `dynamodbav:"rules" json:"rules"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}
