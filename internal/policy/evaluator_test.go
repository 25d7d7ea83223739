package policy

import (
	"testing"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

func intptr(n int) *int { return &n }

func riskyOrder() *orders.Order {
	return &orders.Order{
		OrderID:     "o-1",
		Amount:      1500,
		Currency:    "INR",
		PaymentMode: orders.PaymentCOD,
		RiskScore:   intptr(80),
		Customer:    orders.Customer{Name: "Jo", City: "Mumbai"},
		Status:      orders.StatusPending,
	}
}

func TestEvaluatePermissiveDefault(t *testing.T) {
	o := riskyOrder()

	if !Evaluate(o, nil) {
		t.Fatalf("nil policy must confirm")
	}
	if !Evaluate(o, &Policy{}) {
		t.Fatalf("empty rule set must confirm")
	}
	p := &Policy{Rules: []Rule{
		{Key: "customer.city", Operator: OpEquals, Value: "Delhi", Effect: EffectSkip},
		{Key: "riskScore", Operator: OpGreaterThan, Value: float64(95), Effect: EffectCancel},
	}}
	if !Evaluate(o, p) {
		t.Fatalf("no matching rule must confirm")
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	o := riskyOrder()

	p := &Policy{Rules: []Rule{
		{Key: "riskScore", Operator: OpGreaterThan, Value: float64(50), Effect: EffectSkip},
		// also matches, opposite effect — must not influence the result
		{Key: "paymentMode", Operator: OpEquals, Value: "cod", Effect: EffectConfirm},
	}}
	if Evaluate(o, p) {
		t.Fatalf("first matching rule (skip) must win")
	}

	reversed := &Policy{Rules: []Rule{
		{Key: "paymentMode", Operator: OpEquals, Value: "cod", Effect: EffectConfirm},
		{Key: "riskScore", Operator: OpGreaterThan, Value: float64(50), Effect: EffectSkip},
	}}
	if !Evaluate(o, reversed) {
		t.Fatalf("first matching rule (confirm) must win")
	}
}

func TestEvaluateOperators(t *testing.T) {
	o := riskyOrder()

	cases := []struct {
		name string
		rule Rule
		want bool // want = rule matched (effect skip => Evaluate returns false)
	}{
		{"equals string", Rule{Key: "currency", Operator: OpEquals, Value: "INR", Effect: EffectSkip}, true},
		{"equals number", Rule{Key: "amount", Operator: OpEquals, Value: float64(1500), Effect: EffectSkip}, true},
		{"not_equals", Rule{Key: "paymentMode", Operator: OpNotEquals, Value: "prepaid", Effect: EffectSkip}, true},
		{"greater_than", Rule{Key: "riskScore", Operator: OpGreaterThan, Value: float64(70), Effect: EffectSkip}, true},
		{"greater_than string value", Rule{Key: "riskScore", Operator: OpGreaterThan, Value: "70", Effect: EffectSkip}, true},
		{"less_than no match", Rule{Key: "riskScore", Operator: OpLessThan, Value: float64(70), Effect: EffectSkip}, false},
		{"contains", Rule{Key: "customer.city", Operator: OpContains, Value: "umba", Effect: EffectSkip}, true},
		{"in", Rule{Key: "customer.city", Operator: OpIn, Value: []interface{}{"Delhi", "Mumbai"}, Effect: EffectSkip}, true},
		{"in no match", Rule{Key: "customer.city", Operator: OpIn, Value: []interface{}{"Delhi", "Pune"}, Effect: EffectSkip}, false},
		{"unknown operator", Rule{Key: "currency", Operator: "regex", Value: ".*", Effect: EffectSkip}, false},
	}

	for _, c := range cases {
		p := &Policy{Rules: []Rule{c.rule}}
		got := !Evaluate(o, p) // matched skip rule => false
		if got != c.want {
			t.Errorf("%s: matched=%v, want %v", c.name, got, c.want)
		}
	}
}

func TestEvaluateMissingPath(t *testing.T) {
	o := riskyOrder()
	o.RiskScore = nil

	p := &Policy{Rules: []Rule{
		{Key: "riskScore", Operator: OpGreaterThan, Value: float64(10), Effect: EffectCancel},
		{Key: "no.such.path", Operator: OpNotEquals, Value: "x", Effect: EffectCancel},
		// later rules must still be evaluated
		{Key: "paymentMode", Operator: OpEquals, Value: "cod", Effect: EffectSkip},
	}}
	if Evaluate(o, p) {
		t.Fatalf("later rule must still match after unresolvable paths")
	}
}

func TestTestAccumulatesAllMatches(t *testing.T) {
	p := &Policy{Rules: []Rule{
		{Key: "riskScore", Operator: OpGreaterThan, Value: float64(50), Effect: EffectCancel},
		{Key: "paymentMode", Operator: OpEquals, Value: "cod", Effect: EffectConfirm},
		{Key: "amount", Operator: OpLessThan, Value: float64(100), Effect: EffectSkip},
	}}
	snapshot := map[string]interface{}{
		"riskScore":   float64(80),
		"paymentMode": "cod",
		"amount":      float64(1500),
	}

	effect, matched := Test(snapshot, p)
	if effect != EffectCancel {
		t.Fatalf("first match determines effect, got %s", effect)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matched rules, got %d", len(matched))
	}
}

func TestTestNoPolicy(t *testing.T) {
	effect, matched := Test(map[string]interface{}{"amount": float64(1)}, nil)
	if effect != EffectConfirm || len(matched) != 0 {
		t.Fatalf("nil policy: effect=%s matched=%d", effect, len(matched))
	}
}
