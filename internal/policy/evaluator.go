package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

// Evaluate runs the merchant's rules against an order and answers "send a
// confirmation?". The first matching rule is authoritative: confirm -> true,
// skip/cancel -> false. A nil policy, an empty rule set, or no match at all
// default to confirm — the permissive default is deliberate.
func Evaluate(o *orders.Order, p *Policy) bool {
	if p == nil || len(p.Rules) == 0 {
		return true
	}
	attrs := orderAttributes(o)
	for _, rule := range p.Rules {
		if matches(attrs, rule) {
			return rule.Effect == EffectConfirm
		}
	}
	return true
}

// Test evaluates a policy against an ad-hoc order snapshot for preview. The
// effect comes from the first matching rule, but every matching rule is
// accumulated for diagnostic display.
func Test(snapshot map[string]interface{}, p *Policy) (Effect, []Rule) {
	effect := EffectConfirm
	var matched []Rule
	if p == nil {
		return effect, matched
	}
	for _, rule := range p.Rules {
		if matches(snapshot, rule) {
			if len(matched) == 0 {
				effect = rule.Effect
			}
			matched = append(matched, rule)
		}
	}
	return effect, matched
}

// matches applies one rule. An unresolvable key path yields nil, which fails
// to match under every operator — evaluation of later rules continues.
func matches(attrs map[string]interface{}, rule Rule) bool {
	value := resolvePath(attrs, rule.Key)
	if value == nil {
		return false
	}

	switch rule.Operator {
	case OpEquals:
		return looseEqual(value, rule.Value)
	case OpNotEquals:
		return !looseEqual(value, rule.Value)
	case OpGreaterThan:
		a, aok := toFloat(value)
		b, bok := toFloat(rule.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(value)
		b, bok := toFloat(rule.Value)
		return aok && bok && a < b
	case OpContains:
		return strings.Contains(toString(value), toString(rule.Value))
	case OpIn:
		set, ok := rule.Value.([]interface{})
		if !ok {
			return false
		}
		for _, candidate := range set {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// resolvePath walks a dotted key path through nested maps. Missing segments
// return nil, never an error.
func resolvePath(attrs map[string]interface{}, key string) interface{} {
	var value interface{} = attrs
	for _, segment := range strings.Split(key, ".") {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return value
}

// orderAttributes projects the typed order into the attribute tree rule keys
// address.
func orderAttributes(o *orders.Order) map[string]interface{} {
	attrs := map[string]interface{}{
		"orderId":         o.OrderID,
		"platform":        o.Platform,
		"platformOrderId": o.PlatformOrderID,
		"email":           o.Email,
		"phone":           o.Phone,
		"amount":          o.Amount,
		"currency":        o.Currency,
		"paymentMode":     o.PaymentMode,
		"status":          string(o.Status),
		"customer": map[string]interface{}{
			"name":    o.Customer.Name,
			"address": o.Customer.Address,
			"city":    o.Customer.City,
			"pincode": o.Customer.Pincode,
		},
	}
	if o.RiskScore != nil {
		attrs["riskScore"] = float64(*o.RiskScore)
	}
	return attrs
}

// looseEqual compares numerically when both sides coerce to numbers,
// otherwise by string form. JSON-decoded rule values arrive as float64 while
// order attributes may be ints, so strict equality would be a footgun.
func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
