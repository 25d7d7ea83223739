package confirmation

import (
	"strconv"
	"strings"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

const defaultBody = "Hi {{customerName}}, your order #{{orderId}} for {{currency}} {{amount}} is awaiting confirmation. Reply YES to confirm or NO to cancel."

// Render substitutes {{name}} tokens with values from vars. Unknown tokens
// render as empty strings, matching the behavior templates were authored
// against.
func Render(template string, vars map[string]string) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		name := rest[start+2 : start+end]
		b.WriteString(vars[strings.TrimSpace(name)])
		rest = rest[start+end+2:]
	}
}

// mergeVariables computes order-derived defaults and overlays the caller's
// explicit variables on top.
func mergeVariables(o *orders.Order, explicit map[string]string) map[string]string {
	orderRef := o.PlatformOrderID
	if orderRef == "" {
		orderRef = o.OrderID
	}
	vars := map[string]string{
		"orderId":         orderRef,
		"amount":          strconv.FormatFloat(o.Amount, 'f', -1, 64),
		"currency":        o.Currency,
		"customerName":    o.Customer.Name,
		"customerAddress": o.Customer.Address,
		"customerPincode": o.Customer.Pincode,
	}
	for k, v := range explicit {
		vars[k] = v
	}
	return vars
}
