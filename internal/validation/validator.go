package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	return v
}

// createOrderStructValidation requires at least one reachable contact:
// chat and sms need a phone, email needs an address.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if req.Phone == "" && req.Email == "" {
		sl.ReportError(req.Phone, "phone", "Phone", "contact_required", "phone or email must be set")
	}
}
