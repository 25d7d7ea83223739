package merchants

import (
	"time"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

// Sub-provider names.
const (
	SMSProviderMSG91      = "msg91"
	SMSProviderTwilio     = "twilio"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
)

// Settings is the merchant's confirmation policy knobs. The engine treats it
// as an immutable snapshot per operation.
type Settings struct {
	ConfirmCODOnly        bool `dynamodbav:"confirm_cod_only" json:"confirmCODOnly"`
	ConfirmPrepaid        bool `dynamodbav:"confirm_prepaid" json:"confirmPrepaid"`
	ConfirmWindowHours    int  `dynamodbav:"confirm_window_hours" json:"confirmWindowHours"`
	AutoCancelUnconfirmed bool `dynamodbav:"auto_cancel_unconfirmed" json:"autoCancelUnconfirmed"`
	ReConfirmEnabled      bool `dynamodbav:"re_confirm_enabled" json:"reConfirmEnabled"`
	ReConfirmHours        int  `dynamodbav:"re_confirm_hours" json:"reConfirmHours"`
}

// ConfirmWindow returns the confirmation window, defaulting to 24h.
func (s Settings) ConfirmWindow() time.Duration {
	hours := s.ConfirmWindowHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// ReConfirmWindow returns the re-confirmation quiet period, defaulting to 12h.
func (s Settings) ReConfirmWindow() time.Duration {
	hours := s.ReConfirmHours
	if hours <= 0 {
		hours = 12
	}
	return time.Duration(hours) * time.Hour
}

// ChatConfig holds chat (WhatsApp Cloud API style) credentials.
type ChatConfig struct {
	BusinessID    string `dynamodbav:"business_id" json:"businessId"`
	PhoneNumberID string `dynamodbav:"phone_number_id" json:"phoneNumberId"`
	Token         string `dynamodbav:"token" json:"token"`
	APIVersion    string `dynamodbav:"api_version,omitempty" json:"apiVersion,omitempty"`
}

type MSG91Config struct {
	AuthKey string `dynamodbav:"auth_key" json:"authKey"`
	Sender  string `dynamodbav:"sender" json:"sender"`
}

type TwilioConfig struct {
	SID   string `dynamodbav:"sid" json:"sid"`
	Token string `dynamodbav:"token" json:"token"`
	From  string `dynamodbav:"from" json:"from"`
}

// SMSConfig selects exactly one concrete SMS vendor via Primary.
type SMSConfig struct {
	Primary string        `dynamodbav:"primary" json:"primary"`
	MSG91   *MSG91Config  `dynamodbav:"msg91,omitempty" json:"msg91,omitempty"`
	Twilio  *TwilioConfig `dynamodbav:"twilio,omitempty" json:"twilio,omitempty"`
}

type SendGridConfig struct {
	APIKey string `dynamodbav:"api_key" json:"apiKey"`
	From   string `dynamodbav:"from" json:"from"`
}

// SESConfig relies on ambient AWS credentials; only the sender is per-merchant.
type SESConfig struct {
	From string `dynamodbav:"from" json:"from"`
}

// EmailConfig selects exactly one concrete email vendor via Primary.
type EmailConfig struct {
	Primary  string          `dynamodbav:"primary" json:"primary"`
	SendGrid *SendGridConfig `dynamodbav:"sendgrid,omitempty" json:"sendgrid,omitempty"`
	SES      *SESConfig      `dynamodbav:"ses,omitempty" json:"ses,omitempty"`
}

// Channels groups a merchant's channel credentials. A nil entry means the
// channel is not configured — an expected absence, not an error.
type Channels struct {
	Chat  *ChatConfig  `dynamodbav:"chat,omitempty" json:"chat,omitempty"`
	SMS   *SMSConfig   `dynamodbav:"sms,omitempty" json:"sms,omitempty"`
	Email *EmailConfig `dynamodbav:"email,omitempty" json:"email,omitempty"`
}

// Merchant is the read-only snapshot the engine consumes. Merchant
// management owns the write side.
type Merchant struct {
	MerchantID string   `dynamodbav:"merchant_id" json:"merchantId"` // PK
	Name       string   `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Settings   Settings `dynamodbav:"settings" json:"settings"`
	Channels   Channels `dynamodbav:"channels" json:"channels"`
}

// ConfiguredChannels lists channels with credentials present, in dispatch
// order.
func (m *Merchant) ConfiguredChannels() []orders.Channel {
	var out []orders.Channel
	if m.Channels.Chat != nil {
		out = append(out, orders.ChannelChat)
	}
	if m.Channels.SMS != nil {
		out = append(out, orders.ChannelSMS)
	}
	if m.Channels.Email != nil {
		out = append(out, orders.ChannelEmail)
	}
	return out
}

// ShouldConfirm applies the COD/prepaid gating to a payment mode.
func (s Settings) ShouldConfirm(paymentMode string) bool {
	switch paymentMode {
	case orders.PaymentPrepaid:
		return s.ConfirmPrepaid
	default:
		// COD orders are the product's reason to exist; confirmCODOnly only
		// narrows prepaid handling.
		return true
	}
}
