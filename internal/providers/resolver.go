package providers

import (
	"net/http"
	"time"

	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
)

// Resolver constructs the concrete provider for a merchant's channel
// configuration. Absence of configuration resolves to (nil, nil) — an
// expected, recoverable outcome — while present-but-broken credentials
// return a configuration error.
type Resolver struct {
	httpClient *http.Client
	ses        awsx.SESAPI
}

func NewResolver(httpClient *http.Client, sesClient awsx.SESAPI) *Resolver {
	if httpClient == nil {
		// Timeout is per provider call; jobs have no deadline of their own.
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{httpClient: httpClient, ses: sesClient}
}

// For resolves a channel to exactly one concrete provider, honoring the
// merchant-declared primary sub-provider for SMS and email.
func (r *Resolver) For(m *merchants.Merchant, ch orders.Channel) (Provider, error) {
	switch ch {
	case orders.ChannelChat:
		if m.Channels.Chat == nil {
			return nil, nil
		}
		return wrap(NewChatProvider(*m.Channels.Chat, r.httpClient))

	case orders.ChannelSMS:
		cfg := m.Channels.SMS
		if cfg == nil {
			return nil, nil
		}
		switch cfg.Primary {
		case merchants.SMSProviderTwilio:
			if cfg.Twilio == nil {
				return nil, nil
			}
			return wrap(NewTwilioProvider(*cfg.Twilio, r.httpClient))
		case merchants.SMSProviderMSG91:
			if cfg.MSG91 == nil {
				return nil, nil
			}
			return wrap(NewMSG91Provider(*cfg.MSG91, r.httpClient))
		default:
			return nil, nil
		}

	case orders.ChannelEmail:
		cfg := m.Channels.Email
		if cfg == nil {
			return nil, nil
		}
		switch cfg.Primary {
		case merchants.EmailProviderSendGrid:
			if cfg.SendGrid == nil {
				return nil, nil
			}
			return wrap(NewSendGridProvider(*cfg.SendGrid, r.httpClient))
		case merchants.EmailProviderSES:
			if cfg.SES == nil {
				return nil, nil
			}
			return wrap(NewSESProvider(*cfg.SES, r.ses))
		default:
			return nil, nil
		}
	}
	return nil, nil
}

// wrap avoids handing back a typed-nil Provider when a constructor fails.
func wrap[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
