package app

import (
	"time"

	"github.com/superapp/partnerauth/pkg/sms"
)

// SenderSettings converts SMSConfig into driver settings for sms.NewSender.
// timeout bounds driver calls that cannot observe a context.
func (c SMSConfig) SenderSettings(timeout time.Duration) sms.Settings {
	return sms.Settings{
		Driver: c.Driver,
		Twilio: sms.TwilioSettings{
			AccountSID: c.Twilio.AccountSID,
			AuthToken:  c.Twilio.AuthToken,
			From:       c.Twilio.From,
			Timeout:    timeout,
		},
		AMQP: sms.AMQPSettings{
			URL:        c.AMQP.URL,
			Exchange:   c.AMQP.Exchange,
			RoutingKey: c.AMQP.RoutingKey,
		},
	}
}
