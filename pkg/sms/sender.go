// Package sms delivers OTP messages through a pluggable driver.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Driver names accepted by NewSender.
const (
	DriverLog    = "log"
	DriverTwilio = "twilio"
	DriverAMQP   = "amqp"
)

// ErrUnknownDriver is returned by NewSender for unsupported drivers.
var ErrUnknownDriver = errors.New("sms: unknown driver")

// Sender delivers a text message to an E.164 phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
	Name() string
}

// Settings selects and configures a Sender.
type Settings struct {
	Driver string
	Twilio TwilioSettings
	AMQP   AMQPSettings
}

// NewSender builds the configured driver. Callers own Close on drivers that implement io.Closer.
func NewSender(settings Settings) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Driver)) {
	case "", DriverLog:
		return NewLogSender(), nil
	case DriverTwilio:
		return NewTwilioSender(settings.Twilio)
	case DriverAMQP:
		return DialQueueSender(settings.AMQP)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, settings.Driver)
	}
}

// OTPMessage renders the text sent to the user.
func OTPMessage(code string, ttl time.Duration) string {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes. Do not share it with anyone.", code, minutes)
}
