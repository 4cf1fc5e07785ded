package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSettings holds the Twilio REST credentials and sender number.
type TwilioSettings struct {
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration // bounds each REST call; CreateMessage takes no context
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender delivers messages through the Twilio Messages API.
type TwilioSender struct {
	api  messageCreator
	from string
}

// NewTwilioSender validates settings and builds a REST client.
func NewTwilioSender(settings TwilioSettings) (*TwilioSender, error) {
	if strings.TrimSpace(settings.AccountSID) == "" || strings.TrimSpace(settings.AuthToken) == "" {
		return nil, errors.New("sms: twilio account sid and auth token are required")
	}
	if strings.TrimSpace(settings.From) == "" {
		return nil, errors.New("sms: twilio from number is required")
	}

	client := newTwilioClient(settings)
	return &TwilioSender{api: client.Api, from: settings.From}, nil
}

func newTwilioClient(settings TwilioSettings) *twilio.RestClient {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: settings.AccountSID,
		Password: settings.AuthToken,
	})
	if settings.Timeout > 0 {
		client.SetTimeout(settings.Timeout)
	}
	return client
}

func (s *TwilioSender) Name() string { return DriverTwilio }

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(to)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("sms: twilio create message: %w", err)
	}
	if resp != nil && resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("sms: twilio error %d: %s", *resp.ErrorCode, msg)
	}
	return nil
}
