package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/superapp/partnerauth/internal/auth"
	"github.com/superapp/partnerauth/internal/database/testutil"
	"github.com/superapp/partnerauth/internal/models"
)

func TestNewOTPServiceRequiresCollaborators(t *testing.T) {
	h := newOTPHarness(t, nil, nil)

	_, err := NewOTPService(nil, h.resolver, h.tokens)
	require.Error(t, err)
	_, err = NewOTPService(h.store, nil, h.tokens)
	require.Error(t, err)
	_, err = NewOTPService(h.store, h.resolver, nil)
	require.Error(t, err)
}

func TestRequestOTPNormalisesAndDispatches(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("417293"))})

	require.NoError(t, h.service.RequestOTP(context.Background(), "98765 43210"))
	h.service.Wait()

	messages := h.sender.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "+919876543210", messages[0].To)
	require.Contains(t, messages[0].Body, "417293")

	var record models.OTPRecord
	require.NoError(t, h.db.First(&record).Error)
	require.Equal(t, "+919876543210", record.Phone)
}

func TestRequestOTPRejectsInvalidPhone(t *testing.T) {
	h := newOTPHarness(t, nil, nil)

	for _, raw := range []string{"", "12345", "+14155238886", "+915876543210"} {
		err := h.service.RequestOTP(context.Background(), raw)
		require.ErrorIs(t, err, ErrValidation, raw)
	}

	var count int64
	require.NoError(t, h.db.Model(&models.OTPRecord{}).Count(&count).Error)
	require.Zero(t, count, "validation must happen before storage")
}

func TestRequestOTPSucceedsWhenDeliveryFails(t *testing.T) {
	h := newOTPHarness(t, nil, nil)
	h.sender.err = errors.New("gateway down")

	require.NoError(t, h.service.RequestOTP(context.Background(), "+919876543210"))
	h.service.Wait()

	var count int64
	require.NoError(t, h.db.Model(&models.OTPRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRequestOTPDispatchIsBounded(t *testing.T) {
	h := newOTPHarness(t, nil, nil, WithDispatchTimeout(20*time.Millisecond))
	h.sender.wait = true

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.service.RequestOTP(ctx, "+919876543210"))
	cancel() // request finishing must not abort delivery early; the timeout does

	done := make(chan struct{})
	go func() {
		h.service.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not honour its timeout")
	}
}

func TestVerifyOTPIssueVerifyScenario(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("417293"))})
	ctx := context.Background()

	require.NoError(t, h.service.RequestOTP(ctx, "+919876543210"))
	h.clock.Advance(2 * time.Minute)

	result, err := h.service.VerifyOTP(ctx, "+919876543210", "417293", VerifyOptions{Partner: true})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, "+919876543210", result.User.Phone)
	require.NotNil(t, result.Partner)
	require.True(t, result.Partner.LinkedTo(result.User.ID))
	require.Equal(t, models.PartnerStatusPending, result.Partner.Status)

	claims, err := h.tokens.ValidateAccessToken(result.Token)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, claims.UserID)
	require.Equal(t, result.Partner.ID, claims.PartnerID)
	require.Equal(t, auth.ScopePartner, claims.Scope)

	_, err = h.service.VerifyOTP(ctx, "+919876543210", "417293", VerifyOptions{Partner: true})
	require.ErrorIs(t, err, ErrInvalidOTP)
}

func TestVerifyOTPUserFlowOmitsPartner(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("123456"))})
	ctx := context.Background()

	require.NoError(t, h.service.RequestOTP(ctx, "+919876543210"))
	result, err := h.service.VerifyOTP(ctx, "9876543210", "123456", VerifyOptions{})
	require.NoError(t, err)
	require.Nil(t, result.Partner)

	var partners int64
	require.NoError(t, h.db.Model(&models.ServicePartner{}).Count(&partners).Error)
	require.Zero(t, partners)
}

func TestVerifyOTPExpiredScenario(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("552210"))})
	ctx := context.Background()

	require.NoError(t, h.service.RequestOTP(ctx, "+919876543210"))
	h.clock.Advance(601 * time.Second)

	_, err := h.service.VerifyOTP(ctx, "+919876543210", "552210", VerifyOptions{Partner: true})
	require.ErrorIs(t, err, ErrInvalidOTP)

	var users int64
	require.NoError(t, h.db.Model(&models.User{}).Count(&users).Error)
	require.Zero(t, users)
}

func TestVerifyOTPDoesNotRevealUnknownPhones(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("417293"))})
	ctx := context.Background()

	require.NoError(t, h.service.RequestOTP(ctx, "+919876543210"))

	_, wrongCode := h.service.VerifyOTP(ctx, "+919876543210", "000000", VerifyOptions{})
	_, unknownPhone := h.service.VerifyOTP(ctx, "+919812345678", "417293", VerifyOptions{})
	require.ErrorIs(t, wrongCode, ErrInvalidOTP)
	require.ErrorIs(t, unknownPhone, ErrInvalidOTP)
	require.Equal(t, wrongCode.Error(), unknownPhone.Error())
}

func TestVerifyOTPRejectsMalformedInput(t *testing.T) {
	h := newOTPHarness(t, nil, nil)
	ctx := context.Background()

	_, err := h.service.VerifyOTP(ctx, "not-a-phone", "123456", VerifyOptions{})
	require.ErrorIs(t, err, ErrInvalidPhoneNumber)

	for _, code := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
		_, err = h.service.VerifyOTP(ctx, "+919876543210", code, VerifyOptions{})
		require.ErrorIs(t, err, ErrInvalidCodeFormat, code)
		require.ErrorIs(t, err, ErrValidation, code)
	}
}

func TestVerifyOTPAmbiguousIdentity(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.User{Phone: "+917845235347"}).Error)
	require.NoError(t, db.Create(&models.User{Phone: "+917845235347"}).Error)

	h := newOTPHarness(t, db, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("246810"))})
	ctx := context.Background()

	require.NoError(t, h.service.RequestOTP(ctx, "+917845235347"))
	result, err := h.service.VerifyOTP(ctx, "+917845235347", "246810", VerifyOptions{Partner: true})
	require.Nil(t, result)
	require.ErrorIs(t, err, ErrAmbiguousIdentity)
	require.False(t, errors.Is(err, ErrInvalidOTP))
}

func TestConcurrentRequestsThenVerify(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(sequenceCodes())})
	ctx := context.Background()

	const n = 5
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return h.service.RequestOTP(ctx, "+919876543210")
		})
	}
	require.NoError(t, g.Wait())
	h.service.Wait()

	messages := h.sender.Messages()
	require.Len(t, messages, n)
	codes := make([]string, 0, n)
	for _, m := range messages {
		fields := strings.Fields(m.Body)
		code := strings.TrimSuffix(fields[4], ".")
		require.Len(t, code, 6)
		codes = append(codes, code)
	}

	first, err := h.service.VerifyOTP(ctx, "+919876543210", codes[0], VerifyOptions{Partner: true})
	require.NoError(t, err)
	_, err = h.service.VerifyOTP(ctx, "+919876543210", codes[0], VerifyOptions{Partner: true})
	require.ErrorIs(t, err, ErrInvalidOTP)

	second, err := h.service.VerifyOTP(ctx, "+919876543210", codes[1], VerifyOptions{Partner: true})
	require.NoError(t, err)
	require.Equal(t, first.User.ID, second.User.ID)
	require.Equal(t, first.Partner.ID, second.Partner.ID)
}

func TestConcurrentVerifySameCodeHasOneWinner(t *testing.T) {
	h := newOTPHarness(t, nil, []OTPStoreOption{WithOTPCodeGenerator(fixedCodes("417293"))})
	ctx := context.Background()

	require.NoError(t, h.service.RequestOTP(ctx, "+919876543210"))

	const n = 6
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = h.service.VerifyOTP(ctx, "+919876543210", "417293", VerifyOptions{Partner: true})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidOTP)
	}
	require.Equal(t, 1, wins)
}
