package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/auth"
	"github.com/superapp/partnerauth/internal/database/testutil"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// sequenceCodes yields 100001, 100002, ... so concurrent issues never collide.
func sequenceCodes() func() (string, error) {
	var n atomic.Int64
	return func() (string, error) {
		return fmt.Sprintf("%06d", 100000+n.Add(1)), nil
	}
}

func fixedCodes(codes ...string) func() (string, error) {
	var n atomic.Int64
	return func() (string, error) {
		i := int(n.Add(1)) - 1
		if i >= len(codes) {
			return "", fmt.Errorf("no more fixed codes")
		}
		return codes[i], nil
	}
}

type sentMessage struct {
	To   string
	Body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	wait bool
}

func (s *recordingSender) Name() string { return "test" }

func (s *recordingSender) Send(ctx context.Context, to, body string) error {
	if s.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *recordingSender) Messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type otpHarness struct {
	db       *gorm.DB
	clock    *testClock
	store    *OTPStore
	resolver *IdentityResolver
	tokens   *auth.JWTService
	sender   *recordingSender
	service  *OTPService
}

func newOTPHarness(t *testing.T, db *gorm.DB, storeOpts []OTPStoreOption, svcOpts ...OTPServiceOption) *otpHarness {
	t.Helper()

	if db == nil {
		db = testutil.MustOpenTestDB(t, testutil.WithPhoneIndex())
	}
	clock := newTestClock()

	store, err := NewOTPStore(db, append([]OTPStoreOption{WithOTPClock(clock.Now)}, storeOpts...)...)
	require.NoError(t, err)

	resolver, err := NewIdentityResolver(db)
	require.NoError(t, err)

	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "partnerauth", Clock: clock.Now})
	require.NoError(t, err)

	sender := &recordingSender{}
	svc, err := NewOTPService(store, resolver, tokens, append([]OTPServiceOption{WithSMSSender(sender)}, svcOpts...)...)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	return &otpHarness{
		db:       db,
		clock:    clock,
		store:    store,
		resolver: resolver,
		tokens:   tokens,
		sender:   sender,
		service:  svc,
	}
}
