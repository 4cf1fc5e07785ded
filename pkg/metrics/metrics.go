package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OTPIssued counts codes persisted by the OTP store.
	OTPIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partnerauth_otp_issued_total",
			Help: "Total number of OTP codes issued",
		},
	)

	// OTPVerifications records verification attempts by result (success|invalid|error).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnerauth_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"result"},
	)

	// OTPSwept counts OTP rows removed by the maintenance sweep.
	OTPSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partnerauth_otp_swept_total",
			Help: "Total number of OTP records deleted by the sweep",
		},
	)

	// SMSDispatch records delivery attempts by driver and result (success|failure).
	SMSDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnerauth_sms_dispatch_total",
			Help: "Total number of OTP delivery attempts",
		},
		[]string{"driver", "result"},
	)

	// IdentityResolutions records user/partner resolution outcomes
	// (existing|created|adopted|ambiguous|conflict|error).
	IdentityResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partnerauth_identity_resolutions_total",
			Help: "Total number of identity resolutions",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partnerauth_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
