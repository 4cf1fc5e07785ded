package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/api"
	"github.com/superapp/partnerauth/internal/app"
	"github.com/superapp/partnerauth/internal/app/maintenance"
	iauth "github.com/superapp/partnerauth/internal/auth"
	"github.com/superapp/partnerauth/internal/cache"
	"github.com/superapp/partnerauth/internal/database"
	"github.com/superapp/partnerauth/internal/middleware"
	"github.com/superapp/partnerauth/internal/services"
	"github.com/superapp/partnerauth/pkg/logger"
	"github.com/superapp/partnerauth/pkg/sms"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Sender     sms.Sender
	OTPService *services.OTPService
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	otpStore, err := services.NewOTPStore(stack.DB, cfg.OTP.StoreOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise otp store: %w", err)
	}

	resolver, err := services.NewIdentityResolver(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise identity resolver: %w", err)
	}

	stack.Sender, err = sms.NewSender(cfg.SMS.SenderSettings(cfg.OTP.DispatchTimeout))
	if err != nil {
		return nil, fmt.Errorf("initialise sms sender: %w", err)
	}
	log.Info("sms driver ready", zap.String("driver", stack.Sender.Name()))

	otpOpts, err := cfg.OTP.ServiceOptions()
	if err != nil {
		return nil, err
	}
	stack.OTPService, err = services.NewOTPService(otpStore, resolver, jwtSvc, append(otpOpts, services.WithSMSSender(stack.Sender))...)
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	stack.Cleaner = maintenance.NewCleaner(otpStore, dbStore,
		maintenance.WithOTPSchedule(cfg.OTP.SweepSchedule),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = newRateStore(cfg.Server.RateLimit, dbStore)

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Config:    cfg,
		OTP:       stack.OTPService,
		Partners:  resolver,
		Tokens:    jwtSvc,
		TokenTTL:  jwtSvc.TTL(),
		RateStore: stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs, drains pending deliveries and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.OTPService != nil {
		s.OTPService.Wait()
	}

	if closer, ok := s.Sender.(io.Closer); ok && closer != nil {
		if err := closer.Close(); err != nil {
			log.Warn("sms sender shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func newRateStore(cfg app.RateLimitConfig, dbStore *cache.DatabaseStore) middleware.RateStore {
	if !cfg.Enabled {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Store), "database") && dbStore != nil {
		return middleware.NewDatabaseRateStore(dbStore)
	}
	return middleware.NewMemoryRateStore()
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log := logger.WithModule("database")

	duplicates, err := database.Migrate(ctx, db)
	if err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	reportDuplicatePhones(log, duplicates)

	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))
	return db, nil
}

// reportDuplicatePhones logs every group that blocks the unique phone index. Logins for
// these phones fail as ambiguous, and no new user can be created for any phone, until
// the rows are merged by an operator.
func reportDuplicatePhones(log *zap.Logger, duplicates []database.DuplicatePhone) {
	if len(duplicates) == 0 {
		return
	}

	for _, dup := range duplicates {
		log.Error("duplicate users share a phone number",
			zap.String("phone", dup.Phone),
			zap.Int64("count", dup.Count),
			zap.Strings("user_ids", dup.UserIDs),
		)
	}
	log.Error("unique phone index not created; new user sign-ups are refused until duplicates are remediated and the service restarts",
		zap.String("index", database.UserPhoneIndex),
		zap.Int("groups", len(duplicates)),
	)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
