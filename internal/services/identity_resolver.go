package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/superapp/partnerauth/internal/database"
	"github.com/superapp/partnerauth/internal/models"
	"github.com/superapp/partnerauth/pkg/logger"
	"github.com/superapp/partnerauth/pkg/metrics"
	"github.com/superapp/partnerauth/pkg/obs"
)

// IdentityResolver maps a verified, canonical phone number to exactly one user
// and one partner. Creation relies on unique indexes instead of locks, and more
// than one match is reported as ErrAmbiguousIdentity rather than guessed.
type IdentityResolver struct {
	db  *gorm.DB
	log *zap.Logger

	// phoneIndexReady latches once the unique phone index is seen; it is never dropped at runtime.
	phoneIndexReady atomic.Bool
}

// NewIdentityResolver constructs a resolver on the injected database handle.
func NewIdentityResolver(db *gorm.DB) (*IdentityResolver, error) {
	if db == nil {
		return nil, errors.New("identity resolver: db is required")
	}
	return &IdentityResolver{db: db, log: logger.WithModule("identity")}, nil
}

// ResolveUser returns the single user for phone, creating it when absent.
func (r *IdentityResolver) ResolveUser(ctx context.Context, phone string) (*models.User, error) {
	ctx, span := obs.Tracer().Start(ctx, "identity.resolve_user")
	defer span.End()

	return r.resolveUser(r.db.WithContext(ctx), phone)
}

// ResolveOrCreatePartner returns the partner linked to user, adopting a single
// orphan with the same phone or creating a pending profile when none exists.
func (r *IdentityResolver) ResolveOrCreatePartner(ctx context.Context, user *models.User) (*models.ServicePartner, error) {
	ctx, span := obs.Tracer().Start(ctx, "identity.resolve_partner")
	defer span.End()

	return r.resolvePartner(r.db.WithContext(ctx), user)
}

// LinkPartnerToUser attaches partner to user. A phone mismatch or a partner
// owned by someone else fails with ErrPartnerLinkConflict.
func (r *IdentityResolver) LinkPartnerToUser(ctx context.Context, partner *models.ServicePartner, user *models.User) error {
	return r.linkPartner(r.db.WithContext(ctx), partner, user)
}

// PartnerForUser returns the partner linked to userID without creating one.
func (r *IdentityResolver) PartnerForUser(ctx context.Context, userID string) (*models.ServicePartner, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrPartnerNotFound
	}
	partner, err := r.findPartnerByUser(r.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, ErrPartnerNotFound
	}
	return partner, nil
}

// ResolvePartnerIdentity resolves the user and partner for phone in a single transaction.
func (r *IdentityResolver) ResolvePartnerIdentity(ctx context.Context, phone string) (*models.User, *models.ServicePartner, error) {
	ctx, span := obs.Tracer().Start(ctx, "identity.resolve_partner_identity")
	defer span.End()

	var (
		user    *models.User
		partner *models.ServicePartner
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if user, err = r.resolveUser(tx, phone); err != nil {
			return err
		}
		partner, err = r.resolvePartner(tx, user)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrAmbiguousIdentity) || errors.Is(err, ErrPartnerLinkConflict) ||
			errors.Is(err, ErrStorage) || errors.Is(err, ErrValidation) {
			return nil, nil, err
		}
		return nil, nil, storageError("identity resolver: transaction", err)
	}

	span.SetAttributes(
		attribute.String("identity.user_id", user.ID),
		attribute.String("identity.partner_id", partner.ID),
	)
	return user, partner, nil
}

func (r *IdentityResolver) resolveUser(tx *gorm.DB, phone string) (*models.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrInvalidPhoneNumber
	}

	user, err := r.findUser(tx, phone)
	if err != nil || user != nil {
		if user != nil {
			metrics.IdentityResolutions.WithLabelValues("user", "existing").Inc()
		}
		return user, err
	}

	if err := r.requirePhoneIndex(tx, phone); err != nil {
		return nil, err
	}

	candidate := models.User{Phone: phone}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
	if res.Error != nil && !isUniqueConstraintError(res.Error) {
		metrics.IdentityResolutions.WithLabelValues("user", "error").Inc()
		return nil, storageError("identity resolver: create user", res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 {
		metrics.IdentityResolutions.WithLabelValues("user", "created").Inc()
		r.log.Info("user created", zap.String("user_id", candidate.ID), logger.Phone(phone))
		return &candidate, nil
	}

	// Lost the insert race; the winner's row is the user.
	user, err = r.findUser(tx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		metrics.IdentityResolutions.WithLabelValues("user", "error").Inc()
		return nil, storageError("identity resolver: create user", errors.New("conflicting user not visible after insert"))
	}
	metrics.IdentityResolutions.WithLabelValues("user", "existing").Inc()
	return user, nil
}

// requirePhoneIndex refuses user creation while the unique phone index is missing.
// Without it the insert-if-absent cannot detect a concurrent first login.
func (r *IdentityResolver) requirePhoneIndex(tx *gorm.DB, phone string) error {
	if r.phoneIndexReady.Load() {
		return nil
	}
	if tx.Migrator().HasIndex(&models.User{}, database.UserPhoneIndex) {
		r.phoneIndexReady.Store(true)
		return nil
	}

	metrics.IdentityResolutions.WithLabelValues("user", "error").Inc()
	r.log.Error("user creation refused: unique phone index missing",
		zap.String("index", database.UserPhoneIndex),
		logger.Phone(phone),
	)
	return storageError("identity resolver: create user", ErrPhoneIndexMissing)
}

// findUser returns nil, nil when no user has phone.
func (r *IdentityResolver) findUser(tx *gorm.DB, phone string) (*models.User, error) {
	var users []models.User
	if err := tx.Where("phone = ?", phone).Order("created_at").Find(&users).Error; err != nil {
		metrics.IdentityResolutions.WithLabelValues("user", "error").Inc()
		return nil, storageError("identity resolver: find user", err)
	}

	switch len(users) {
	case 0:
		return nil, nil
	case 1:
		return &users[0], nil
	default:
		ids := make([]string, len(users))
		for i := range users {
			ids[i] = users[i].ID
		}
		return nil, r.ambiguous("user", phone, ids)
	}
}

func (r *IdentityResolver) resolvePartner(tx *gorm.DB, user *models.User) (*models.ServicePartner, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("identity resolver: user is required")
	}

	partner, err := r.findPartnerByUser(tx, user.ID)
	if err != nil || partner != nil {
		if partner != nil {
			if partner.PhoneNumber != user.Phone {
				r.log.Warn("linked partner phone differs from user phone",
					zap.String("user_id", user.ID),
					zap.String("partner_id", partner.ID),
				)
			}
			metrics.IdentityResolutions.WithLabelValues("partner", "existing").Inc()
		}
		return partner, err
	}

	var orphans []models.ServicePartner
	if err := tx.Where("user_id IS NULL AND phone_number = ?", user.Phone).
		Order("created_at").
		Find(&orphans).Error; err != nil {
		return nil, storageError("identity resolver: find orphan partners", err)
	}

	switch len(orphans) {
	case 0:
	case 1:
		orphan := orphans[0]
		if err := r.linkPartner(tx, &orphan, user); err != nil {
			if !errors.Is(err, ErrPartnerLinkConflict) {
				return nil, err
			}
			// A concurrent resolve adopted it first; pick up that result.
			partner, ferr := r.findPartnerByUser(tx, user.ID)
			if ferr != nil {
				return nil, ferr
			}
			if partner == nil {
				return nil, err
			}
			metrics.IdentityResolutions.WithLabelValues("partner", "existing").Inc()
			return partner, nil
		}
		metrics.IdentityResolutions.WithLabelValues("partner", "adopted").Inc()
		r.log.Info("orphan partner adopted", zap.String("user_id", user.ID), zap.String("partner_id", orphan.ID))
		return &orphan, nil
	default:
		ids := make([]string, len(orphans))
		for i := range orphans {
			ids[i] = orphans[i].ID
		}
		return nil, r.ambiguous("partner", user.Phone, ids)
	}

	userID := user.ID
	candidate := models.ServicePartner{
		UserID:                &userID,
		PhoneNumber:           user.Phone,
		Categories:            datatypes.JSONSlice[string]{},
		VerificationDocuments: datatypes.JSONSlice[string]{},
		Status:                models.PartnerStatusPending,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
	if res.Error != nil && !isUniqueConstraintError(res.Error) {
		metrics.IdentityResolutions.WithLabelValues("partner", "error").Inc()
		return nil, storageError("identity resolver: create partner", res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 {
		metrics.IdentityResolutions.WithLabelValues("partner", "created").Inc()
		r.log.Info("partner created", zap.String("user_id", user.ID), zap.String("partner_id", candidate.ID))
		return &candidate, nil
	}

	partner, err = r.findPartnerByUser(tx, user.ID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, storageError("identity resolver: create partner", errors.New("conflicting partner not visible after insert"))
	}
	metrics.IdentityResolutions.WithLabelValues("partner", "existing").Inc()
	return partner, nil
}

func (r *IdentityResolver) findPartnerByUser(tx *gorm.DB, userID string) (*models.ServicePartner, error) {
	var partners []models.ServicePartner
	if err := tx.Where("user_id = ?", userID).Limit(2).Find(&partners).Error; err != nil {
		return nil, storageError("identity resolver: find partner", err)
	}
	switch len(partners) {
	case 0:
		return nil, nil
	case 1:
		return &partners[0], nil
	default:
		ids := []string{partners[0].ID, partners[1].ID}
		return nil, r.ambiguous("partner", partners[0].PhoneNumber, ids)
	}
}

func (r *IdentityResolver) linkPartner(tx *gorm.DB, partner *models.ServicePartner, user *models.User) error {
	if partner == nil || user == nil || partner.ID == "" || user.ID == "" {
		return errors.New("identity resolver: partner and user are required")
	}
	if partner.PhoneNumber != user.Phone {
		metrics.IdentityResolutions.WithLabelValues("link", "conflict").Inc()
		return fmt.Errorf("%w: partner %s phone does not match user %s", ErrPartnerLinkConflict, partner.ID, user.ID)
	}
	if partner.LinkedTo(user.ID) {
		return nil
	}
	if partner.UserID != nil {
		metrics.IdentityResolutions.WithLabelValues("link", "conflict").Inc()
		return fmt.Errorf("%w: partner %s belongs to another user", ErrPartnerLinkConflict, partner.ID)
	}

	res := tx.Model(&models.ServicePartner{}).
		Where("id = ? AND (user_id IS NULL OR user_id = ?)", partner.ID, user.ID).
		Update("user_id", user.ID)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			metrics.IdentityResolutions.WithLabelValues("link", "conflict").Inc()
			return fmt.Errorf("%w: user %s already has a partner", ErrPartnerLinkConflict, user.ID)
		}
		return storageError("identity resolver: link partner", res.Error)
	}
	if res.RowsAffected != 1 {
		metrics.IdentityResolutions.WithLabelValues("link", "conflict").Inc()
		return fmt.Errorf("%w: partner %s was linked concurrently", ErrPartnerLinkConflict, partner.ID)
	}

	userID := user.ID
	partner.UserID = &userID
	return nil
}

func (r *IdentityResolver) ambiguous(entity, phone string, ids []string) error {
	metrics.IdentityResolutions.WithLabelValues(entity, "ambiguous").Inc()
	r.log.Error("ambiguous identity requires manual reconciliation",
		zap.String("entity", entity),
		zap.String("phone", phone),
		zap.Strings("ids", ids),
	)
	return &AmbiguousIdentityError{Entity: entity, Phone: phone, IDs: ids}
}
