package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/EduPortal/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// GetByUserID retrieves the profile of a user
func (r *profileRepository) GetByUserID(ctx context.Context, userID string) (*models.MembershipProfile, error) {
	var p models.MembershipProfile
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert inserts a default profile with the patch applied, or updates the existing row.
func (r *profileRepository) Upsert(ctx context.Context, userID string, patch ProfilePatch) (*models.MembershipProfile, error) {
	now := time.Now()
	var result models.MembershipProfile

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.MembershipProfile
		err := tx.Where("id = ?", userID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if patch.ExpectedVersion != nil {
				return ErrVersionConflict
			}
			p := models.NewFreeProfile(userID)
			patch.Apply(p)
			p.CreatedAt = now
			p.UpdatedAt = now
			if err := p.Validate(); err != nil {
				return err
			}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
			result = *p
			return nil
		}
		if err != nil {
			return err
		}

		// Validate the merged row before writing only the changed columns.
		merged := existing
		patch.Apply(&merged)
		if err := merged.Validate(); err != nil {
			return err
		}

		updates := patch.columns()
		updates["updated_at"] = now
		updates["version"] = gorm.Expr("version + 1")

		q := tx.Model(&models.MembershipProfile{}).Where("id = ?", userID)
		if patch.ExpectedVersion != nil {
			q = q.Where("version = ?", *patch.ExpectedVersion)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return tx.Where("id = ?", userID).First(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExpired returns active profiles whose expiry is before now, oldest first.
func (r *profileRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.MembershipProfile, error) {
	var profiles []models.MembershipProfile
	err := r.db.WithContext(ctx).
		Where("membership_status = ? AND membership_expires_at IS NOT NULL AND membership_expires_at < ?", models.MembershipStatusActive, now).
		Order("membership_expires_at ASC").
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

// MarkExpired flips the given profiles to expired, re-checking the expiry
// condition under a row lock, and returns the ids that actually changed.
func (r *profileRepository) MarkExpired(ctx context.Context, ids []string, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var changed []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MembershipProfile{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ? AND membership_status = ? AND membership_expires_at < ?", ids, models.MembershipStatusActive, now).
			Pluck("id", &changed).Error; err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		return tx.Model(&models.MembershipProfile{}).
			Where("id IN ?", changed).
			Updates(map[string]interface{}{
				"membership_status": models.MembershipStatusExpired,
				"updated_at":        now,
				"version":           gorm.Expr("version + 1"),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// ListAutoRenewDue returns paid profiles with auto-renewal on whose expiry is before the cutoff.
func (r *profileRepository) ListAutoRenewDue(ctx context.Context, before time.Time, limit int) ([]models.MembershipProfile, error) {
	var profiles []models.MembershipProfile
	err := r.db.WithContext(ctx).
		Where("auto_renewal = ? AND payment_method_saved = ? AND default_payment_method <> ''", true, true).
		Where("membership_type <> ?", "free").
		Where("membership_status IN ?", []string{models.MembershipStatusActive, models.MembershipStatusExpired}).
		Where("membership_expires_at IS NOT NULL AND membership_expires_at < ?", before).
		Order("membership_expires_at ASC").
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

// CountByPlan groups all profiles by plan and status
func (r *profileRepository) CountByPlan(ctx context.Context) ([]PlanCount, error) {
	var rows []PlanCount
	err := r.db.WithContext(ctx).Model(&models.MembershipProfile{}).
		Select("membership_type AS plan, membership_status AS status, COUNT(*) AS count").
		Group("membership_type, membership_status").
		Order("membership_type, membership_status").
		Scan(&rows).Error
	return rows, err
}
