package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/krishx009/HomeoCare/internal/domain"
)

const uniqueViolation = "23505"

type DoctorRepository struct {
	db *gorm.DB
}

func NewDoctorRepository(db *gorm.DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

func (r *DoctorRepository) Create(ctx context.Context, d *domain.Doctor) error {
	err := r.db.WithContext(ctx).Create(d).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrEmailAlreadyTaken
	}
	if err != nil {
		return fmt.Errorf("inserting doctor: %w", err)
	}
	return nil
}

func (r *DoctorRepository) GetByEmail(ctx context.Context, email string) (*domain.Doctor, error) {
	var d domain.Doctor
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading doctor by email: %w", err)
	}
	return &d, nil
}

func (r *DoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Doctor, error) {
	var d domain.Doctor
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading doctor: %w", err)
	}
	return &d, nil
}

func (r *DoctorRepository) UpdateLoginState(ctx context.Context, d *domain.Doctor) error {
	return r.update(ctx, d.ID, map[string]any{
		"failed_login_count": d.FailedLoginCount,
		"locked_until":       d.LockedUntil,
		"last_login_at":      d.LastLoginAt,
	})
}

func (r *DoctorRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.update(ctx, id, map[string]any{
		"password_hash":       hash,
		"password_changed_at": time.Now().UTC(),
	})
}

func (r *DoctorRepository) UpdateMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error {
	return r.update(ctx, id, map[string]any{
		"mfa_secret":  secret,
		"mfa_enabled": enabled,
	})
}

func (r *DoctorRepository) update(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Doctor{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("updating doctor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrDoctorNotFound
	}
	return nil
}
