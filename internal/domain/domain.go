package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrEmailAlreadyTaken = errors.New("email already registered")
)

// Doctor is a practitioner account of the built-in identity provider. Its ID
// is the doctorId that scopes every clinical record.
type Doctor struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	Email        string `json:"email" gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"column:password_hash;type:varchar(255);not null"`
	Name         string `json:"name" gorm:"column:name;type:varchar(100);not null"`

	IsActive          bool       `json:"isActive" gorm:"column:is_active;default:true"`
	FailedLoginCount  int        `json:"-" gorm:"column:failed_login_count;default:0"`
	LockedUntil       *time.Time `json:"-" gorm:"column:locked_until"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty" gorm:"column:last_login_at"`
	PasswordChangedAt time.Time  `json:"-" gorm:"column:password_changed_at"`

	MFAEnabled bool   `json:"mfaEnabled" gorm:"column:mfa_enabled;default:false"`
	MFASecret  string `json:"-" gorm:"column:mfa_secret;type:varchar(100)"`
}

func (Doctor) TableName() string {
	return "auth.doctors"
}

// IsLocked returns true if the account is temporarily locked due to failed logins.
func (d *Doctor) IsLocked(now time.Time) bool {
	return d.LockedUntil != nil && now.Before(*d.LockedUntil)
}

// RegisterFailedLogin counts a bad attempt and locks the account once the
// limit is reached.
func (d *Doctor) RegisterFailedLogin(now time.Time) {
	d.FailedLoginCount++
	if d.FailedLoginCount >= MaxFailedLogins {
		until := now.Add(LockoutDuration)
		d.LockedUntil = &until
		d.FailedLoginCount = 0
	}
}

func (d *Doctor) RegisterSuccessfulLogin(now time.Time) {
	d.FailedLoginCount = 0
	d.LockedUntil = nil
	d.LastLoginAt = &now
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"` // Always "Bearer"
}

type Claims struct {
	DoctorID uuid.UUID `json:"sub"`
	Email    string    `json:"email"`
}
