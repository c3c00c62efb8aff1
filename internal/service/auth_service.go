package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/krishx009/HomeoCare/internal/domain"
	"github.com/krishx009/HomeoCare/pkg/auth"
	"github.com/krishx009/HomeoCare/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrMFARequired        = errors.New("a one-time code is required")
	ErrInvalidOTP         = errors.New("invalid one-time code")
	ErrMFANotEnrolled     = errors.New("mfa enrollment has not been started")
)

const minPasswordLen = 12

type DoctorRepository interface {
	Create(ctx context.Context, d *domain.Doctor) error
	GetByEmail(ctx context.Context, email string) (*domain.Doctor, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Doctor, error)
	UpdateLoginState(ctx context.Context, d *domain.Doctor) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error
}

type AuthService struct {
	doctorRepo DoctorRepository
	jwtManager *auth.JWTManager
	issuer     string
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(doctorRepo DoctorRepository, jwtManager *auth.JWTManager, issuer string, log *zap.Logger) *AuthService {
	return &AuthService{doctorRepo: doctorRepo, jwtManager: jwtManager, issuer: issuer, log: log, now: time.Now}
}

type RegisterCommand struct {
	Email    string
	Password string
	Name     string
}

func (s *AuthService) Register(ctx context.Context, cmd *RegisterCommand) (*domain.Doctor, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	name := strings.TrimSpace(cmd.Name)

	var v validator
	if _, err := mail.ParseAddress(email); err != nil {
		v.add("email is invalid")
	}
	v.check(name != "", "name is required")
	v.check(len(name) <= maxNameLen, fmt.Sprintf("name must be at most %d characters", maxNameLen))
	if err := validatePasswordStrength(cmd.Password); err != nil {
		v.add(err.Error())
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now()
	d := &domain.Doctor{
		ID:                uuid.New(),
		Email:             email,
		PasswordHash:      string(hash),
		Name:              name,
		IsActive:          true,
		PasswordChangedAt: now,
	}
	if err := s.doctorRepo.Create(ctx, d); err != nil {
		if errors.Is(err, domain.ErrEmailAlreadyTaken) {
			return nil, err
		}
		s.log.Error("failed to register doctor", zap.Error(err))
		return nil, fmt.Errorf("registering doctor: %w", err)
	}

	s.log.Info("doctor registered", zap.String("doctor_id", d.ID.String()))
	return d, nil
}

func (s *AuthService) Login(ctx context.Context, email, password, otpCode, ip string) (*domain.TokenPair, error) {
	doctor, err := s.doctorRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Hash anyway so response time does not reveal whether the email exists.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if !errors.Is(err, domain.ErrDoctorNotFound) {
			s.log.Error("failed to load doctor for login", zap.Error(err))
		} else {
			s.log.Warn("login for unknown email",
				zap.String("email", logger.Redact(email)),
				zap.String("ip", ip),
			)
		}
		return nil, ErrInvalidCredentials
	}

	if !doctor.IsActive {
		return nil, ErrAccountInactive
	}

	now := s.now()
	if doctor.IsLocked(now) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(doctor.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, doctor, now, ip)
		return nil, ErrInvalidCredentials
	}

	if doctor.MFAEnabled {
		if otpCode == "" {
			return nil, ErrMFARequired
		}
		if !s.validOTP(otpCode, doctor.MFASecret, now) {
			s.recordFailure(ctx, doctor, now, ip)
			return nil, ErrInvalidOTP
		}
	}

	doctor.RegisterSuccessfulLogin(now)
	if err := s.doctorRepo.UpdateLoginState(ctx, doctor); err != nil {
		s.log.Warn("failed to record successful login", zap.Error(err))
	}

	pair, err := s.jwtManager.GenerateTokenPair(&domain.Claims{DoctorID: doctor.ID, Email: doctor.Email})
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	s.log.Info("doctor logged in",
		zap.String("doctor_id", doctor.ID.String()),
		zap.String("ip", ip),
	)

	return pair, nil
}

func (s *AuthService) recordFailure(ctx context.Context, doctor *domain.Doctor, now time.Time, ip string) {
	doctor.RegisterFailedLogin(now)
	if err := s.doctorRepo.UpdateLoginState(ctx, doctor); err != nil {
		s.log.Warn("failed to record failed login", zap.Error(err))
	}
	s.log.Warn("failed login attempt",
		zap.String("doctor_id", doctor.ID.String()),
		zap.String("ip", ip),
		zap.Bool("locked", doctor.IsLocked(now)),
	)
}

// RefreshToken issues a new token pair given a valid refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Re-validate the doctor is still active
	doctor, err := s.doctorRepo.GetByID(ctx, claims.DoctorID)
	if err != nil || !doctor.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(&domain.Claims{DoctorID: doctor.ID, Email: doctor.Email})
}

// MFAEnrollment is returned once, when a new TOTP secret is issued.
type MFAEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
}

// EnrollMFA issues a fresh TOTP secret. MFA stays disabled until VerifyMFA
// confirms the doctor's authenticator produces valid codes.
func (s *AuthService) EnrollMFA(ctx context.Context, doctorID uuid.UUID) (*MFAEnrollment, error) {
	doctor, err := s.doctorRepo.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: doctor.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}

	if err := s.doctorRepo.UpdateMFA(ctx, doctor.ID, key.Secret(), false); err != nil {
		return nil, fmt.Errorf("storing totp secret: %w", err)
	}

	return &MFAEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

func (s *AuthService) VerifyMFA(ctx context.Context, doctorID uuid.UUID, code string) error {
	doctor, err := s.doctorRepo.GetByID(ctx, doctorID)
	if err != nil {
		return err
	}
	if doctor.MFASecret == "" {
		return ErrMFANotEnrolled
	}
	if !s.validOTP(code, doctor.MFASecret, s.now()) {
		return ErrInvalidOTP
	}

	if err := s.doctorRepo.UpdateMFA(ctx, doctor.ID, doctor.MFASecret, true); err != nil {
		return fmt.Errorf("enabling mfa: %w", err)
	}
	s.log.Info("mfa enabled", zap.String("doctor_id", doctor.ID.String()))
	return nil
}

func (s *AuthService) validOTP(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// ChangePassword updates a doctor's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, doctorID uuid.UUID, currentPassword, newPassword string) error {
	doctor, err := s.doctorRepo.GetByID(ctx, doctorID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(doctor.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if err := validatePasswordStrength(newPassword); err != nil {
		return &ValidationError{Fields: []string{err.Error()}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.doctorRepo.UpdatePassword(ctx, doctorID, string(hash))
}

func validatePasswordStrength(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}
