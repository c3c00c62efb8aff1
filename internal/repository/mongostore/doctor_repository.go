package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/krishx009/HomeoCare/internal/domain"
	"github.com/krishx009/HomeoCare/pkg/database"
)

type doctorDocument struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`

	Email        string `bson:"email"`
	PasswordHash string `bson:"passwordHash"`
	Name         string `bson:"name"`

	IsActive          bool       `bson:"isActive"`
	FailedLoginCount  int        `bson:"failedLoginCount"`
	LockedUntil       *time.Time `bson:"lockedUntil,omitempty"`
	LastLoginAt       *time.Time `bson:"lastLoginAt,omitempty"`
	PasswordChangedAt time.Time  `bson:"passwordChangedAt"`

	MFAEnabled bool   `bson:"mfaEnabled"`
	MFASecret  string `bson:"mfaSecret"`
}

func (d *doctorDocument) toDoctor() (*domain.Doctor, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding doctor id %q: %w", d.ID, err)
	}
	return &domain.Doctor{
		ID:                id,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		Name:              d.Name,
		IsActive:          d.IsActive,
		FailedLoginCount:  d.FailedLoginCount,
		LockedUntil:       d.LockedUntil,
		LastLoginAt:       d.LastLoginAt,
		PasswordChangedAt: d.PasswordChangedAt,
		MFAEnabled:        d.MFAEnabled,
		MFASecret:         d.MFASecret,
	}, nil
}

type DoctorRepository struct {
	coll *mongo.Collection
}

func NewDoctorRepository(db *mongo.Database) *DoctorRepository {
	return &DoctorRepository{coll: db.Collection(database.DoctorsCollection)}
}

func (r *DoctorRepository) Create(ctx context.Context, d *domain.Doctor) error {
	now := time.Now().UTC()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt, d.UpdatedAt = now, now

	doc := doctorDocument{
		ID:                d.ID.String(),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		Name:              d.Name,
		IsActive:          d.IsActive,
		PasswordChangedAt: d.PasswordChangedAt,
		MFAEnabled:        d.MFAEnabled,
		MFASecret:         d.MFASecret,
	}
	_, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrEmailAlreadyTaken
	}
	if err != nil {
		return fmt.Errorf("inserting doctor: %w", err)
	}
	return nil
}

func (r *DoctorRepository) GetByEmail(ctx context.Context, email string) (*domain.Doctor, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *DoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Doctor, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *DoctorRepository) findOne(ctx context.Context, filter bson.M) (*domain.Doctor, error) {
	var doc doctorDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading doctor: %w", err)
	}
	return doc.toDoctor()
}

func (r *DoctorRepository) UpdateLoginState(ctx context.Context, d *domain.Doctor) error {
	return r.update(ctx, d.ID, bson.M{
		"failedLoginCount": d.FailedLoginCount,
		"lockedUntil":      d.LockedUntil,
		"lastLoginAt":      d.LastLoginAt,
	})
}

func (r *DoctorRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.update(ctx, id, bson.M{
		"passwordHash":      hash,
		"passwordChangedAt": time.Now().UTC(),
	})
}

func (r *DoctorRepository) UpdateMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error {
	return r.update(ctx, id, bson.M{
		"mfaSecret":  secret,
		"mfaEnabled": enabled,
	})
}

func (r *DoctorRepository) update(ctx context.Context, id uuid.UUID, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating doctor: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDoctorNotFound
	}
	return nil
}
