// Package mongostore keeps patient documents in MongoDB, with consultations
// embedded in the patient document as in the original data model.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/database"
)

var sortFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"name":      "name",
	"age":       "age",
}

type patientDocument struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
	Version   int64     `bson:"version"`
	DoctorID  string    `bson:"doctorId"`

	Name           string   `bson:"name"`
	Age            *int     `bson:"age,omitempty"`
	Weight         *float64 `bson:"weight,omitempty"`
	Height         *float64 `bson:"height,omitempty"`
	MedicalHistory string   `bson:"medicalHistory"`
	FileURLs       []string `bson:"fileUrls"`

	Consultations []patient.Consultation `bson:"consultations"`

	CurrentRemedy        string     `bson:"currentRemedy"`
	LastConsultationDate *time.Time `bson:"lastConsultationDate,omitempty"`
	TotalConsultations   int        `bson:"totalConsultations"`
}

func toDocument(p *patient.Patient) *patientDocument {
	return &patientDocument{
		ID:                   p.ID.String(),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
		Version:              p.Version,
		DoctorID:             p.DoctorID,
		Name:                 p.Name,
		Age:                  p.Age,
		Weight:               p.Weight,
		Height:               p.Height,
		MedicalHistory:       p.MedicalHistory,
		FileURLs:             p.FileURLs,
		Consultations:        p.Consultations,
		CurrentRemedy:        p.CurrentRemedy,
		LastConsultationDate: p.LastConsultationDate,
		TotalConsultations:   p.TotalConsultations,
	}
}

func (d *patientDocument) toPatient() (*patient.Patient, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding patient id %q: %w", d.ID, err)
	}
	p := &patient.Patient{
		ID:                   id,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		Version:              d.Version,
		DoctorID:             d.DoctorID,
		Name:                 d.Name,
		Age:                  d.Age,
		Weight:               d.Weight,
		Height:               d.Height,
		MedicalHistory:       d.MedicalHistory,
		FileURLs:             d.FileURLs,
		Consultations:        d.Consultations,
		CurrentRemedy:        d.CurrentRemedy,
		LastConsultationDate: d.LastConsultationDate,
		TotalConsultations:   d.TotalConsultations,
	}
	p.Normalize()
	return p, nil
}

type PatientRepository struct {
	coll *mongo.Collection
}

func NewPatientRepository(db *mongo.Database) *PatientRepository {
	return &PatientRepository{coll: db.Collection(database.PatientsCollection)}
}

func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	p.Normalize()
	if _, err := r.coll.InsertOne(ctx, toDocument(p)); err != nil {
		return fmt.Errorf("inserting patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id uuid.UUID, doctorID string) (*patient.Patient, error) {
	return r.findOne(ctx, bson.M{"_id": id.String(), "doctorId": doctorID}, patient.ErrPatientNotFound)
}

func (r *PatientRepository) GetByConsultationID(ctx context.Context, consultationID, doctorID string) (*patient.Patient, error) {
	filter := bson.M{"consultations.consultationId": consultationID, "doctorId": doctorID}
	return r.findOne(ctx, filter, patient.ErrConsultationNotFound)
}

func (r *PatientRepository) findOne(ctx context.Context, filter bson.M, notFound error) (*patient.Patient, error) {
	var doc patientDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}
	return doc.toPatient()
}

// Save replaces the document only while its version still matches the one
// the caller loaded.
func (r *PatientRepository) Save(ctx context.Context, p *patient.Patient) error {
	expected := p.Version
	p.Normalize()

	doc := toDocument(p)
	doc.Version = expected + 1
	doc.UpdatedAt = time.Now().UTC()

	filter := bson.M{"_id": doc.ID, "doctorId": p.DoctorID, "version": expected}
	res, err := r.coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("saving patient: %w", err)
	}
	if res.MatchedCount == 0 {
		return patient.ErrVersionConflict
	}

	p.Version = doc.Version
	p.UpdatedAt = doc.UpdatedAt
	return nil
}

func (r *PatientRepository) Delete(ctx context.Context, id uuid.UUID, doctorID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String(), "doctorId": doctorID})
	if err != nil {
		return fmt.Errorf("deleting patient: %w", err)
	}
	if res.DeletedCount == 0 {
		return patient.ErrPatientNotFound
	}
	return nil
}

func (r *PatientRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	return r.find(ctx, bson.M{"doctorId": doctorID}, newestFirst())
}

func (r *PatientRepository) ListCreatedSince(ctx context.Context, doctorID string, since time.Time) ([]*patient.Patient, error) {
	filter := bson.M{"doctorId": doctorID, "createdAt": bson.M{"$gte": since}}
	return r.find(ctx, filter, newestFirst())
}

func (r *PatientRepository) Search(ctx context.Context, q *patient.SearchQuery) (*patient.PagedPatients, error) {
	filter := bson.M{"doctorId": q.DoctorID}
	if name := strings.TrimSpace(q.Name); name != "" {
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(name), Options: "i"}
	}
	created := bson.M{}
	if q.CreatedFrom != nil {
		created["$gte"] = *q.CreatedFrom
	}
	if q.CreatedTo != nil {
		created["$lte"] = *q.CreatedTo
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting patients: %w", err)
	}

	field, ok := sortFields[q.SortBy]
	if !ok {
		field = "createdAt"
	}
	dir := -1
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}).
		SetSkip(int64((q.Page - 1) * q.PageSize)).
		SetLimit(int64(q.PageSize))

	ps, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	pages := 0
	if q.PageSize > 0 {
		pages = int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	}

	return &patient.PagedPatients{
		Patients:   ps,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: pages,
	}, nil
}

func (r *PatientRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*patient.Patient, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying patients: %w", err)
	}
	defer cur.Close(ctx)

	var docs []patientDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding patients: %w", err)
	}

	out := make([]*patient.Patient, 0, len(docs))
	for i := range docs {
		p, err := docs[i].toPatient()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
}
