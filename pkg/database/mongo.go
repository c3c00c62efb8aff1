package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/config"
)

const (
	PatientsCollection = "patients"
	DoctorsCollection  = "doctors"
)

func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// MigrateMongo creates the indexes the repositories rely on.
func MigrateMongo(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	log.Info("creating mongodb indexes")

	patientIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "consultations.consultationId", Value: 1}, {Key: "doctorId", Value: 1}}},
	}
	if _, err := db.Collection(PatientsCollection).Indexes().CreateMany(ctx, patientIdx); err != nil {
		return fmt.Errorf("creating patient indexes: %w", err)
	}

	doctorIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection(DoctorsCollection).Indexes().CreateOne(ctx, doctorIdx); err != nil {
		return fmt.Errorf("creating doctor indexes: %w", err)
	}

	return nil
}
