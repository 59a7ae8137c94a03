package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/telefile/telefile/internal/config"
)

type MongoDB struct {
	client    *mongo.Client
	database  *mongo.Database
	users     *mongo.Collection
	files     *mongo.Collection
	transfers *mongo.Collection
	adminLogs *mongo.Collection
}

func NewMongoDB(cfg *config.MongoDBConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	mongodb := &MongoDB{
		client:    client,
		database:  db,
		users:     db.Collection("users"),
		files:     db.Collection("files"),
		transfers: db.Collection("transfers"),
		adminLogs: db.Collection("admin_logs"),
	}

	if err := mongodb.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return mongodb, nil
}

func (m *MongoDB) createIndexes(ctx context.Context) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "banned", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "last_seen_at", Value: -1}},
		},
	}
	if _, err := m.users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	fileIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "uploaded_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "remote_id", Value: 1}},
		},
	}
	if _, err := m.files.Indexes().CreateMany(ctx, fileIndexes); err != nil {
		return fmt.Errorf("failed to create files indexes: %w", err)
	}

	transferIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "success", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "platform", Value: 1}},
		},
	}
	if _, err := m.transfers.Indexes().CreateMany(ctx, transferIndexes); err != nil {
		return fmt.Errorf("failed to create transfers indexes: %w", err)
	}

	adminLogIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "admin_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := m.adminLogs.Indexes().CreateMany(ctx, adminLogIndexes); err != nil {
		return fmt.Errorf("failed to create admin_logs indexes: %w", err)
	}

	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.client.Ping(ctx, readpref.Primary())
}
