package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/telefile/telefile/internal/models"
)

// UpsertUser creates or refreshes a user record from their latest message.
func (m *MongoDB) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"username":     user.Username,
			"first_name":   user.FirstName,
			"last_name":    user.LastName,
			"last_seen_at": now,
		},
		"$setOnInsert": bson.M{
			"user_id":    user.UserID,
			"banned":     false,
			"created_at": now,
			"stats":      models.UserStats{},
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": user.UserID}, update, opts)
	return err
}

// GetUser returns nil without error when the user is unknown.
func (m *MongoDB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := m.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *MongoDB) IsUserBanned(ctx context.Context, userID int64) (bool, error) {
	user, err := m.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil && user.Banned, nil
}

func (m *MongoDB) BanUser(ctx context.Context, userID, adminID int64, reason string) error {
	now := time.Now()
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
		"$set": bson.M{
			"banned":     true,
			"ban_reason": reason,
			"banned_at":  now,
		},
	})
	if err != nil {
		return err
	}
	return m.LogAdminAction(ctx, adminID, "ban_user", map[string]interface{}{
		"user_id": userID,
		"reason":  reason,
	})
}

func (m *MongoDB) UnbanUser(ctx context.Context, userID, adminID int64) error {
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
		"$set":   bson.M{"banned": false},
		"$unset": bson.M{"ban_reason": "", "banned_at": ""},
	})
	if err != nil {
		return err
	}
	return m.LogAdminAction(ctx, adminID, "unban_user", map[string]interface{}{
		"user_id": userID,
	})
}

// IncrementUserStats bumps the per-user transfer counters.
func (m *MongoDB) IncrementUserStats(ctx context.Context, userID int64, success bool, bytes int64) error {
	inc := bson.M{"stats.transfers": 1}
	if success {
		inc["stats.bytes_transferred"] = bytes
	} else {
		inc["stats.failures"] = 1
	}
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$inc": inc})
	return err
}

// LinkGoFileAccount stores a verified hosting-account token for a user.
func (m *MongoDB) LinkGoFileAccount(ctx context.Context, userID int64, token, accountID string) error {
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
		"$set": bson.M{
			"gofile_token":      token,
			"gofile_account_id": accountID,
		},
	})
	return err
}

func (m *MongoDB) UnlinkGoFileAccount(ctx context.Context, userID int64) error {
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
		"$unset": bson.M{"gofile_token": "", "gofile_account_id": ""},
	})
	return err
}

func (m *MongoDB) SaveFile(ctx context.Context, file *models.FileRecord) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now()
	}
	_, err := m.files.InsertOne(ctx, file)
	return err
}

func (m *MongoDB) ListUserFiles(ctx context.Context, userID int64, limit int64) ([]models.FileRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := m.files.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var files []models.FileRecord
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// SaveTransfer persists the terminal record of one transfer.
func (m *MongoDB) SaveTransfer(ctx context.Context, record *models.TransferRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := m.transfers.InsertOne(ctx, record)
	return err
}

func (m *MongoDB) LogAdminAction(ctx context.Context, adminID int64, action string, details map[string]interface{}) error {
	_, err := m.adminLogs.InsertOne(ctx, &models.AdminLog{
		AdminID:   adminID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return err
}

func (m *MongoDB) GetAdminLogs(ctx context.Context, limit int64) ([]models.AdminLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := m.adminLogs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.AdminLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// GetStats aggregates the counters shown by /stats and the ops API.
func (m *MongoDB) GetStats(ctx context.Context) (*models.BotStats, error) {
	stats := &models.BotStats{}

	var err error
	if stats.TotalUsers, err = m.users.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, err
	}
	if stats.TotalFiles, err = m.files.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, err
	}
	if stats.TotalTransfers, err = m.transfers.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, err
	}
	if stats.FailedTransfers, err = m.transfers.CountDocuments(ctx, bson.M{"success": false}); err != nil {
		return nil, err
	}

	cursor, err := m.files.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$file_size"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var totals []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, err
	}
	if len(totals) > 0 {
		stats.TotalBytesStored = totals[0].Total
	}

	if stats.TotalTransfers > 0 {
		succeeded := stats.TotalTransfers - stats.FailedTransfers
		stats.SuccessRate = float64(succeeded) / float64(stats.TotalTransfers) * 100
	}
	return stats, nil
}
