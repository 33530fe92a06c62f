package config

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/yooprep/internal/models"
	mongorepo "github.com/yoockh/yooprep/internal/repositories/mongo"
)

// EnsureMongoIndexes creates the indexes the repositories rely on. The
// uniq_active_per_job index is what enforces one active session per job.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sessions := db.Collection(mongorepo.SessionsCollection)
	_, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("by_user_started"),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "job_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_per_job").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": models.SessionActive}),
		},
	})
	if err != nil {
		return err
	}

	questions := db.Collection(mongorepo.QuestionsCollection)
	_, err = questions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "question_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_question_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "topics", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("by_topic"),
		},
	})
	return err
}
