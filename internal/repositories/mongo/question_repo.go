package mongo

import (
	"context"
	"time"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const QuestionsCollection = "questions"

type questionRepo struct {
	col *mongo.Collection
}

func NewQuestionRepo(db *mongo.Database) repositories.QuestionRepository {
	return &questionRepo{col: db.Collection(QuestionsCollection)}
}

func (r *questionRepo) Upsert(ctx context.Context, q *models.Question) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now

	_, err := r.col.UpdateOne(ctx,
		bson.M{"question_id": q.QuestionID},
		bson.M{
			"$set": bson.M{
				"title":      q.Title,
				"prompt":     q.Prompt,
				"kind":       q.Kind,
				"difficulty": q.Difficulty,
				"topics":     q.Topics,
				"url":        q.URL,
				"source":     q.Source,
				"updated_at": q.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": q.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}

func (r *questionRepo) GetByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	if len(ids) == 0 {
		return []models.Question{}, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"question_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	out := []models.Question{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *questionRepo) SearchByTopic(ctx context.Context, topic string, limit int64) ([]models.Question, error) {
	if limit <= 0 {
		limit = 5
	}

	cur, err := r.col.Find(ctx,
		bson.M{"topics": topic},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	out := []models.Question{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
