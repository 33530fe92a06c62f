package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
	"github.com/yoockh/yooprep/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SessionsCollection = "sessions"

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) repositories.SessionRepository {
	return &sessionRepo{col: db.Collection(SessionsCollection)}
}

func ownerFilter(sessionID, userID string) bson.M {
	return bson.M{"session_id": sessionID, "user_id": userID}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	res, err := r.col.InsertOne(ctx, s)
	if err != nil {
		// uniq_active_per_job turns a racing second insert into a duplicate key
		return mapErr(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		s.ID = oid
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	var s models.Session
	if err := r.col.FindOne(ctx, ownerFilter(sessionID, userID)).Decode(&s); err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *sessionRepo) FindActiveByJob(ctx context.Context, jobID, userID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{
		"job_id":  jobID,
		"user_id": userID,
		"status":  models.SessionActive,
	}).Decode(&s)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	out := []models.Session{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *sessionRepo) SetProgress(ctx context.Context, sessionID, userID string, answered int, index *int) (*models.Session, error) {
	set := bson.M{"answered_questions": answered}
	if index != nil {
		set["current_question_index"] = *index
	}
	return r.findOneAndUpdate(ctx, ownerFilter(sessionID, userID), bson.M{"$set": set})
}

func (r *sessionRepo) Advance(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error) {
	filter := ownerFilter(sessionID, userID)
	filter["$expr"] = bson.M{"$lt": bson.A{"$current_question_index", "$total_questions"}}

	s, err := r.findOneAndUpdate(ctx, filter, advancePipeline(now))
	if errors.Is(err, utils.ErrNotFound) {
		// either missing or already past the last question
		return r.GetByID(ctx, sessionID, userID)
	}
	return s, err
}

func (r *sessionRepo) AdvanceFrom(ctx context.Context, sessionID, userID string, index int, now time.Time) (*models.Session, error) {
	filter := ownerFilter(sessionID, userID)
	filter["status"] = models.SessionActive
	filter["current_question_index"] = index
	filter["total_questions"] = bson.M{"$gt": index}

	s, err := r.findOneAndUpdate(ctx, filter, advancePipeline(now))
	if errors.Is(err, utils.ErrNotFound) {
		if _, gerr := r.GetByID(ctx, sessionID, userID); gerr != nil {
			return nil, gerr
		}
		return nil, utils.ErrConflict
	}
	return s, err
}

func advancePipeline(now time.Time) mongo.Pipeline {
	reachedEnd := bson.M{"$gte": bson.A{"$current_question_index", "$total_questions"}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "current_question_index", Value: bson.M{"$add": bson.A{"$current_question_index", 1}}},
			{Key: "answered_questions", Value: bson.M{"$min": bson.A{
				bson.M{"$add": bson.A{"$answered_questions", 1}},
				"$total_questions",
			}}},
		}}},
		// second stage sees the incremented cursor
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: bson.M{"$cond": bson.A{reachedEnd, string(models.SessionCompleted), "$status"}}},
			{Key: "completed_at", Value: bson.M{"$cond": bson.A{reachedEnd, now.UTC(), "$completed_at"}}},
		}}},
	}
}

func (r *sessionRepo) SetIndex(ctx context.Context, sessionID, userID string, index int) (*models.Session, error) {
	if index < 0 {
		return nil, utils.ErrNotFound
	}
	filter := ownerFilter(sessionID, userID)
	filter["total_questions"] = bson.M{"$gt": index}
	return r.findOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"current_question_index": index}})
}

func (r *sessionRepo) SetStatus(ctx context.Context, sessionID, userID string, status models.SessionStatus, now time.Time) (*models.Session, error) {
	update := bson.M{"$set": bson.M{"status": status}}
	if status == models.SessionCompleted {
		update["$set"] = bson.M{"status": status, "completed_at": now.UTC()}
	} else {
		update["$unset"] = bson.M{"completed_at": ""}
	}
	return r.findOneAndUpdate(ctx, ownerFilter(sessionID, userID), update)
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, ownerFilter(sessionID, userID))
	if err != nil {
		return false, mapErr(err)
	}
	return res.DeletedCount > 0, nil
}

func (r *sessionRepo) findOneAndUpdate(ctx context.Context, filter bson.M, update any) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&s)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}
