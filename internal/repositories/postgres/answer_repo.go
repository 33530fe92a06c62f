package postgres

import (
	"context"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
	"gorm.io/gorm"
)

type answerRepo struct {
	db *gorm.DB
}

func NewAnswerRepo(db *gorm.DB) repositories.AnswerRepository {
	return &answerRepo{db: db}
}

func (r *answerRepo) Insert(ctx context.Context, a *models.Answer) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *answerRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Answer{}).Error
}

func (r *answerRepo) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Answer, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Answer
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
