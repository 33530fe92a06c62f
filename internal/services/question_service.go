package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooprep/internal/cache"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/providers/llm"
	"github.com/yoockh/yooprep/internal/repositories"
	"github.com/yoockh/yooprep/internal/utils"
)

const (
	DefaultGenerateLimit = 10
	MaxGenerateLimit     = 50
	maxTopics            = 8
	perTopicSearch       = 5
)

type GenerateInput struct {
	Job   models.JobContext `json:"job"`
	Limit int               `json:"limit"`
}

type GenerateResult struct {
	Topics      []string          `json:"topics"`
	QuestionIDs []string          `json:"question_ids"`
	Questions   []models.Question `json:"questions"`
}

type QuestionService interface {
	Upsert(ctx context.Context, q *models.Question) (*models.Question, error)
	Resolve(ctx context.Context, ids []string) ([]models.Question, error)
	Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error)
}

type questionService struct {
	questions repositories.QuestionRepository
	cache     cache.Cache
	llm       llm.Provider
	ttl       time.Duration
	log       *logrus.Logger
}

// NewQuestionService builds the question bank service. c may be nil to skip
// caching; provider may be nil, in which case Generate reports Unavailable.
func NewQuestionService(questions repositories.QuestionRepository, c cache.Cache, provider llm.Provider, ttl time.Duration, log *logrus.Logger) QuestionService {
	if log == nil {
		log = logrus.New()
	}
	return &questionService{questions: questions, cache: c, llm: provider, ttl: ttl, log: log}
}

func (s *questionService) Upsert(ctx context.Context, q *models.Question) (*models.Question, error) {
	const op = "QuestionService.Upsert"

	if q == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "question is required", nil)
	}
	q.QuestionID = strings.TrimSpace(q.QuestionID)
	q.Title = strings.TrimSpace(q.Title)
	if q.QuestionID == "" || q.Title == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "question_id and title are required", nil)
	}
	if !q.Kind.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "kind must be one of behavioral, technical, coding", nil)
	}
	q.Topics = normalizeTopics(q.Topics, 0)

	if err := s.questions.Upsert(ctx, q); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to save question", err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.QuestionKey(q.QuestionID)); err != nil {
			s.log.WithError(err).WithField("question_id", q.QuestionID).Warn("question cache invalidation failed")
		}
	}
	return q, nil
}

// Resolve returns the known questions for ids in the order given. Unknown ids
// are skipped.
func (s *questionService) Resolve(ctx context.Context, ids []string) ([]models.Question, error) {
	const op = "QuestionService.Resolve"

	found := make(map[string]models.Question, len(ids))
	var misses []string

	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		if s.cache != nil {
			var q models.Question
			hit, err := s.cache.GetJSON(ctx, cache.QuestionKey(id), &q)
			if err != nil {
				s.log.WithError(err).WithField("question_id", id).Debug("question cache read failed")
			}
			if hit {
				found[id] = q
				continue
			}
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		loaded, err := s.questions.GetByIDs(ctx, misses)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to load questions", err)
		}
		for _, q := range loaded {
			found[q.QuestionID] = q
			if s.cache != nil {
				if err := s.cache.SetJSON(ctx, cache.QuestionKey(q.QuestionID), q, s.ttl); err != nil {
					s.log.WithError(err).WithField("question_id", q.QuestionID).Debug("question cache write failed")
				}
			}
		}
	}

	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := found[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *questionService) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	const op = "QuestionService.Generate"

	if strings.TrimSpace(in.Job.Title) == "" && strings.TrimSpace(in.Job.Description) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "job title or description is required", nil)
	}
	if s.llm == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "question generation is not configured", nil)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = DefaultGenerateLimit
	}
	if limit > MaxGenerateLimit {
		limit = MaxGenerateLimit
	}

	raw, err := llm.Collect(ctx, s.llm, topicPrompt(in.Job))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "topic extraction failed", err)
	}
	topics := parseTopics(raw)
	if len(topics) == 0 {
		s.log.WithField("job_id", in.Job.JobID).Warn("topic extraction returned no topics")
	}

	res := &GenerateResult{Topics: topics, QuestionIDs: []string{}, Questions: []models.Question{}}
	seen := map[string]bool{}

	for _, topic := range topics {
		if len(res.Questions) >= limit {
			break
		}
		found, err := s.questions.SearchByTopic(ctx, topic, perTopicSearch)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to search question bank", err)
		}
		for _, q := range found {
			if seen[q.QuestionID] {
				continue
			}
			seen[q.QuestionID] = true
			res.Questions = append(res.Questions, q)
			res.QuestionIDs = append(res.QuestionIDs, q.QuestionID)
			if len(res.Questions) >= limit {
				break
			}
		}
	}

	return res, nil
}

func topicPrompt(job models.JobContext) string {
	return fmt.Sprintf(`Extract up to %d interview topics for the job below.
Answer with a JSON array of short lowercase strings and nothing else, for example ["system design","go","sql"].

Title: %s
Company: %s
Description:
%s`, maxTopics, job.Title, job.Company, job.Description)
}

// parseTopics reads the model's answer. A JSON array is preferred, possibly
// wrapped in prose or a code fence; otherwise the answer is split on lines and
// commas.
func parseTopics(raw string) []string {
	var list []string
	if i, j := strings.Index(raw, "["), strings.LastIndex(raw, "]"); i >= 0 && j > i {
		if err := json.Unmarshal([]byte(raw[i:j+1]), &list); err != nil {
			list = nil
		}
	}
	if list == nil {
		list = strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == ',' })
	}
	return normalizeTopics(list, maxTopics)
}

// normalizeTopics trims list markers and quotes, lowercases and dedupes.
// limit <= 0 keeps everything.
func normalizeTopics(in []string, limit int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.TrimSpace(t)
		if strings.HasPrefix(t, "```") {
			continue
		}
		t = stripListMarker(t)
		t = strings.Trim(t, "\"'`[] ")
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// stripListMarker removes "- ", "* ", "• " and "1. " / "1) " prefixes.
func stripListMarker(t string) string {
	for _, m := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(t, m) {
			return strings.TrimSpace(t[len(m):])
		}
	}
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i > 0 && i < len(t) && (t[i] == '.' || t[i] == ')') {
		return strings.TrimSpace(t[i+1:])
	}
	return t
}
