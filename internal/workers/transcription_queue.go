package workers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/yooprep/internal/models"
)

const (
	DefaultTranscriptionStream = "answers:audio"
	DefaultTranscriptionGroup  = "transcribers"

	defaultStreamMaxLen = 10000
)

// RedisTranscriptionQueue appends transcription jobs to a Redis stream read by
// TranscriptionWorkerPool.
type RedisTranscriptionQueue struct {
	rdb    *redis.Client
	stream string
}

func NewRedisTranscriptionQueue(rdb *redis.Client, stream string) *RedisTranscriptionQueue {
	if stream == "" {
		stream = DefaultTranscriptionStream
	}
	return &RedisTranscriptionQueue{rdb: rdb, stream: stream}
}

func (q *RedisTranscriptionQueue) Enqueue(ctx context.Context, job models.TranscriptionJob) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: defaultStreamMaxLen,
		Approx: true,
		Values: jobValues(job),
	}).Err()
}

func jobValues(job models.TranscriptionJob) map[string]any {
	return map[string]any{
		"job_id":         job.JobID,
		"session_id":     job.SessionID,
		"user_id":        job.UserID,
		"question_index": strconv.Itoa(job.QuestionIndex),
		"audio_uri":      job.AudioURI,
		"language":       job.Language,
	}
}

func parseJob(values map[string]any) (models.TranscriptionJob, error) {
	getStr := func(k string) string {
		v, ok := values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	job := models.TranscriptionJob{
		JobID:     getStr("job_id"),
		SessionID: getStr("session_id"),
		UserID:    getStr("user_id"),
		AudioURI:  getStr("audio_uri"),
		Language:  getStr("language"),
	}
	if job.SessionID == "" || job.UserID == "" || job.AudioURI == "" {
		return job, fmt.Errorf("transcription job missing session_id, user_id or audio_uri")
	}

	idx, err := strconv.Atoi(getStr("question_index"))
	if err != nil || idx < 0 {
		return job, fmt.Errorf("transcription job has invalid question_index %q", getStr("question_index"))
	}
	job.QuestionIndex = idx
	return job, nil
}
