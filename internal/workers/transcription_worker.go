package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/providers/stt"
	"github.com/yoockh/yooprep/internal/services"
	"github.com/yoockh/yooprep/internal/utils"
)

// TranscriptionWorkerPool consumes recorded answers from a Redis stream,
// transcribes them and records the text as the session's next answer.
type TranscriptionWorkerPool struct {
	Redis      *redis.Client
	Answers    services.AnswerService
	STT        stt.Provider
	Events     events.Publisher
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *TranscriptionWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Answers == nil || p.STT == nil {
		return errors.New("TranscriptionWorkerPool missing dependency: Redis/Answers/STT must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultTranscriptionStream
	}
	if p.Group == "" {
		p.Group = DefaultTranscriptionGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "t"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	err := p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	p.Logger.WithFields(logrus.Fields{
		"stream":  p.Stream,
		"group":   p.Group,
		"workers": p.NumWorkers,
	}).Info("transcription workers started")
	return nil
}

func (p *TranscriptionWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    4,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("xreadgroup failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *TranscriptionWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	job, err := parseJob(msg.Values)
	if err != nil {
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("dropping malformed transcription job")
		return
	}
	p.process(ctx, job)
}

// process runs one job to completion. Failures are reported on the session's
// event channel; the job is never retried.
func (p *TranscriptionWorkerPool) process(ctx context.Context, job models.TranscriptionJob) {
	log := p.Logger.WithFields(logrus.Fields{
		"job_id":         job.JobID,
		"session_id":     job.SessionID,
		"question_index": job.QuestionIndex,
	})
	language := stt.NormalizeLanguage(strings.TrimSpace(job.Language))

	start := time.Now()
	text, conf, err := p.STT.TranscribeURI(ctx, job.AudioURI, language)
	if err != nil {
		log.WithError(err).Error("stt failed")
		p.fail(ctx, job, "transcription failed")
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("empty transcription")
		p.fail(ctx, job, "no speech detected")
		return
	}

	idx := job.QuestionIndex
	_, err = p.Answers.Submit(ctx, job.UserID, job.SessionID, text, services.SubmitOptions{
		Source:        models.AnswerAudio,
		ExpectedIndex: &idx,
		AudioURI:      job.AudioURI,
		Metadata: map[string]any{
			"job_id":        job.JobID,
			"language":      language,
			"confidence":    conf,
			"processing_ms": time.Since(start).Milliseconds(),
		},
	})
	if err != nil {
		log.WithError(err).Warn("recording transcribed answer failed")
		p.fail(ctx, job, safeMessage(err))
		return
	}

	log.WithField("confidence", conf).Info("audio answer recorded")
}

func (p *TranscriptionWorkerPool) fail(ctx context.Context, job models.TranscriptionJob, message string) {
	if p.Events == nil {
		return
	}
	ev := events.Event{Type: events.TypeAnswerFailed, Message: message}
	if err := p.Events.Publish(ctx, job.SessionID, ev); err != nil {
		p.Logger.WithError(err).WithField("session_id", job.SessionID).Warn("publish answer event failed")
	}
}

func safeMessage(err error) string {
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "failed to record answer"
}
