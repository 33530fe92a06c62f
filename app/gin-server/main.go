package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooprep/config"
	"github.com/yoockh/yooprep/internal/api/handlers"
	"github.com/yoockh/yooprep/internal/api/middleware"
	"github.com/yoockh/yooprep/internal/api/routes"
	"github.com/yoockh/yooprep/internal/cache"
	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/logger"
	"github.com/yoockh/yooprep/internal/providers/llm"
	"github.com/yoockh/yooprep/internal/providers/stt"
	"github.com/yoockh/yooprep/internal/repositories"
	"github.com/yoockh/yooprep/internal/repositories/memory"
	mongorepo "github.com/yoockh/yooprep/internal/repositories/mongo"
	"github.com/yoockh/yooprep/internal/repositories/postgres"
	"github.com/yoockh/yooprep/internal/services"
	"github.com/yoockh/yooprep/internal/storage"
	"github.com/yoockh/yooprep/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}

	log := logger.New(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Sessions and questions
	var (
		sessionRepo  repositories.SessionRepository
		questionRepo repositories.QuestionRepository
	)
	switch cfg.SessionStore {
	case config.StoreMongo:
		initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		client, err := config.InitMongo(initCtx, cfg)
		if err != nil {
			cancel()
			log.WithError(err).Fatal("MongoDB init error")
		}
		db := client.Database(cfg.MongoDB)
		if err := config.EnsureMongoIndexes(initCtx, db); err != nil {
			cancel()
			log.WithError(err).Fatal("MongoDB index error")
		}
		cancel()
		closers = append(closers, func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(c)
		})
		sessionRepo = mongorepo.NewSessionRepo(db)
		questionRepo = mongorepo.NewQuestionRepo(db)
		log.WithField("db", cfg.MongoDB).Info("MongoDB connected")
	default:
		sessionRepo = memory.NewSessionRepo()
		questionRepo = memory.NewQuestionRepo()
		log.Warn("using in-memory session store; data is lost on restart")
	}

	// Answers
	var answerRepo repositories.AnswerRepository
	if cfg.PostgresURI != "" {
		db, err := config.InitPostgres(cfg.PostgresURI)
		if err != nil {
			log.WithError(err).Fatal("PostgreSQL init error")
		}
		if err := config.MigratePostgres(db); err != nil {
			log.WithError(err).Fatal("PostgreSQL migrate error")
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		answerRepo = postgres.NewAnswerRepo(db)
		log.Info("PostgreSQL connected")
	} else {
		answerRepo = memory.NewAnswerRepo()
		log.Warn("POSTGRES_URI not set; answers kept in memory")
	}

	// Cache, events and the audio queue
	var (
		questionCache cache.Cache
		bus           events.Bus
		queue         services.AudioQueue
		pool          *workers.TranscriptionWorkerPool
	)
	if cfg.RedisURL != "" {
		rdb, err := config.InitRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		closers = append(closers, func() { _ = rdb.Close() })
		questionCache = cache.NewRedisCache(rdb, "yooprep:")
		bus = events.NewRedisBus(rdb)
		if cfg.AudioEnabled() {
			queue = workers.NewRedisTranscriptionQueue(rdb, workers.DefaultTranscriptionStream)
			pool = &workers.TranscriptionWorkerPool{
				Redis:      rdb,
				NumWorkers: cfg.TranscriptionWorkers,
				Logger:     log,
				Events:     bus,
			}
		}
		log.Info("Redis connected")
	} else {
		questionCache = cache.NewMemoryCache(cfg.QuestionCacheTTL(), cache.DefaultCleanupInterval)
		bus = events.NewMemoryBus()
		log.Warn("REDIS_URL not set; cache and events are process-local")
	}

	// Google Cloud
	var provider llm.Provider
	if cfg.GCPProjectID != "" {
		gem, err := llm.NewVertexGemini(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.GeminiModel)
		if err != nil {
			log.WithError(err).Fatal("Vertex AI init error")
		}
		closers = append(closers, func() { _ = gem.Close() })
		provider = gem
	}

	var uploader storage.Uploader
	var speech stt.Provider
	if pool != nil {
		gcs, err := storage.NewGCSUploader(ctx, cfg.AudioBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		closers = append(closers, func() { _ = gcs.Close() })
		uploader = gcs

		gs, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.WithError(err).Fatal("Speech init error")
		}
		closers = append(closers, func() { _ = gs.Close() })
		speech = gs
	}

	sessionSvc := services.NewSessionService(sessionRepo, bus, log)
	questionSvc := services.NewQuestionService(questionRepo, questionCache, provider, cfg.QuestionCacheTTL(), log)
	answerSvc := services.NewAnswerService(services.AnswerDeps{
		Answers:       answerRepo,
		Sessions:      sessionSvc,
		Questions:     questionSvc,
		Uploader:      uploader,
		Queue:         queue,
		Events:        bus,
		Logger:        log,
		AudioMaxBytes: cfg.AnswerAudioMaxBytes,
	})

	if pool != nil {
		pool.Answers = answerSvc
		pool.STT = speech
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("transcription workers")
		}
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Session:  handlers.NewSessionHandler(sessionSvc, questionSvc),
		Answer:   handlers.NewAnswerHandler(answerSvc),
		Question: handlers.NewQuestionHandler(questionSvc),
		WS:       handlers.NewWSHandler(sessionSvc, bus, log),
		Auth: middleware.JWTAuth(middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
}
