package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KishorKumarParoi/KTube-backend/internal/config"
	s3infra "github.com/KishorKumarParoi/KTube-backend/internal/infra/s3"
	pgrepo "github.com/KishorKumarParoi/KTube-backend/internal/repo/postgres"
	redrepo "github.com/KishorKumarParoi/KTube-backend/internal/repo/redis"
	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	mediasvc "github.com/KishorKumarParoi/KTube-backend/internal/services/media"
	ratesvc "github.com/KishorKumarParoi/KTube-backend/internal/services/rate"
	userssvc "github.com/KishorKumarParoi/KTube-backend/internal/services/users"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	userRepo := pgrepo.NewUserRepo(pool)
	mediaStorage := mediasvc.NewS3Storage(s3Client, cfg.S3.Bucket)

	userService := userssvc.NewService(userRepo)
	userService.AttachURLSigner(mediaStorage)
	mediaService := mediasvc.NewService(userRepo, mediaStorage)

	tokenManager := authsvc.NewTokenManager(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
	)
	authService := authsvc.NewService(tokenManager, userRepo, newCredentialStore(userService))

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		rateRepo := redrepo.NewRateRepo(redisClient)
		authService.AttachRateLimiter(ratesvc.NewLimiter(
			rateRepo,
			cfg.Limits.LoginPerMinute,
			cfg.Limits.LoginPer10Min,
		))
	} else {
		log.Warn("redis addr not configured, login throttling disabled")
	}

	RegisterRoutes(r, Dependencies{
		AuthService:  authService,
		UserService:  userService,
		MediaService: mediaService,
		Logger:       log,
		Config:       cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
