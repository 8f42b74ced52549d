// Package bootstrap wires configuration into a running service: Postgres,
// the optional Redis, Meilisearch, MinIO and mail backends, and the job
// scheduler. The API server and nelctl share it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nel/api/internal/app"
	"nel/api/internal/config"
	"nel/api/internal/email"
	"nel/api/internal/jobs"
	"nel/api/internal/logger"
	"nel/api/internal/search"
	"nel/api/internal/session"
	"nel/api/internal/storage"
	"nel/api/internal/store"
)

type Deps struct {
	Config    config.Config
	DB        *sql.DB
	Store     *store.PostgresStore
	Service   *app.Service
	Scheduler *jobs.Scheduler

	redis *session.RedisStore
	meili *search.Meili
}

// Open connects to Postgres and applies pending migrations. With migrate
// false the schema is left alone.
func Open(ctx context.Context, cfg config.Config, migrate bool) (*Deps, error) {
	log := logger.GetLogger()

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if migrate {
		if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	deps := &Deps{Config: cfg, DB: db, Store: store.NewPostgresStore(db)}
	var opts []app.Option
	var claimer email.Claimer

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		deps.redis = redisStore
		claimer = redisStore
		opts = append(opts, app.WithSessionStore(redisStore))
		log.Info("using redis for refresh sessions")
	} else {
		log.Info("using postgres for refresh sessions")
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		deps.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		opts = append(opts, app.WithSearch(search.NewService(deps.meili, deps.Store)))
	}

	blobs, err := storage.NewBlobs(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	if blobs != nil {
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.Warn("object storage unavailable, document uploads will fail", zap.Error(err))
		}
		opts = append(opts, app.WithBlobs(blobs))
	}

	if sender := newSender(cfg); sender != nil {
		opts = append(opts, app.WithMailer(email.NewMailer(sender, deps.Store, claimer)))
		log.Info("email delivery enabled", zap.String("provider", sender.Name()))
	} else {
		log.Warn("email delivery disabled, tokens are returned in responses")
	}

	deps.Service = app.New(cfg, deps.Store, opts...)
	deps.Scheduler = jobs.NewScheduler(deps.Store, deps.Service)
	return deps, nil
}

// newSender prefers Resend over SMTP and returns nil when neither is set.
func newSender(cfg config.Config) email.Sender {
	if strings.TrimSpace(cfg.ResendAPIKey) != "" {
		return email.NewResendSender(cfg.ResendAPIKey, "NEL <noreply@"+cfg.EmailFromDomain+">")
	}
	if strings.TrimSpace(cfg.SMTPHost) != "" {
		return email.NewSMTPSender(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	}
	return nil
}

func (d *Deps) Close() {
	if d.meili != nil {
		d.meili.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
