// Package app wires configuration, storage, Redis and the scheduling engine into one value shared
// by the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/config"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/db"
	"github.com/hackgods/therapy-session-scheduling/internal/eventlog"
	"github.com/hackgods/therapy-session-scheduling/internal/logging"
	"github.com/hackgods/therapy-session-scheduling/internal/meeting"
	"github.com/hackgods/therapy-session-scheduling/internal/metrics"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
	redisclient "github.com/hackgods/therapy-session-scheduling/internal/redis"
	"github.com/hackgods/therapy-session-scheduling/internal/scheduling"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry

	Slots         *slot.Store
	Appointments  *appointment.Store
	Consultations *consultation.Recorder
	Profiles      *profile.Cache
	Locks         *redisclient.SlotLocker
	Engine        *scheduling.Engine
}

// New connects Postgres and Redis and builds the stores and engine on top of them.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	notifier := redisclient.NewPubSubNotifier(rdb)
	slots := slot.NewStore(slot.NewPgRepository(pgPool), notifier, logging.Component(logger, "slots"))
	appointments := appointment.NewStore(appointment.NewPgRepository(pgPool), notifier, logging.Component(logger, "appointments"))
	consultations := consultation.NewRecorder(consultation.NewPgRepository(pgPool), notifier, logging.Component(logger, "consultations"))
	profiles := profile.NewCache(profile.NewPgDirectory(pgPool))
	schedMetrics := metrics.NewSchedulingMetrics(reg)
	locks := redisclient.NewSlotLocker(rdb, cfg.LockTTL, redisclient.WithObserver(schedMetrics.ObserveSlotLock))

	engine := scheduling.NewEngine(scheduling.Deps{
		Slots:         slots,
		Appointments:  appointments,
		Consultations: consultations,
		Meetings: meeting.NewGenerator(meeting.Options{
			Provider:   cfg.MeetingProvider,
			BaseURL:    cfg.MeetingBaseURL,
			RoomPrefix: cfg.MeetingRoomPrefix,
			TTLMinutes: cfg.MeetingTTLMinutes,
		}),
		Profiles: profiles,
		Locker:   locks,
		Events:   eventlog.NewPgSink(pgPool),
		Metrics:  schedMetrics,
		Logger:   logging.Component(logger, "scheduling"),
	}, scheduling.Config{
		GracePeriod: cfg.SlotGracePeriod,
		HoldTTL:     cfg.HoldTTL,
	})

	return &App{
		Config:        cfg,
		Logger:        logger,
		Postgres:      pgPool,
		Redis:         rdb,
		Registry:      reg,
		Slots:         slots,
		Appointments:  appointments,
		Consultations: consultations,
		Profiles:      profiles,
		Locks:         locks,
		Engine:        engine,
	}, nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("error closing redis")
	}
	a.Postgres.Close()
}
