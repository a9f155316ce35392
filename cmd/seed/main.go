package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/app"
	"github.com/hackgods/therapy-session-scheduling/internal/config"
	"github.com/hackgods/therapy-session-scheduling/internal/logging"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

func main() {
	therapists := flag.Int("therapists", 50, "number of therapist profiles")
	patients := flag.Int("patients", 2000, "number of patient profiles")
	days := flag.Int("days", 7, "days of availability to publish per therapist")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	gofakeit.Seed(time.Now().UnixNano())

	therapistIDs, err := seedProfiles(ctx, a.Postgres, profile.RoleTherapist, *therapists, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed therapists")
	}
	if _, err := seedProfiles(ctx, a.Postgres, profile.RolePatient, *patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSlots(ctx, a.Slots, therapistIDs, *days, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed slots")
	}

	logger.Info().Msg("seed complete")
}

func seedProfiles(ctx context.Context, pool *pgxpool.Pool, role profile.Role, count int, logger zerolog.Logger) ([]string, error) {
	logger.Info().Str("role", string(role)).Int("count", count).Msg("seeding profiles")

	const batchSize = 500
	ids := make([]string, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			uid := fmt.Sprintf("%s-%s", role, uuid.NewString())
			_, err := tx.Exec(ctx, `
				INSERT INTO profiles (uid, role, display_name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uid, string(role), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, uid)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		logger.Debug().Str("role", string(role)).Int("done", end).Int("total", count).Msg("profiles seeded")
	}

	return ids, nil
}

// seedSlots publishes hourly sessions between 09:00 and 17:00 UTC on weekdays.
func seedSlots(ctx context.Context, slots *slot.Store, therapistIDs []string, days int, logger zerolog.Logger) error {
	logger.Info().Int("therapists", len(therapistIDs)).Int("days", days).Msg("publishing availability")

	start := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	total := 0

	for _, therapistID := range therapistIDs {
		var intervals []slot.Interval
		for d := 0; d < days; d++ {
			day := start.AddDate(0, 0, d)
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for hour := 9; hour < 17; hour++ {
				// skip some hours so calendars look lived in
				if gofakeit.Number(0, 3) == 0 {
					continue
				}
				startsAt := day.Add(time.Duration(hour) * time.Hour)
				intervals = append(intervals, slot.Interval{StartsAt: startsAt, EndsAt: startsAt.Add(50 * time.Minute)})
			}
		}

		published, err := slots.Publish(ctx, therapistID, intervals)
		if err != nil {
			return fmt.Errorf("publish slots for %s: %w", therapistID, err)
		}
		total += len(published)
	}

	logger.Info().Int("slots", total).Msg("availability published")
	return nil
}
