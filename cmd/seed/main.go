package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/pkg/logging"
)

var equipment = []string{
	"treatment_table",
	"parallel_bars",
	"exercise_bike",
	"ultrasound",
	"tens_unit",
	"weights",
	"balance_board",
	"hydrotherapy_pool",
}

func main() {
	_ = godotenv.Load()
	logger := logging.ForEnv(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).With("seed")
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()
	if err := seedRooms(seedCtx, pool, envInt("SEED_ROOMS", 6), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed rooms")
	}
	if err := seedTherapists(seedCtx, pool, envInt("SEED_THERAPISTS", 20), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed therapists")
	}
	if err := seedPatients(seedCtx, pool, envInt("SEED_PATIENTS", 2000), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedRooms(ctx context.Context, pool *pgxpool.Pool, count int, logger *logging.Logger) error {
	for i := 1; i <= count; i++ {
		kit := make([]string, 0, 3)
		for _, item := range equipment {
			if gofakeit.Bool() {
				kit = append(kit, item)
			}
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO rooms (name, capacity, equipment, is_active, created_at)
			VALUES ($1, $2, $3, TRUE, now())
			ON CONFLICT (name) DO NOTHING
		`, fmt.Sprintf("Room %d", i), gofakeit.Number(1, 3), kit)
		if err != nil {
			return err
		}
	}
	logger.Info().Int("count", count).Msg("rooms seeded")
	return nil
}

// seedTherapists inserts mostly bookable accounts plus a few still awaiting
// approval, so the approval endpoint has something to act on.
func seedTherapists(ctx context.Context, pool *pgxpool.Pool, count int, logger *logging.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	statuses := []string{"approved", "active", "active", "pending"}
	for i := 0; i < count; i++ {
		id := uuid.New()
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO therapists (id, first_name, last_name, email, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (email) DO NOTHING
		`, id, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), status)
		if err != nil {
			return err
		}
		logger.Debug().Str("therapist_id", id.String()).Str("status", status).Msg("therapist seeded")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Int("count", count).Msg("therapists seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger *logging.Logger) error {
	const batchSize = 500

	runID := time.Now().Unix()
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			var email *string
			if gofakeit.Number(1, 10) > 2 {
				e := gofakeit.Email()
				email = &e
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, medical_record_number, first_name, last_name, phone_number, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), fmt.Sprintf("MRN-%d-%06d", runID, i), gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Phone(), email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
