package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/policy"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var clinicTimezones = []string{
	"UTC",
	"Europe/London",
	"Europe/Berlin",
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Asia/Tokyo",
	"Australia/Sydney",
}

var serviceCatalog = []struct {
	name     string
	duration int
}{
	{"General consultation", 30},
	{"Vaccination", 15},
	{"Dental cleaning", 60},
	{"Wellness exam", 45},
	{"Surgery", 120},
	{"Grooming", 60},
	{"Laboratory test", 30},
	{"Imaging", 45},
}

func main() {
	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	s := &seeder{pool: pool, logger: logger}

	clinics, err := s.seedClinics(ctx, getInt("SEED_CLINICS", 10))
	if err != nil {
		logger.Fatal("seed clinics", zap.Error(err))
	}
	if err := s.seedStaffAndServices(ctx, clinics, getInt("SEED_STAFF_PER_CLINIC", 5)); err != nil {
		logger.Fatal("seed staff", zap.Error(err))
	}
	if err := s.seedOwnersAndPets(ctx, getInt("SEED_OWNERS", 2000), getInt("SEED_MAX_PETS_PER_OWNER", 3)); err != nil {
		logger.Fatal("seed owners", zap.Error(err))
	}
	if err := s.seedSettings(ctx); err != nil {
		logger.Fatal("seed settings", zap.Error(err))
	}

	if opts := redisOptions(); opts != nil {
		rdb, err := redisclient.NewRedisClient(ctx, opts)
		if err != nil {
			logger.Warn("redis unavailable, running servers keep their cached settings", zap.Error(err))
		} else {
			channel := getEnv("POLICY_INVALIDATE_CHANNEL", "scheduling:settings:invalidate")
			if err := policy.PublishInvalidation(ctx, rdb, channel); err != nil {
				logger.Warn("publish settings invalidation", zap.Error(err))
			}
			_ = rdb.Close()
		}
	}

	logger.Info("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func (s *seeder) seedClinics(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.logger.Info("seeding clinics", zap.Int("count", count))

	ids := make([]uuid.UUID, 0, count)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO clinics (id, name, timezone, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, gofakeit.Company()+" Veterinary Clinic", gofakeit.RandomString(clinicTimezones))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (s *seeder) seedStaffAndServices(ctx context.Context, clinics []uuid.UUID, perClinic int) error {
	s.logger.Info("seeding staff and services", zap.Int("clinics", len(clinics)), zap.Int("staff_per_clinic", perClinic))

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, clinicID := range clinics {
			for i := 0; i < perClinic; i++ {
				userID := uuid.New()
				name := gofakeit.Name()
				role := "veterinarian"
				if i%2 == 1 {
					role = "clinic_staff"
				}

				if _, err := tx.Exec(ctx, `
					INSERT INTO users (id, name, email, role, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, userID, name, gofakeit.Email(), role); err != nil {
					return err
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO staff (id, clinic_id, user_id, name, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, uuid.New(), clinicID, userID, name); err != nil {
					return err
				}
			}

			for _, svc := range serviceCatalog {
				if _, err := tx.Exec(ctx, `
					INSERT INTO clinic_services (id, clinic_id, name, duration_minutes, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, uuid.New(), clinicID, svc.name, svc.duration); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *seeder) seedOwnersAndPets(ctx context.Context, owners, maxPets int) error {
	s.logger.Info("seeding owners and pets", zap.Int("owners", owners))

	const batchSize = 500
	species := []string{"dog", "cat", "rabbit", "bird", "hamster"}

	for offset := 0; offset < owners; offset += batchSize {
		end := offset + batchSize
		if end > owners {
			end = owners
		}

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				ownerID := uuid.New()
				if _, err := tx.Exec(ctx, `
					INSERT INTO users (id, name, email, role, created_at, updated_at)
					VALUES ($1, $2, $3, 'pet_owner', now(), now())
				`, ownerID, gofakeit.Name(), gofakeit.Email()); err != nil {
					return err
				}

				for p := gofakeit.Number(1, maxPets); p > 0; p-- {
					if _, err := tx.Exec(ctx, `
						INSERT INTO pets (id, owner_id, name, species, created_at, updated_at)
						VALUES ($1, $2, $3, $4, now(), now())
					`, uuid.New(), ownerID, gofakeit.PetName(), gofakeit.RandomString(species)); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.logger.Info("owners seeded", zap.Int("done", end), zap.Int("total", owners))
	}
	return nil
}

func (s *seeder) seedSettings(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduling_settings (id, min_lead_time_hours, cancellation_window_hours, default_duration_minutes, daily_appointment_cap, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			min_lead_time_hours = EXCLUDED.min_lead_time_hours,
			cancellation_window_hours = EXCLUDED.cancellation_window_hours,
			default_duration_minutes = EXCLUDED.default_duration_minutes,
			daily_appointment_cap = EXCLUDED.daily_appointment_cap,
			updated_at = now()
	`, getInt("DEFAULT_LEAD_TIME_HOURS", 2), getInt("DEFAULT_CANCELLATION_WINDOW_HOURS", 24),
		getInt("DEFAULT_DURATION_MINUTES", 30), getInt("DEFAULT_DAILY_CAP", 0))
	return err
}

// redisOptions returns nil when no redis is configured, in which case
// running servers pick up new settings on their next cache refresh.
func redisOptions() *redis.Options {
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		if opts, err := redis.ParseURL(raw); err == nil {
			return opts
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return &redis.Options{
			Addr:     addr,
			Username: os.Getenv("REDIS_USERNAME"),
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
