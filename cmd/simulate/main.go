package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	CancelRatio     float64
	ReadRatio       float64
	PetLimit        int
	HorizonDays     int
	PostgresDSN     string
	JWTSecret       string
}

type pet struct {
	ID         uuid.UUID
	OwnerToken string
}

// DataPool holds the fixtures workers draw from. The pet set is kept small
// on purpose so concurrent bookings collide on the same pets.
type DataPool struct {
	Pets         []pet
	Clinics      []uuid.UUID
	StaffToken   string
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking    OperationMetrics
	Reschedule OperationMetrics
	Cancel     OperationMetrics
	ReadByID   OperationMetrics
	List       OperationMetrics
	Slots      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("reschedule", cfg.RescheduleRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("fixtures loaded", zap.Int("pets", len(dataPool.Pets)), zap.Int("clinics", len(dataPool.Clinics)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Fatal("verify overlaps", zap.Error(err))
	}
	if overlaps > 0 {
		logger.Error("double bookings detected", zap.Int("pairs", overlaps))
		os.Exit(2)
	}
	logger.Info("no overlapping blocking appointments found")
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		PetLimit:        getInt("SIM_PET_LIMIT", 20),
		HorizonDays:     getInt("SIM_HORIZON_DAYS", 3),
		PostgresDSN:     baseCfg.PostgresDSN,
		JWTSecret:       baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return cfg, errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return cfg, errors.New("SIM_DURATION must be > 0")
	}
	if cfg.HorizonDays <= 0 {
		return cfg, errors.New("SIM_HORIZON_DAYS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.Duration+time.Hour)
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, owner_id FROM pets WHERE is_active ORDER BY random() LIMIT $1
	`, cfg.PetLimit)
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}
	for rows.Next() {
		var id, ownerID uuid.UUID
		if err := rows.Scan(&id, &ownerID); err != nil {
			rows.Close()
			return nil, err
		}
		token, err := tokens.Issue(auth.Actor{ID: ownerID, Role: auth.RolePetOwner})
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Pets = append(dataPool.Pets, pet{ID: id, OwnerToken: token})
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT id FROM clinics WHERE is_active LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("load clinics: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Clinics = append(dataPool.Clinics, id)
	}
	rows.Close()

	var staffUser uuid.UUID
	if err := pool.QueryRow(ctx, `SELECT id FROM users WHERE role = 'clinic_staff' LIMIT 1`).Scan(&staffUser); err != nil {
		return nil, fmt.Errorf("load staff user: %w", err)
	}
	if dataPool.StaffToken, err = tokens.Issue(auth.Actor{ID: staffUser, Role: auth.RoleClinicStaff}); err != nil {
		return nil, err
	}

	if len(dataPool.Pets) == 0 {
		return nil, errors.New("no pets loaded, run cmd/seed first")
	}
	if len(dataPool.Clinics) == 0 {
		return nil, errors.New("no clinics loaded, run cmd/seed first")
	}
	return dataPool, nil
}

// countOverlaps returns the number of pairs of blocking appointments for the
// same pet whose intervals intersect. Anything above zero is a double booking.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b ON a.pet_id = b.pet_id AND a.id < b.id
		WHERE a.is_active AND b.is_active
		  AND a.status IN ('pending', 'confirmed')
		  AND b.status IN ('pending', 'confirmed')
		  AND a.scheduled_date < b.scheduled_end
		  AND b.scheduled_date < a.scheduled_end
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < s.config.BookingRatio+s.config.RescheduleRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doList(ctx, rng)
			case 2:
				s.doSlots(ctx, rng)
			}
		}
	}
}

// randomStart picks a half-hour aligned time inside the working day a few
// days out, so bookings from different workers land on the same slots.
func (s *Simulator) randomStart(rng *rand.Rand) time.Time {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))
	return day.Add(8*time.Hour + time.Duration(rng.Intn(20))*30*time.Minute)
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, latency, err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Pets[rng.Intn(len(s.pool.Pets))]
	clinicID := s.pool.Clinics[rng.Intn(len(s.pool.Clinics))]

	status, data, latency, err := s.send(ctx, http.MethodPost, "/appointments", p.OwnerToken, map[string]any{
		"pet_id":           p.ID,
		"clinic_id":        clinicID,
		"scheduled_date":   s.randomStart(rng),
		"duration_minutes": 30,
		"appointment_type": "consultation",
	})
	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}

	if status == http.StatusCreated {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(data, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddAppointment(created.ID)
		}
	}
	s.metrics.Booking.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, _, latency, err := s.send(ctx, http.MethodPatch, "/appointments/"+apptID.String()+"/reschedule", s.pool.StaffToken,
		map[string]any{"new_date": s.randomStart(rng)})
	if err != nil {
		s.metrics.Reschedule.Record(latency, false, false)
		return
	}
	// A 400 means the appointment already left a reschedulable status.
	s.metrics.Reschedule.Record(latency, status == http.StatusOK, status == http.StatusConflict || status == http.StatusBadRequest)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, _, latency, err := s.send(ctx, http.MethodDelete, "/appointments/"+apptID.String(), s.pool.StaffToken, nil)
	if err != nil {
		s.metrics.Cancel.Record(latency, false, false)
		return
	}
	s.metrics.Cancel.Record(latency, status == http.StatusOK, status == http.StatusBadRequest)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, _, latency, err := s.send(ctx, http.MethodGet, "/appointments/"+apptID.String(), s.pool.StaffToken, nil)
	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Pets[rng.Intn(len(s.pool.Pets))]

	status, _, latency, err := s.send(ctx, http.MethodGet, "/appointments?pet_id="+p.ID.String()+"&limit=20", p.OwnerToken, nil)
	s.metrics.List.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	clinicID := s.pool.Clinics[rng.Intn(len(s.pool.Clinics))]
	date := s.randomStart(rng).Format("2006-01-02")

	status, _, latency, err := s.send(ctx, http.MethodGet, "/appointments/available-slots/"+clinicID.String()+"?date="+date, s.pool.StaffToken, nil)
	s.metrics.Slots.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Pets under contention: %d\n", len(s.pool.Pets))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by pet", &s.metrics.List)
	printOperationReport("Available slots", &s.metrics.Slots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
