package main

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/physio-scheduling/internal/api"
	"github.com/hackgods/physio-scheduling/internal/config"
	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/pkg/logging"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	CancelRatio    float64
	WaitlistRatio  float64
	ReadRatio      float64
	HotSlots       int
	PatientLimit   int
	TherapistLimit int
	PostgresDSN    string
	JWTSecret      string
}

// hotSlot is a (date, time, room) that several workers race for.
type hotSlot struct {
	Date string
	Time string
	Room string
}

type DataPool struct {
	Patients   []uuid.UUID
	Therapists []uuid.UUID
	Tokens     map[uuid.UUID]string
	Rooms      []string
	Slots      []hotSlot

	mu           sync.RWMutex
	appointments []createdBooking
}

type createdBooking struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
}

func (dp *DataPool) AddAppointment(b createdBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (createdBooking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return createdBooking{}, false
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
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

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

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Waitlist     OperationMetrics
	Availability OperationMetrics
	List         OperationMetrics
	status       sync.Map // "op:code" -> *int64
}

func (m *Metrics) countStatus(op string, code int) {
	v, _ := m.status.LoadOrStore(op+":"+strconv.Itoa(code), new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *logging.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.ForEnv(baseCfg.Env, baseCfg.LogLevel).With("simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("waitlist", cfg.WaitlistRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("therapists", len(dataPool.Therapists)).
		Int("rooms", len(dataPool.Rooms)).
		Int("hot_slots", len(dataPool.Slots)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(baseCfg config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.1),
		WaitlistRatio:  getFloat("SIM_WAITLIST_RATIO", 0.1),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.3),
		HotSlots:       getInt("SIM_HOT_SLOTS", 20),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 2000),
		TherapistLimit: getInt("SIM_THERAPIST_LIMIT", 20),
		PostgresDSN:    baseCfg.PostgresDSN,
		JWTSecret:      baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.WaitlistRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.WaitlistRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Tokens: make(map[uuid.UUID]string)}

	var err error
	dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Therapists, err = loadIDs(ctx, pool,
		`SELECT id FROM therapists WHERE status IN ('approved', 'active') LIMIT $1`, cfg.TherapistLimit)
	if err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT name FROM rooms WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		dataPool.Rooms = append(dataPool.Rooms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Therapists) == 0 {
		return nil, fmt.Errorf("no bookable therapists loaded")
	}
	if len(dataPool.Rooms) == 0 {
		return nil, fmt.Errorf("no rooms loaded")
	}

	for _, id := range dataPool.Therapists {
		tok, err := api.IssueToken(cfg.JWTSecret, id, []string{"therapist"}, cfg.Duration+time.Minute)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		dataPool.Tokens[id] = tok
	}

	// A small set of slots in the next week keeps workers colliding on the
	// same rooms and therapists.
	gofakeit.Seed(time.Now().UnixNano())
	today := time.Now().UTC()
	for i := 0; i < cfg.HotSlots; i++ {
		day := today.AddDate(0, 0, gofakeit.Number(1, 7))
		dataPool.Slots = append(dataPool.Slots, hotSlot{
			Date: day.Format(time.DateOnly),
			Time: fmt.Sprintf("%02d:%02d", gofakeit.Number(8, 18), 15*gofakeit.Number(0, 3)),
			Room: dataPool.Rooms[gofakeit.Number(0, len(dataPool.Rooms)-1)],
		})
	}

	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.BookingRatio:
				s.doBooking(ctx, rng)
			case r < c.BookingRatio+c.CancelRatio:
				s.doCancel(ctx, rng)
			case r < c.BookingRatio+c.CancelRatio+c.WaitlistRatio:
				s.doWaitlist(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doAvailability(ctx, rng)
				} else {
					s.doList(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) pick(rng *rand.Rand) (uuid.UUID, uuid.UUID, hotSlot) {
	therapist := s.pool.Therapists[rng.Intn(len(s.pool.Therapists))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	return therapist, patient, slot
}

var durations = []int{30, 45, 60}
var appointmentTypes = []string{"initial-assessment", "follow-up", "rehabilitation", "post-operative"}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	therapist, patient, slot := s.pick(rng)

	body := map[string]any{
		"patientId":       patient.String(),
		"date":            slot.Date,
		"time":            slot.Time,
		"duration":        durations[rng.Intn(len(durations))],
		"appointmentType": appointmentTypes[rng.Intn(len(appointmentTypes))],
		"room":            slot.Room,
	}

	start := time.Now()
	code, respBody, err := s.send(ctx, http.MethodPost, "/appointments", therapist, body)
	latency := time.Since(start)

	success := err == nil && code == http.StatusCreated
	if success {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddAppointment(createdBooking{ID: created.ID, TherapistID: therapist})
		}
	}
	s.metrics.Booking.Record(latency, success, err == nil && code == http.StatusConflict)
	s.metrics.countStatus("booking", code)
}

// doCancel frees a booked slot, which hands it to the head of the waiting list.
func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	code, _, err := s.send(ctx, http.MethodPut, "/appointments/"+b.ID.String(), b.TherapistID,
		map[string]any{"status": "cancelled"})
	latency := time.Since(start)

	// Cancelling twice is rejected as an invalid transition; count it as a conflict.
	s.metrics.Cancel.Record(latency, err == nil && code == http.StatusOK, err == nil && code == http.StatusBadRequest)
	s.metrics.countStatus("cancel", code)
}

func (s *Simulator) doWaitlist(ctx context.Context, rng *rand.Rand) {
	therapist, patient, slot := s.pick(rng)

	body := map[string]any{
		"patientId":       patient.String(),
		"desiredDate":     slot.Date,
		"desiredTime":     slot.Time,
		"appointmentType": appointmentTypes[rng.Intn(len(appointmentTypes))],
		"duration":        durations[rng.Intn(len(durations))],
		"roomPreference":  slot.Room,
	}

	start := time.Now()
	code, _, err := s.send(ctx, http.MethodPost, "/waiting-list", therapist, body)
	latency := time.Since(start)

	s.metrics.Waitlist.Record(latency, err == nil && code == http.StatusCreated, err == nil && code == http.StatusConflict)
	s.metrics.countStatus("waitlist", code)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	therapist, _, slot := s.pick(rng)
	path := fmt.Sprintf("/availability?date=%s&time=%s&duration=%d&room=%s",
		slot.Date, slot.Time, durations[rng.Intn(len(durations))], strings.ReplaceAll(slot.Room, " ", "%20"))

	start := time.Now()
	code, _, err := s.send(ctx, http.MethodGet, path, therapist, nil)
	latency := time.Since(start)

	s.metrics.Availability.Record(latency, err == nil && code == http.StatusOK, false)
	s.metrics.countStatus("availability", code)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	therapist, _, slot := s.pick(rng)

	start := time.Now()
	code, _, err := s.send(ctx, http.MethodGet, "/appointments?date="+slot.Date, therapist, nil)
	latency := time.Since(start)

	s.metrics.List.Record(latency, err == nil && code == http.StatusOK, false)
	s.metrics.countStatus("list", code)
}

// send issues a request as the given therapist. A transport error reports code 0.
func (s *Simulator) send(ctx context.Context, method, path string, as uuid.UUID, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pool.Tokens[as])

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Waiting list", &s.metrics.Waitlist)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("List by date", &s.metrics.List)

	var keys []string
	s.metrics.status.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)

	fmt.Println("Status codes:")
	for _, k := range keys {
		v, _ := s.metrics.status.Load(k)
		fmt.Printf("  %-20s %d\n", k, atomic.LoadInt64(v.(*int64)))
	}
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
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
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
