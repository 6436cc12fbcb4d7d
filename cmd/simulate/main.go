package main

import (
	"context"
	"fmt"
	"io"
	"log"
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

	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
)

type SimConfig struct {
	APIBaseURL       string
	Workers          int
	RacersPerTarget  int
	AppointmentLimit int
	ReadsPerWorker   int
	PostgresDSN      string
	JWTSecret        string
	JWTIssuer        string
}

type target struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
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
	Transition      OperationMetrics
	DoctorDashboard OperationMetrics
	AdminList       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	targets []target
	tokens  *auth.Manager
	client  *http.Client
	metrics Metrics

	mu        sync.Mutex
	winners   map[uuid.UUID]int
	violation []uuid.UUID
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: workers=%d racers=%d appointments=%d",
		cfg.Workers, cfg.RacersPerTarget, cfg.AppointmentLimit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	targets, err := loadPending(ctx, pgPool, cfg.AppointmentLimit)
	if err != nil {
		log.Fatalf("load appointments: %v", err)
	}

	log.Printf("loaded: %d pending appointments", len(targets))

	sim := &Simulator{
		config:  cfg,
		targets: targets,
		tokens:  auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		winners: make(map[uuid.UUID]int),
	}

	sim.Run()
	sim.PrintReport()

	if len(sim.violation) > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:       getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Workers:          getInt("SIM_WORKERS", 10),
		RacersPerTarget:  getInt("SIM_RACERS", 4),
		AppointmentLimit: getInt("SIM_APPOINTMENT_LIMIT", 200),
		ReadsPerWorker:   getInt("SIM_READS_PER_WORKER", 20),
		PostgresDSN:      baseCfg.PostgresDSN,
		JWTSecret:        baseCfg.JWTSecret,
		JWTIssuer:        baseCfg.JWTIssuer,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to call the API")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.RacersPerTarget < 2 {
		return fmt.Errorf("SIM_RACERS must be >= 2")
	}
	return nil
}

func loadPending(ctx context.Context, pool *pgxpool.Pool, limit int) ([]target, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, doctor_id FROM appointments
		WHERE status = 'Pending'
		ORDER BY random()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.AppointmentID, &t.DoctorID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no pending appointments, run cmd/seed first")
	}
	return out, nil
}

// Run hands appointments to workers. Each appointment is hit by
// RacersPerTarget concurrent complete/cancel calls at once.
func (s *Simulator) Run() {
	ctx := context.Background()

	jobs := make(chan target)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for t := range jobs {
				s.race(ctx, rng, t)
			}
			for j := 0; j < s.config.ReadsPerWorker; j++ {
				s.doReads(ctx, rng)
			}
		}(i)
	}

	for _, t := range s.targets {
		jobs <- t
	}
	close(jobs)

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) race(ctx context.Context, rng *rand.Rand, t target) {
	token, err := s.tokens.Sign(auth.Claims{Subject: t.DoctorID, Role: auth.RoleDoctor}, time.Hour)
	if err != nil {
		log.Printf("sign token: %v", err)
		return
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	var wins int64

	for i := 0; i < s.config.RacersPerTarget; i++ {
		action := "complete"
		if rng.Intn(2) == 0 {
			action = "cancel"
		}
		wg.Add(1)
		go func(action string) {
			defer wg.Done()
			<-start
			url := fmt.Sprintf("%s/doctor/appointments/%s/%s", s.config.APIBaseURL, t.AppointmentID, action)
			status, latency := s.call(ctx, http.MethodPost, url, token)
			success := status == http.StatusOK
			if success {
				atomic.AddInt64(&wins, 1)
			}
			s.metrics.Transition.Record(latency, success, status == http.StatusConflict)
		}(action)
	}

	close(start)
	wg.Wait()

	s.mu.Lock()
	s.winners[t.AppointmentID] = int(wins)
	if wins > 1 {
		s.violation = append(s.violation, t.AppointmentID)
	}
	s.mu.Unlock()
}

func (s *Simulator) doReads(ctx context.Context, rng *rand.Rand) {
	t := s.targets[rng.Intn(len(s.targets))]

	doctorToken, err := s.tokens.Sign(auth.Claims{Subject: t.DoctorID, Role: auth.RoleDoctor}, time.Hour)
	if err != nil {
		return
	}
	status, latency := s.call(ctx, http.MethodGet, s.config.APIBaseURL+"/doctor/dashboard", doctorToken)
	s.metrics.DoctorDashboard.Record(latency, status == http.StatusOK, false)

	adminToken, err := s.tokens.Sign(auth.Claims{Subject: uuid.New(), Role: auth.RoleAdmin}, time.Hour)
	if err != nil {
		return
	}
	date := time.Now().AddDate(0, 0, rng.Intn(61)-30).Format("2006-01-02")
	status, latency = s.call(ctx, http.MethodGet, s.config.APIBaseURL+"/admin/appointments?date="+date, adminToken)
	s.metrics.AdminList.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) call(ctx context.Context, method, url, token string) (int, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, latency
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Appointments raced: %d (x%d concurrent calls)\n", len(s.targets), s.config.RacersPerTarget)
	fmt.Println()

	printOperationReport("Transition", &s.metrics.Transition)
	printOperationReport("Doctor dashboard", &s.metrics.DoctorDashboard)
	printOperationReport("Admin list by date", &s.metrics.AdminList)

	var none, one int
	for _, w := range s.winners {
		switch w {
		case 0:
			none++
		case 1:
			one++
		}
	}
	fmt.Println("Exactly-once check:")
	fmt.Printf("  One winner: %d\n", one)
	fmt.Printf("  No winner: %d\n", none)
	fmt.Printf("  More than one winner: %d\n", len(s.violation))
	for _, id := range s.violation {
		fmt.Printf("    %s\n", id)
	}
	fmt.Println()
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

// Helper functions

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

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
