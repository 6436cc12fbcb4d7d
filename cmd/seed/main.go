package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/calendar"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

var slotTimes = []string{
	"09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM",
	"02:00 PM", "02:30 PM", "03:00 PM", "03:30 PM", "04:00 PM", "04:30 PM",
}

var specialities = []string{
	"General physician",
	"Gynecologist",
	"Dermatologist",
	"Pediatricians",
	"Neurologist",
	"Gastroenterologist",
}

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors")
	patients := flag.Int("patients", 500, "number of patients")
	appointments := flag.Int("appointments", 2000, "number of appointments")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	zlog.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		zlog.Fatal("ensure schema", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	docs, err := seedDoctors(ctx, pool, faker, *doctors)
	if err != nil {
		zlog.Fatal("seed doctors", zap.Error(err))
	}
	zlog.Info("doctors seeded", zap.Int("count", len(docs)))

	pats, err := seedPatients(ctx, pool, faker, *patients)
	if err != nil {
		zlog.Fatal("seed patients", zap.Error(err))
	}
	zlog.Info("patients seeded", zap.Int("count", len(pats)))

	repo := appointment.NewPgRepository(pool)
	if err := seedAppointments(ctx, zlog, repo, faker, docs, pats, *appointments); err != nil {
		zlog.Fatal("seed appointments", zap.Error(err))
	}

	if cfg.JWTSecret != "" {
		printTokens(cfg, docs)
	}

	zlog.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]appointment.Doctor, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	docs := make([]appointment.Doctor, 0, count)
	for i := 0; i < count; i++ {
		d := appointment.Doctor{
			ID:         uuid.New(),
			Name:       "Dr. " + faker.Name(),
			Email:      faker.Email(),
			Image:      faker.URL(),
			Speciality: specialities[faker.Number(0, len(specialities)-1)],
			Fee:        float64(faker.Number(20, 150)),
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, image, speciality, fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, d.ID, d.Name, d.Email, d.Image, d.Speciality, d.Fee)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return docs, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]appointment.Patient, error) {
	const batchSize = 500

	pats := make([]appointment.Patient, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			p := appointment.Patient{
				ID:          uuid.New(),
				Name:        faker.Name(),
				Image:       faker.URL(),
				DateOfBirth: faker.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0)).Format("2006-01-02"),
			}
			// Some patients never gave an email; their notifications are skipped.
			if faker.Number(1, 10) > 1 {
				p.Email = faker.Email()
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, image, dob, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, p.ID, p.Name, p.Email, p.Image, p.DateOfBirth)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			pats = append(pats, p)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return pats, nil
}

func seedAppointments(
	ctx context.Context,
	zlog *zap.Logger,
	repo *appointment.PgRepository,
	faker *gofakeit.Faker,
	docs []appointment.Doctor,
	pats []appointment.Patient,
	count int,
) error {
	if len(docs) == 0 || len(pats) == 0 {
		return fmt.Errorf("need doctors and patients before appointments")
	}

	today := time.Now()
	for i := 0; i < count; i++ {
		d := docs[faker.Number(0, len(docs)-1)]
		p := pats[faker.Number(0, len(pats)-1)]
		day := calendar.FromTime(today.AddDate(0, 0, faker.Number(-30, 30)))

		status := appointment.StatusPending
		switch n := faker.Number(1, 10); {
		case n <= 3:
			status = appointment.StatusCompleted
		case n == 4:
			status = appointment.StatusCancelled
		}

		_, err := repo.CreateAppointment(ctx, appointment.Appointment{
			PatientID: p.ID,
			DoctorID:  d.ID,
			Patient: appointment.PatientSnapshot{
				Name:        p.Name,
				Email:       p.Email,
				Image:       p.Image,
				DateOfBirth: p.DateOfBirth,
			},
			Doctor: appointment.DoctorSnapshot{
				Name:  d.Name,
				Image: d.Image,
				Fee:   d.Fee,
			},
			SlotDate: day.SlotString(),
			SlotTime: slotTimes[faker.Number(0, len(slotTimes)-1)],
			Amount:   d.Fee,
			Payment:  faker.Bool(),
			Status:   status,
		})
		if err != nil {
			return err
		}

		if (i+1)%500 == 0 {
			zlog.Info("appointments seeded", zap.Int("done", i+1), zap.Int("total", count))
		}
	}

	return nil
}

func printTokens(cfg config.Config, docs []appointment.Doctor) {
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer)

	admin, err := tokens.Sign(auth.Claims{Subject: uuid.New(), Role: auth.RoleAdmin}, 24*time.Hour)
	if err != nil {
		log.Printf("sign admin token: %v", err)
		return
	}
	fmt.Printf("admin token:\n%s\n\n", admin)

	for i, d := range docs {
		if i == 3 {
			break
		}
		tok, err := tokens.Sign(auth.Claims{Subject: d.ID, Role: auth.RoleDoctor}, 24*time.Hour)
		if err != nil {
			log.Printf("sign doctor token: %v", err)
			return
		}
		fmt.Printf("doctor %s (%s):\n%s\n\n", d.Name, d.ID, tok)
	}
}
