package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitlog/internal/config"
	"github.com/2beens/fitlog/internal/db"
	"github.com/2beens/fitlog/internal/logging"
	"github.com/2beens/fitlog/internal/workouts"
)

var (
	activities   = []string{"Run", "Ride", "Swim", "Hike", "Row", "Walk"}
	weatherIcons = []string{"01d", "02d", "03d", "04d", "09d", "10d", "13d", "50d"}
)

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	count := flag.Int("count", 50, "number of fake workouts to add")
	days := flag.Int("days", 90, "spread workouts over this many past days")
	seed := flag.Int64("seed", 0, "faker seed, 0 for random")
	flag.Parse()

	logging.Setup(logging.LoggerSetupParams{LogLevel: "info"})

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		ConnString: cfg.DatabaseURL,
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     cfg.PostgresUser,
		DBPassword: os.Getenv("POSTGRES_PASSWORD"),
		SSLMode:    cfg.PostgresSSLMode,
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	defer dbPool.Close()

	if err := db.EnsureSchema(ctx, dbPool); err != nil {
		log.Fatalf("ensure schema: %s", err)
	}

	repo := workouts.NewRepo(dbPool)
	faker := gofakeit.New(*seed)
	now := time.Now()

	added, skipped := 0, 0
	for i := 0; i < *count; i++ {
		workout := fakeWorkout(faker, now, *days)
		if _, err := repo.Add(ctx, workout); err != nil {
			if errors.Is(err, workouts.ErrDuplicateKey) {
				skipped++
				continue
			}
			log.Fatalf("add workout [%s]: %s", workout.Name, err)
		}
		added++
	}

	log.Infof("seeded %d workouts, %d skipped as duplicates", added, skipped)
}

func fakeWorkout(faker *gofakeit.Faker, now time.Time, days int) workouts.Workout {
	activity := faker.RandomString(activities)
	duration := faker.Number(10*60, 150*60)
	// km/h per activity roughly
	speed := map[string]float64{
		"Run": 10, "Ride": 25, "Swim": 2.5, "Hike": 4.5, "Row": 8, "Walk": 5,
	}[activity] * faker.Float64Range(0.8, 1.2)
	distance := math.Round(speed*float64(duration)/3600*100) / 100

	heartRate := faker.Number(100, 185)
	calories := int(math.Round(float64(duration) / 60 * faker.Float64Range(6, 14)))
	weather := fmt.Sprintf("https://openweathermap.org/img/wn/%s@2x.png", faker.RandomString(weatherIcons))

	return workouts.Workout{
		Name:           fmt.Sprintf("%s %s %s", faker.Adjective(), activity, faker.LetterN(5)),
		Duration:       duration,
		Distance:       distance,
		HeartRate:      &heartRate,
		Weather:        &weather,
		CaloriesBurned: &calories,
		DateTime:       faker.DateRange(now.AddDate(0, 0, -days), now),
	}
}
