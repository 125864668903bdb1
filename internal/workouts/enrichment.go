package workouts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/2beens/fitlog/internal/telemetry/tracing"
)

const defaultActivity = "running"

type WeatherProvider interface {
	CurrentWeatherIcon(ctx context.Context, lat, lon float64) (string, error)
}

type CaloriesEstimator interface {
	EstimateCalories(ctx context.Context, activity string, durationMinutes int) (int, error)
}

type Locator interface {
	Locate(ctx context.Context, ip string) (lat float64, lon float64, err error)
}

type Enrichment struct {
	WeatherIcon string
	Calories    int
}

type EnricherParams struct {
	Weather          WeatherProvider
	Calories         CaloriesEstimator
	Locator          Locator // optional
	DefaultLatitude  float64
	DefaultLongitude float64
	Timeout          time.Duration
}

// Enricher fetches the weather icon and the calories estimate for a new workout.
type Enricher struct {
	weather    WeatherProvider
	calories   CaloriesEstimator
	locator    Locator
	defaultLat float64
	defaultLon float64
	timeout    time.Duration
}

func NewEnricher(params EnricherParams) *Enricher {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Enricher{
		weather:    params.Weather,
		calories:   params.Calories,
		locator:    params.Locator,
		defaultLat: params.DefaultLatitude,
		defaultLon: params.DefaultLongitude,
		timeout:    timeout,
	}
}

// Enrich runs both lookups concurrently under a single deadline. Any failure,
// including the deadline, is reported as ErrEnrichmentUnavailable.
func (e *Enricher) Enrich(ctx context.Context, req NewWorkoutRequest, clientIP string) (_ *Enrichment, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "enricher.enrich")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	lat, lon := e.coordinates(ctx, req, clientIP)
	span.SetAttributes(attribute.Float64("lat", lat), attribute.Float64("lon", lon))

	activity := req.Activity
	if activity == "" {
		activity = defaultActivity
	}

	enrichment := &Enrichment{}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		icon, err := e.weather.CurrentWeatherIcon(gCtx, lat, lon)
		if err != nil {
			return fmt.Errorf("weather: %w", err)
		}
		enrichment.WeatherIcon = icon
		return nil
	})
	g.Go(func() error {
		kcal, err := e.calories.EstimateCalories(gCtx, activity, durationMinutes(req.Duration))
		if err != nil {
			return fmt.Errorf("calories: %w", err)
		}
		enrichment.Calories = kcal
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s: %w", ErrEnrichmentUnavailable, e.timeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentUnavailable, err)
	}

	return enrichment, nil
}

// coordinates picks the request location, then the caller's geo-ip location,
// then the configured default.
func (e *Enricher) coordinates(ctx context.Context, req NewWorkoutRequest, clientIP string) (float64, float64) {
	if req.Latitude != nil && req.Longitude != nil {
		return *req.Latitude, *req.Longitude
	}

	if e.locator != nil && clientIP != "" {
		lat, lon, err := e.locator.Locate(ctx, clientIP)
		if err == nil {
			return lat, lon
		}
		log.Debugf("enricher: locate [%s]: %s, using default location", clientIP, err)
	}

	return e.defaultLat, e.defaultLon
}

func durationMinutes(seconds int) int {
	minutes := int(math.Round(float64(seconds) / 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}
