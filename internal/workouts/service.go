package workouts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/fitlog/internal/telemetry/metrics"
	"github.com/2beens/fitlog/internal/telemetry/tracing"
)

//go:generate mockgen -source=$GOFILE -destination=service_mocks_test.go -package=workouts_test

type workoutsRepo interface {
	Add(ctx context.Context, workout Workout) (*Workout, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, predicate Predicate) ([]Workout, error)
	Delete(ctx context.Context, name string) (bool, error)
	Aggregate(ctx context.Context, aggregation Aggregation, metric Metric, predicate Predicate) (float64, error)
	Count(ctx context.Context, predicate Predicate) (int, error)
}

type workoutEnricher interface {
	Enrich(ctx context.Context, req NewWorkoutRequest, clientIP string) (*Enrichment, error)
}

// ListParams are the raw /get-workouts query values. Empty means absent.
type ListParams struct {
	Name        string
	MinDuration string
	MaxDuration string
	MinDistance string
	MaxDistance string
	HeartRate   string
	StartDate   string
	EndDate     string
}

type ServiceParams struct {
	Repo     workoutsRepo
	Enricher workoutEnricher // nil disables enrichment
	Metrics  *metrics.Manager // nil gets an unregistered manager
	Location *time.Location
	Now      func() time.Time // defaults to time.Now
}

type Service struct {
	repo     workoutsRepo
	enricher workoutEnricher
	metrics  *metrics.Manager
	loc      *time.Location
	now      func() time.Time
}

func NewService(params ServiceParams) *Service {
	loc := params.Location
	if loc == nil {
		loc = time.Local
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	// unregistered manager, counters still work but are never scraped
	metricsManager := params.Metrics
	if metricsManager == nil {
		metricsManager = metrics.NewManager("backend", "fitlog", prometheus.NewRegistry())
	}
	return &Service{
		repo:     params.Repo,
		enricher: params.Enricher,
		metrics:  metricsManager,
		loc:      loc,
		now:      now,
	}
}

// AddWorkout validates, enriches and stores a new workout. Nothing is stored
// when enrichment fails.
func (s *Service) AddWorkout(ctx context.Context, req NewWorkoutRequest, clientIP string) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	req.Name = strings.TrimSpace(req.Name)
	if err := validateNewWorkout(req); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("workout.name", req.Name))

	// enrichment calls cost money, fail early on a known duplicate
	exists, err := s.repo.Exists(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: [%s]", ErrDuplicateKey, req.Name)
	}

	heartRate := req.HeartRate
	workout := Workout{
		Name:      req.Name,
		Duration:  req.Duration,
		Distance:  req.Distance,
		HeartRate: &heartRate,
	}

	if s.enricher != nil {
		enrichment, err := s.enricher.Enrich(ctx, req, clientIP)
		if err != nil {
			s.metrics.CounterEnrichmentFailures.Inc()
			return nil, err
		}
		workout.Weather = &enrichment.WeatherIcon
		workout.CaloriesBurned = &enrichment.Calories
	}

	added, err := s.repo.Add(ctx, workout)
	if err != nil {
		return nil, fmt.Errorf("add workout: %w", err)
	}

	s.metrics.CounterWorkoutsAdded.Inc()
	log.Debugf("workouts: added [%s]", added.Name)

	return added, nil
}

func validateNewWorkout(req NewWorkoutRequest) error {
	var missing []string
	if req.Name == "" {
		missing = append(missing, ColumnName)
	}
	if req.Duration <= 0 || req.Duration > math.MaxInt32 {
		missing = append(missing, ColumnDuration)
	}
	if req.Distance <= 0 {
		missing = append(missing, ColumnDistance)
	}
	if req.HeartRate <= 0 || req.HeartRate > math.MaxInt32 {
		missing = append(missing, ColumnHeartRate)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or invalid %s", ErrValidation, strings.Join(missing, ", "))
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fmt.Errorf("%w: lat and lon go together", ErrValidation)
	}
	if req.Latitude != nil && (math.Abs(*req.Latitude) > 90 || math.Abs(*req.Longitude) > 180) {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}

func (s *Service) ListWorkouts(ctx context.Context, params ListParams) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	criteria, err := s.filterCriteria(params)
	if err != nil {
		return nil, err
	}

	list, err := s.repo.List(ctx, BuildPredicate(criteria))
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	return list, nil
}

func (s *Service) filterCriteria(params ListParams) (FilterCriteria, error) {
	var criteria FilterCriteria
	var err error

	if name := strings.TrimSpace(params.Name); name != "" {
		criteria.NameSubstring = &name
	}
	if criteria.MinDuration, err = parseOptionalInt(ColumnDuration, params.MinDuration); err != nil {
		return FilterCriteria{}, err
	}
	if criteria.MaxDuration, err = parseOptionalInt(ColumnDuration, params.MaxDuration); err != nil {
		return FilterCriteria{}, err
	}
	if criteria.MinDistance, err = parseOptionalFloat(ColumnDistance, params.MinDistance); err != nil {
		return FilterCriteria{}, err
	}
	if criteria.MaxDistance, err = parseOptionalFloat(ColumnDistance, params.MaxDistance); err != nil {
		return FilterCriteria{}, err
	}
	if criteria.HeartRate, err = parseOptionalInt(ColumnHeartRate, params.HeartRate); err != nil {
		return FilterCriteria{}, err
	}

	dateRange, err := NormalizeDateRange(s.now(), s.loc, params.StartDate, params.EndDate)
	if err != nil {
		return FilterCriteria{}, err
	}
	criteria.Start = dateRange.Start
	criteria.End = dateRange.End

	return criteria, nil
}

func parseOptionalInt(field, value string) (*int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	// int columns are int4
	parsed, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s [%s] is not a valid number", ErrValidation, field, value)
	}
	v := int(parsed)
	return &v, nil
}

func parseOptionalFloat(field, value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s [%s] is not a number", ErrValidation, field, value)
	}
	return &v, nil
}

// DeleteWorkout removes a workout by name. A missing name is not an error.
func (s *Service) DeleteWorkout(ctx context.Context, name string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: missing %s", ErrValidation, ColumnName)
	}

	deleted, err := s.repo.Delete(ctx, name)
	if err != nil {
		return false, fmt.Errorf("delete workout: %w", err)
	}
	if deleted {
		s.metrics.CounterWorkoutsDeleted.Inc()
	}
	return deleted, nil
}

// TimeframeStats aggregates a metric over the current bucket of the timeframe.
func (s *Service) TimeframeStats(ctx context.Context, timeframe Timeframe, aggregation Aggregation, metric Metric) (_ float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.stats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("timeframe", string(timeframe)),
		attribute.String("metric", string(metric)),
	)

	if _, err := ParseTimeframe(string(timeframe)); err != nil {
		return 0, err
	}

	result, err := s.repo.Aggregate(ctx, aggregation, metric, timeframe.Predicate(s.now(), s.loc))
	if err != nil {
		return 0, fmt.Errorf("aggregate %s(%s): %w", aggregation, metric, err)
	}
	return result, nil
}

func (s *Service) Summary(ctx context.Context, timeframe Timeframe) (_ *Summary, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.summary")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, err := ParseTimeframe(string(timeframe)); err != nil {
		return nil, err
	}

	from, to := timeframe.Window(s.now(), s.loc)
	predicate := BuildPredicate(FilterCriteria{Start: &from, End: &to})

	count, err := s.repo.Count(ctx, predicate)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	summary := &Summary{
		Timeframe: timeframe,
		From:      from,
		To:        to,
		Count:     count,
	}
	if count == 0 {
		return summary, nil
	}

	aggregate := func(aggregation Aggregation, metric Metric) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = s.repo.Aggregate(ctx, aggregation, metric, predicate)
		return v
	}

	summary.TotalDistance = aggregate(AggregationSum, MetricDistance)
	summary.TotalDuration = int(aggregate(AggregationSum, MetricDuration))
	summary.TotalCalories = int(math.Round(aggregate(AggregationSum, MetricCalories)))
	summary.AvgDistance = aggregate(AggregationAvg, MetricDistance)
	summary.AvgDuration = aggregate(AggregationAvg, MetricDuration)
	summary.AvgHeartRate = int(math.Round(aggregate(AggregationAvg, MetricHeartRate)))
	summary.AvgCalories = int(math.Round(aggregate(AggregationAvg, MetricCalories)))
	if err != nil {
		return nil, fmt.Errorf("summary aggregate: %w", err)
	}

	return summary, nil
}

// IsClientError tells whether err was caused by bad input rather than by the
// store or a third party.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidDateFormat) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrUnknownTimeframe) ||
		errors.Is(err, ErrUnknownMetric)
}
