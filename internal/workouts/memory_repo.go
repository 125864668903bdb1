package workouts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ workoutsRepo = (*MemoryRepo)(nil)

// MemoryRepo keeps workouts in memory. Used in tests and when the service
// runs with the -memory flag (no postgres around).
type MemoryRepo struct {
	mu       sync.RWMutex
	workouts map[string]Workout
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		workouts: make(map[string]Workout),
		now:      time.Now,
	}
}

func (r *MemoryRepo) Add(_ context.Context, workout Workout) (*Workout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workouts[workout.Name]; ok {
		return nil, fmt.Errorf("%w: [%s]", ErrDuplicateKey, workout.Name)
	}
	if workout.DateTime.IsZero() {
		workout.DateTime = r.now()
	}

	r.workouts[workout.Name] = workout
	return &workout, nil
}

func (r *MemoryRepo) Exists(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workouts[name]
	return ok, nil
}

func (r *MemoryRepo) List(_ context.Context, predicate Predicate) ([]Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Workout, 0)
	for _, w := range r.workouts {
		if predicate.Matches(w) {
			list = append(list, w)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].DateTime.After(list[j].DateTime)
	})

	return list, nil
}

func (r *MemoryRepo) Delete(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workouts[name]; !ok {
		return false, nil
	}
	delete(r.workouts, name)
	return true, nil
}

// Aggregate skips workouts without a value for the metric, the same way SQL
// aggregates skip NULLs.
func (r *MemoryRepo) Aggregate(_ context.Context, aggregation Aggregation, metric Metric, predicate Predicate) (float64, error) {
	if !aggregation.Valid() {
		return 0, fmt.Errorf("%w: aggregation [%s]", ErrUnknownMetric, aggregation)
	}
	if !metric.Valid() {
		return 0, fmt.Errorf("%w: [%s]", ErrUnknownMetric, metric)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := 0.0
	count := 0
	for _, w := range r.workouts {
		if !predicate.Matches(w) {
			continue
		}
		if v, ok := metric.value(w); ok {
			sum += v
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}
	if aggregation == AggregationAvg {
		return sum / float64(count), nil
	}
	return sum, nil
}

func (r *MemoryRepo) Count(_ context.Context, predicate Predicate) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, w := range r.workouts {
		if predicate.Matches(w) {
			count++
		}
	}
	return count, nil
}
