package workouts

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/fitlog/internal/telemetry/tracing"
	"github.com/2beens/fitlog/pkg"
)

const selectWorkoutColumns = `workout_name, duration, distance, heart_rate, weather, calories_burned, date_time`

var _ workoutsRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, workout Workout) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout.name", workout.Name))

	var dateTime *time.Time
	if !workout.DateTime.IsZero() {
		dateTime = &workout.DateTime
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO workouts
				(workout_name, duration, distance, heart_rate, weather, calories_burned, date_time)
				VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, CURRENT_TIMESTAMP))
			RETURNING date_time;`,
		workout.Name, workout.Duration, workout.Distance, workout.HeartRate,
		workout.Weather, workout.CaloriesBurned, dateTime,
	)
	if err := row.Scan(&workout.DateTime); err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: [%s]", ErrDuplicateKey, workout.Name)
		}
		if pkg.IsCheckViolationError(err) {
			return nil, fmt.Errorf("%w: [%s]: %w", ErrValidation, workout.Name, err)
		}
		return nil, storeErr("insert workout", err)
	}

	return &workout, nil
}

func (r *Repo) Exists(ctx context.Context, name string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.exists")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout.name", name))

	var exists bool
	if err := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM workouts WHERE workout_name = $1);`,
		name,
	).Scan(&exists); err != nil {
		return false, storeErr("check workout exists", err)
	}
	return exists, nil
}

// List returns the workouts matching the predicate, newest first.
func (r *Repo) List(ctx context.Context, predicate Predicate) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	where, args := predicate.SQL(1)
	span.SetAttributes(attribute.String("where", where))

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(`
			SELECT %s
			FROM workouts
			WHERE %s
			ORDER BY date_time DESC;`, selectWorkoutColumns, where),
		args...,
	)
	if err != nil {
		return nil, storeErr("query workouts", err)
	}
	defer rows.Close()

	list, err := rows2workouts(rows)
	if err != nil {
		return nil, storeErr("scan workouts", err)
	}

	span.SetAttributes(attribute.Int("found", len(list)))
	return list, nil
}

// Delete removes the workout with the given name. Deleting a missing workout
// is not an error, deleted is false in that case.
func (r *Repo) Delete(ctx context.Context, name string) (deleted bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout.name", name))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM workouts WHERE workout_name = $1;`,
		name,
	)
	if err != nil {
		return false, storeErr("delete workout", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Aggregate computes SUM or AVG of a metric over the matching workouts.
// No matching rows (or only NULL values) gives 0.
func (r *Repo) Aggregate(ctx context.Context, aggregation Aggregation, metric Metric, predicate Predicate) (_ float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.aggregate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("aggregation", string(aggregation)))
	span.SetAttributes(attribute.String("metric", string(metric)))

	// both are interpolated below, only known values may pass
	if !aggregation.Valid() {
		return 0, fmt.Errorf("%w: aggregation [%s]", ErrUnknownMetric, aggregation)
	}
	if !metric.Valid() {
		return 0, fmt.Errorf("%w: [%s]", ErrUnknownMetric, metric)
	}

	where, args := predicate.SQL(1)
	var result float64
	if err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(
			`SELECT COALESCE(%s(%s), 0)::float8 FROM workouts WHERE %s;`,
			aggregation, metric, where,
		),
		args...,
	).Scan(&result); err != nil {
		return 0, storeErr("aggregate workouts", err)
	}

	return result, nil
}

func (r *Repo) Count(ctx context.Context, predicate Predicate) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	where, args := predicate.SQL(1)
	var count int
	if err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM workouts WHERE %s;`, where),
		args...,
	).Scan(&count); err != nil {
		return 0, storeErr("count workouts", err)
	}

	return count, nil
}

func rows2workouts(rows pgx.Rows) ([]Workout, error) {
	list := make([]Workout, 0)
	for rows.Next() {
		var w Workout
		if err := rows.Scan(
			&w.Name, &w.Duration, &w.Distance, &w.HeartRate,
			&w.Weather, &w.CaloriesBurned, &w.DateTime,
		); err != nil {
			return nil, err
		}
		list = append(list, w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// storeErr marks everything that is not a postgres-side error (connection
// refused, pool closed, timeouts) as ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if pkg.IsPostgresError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
