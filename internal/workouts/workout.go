package workouts

import "time"

// Workout is a single recorded training session.
// Duration is always seconds and Distance always kilometers.
type Workout struct {
	Name           string    `json:"workout_name"`
	Duration       int       `json:"duration"`
	Distance       float64   `json:"distance"`
	HeartRate      *int      `json:"heart_rate"`
	Weather        *string   `json:"weather"`
	CaloriesBurned *int      `json:"calories_burned"`
	DateTime       time.Time `json:"date_time"`
}

// NewWorkoutRequest is the body of POST /add-workout.
type NewWorkoutRequest struct {
	Name      string   `json:"workout_name"`
	Duration  int      `json:"duration"`
	Distance  float64  `json:"distance"`
	HeartRate int      `json:"heart_rate"`
	Activity  string   `json:"activity"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lon"`
}

type DeleteWorkoutRequest struct {
	Name string `json:"workout_name"`
}

// Summary aggregates all metrics for the current timeframe bucket.
// Durations stay in seconds here.
type Summary struct {
	Timeframe     Timeframe `json:"timeframe"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Count         int       `json:"count"`
	TotalDistance float64   `json:"total_distance"`
	TotalDuration int       `json:"total_duration_seconds"`
	TotalCalories int       `json:"total_calories"`
	AvgDistance   float64   `json:"avg_distance"`
	AvgDuration   float64   `json:"avg_duration_seconds"`
	AvgHeartRate  int       `json:"avg_heartrate"`
	AvgCalories   int       `json:"avg_calories"`
}
