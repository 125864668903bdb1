//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitlog/internal/workouts"
)

func (s *IntegrationTestSuite) doRequest(ctx context.Context, method, path string, body any) (int, []byte) {
	t := s.T()

	var reqBody io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Real-Ip", testClientIP)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBytes
}

func (s *IntegrationTestSuite) addWorkout(ctx context.Context, name string, duration int, distance float64, heartRate int) *workouts.Workout {
	t := s.T()
	status, body := s.doRequest(ctx, http.MethodPost, "/add-workout", map[string]any{
		"workout_name": name,
		"duration":     duration,
		"distance":     distance,
		"heart_rate":   heartRate,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var addResp workouts.AddWorkoutResponse
	require.NoError(t, json.Unmarshal(body, &addResp))
	require.NotNil(t, addResp.Workout)
	return addResp.Workout
}

func (s *IntegrationTestSuite) TestAddWorkout_Enriched() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	added := s.addWorkout(ctx, "Morning Run", 1800, 5.2, 150)
	require.NotNil(t, added.Weather)
	assert.Equal(t, "https://openweathermap.org/img/wn/01d@2x.png", *added.Weather)
	require.NotNil(t, added.CaloriesBurned)
	assert.Equal(t, 300, *added.CaloriesBurned)

	// persisted row
	var weather string
	var calories, duration int
	err := s.DB.QueryRow(
		`SELECT weather, calories_burned, duration FROM workouts WHERE workout_name = $1`,
		"Morning Run",
	).Scan(&weather, &calories, &duration)
	require.NoError(t, err)
	assert.Equal(t, *added.Weather, weather)
	assert.Equal(t, 300, calories)
	assert.Equal(t, 1800, duration)

	// the client location is cached in redis
	cachedLoc, err := s.redisClient.Get(ctx, "ip-loc::"+testClientIP).Result()
	require.NoError(t, err)
	assert.Equal(t, "39.5680,2.6835", cachedLoc)

	// duplicate name is rejected before any lookup
	weatherCalls := s.thirdParty.weatherCalls.Load()
	status, body := s.doRequest(ctx, http.MethodPost, "/add-workout", map[string]any{
		"workout_name": "Morning Run",
		"duration":     900,
		"distance":     2.0,
		"heart_rate":   140,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "already exists")
	assert.Equal(t, weatherCalls, s.thirdParty.weatherCalls.Load())
}

func (s *IntegrationTestSuite) TestAddWorkout_EnrichmentFailureStoresNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	s.thirdParty.failCalories.Store(true)
	defer s.thirdParty.failCalories.Store(false)

	status, body := s.doRequest(ctx, http.MethodPost, "/add-workout", map[string]any{
		"workout_name": "Unlucky Ride",
		// a duration no other test uses, so the calories cache is cold
		"duration":   4321,
		"distance":   30.5,
		"heart_rate": 135,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "unavailable")

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM workouts`).Scan(&count))
	assert.Zero(t, count)
}

func (s *IntegrationTestSuite) TestGetWorkouts_Filters() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	s.addWorkout(ctx, "Easy Run", 1200, 3.0, 130)
	s.addWorkout(ctx, "Long Run", 5400, 15.0, 155)
	s.addWorkout(ctx, "100%_Sprint", 600, 2.0, 175)

	// yesterday's workout is outside the default range
	_, err := s.DB.Exec(
		`INSERT INTO workouts (workout_name, duration, distance, heart_rate, date_time)
			VALUES ('Yesterday Swim', 1800, 1.5, 120, date_trunc('day', now()) - interval '12 hours')`,
	)
	require.NoError(t, err)

	listWorkouts := func(query string) []workouts.Workout {
		status, body := s.doRequest(ctx, http.MethodGet, "/get-workouts"+query, nil)
		require.Equal(t, http.StatusOK, status, string(body))
		var list []workouts.Workout
		require.NoError(t, json.Unmarshal(body, &list))
		return list
	}

	assert.Len(t, listWorkouts(""), 3)
	assert.Len(t, listWorkouts("?start_date=yesterday"), 4)
	assert.Len(t, listWorkouts("?start_date=yesterday&end_date=yesterday"), 1)
	assert.Len(t, listWorkouts("?workout_name=run"), 2)
	assert.Len(t, listWorkouts("?min_duration=1000&max_duration=2000"), 1)
	assert.Len(t, listWorkouts("?min_distance=2.5"), 2)
	assert.Len(t, listWorkouts("?heart_rate=175"), 1)

	// wildcards are literal
	sprint := listWorkouts("?workout_name=" + "100%25_")
	require.Len(t, sprint, 1)
	assert.Equal(t, "100%_Sprint", sprint[0].Name)
	assert.Empty(t, listWorkouts("?workout_name=%25%25"))

	// injection attempt is just a name
	assert.Empty(t, listWorkouts("?workout_name=%27%3B%20DROP%20TABLE%20workouts%3B--"))
	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM workouts`).Scan(&count))
	assert.Equal(t, 4, count)

	status, body := s.doRequest(ctx, http.MethodGet, "/get-workouts?start_date=2024-13-01", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "invalid date format")
}

func (s *IntegrationTestSuite) TestTimeframeStats() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	s.addWorkout(ctx, "Run A", 1800, 5.0, 140)
	s.addWorkout(ctx, "Run B", 2700, 7.5, 160)

	for _, tc := range []struct {
		path     string
		expected string
	}{
		{path: "/get-total-distance/day", expected: `{"total_distance": 12.5}`},
		{path: "/get-average-duration/week", expected: `{"avg_duration": 37.5}`},
		{path: "/get-average-heartrate/month", expected: `{"avg_heartrate": 150}`},
		{path: "/get-average-calories/year", expected: `{"avg_calories": 300}`},
	} {
		status, body := s.doRequest(ctx, http.MethodGet, tc.path, nil)
		require.Equal(t, http.StatusOK, status, tc.path)
		assert.JSONEq(t, tc.expected, string(body), tc.path)
	}

	status, body := s.doRequest(ctx, http.MethodGet, "/get-stats/day", nil)
	require.Equal(t, http.StatusOK, status)
	var summary workouts.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 4500, summary.TotalDuration)
	assert.Equal(t, 600, summary.TotalCalories)

	status, _ = s.doRequest(ctx, http.MethodGet, "/get-total-distance/decade", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func (s *IntegrationTestSuite) TestDeleteWorkout() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	s.addWorkout(ctx, "To Delete", 600, 1.0, 120)

	for i, expected := range []bool{true, false} {
		status, body := s.doRequest(ctx, http.MethodDelete, "/delete-workout", map[string]string{
			"workout_name": "To Delete",
		})
		require.Equal(t, http.StatusOK, status)
		var deleteResp workouts.DeleteWorkoutResponse
		require.NoError(t, json.Unmarshal(body, &deleteResp))
		assert.Equal(t, expected, deleteResp.Deleted, fmt.Sprintf("delete attempt %d", i))
	}

	status, _ := s.doRequest(ctx, http.MethodDelete, "/delete-workout", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}
