package calories

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/fitlog/internal/telemetry/tracing"
)

// example API call
// https://api.api-ninjas.com/v1/caloriesburned?activity=running&duration=45

const caloriesCacheExpire = 24 * 60 * 60 // seconds

var ErrUnknownActivity = errors.New("no calories data for activity")

// Activity is one entry of the caloriesburned response.
type Activity struct {
	Name            string  `json:"name"`
	CaloriesPerHour float64 `json:"calories_per_hour"`
	DurationMinutes float64 `json:"duration_minutes"`
	TotalCalories   float64 `json:"total_calories"`
}

type Api struct {
	cache      *freecache.Cache
	apiUrl     string // https://api.api-ninjas.com
	apiKey     string
	httpClient *http.Client
}

func NewApi(apiUrl, apiKey string, httpClient *http.Client) *Api {
	megabyte := 1024 * 1024
	return &Api{
		cache:      freecache.NewCache(megabyte),
		apiUrl:     strings.TrimSuffix(apiUrl, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// EstimateCalories returns the total kcal burned doing the activity for the
// given number of minutes. The first (best) match of the API is used.
func (a *Api) EstimateCalories(ctx context.Context, activity string, durationMinutes int) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "caloriesApi.estimateCalories")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("activity", activity),
		attribute.Int("duration.minutes", durationMinutes),
	)

	activity = strings.ToLower(strings.TrimSpace(activity))
	cacheKey := []byte(fmt.Sprintf("kcal::%s::%d", activity, durationMinutes))
	if cached, err := a.cache.Get(cacheKey); err == nil && len(cached) == 8 {
		span.SetAttributes(attribute.Bool("from-cache", true))
		return int(binary.BigEndian.Uint64(cached)), nil
	}

	query := url.Values{}
	query.Set("activity", activity)
	query.Set("duration", strconv.Itoa(durationMinutes))
	apiUrl := fmt.Sprintf("%s/v1/caloriesburned?%s", a.apiUrl, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read calories api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("calories api responded with status %d", resp.StatusCode)
	}

	var activities []Activity
	if err := json.Unmarshal(respBytes, &activities); err != nil {
		return 0, fmt.Errorf("unmarshal calories api response: %w", err)
	}
	if len(activities) == 0 {
		return 0, fmt.Errorf("%w: [%s]", ErrUnknownActivity, activity)
	}

	kcal := int(math.Round(activities[0].TotalCalories))
	log.Tracef("calories for [%s] %d min: %d (%s)", activity, durationMinutes, kcal, activities[0].Name)

	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(kcal))
	if err := a.cache.Set(cacheKey, value, caloriesCacheExpire); err != nil {
		log.Errorf("failed to cache calories for [%s]: %s", cacheKey, err)
	}

	return kcal, nil
}
