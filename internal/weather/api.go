package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/fitlog/internal/telemetry/tracing"
)

// example API call
// https://api.openweathermap.org/data/2.5/weather?lat=44.81&lon=20.46&appid=<api key>

const (
	weatherCacheExpire = 10 * 60 // seconds
	iconURLFormat      = "https://openweathermap.org/img/wn/%s@2x.png"
)

var ErrNoIcon = errors.New("weather response without icon")

type Api struct {
	cache             *freecache.Cache
	openWeatherApiUrl string // https://api.openweathermap.org/data/2.5
	openWeatherApiKey string
	httpClient        *http.Client
}

func NewApi(openWeatherApiUrl, openWeatherApiKey string, httpClient *http.Client) *Api {
	megabyte := 1024 * 1024
	cacheSize := 10 * megabyte

	return &Api{
		openWeatherApiUrl: openWeatherApiUrl,
		openWeatherApiKey: openWeatherApiKey,
		cache:             freecache.NewCache(cacheSize),
		httpClient:        httpClient,
	}
}

// CurrentWeatherIcon returns the icon URL for the current weather at the
// given coordinates.
func (w *Api) CurrentWeatherIcon(ctx context.Context, lat, lon float64) (string, error) {
	current, err := w.CurrentWeather(ctx, lat, lon)
	if err != nil {
		return "", err
	}

	for _, d := range current.WeatherDescriptions {
		if d.Icon != "" {
			return fmt.Sprintf(iconURLFormat, d.Icon), nil
		}
	}
	return "", ErrNoIcon
}

func (w *Api) CurrentWeather(ctx context.Context, lat, lon float64) (_ *ApiResponse, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "weatherApi.currentWeather")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Float64("lat", lat), attribute.Float64("lon", lon))

	// ~1km grid, close enough for an icon
	latStr := strconv.FormatFloat(lat, 'f', 2, 64)
	lonStr := strconv.FormatFloat(lon, 'f', 2, 64)

	weatherApiResponse := &ApiResponse{}
	cacheKey := fmt.Sprintf("current::%s,%s", latStr, lonStr)
	if cachedBytes, err := w.cache.Get([]byte(cacheKey)); err == nil {
		if err := json.Unmarshal(cachedBytes, weatherApiResponse); err == nil {
			log.Tracef("found current weather for [%s] in cache", cacheKey)
			span.SetAttributes(attribute.Bool("from-cache", true))
			return weatherApiResponse, nil
		} else {
			log.Errorf("failed to unmarshal current weather from cache for [%s]: %s", cacheKey, err)
		}
	}

	query := url.Values{}
	query.Set("lat", latStr)
	query.Set("lon", lonStr)
	query.Set("units", "metric")
	query.Set("appid", w.openWeatherApiKey)
	weatherApiUrl := fmt.Sprintf("%s/weather?%s", w.openWeatherApiUrl, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, weatherApiUrl, nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather api response bytes: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api responded with status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBytes, weatherApiResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weather api response bytes: %w", err)
	}

	if err := w.cache.Set([]byte(cacheKey), respBytes, weatherCacheExpire); err != nil {
		log.Errorf("failed to write current weather cache for [%s]: %s", cacheKey, err)
	}

	return weatherApiResponse, nil
}
