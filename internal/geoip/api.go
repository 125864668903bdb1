package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ipinfo/go/v2/ipinfo"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/fitlog/internal/telemetry/tracing"
	"github.com/2beens/fitlog/pkg"
)

const locationCacheTTL = 7 * 24 * time.Hour

var (
	ErrLocalIP         = errors.New("local ip has no location")
	ErrNoLocation      = errors.New("no location for ip")
	ErrInvalidLocation = errors.New("invalid location")
)

// Api resolves caller IPs to coordinates through ipinfo.io. Results are
// cached in redis when a client is given.
type Api struct {
	mu          sync.Mutex
	client      *ipinfo.Client
	redisClient *redis.Client
}

func NewApi(ipInfoToken, ipInfoBaseURL string, httpClient *http.Client, redisClient *redis.Client) (*Api, error) {
	client := ipinfo.NewClient(httpClient, nil, ipInfoToken)
	if ipInfoBaseURL != "" {
		if !strings.HasSuffix(ipInfoBaseURL, "/") {
			ipInfoBaseURL += "/"
		}
		baseURL, err := url.Parse(ipInfoBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse ipinfo base url: %w", err)
		}
		client.BaseURL = baseURL
	}

	return &Api{
		client:      client,
		redisClient: redisClient,
	}, nil
}

func (gi *Api) Locate(ctx context.Context, ip string) (lat float64, lon float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "geoIp.locate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.ip", ip))

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return 0, 0, fmt.Errorf("ip addr [%s] is invalid", ip)
	}
	if pkg.IPIsLocal(ip) {
		return 0, 0, ErrLocalIP
	}

	// concurrent requests from the same client would all miss the cache
	gi.mu.Lock()
	defer gi.mu.Unlock()

	cacheKey := fmt.Sprintf("ip-loc::%s", ip)
	if gi.redisClient != nil {
		cached, err := gi.redisClient.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			if lat, lon, err := parseLocation(cached); err == nil {
				span.SetAttributes(attribute.Bool("user.ip.from-cache", true))
				return lat, lon, nil
			}
			log.Errorf("invalid cached location for [%s]: %s", cacheKey, cached)
		case errors.Is(err, redis.Nil):
			log.Debugf("location for [%s] not cached", ip)
		default:
			log.Errorf("failed to get location from redis for [%s]: %s", cacheKey, err)
		}
	}
	span.SetAttributes(attribute.Bool("user.ip.from-cache", false))

	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	info, err := gi.client.GetIPInfo(parsedIP)
	if err != nil {
		return 0, 0, fmt.Errorf("ipinfo get ip info: %w", err)
	}
	if info.Bogon || info.Location == "" {
		return 0, 0, fmt.Errorf("%w: [%s]", ErrNoLocation, ip)
	}

	lat, lon, err = parseLocation(info.Location)
	if err != nil {
		return 0, 0, err
	}

	if gi.redisClient != nil {
		if err := gi.redisClient.Set(ctx, cacheKey, info.Location, locationCacheTTL).Err(); err != nil {
			log.Errorf("failed to cache location in redis for [%s]: %s", ip, err)
		}
	}

	return lat, lon, nil
}

// parseLocation parses the ipinfo "lat,lon" loc field.
func parseLocation(loc string) (float64, float64, error) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: [%s]", ErrInvalidLocation, loc)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: [%s]", ErrInvalidLocation, loc)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: [%s]", ErrInvalidLocation, loc)
	}
	return lat, lon, nil
}
