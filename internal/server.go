package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2beens/fitlog/internal/calories"
	"github.com/2beens/fitlog/internal/config"
	"github.com/2beens/fitlog/internal/db"
	"github.com/2beens/fitlog/internal/geoip"
	"github.com/2beens/fitlog/internal/middleware"
	"github.com/2beens/fitlog/internal/telemetry/metrics"
	"github.com/2beens/fitlog/internal/telemetry/tracing"
	"github.com/2beens/fitlog/internal/weather"
	"github.com/2beens/fitlog/internal/workouts"
	"github.com/2beens/fitlog/pkg"
)

const outboundHttpTimeout = 10 * time.Second

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config         *config.Config
	dbPool         *pgxpool.Pool
	redisClient    *redis.Client
	workoutHandler *workouts.Handler

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	OpenWeatherApiKey       string
	CaloriesApiKey          string
	IpInfoToken             string
	DBPassword              string
	RedisPassword           string
	HoneycombTracingEnabled bool
	// InMemoryStore keeps workouts in process memory instead of postgres.
	InMemoryStore bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	var dbPool *pgxpool.Pool
	if !params.InMemoryStore {
		var err error
		dbPool, err = db.NewDBPool(ctx, db.NewDBPoolParams{
			ConnString:     cfg.DatabaseURL,
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			DBUser:         cfg.PostgresUser,
			DBPassword:     params.DBPassword,
			SSLMode:        cfg.PostgresSSLMode,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}

		if err := dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		} else if err := db.EnsureSchema(ctx, dbPool); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	promRegistry, err := metrics.SetupPrometheus(dbPool)
	if err != nil {
		return nil, fmt.Errorf("setup prometheus: %w", err)
	}
	metricsManager := metrics.NewManager("backend", "fitlog", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // set to 1 once serving

	var rdb *redis.Client
	if cfg.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	} else {
		log.Warnln("redis host not set, geo ip cache and rate limiting disabled")
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fitlog-backend", rdb)
	if err != nil {
		return nil, err
	}

	serviceParams := workouts.ServiceParams{
		Metrics:  metricsManager,
		Location: cfg.Location(),
	}
	if params.InMemoryStore {
		log.Warnln("using in-memory workouts store, nothing will be persisted")
		serviceParams.Repo = workouts.NewMemoryRepo()
	} else {
		serviceParams.Repo = workouts.NewRepo(dbPool)
	}

	if cfg.EnrichmentEnabled {
		enricher, err := newEnricher(cfg, params, rdb)
		if err != nil {
			return nil, fmt.Errorf("new enricher: %w", err)
		}
		serviceParams.Enricher = enricher
	} else {
		log.Debugln("workout enrichment disabled")
	}

	return &Server{
		config:         cfg,
		dbPool:         dbPool,
		redisClient:    rdb,
		workoutHandler: workouts.NewHandler(workouts.NewService(serviceParams)),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func newEnricher(cfg *config.Config, params NewServerParams, rdb *redis.Client) (*workouts.Enricher, error) {
	tracedHttpClient := &http.Client{
		Timeout:   outboundHttpTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	if params.OpenWeatherApiKey == "" {
		log.Warnln("open weather api key not set, weather lookups will fail")
	}
	if params.CaloriesApiKey == "" {
		log.Warnln("calories api key not set, calories lookups will fail")
	}

	enricherParams := workouts.EnricherParams{
		Weather:          weather.NewApi(cfg.OpenWeatherApiURL, params.OpenWeatherApiKey, tracedHttpClient),
		Calories:         calories.NewApi(cfg.CaloriesApiURL, params.CaloriesApiKey, tracedHttpClient),
		DefaultLatitude:  cfg.DefaultLatitude,
		DefaultLongitude: cfg.DefaultLongitude,
		Timeout:          cfg.EnrichmentTimeout.Duration,
	}

	geoIp, err := geoip.NewApi(params.IpInfoToken, cfg.IpInfoApiURL, tracedHttpClient, rdb)
	if err != nil {
		return nil, fmt.Errorf("new geo ip api: %w", err)
	}
	enricherParams.Locator = geoIp

	return workouts.NewEnricher(enricherParams), nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("fitlog-router"))

	// writes are rate limited per client ip when redis is available
	writeLimited := func(handlerFunc http.HandlerFunc) http.Handler {
		return handlerFunc
	}
	if s.redisClient != nil {
		rateLimit := middleware.RateLimit(
			redis_rate.NewLimiter(s.redisClient),
			s.metricsManager,
			"write",
			s.config.WriteRateLimitPerMin,
		)
		writeLimited = func(handlerFunc http.HandlerFunc) http.Handler {
			return rateLimit(handlerFunc)
		}
	}

	h := s.workoutHandler
	r.HandleFunc("/get-workouts", h.HandleList).Methods("GET", "OPTIONS").Name("list-workouts")
	r.HandleFunc("/get-total-distance/{timeframe}", h.HandleTotalDistance).Methods("GET", "OPTIONS").Name("total-distance")
	r.HandleFunc("/get-average-duration/{timeframe}", h.HandleAverageDuration).Methods("GET", "OPTIONS").Name("average-duration")
	r.HandleFunc("/get-average-heartrate/{timeframe}", h.HandleAverageHeartRate).Methods("GET", "OPTIONS").Name("average-heartrate")
	r.HandleFunc("/get-average-calories/{timeframe}", h.HandleAverageCalories).Methods("GET", "OPTIONS").Name("average-calories")
	r.HandleFunc("/get-stats/{timeframe}", h.HandleStats).Methods("GET", "OPTIONS").Name("stats")
	r.Handle("/add-workout", writeLimited(h.HandleAdd)).Methods("POST", "OPTIONS").Name("add-workout")
	r.Handle("/delete-workout", writeLimited(h.HandleDelete)).Methods("DELETE", "OPTIONS").Name("delete-workout")

	r.HandleFunc("/health", s.handleHealth).Methods("GET").Name("health")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.RequestID())
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.dbPool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.dbPool.Ping(ctx); err != nil {
			log.Errorf("health: db ping: %s", err)
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	pkg.WriteTextResponseOK(w, "ok")
}

func (s *Server) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests before closing what they depend on
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
