package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/sift/internal/db"
	"horse.fit/sift/internal/dedup"
	"horse.fit/sift/internal/globaltime"
	"horse.fit/sift/internal/ingest"
	payloadschema "horse.fit/sift/schema"
)

const (
	defaultRunsPageSize = 20
	maxRunsPageSize     = 200
	maxResolveBatchSize = 1000
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APITokenHash    string
	CORSOrigins     []string
	DefaultStrategy dedup.Strategy
}

type Server struct {
	pool     *db.Pool
	resolver *dedup.Resolver
	ingester *ingest.Service
	logger   zerolog.Logger
	opts     Options
}

type resolveRequest struct {
	Strategy string            `json:"strategy,omitempty"`
	Commit   bool              `json:"commit,omitempty"`
	Records  []json.RawMessage `json:"records"`
}

func NewServer(pool *db.Pool, resolver *dedup.Resolver, ingester *ingest.Service, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	strategy, err := dedup.ParseStrategy(string(opts.DefaultStrategy))
	if err != nil {
		strategy = dedup.StrategySequence
	}

	return &Server{
		pool:     pool,
		resolver: resolver,
		ingester: ingester,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APITokenHash:    strings.TrimSpace(opts.APITokenHash),
			CORSOrigins:     opts.CORSOrigins,
			DefaultStrategy: strategy,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil || s.resolver == nil {
		return fmt.Errorf("server is not initialized")
	}

	if s.opts.APITokenHash == "" {
		s.logger.Warn().Msg("API_TOKEN_HASH is empty; API authentication is disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.POST("/resolve", s.handleResolve, s.requireAuth())
	api.GET("/runs", s.handleRuns, s.requireAuth())
	api.GET("/runs/:run_uuid", s.handleRunDetail, s.requireAuth())
	api.GET("/stats", s.handleStats, s.requireAuth())

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("sift api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("sift api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health ping failed")
		return fail(c, http.StatusServiceUnavailable, "Database unreachable", map[string]any{
			"service":  "sift",
			"database": "unavailable",
			"time":     globaltime.UTC(),
		})
	}

	return success(c, map[string]any{
		"service":  "sift",
		"database": "ok",
		"time":     globaltime.UTC(),
	})
}

func (s *Server) handleResolve(c echo.Context) error {
	var req resolveRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	if len(req.Records) == 0 {
		return failValidation(c, map[string]string{"records": "at least one record is required"})
	}
	if len(req.Records) > maxResolveBatchSize {
		return failValidation(c, map[string]string{
			"records": fmt.Sprintf("batch size must not exceed %d", maxResolveBatchSize),
		})
	}

	strategy := s.opts.DefaultStrategy
	if trimmed := strings.TrimSpace(req.Strategy); trimmed != "" {
		parsed, err := dedup.ParseStrategy(trimmed)
		if err != nil {
			return failValidation(c, map[string]string{"strategy": err.Error()})
		}
		strategy = parsed
	}

	items := make([]ingest.Item, 0, len(req.Records))
	for i, raw := range req.Records {
		payload, err := payloadschema.ValidateRecordPayload(raw)
		if err != nil {
			return failValidation(c, map[string]string{
				fmt.Sprintf("records[%d]", i): err.Error(),
			})
		}
		items = append(items, ingest.RecordFromPayload(payload, s.logger))
	}

	partition, err := s.resolver.Resolve(c.Request().Context(), ingest.Records(items), strategy)
	if err != nil {
		s.logger.Error().Err(err).Msg("resolve batch failed")
		return internalError(c, "Failed to resolve batch")
	}

	response := map[string]any{
		"strategy":   string(strategy),
		"stats":      partition.Stats,
		"unique":     partition.Unique,
		"duplicates": partition.Duplicates,
	}

	if !req.Commit {
		return success(c, response)
	}

	if s.ingester == nil {
		return fail(c, http.StatusServiceUnavailable, "Persistence is not available", nil)
	}

	result, err := s.ingester.CommitPartition(c.Request().Context(), ingest.Request{
		Strategy:  strategy,
		Items:     items,
		Partition: *partition,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("commit resolution failed")
		return internalError(c, "Failed to commit resolution")
	}

	response["run"] = map[string]any{
		"run_id":            result.RunID,
		"run_uuid":          result.RunUUID,
		"records_persisted": result.RecordsPersisted,
		"status":            result.Status,
	}
	return successWithStatus(c, http.StatusCreated, response)
}

func (s *Server) handleRuns(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultRunsPageSize, 1, maxRunsPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	offset, err := parsePositiveInt(c.QueryParam("offset"), 0, 0, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"offset": err.Error()})
	}

	runs, err := s.pool.QueryRecentRuns(c.Request().Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("query runs failed")
		return internalError(c, "Failed to load runs")
	}

	return success(c, map[string]any{
		"items":  runs,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleRunDetail(c echo.Context) error {
	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	if runUUID == "" {
		return failValidation(c, map[string]string{"run_uuid": "is required"})
	}

	run, err := s.pool.QueryRunByUUID(c.Request().Context(), runUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Run not found")
		}
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("query run failed")
		return internalError(c, "Failed to load run")
	}

	return success(c, run)
}

func (s *Server) handleStats(c echo.Context) error {
	dayStart, dayEnd := utcDayBounds(globaltime.UTC())
	stats, err := s.pool.QueryStoreStats(c.Request().Context(), dayStart, dayEnd)
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func decodeJSONBody(c echo.Context, dest any) error {
	if c == nil || c.Request() == nil || c.Request().Body == nil {
		return fmt.Errorf("request body is required")
	}

	decoder := json.NewDecoder(c.Request().Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("body must be valid JSON")
	}
	return nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func utcDayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
