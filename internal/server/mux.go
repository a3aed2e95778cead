// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the Monastery360
// service. Every response, success or error, is wrapped in the same envelope:
// {success, statusCode, data, message}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	errordefs "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/geo"
	"github.com/monastery360/monastery360-go/internal/guide"
	"github.com/monastery360/monastery360-go/internal/jobs"
	"github.com/monastery360/monastery360-go/internal/metrics"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/schema"
	"github.com/monastery360/monastery360-go/internal/search"
	"github.com/monastery360/monastery360-go/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// ContextKeyCorrelationID stores the unique ID for request tracking
	ContextKeyCorrelationID ContextKey = "correlationId"
)

// Mux handles HTTP requests for the Monastery360 service.
type Mux struct {
	mux       *http.ServeMux
	store     storage.Store
	search    *search.Service
	guides    *guide.Resolver
	jobs      *jobs.Service
	validator *schema.Validator
	metrics   *metrics.Metrics

	// Upload limits for the identify endpoint
	maxImageSize     int64
	allowedMimeTypes []string

	// CORS configuration
	corsAllowedOrigins []string
}

// NewMux creates a new HTTP mux with all Monastery360 endpoints.
func NewMux(store storage.Store, searchSvc *search.Service, resolver *guide.Resolver, jobSvc *jobs.Service, maxImageSize int64, allowedMimeTypes, corsAllowedOrigins []string) *http.ServeMux {
	validator, err := schema.NewValidator()
	if err != nil {
		slog.Error("failed to initialize schema validator", "error", err)
		os.Exit(1)
	}

	m := &Mux{
		mux:                http.NewServeMux(),
		store:              store,
		search:             searchSvc,
		guides:             resolver,
		jobs:               jobSvc,
		validator:          validator,
		metrics:            metrics.NewMetrics(),
		maxImageSize:       maxImageSize,
		allowedMimeTypes:   allowedMimeTypes,
		corsAllowedOrigins: corsAllowedOrigins,
	}

	// Register health endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Search endpoints
	m.mux.HandleFunc("/api/search", m.method("GET", m.withMiddleware(m.handleSearch)))
	m.mux.HandleFunc("/api/search/suggestions", m.method("GET", m.withMiddleware(m.handleSuggestions)))
	m.mux.HandleFunc("/api/search/popular", m.method("GET", m.withMiddleware(m.handlePopular)))
	m.mux.HandleFunc("/api/search/advanced", m.method("GET", m.withMiddleware(m.handleAdvancedSearch)))

	// Audio guide endpoints. Exact paths win over the trailing-slash subtree,
	// which dispatches {id}, {id}/rate and monastery/{id} itself.
	m.mux.HandleFunc("/api/audio-guides/nearby", m.method("GET", m.withMiddleware(m.handleGuideNearby)))
	m.mux.HandleFunc("/api/audio-guides/location-based", m.method("GET", m.withMiddleware(m.handleTriggeredGuides)))
	m.mux.HandleFunc("/api/audio-guides/identify", m.method("POST", m.withMiddleware(m.handleIdentify)))
	m.mux.HandleFunc("/api/audio-guides", m.method("POST", m.withMiddleware(m.handleCreateGuide)))
	m.mux.HandleFunc("/api/audio-guides/", m.withMiddleware(m.handleGuideSubtree))

	// Monastery endpoints
	m.mux.HandleFunc("/api/monasteries/nearby", m.method("GET", m.withMiddleware(m.handleMonasteriesNearby)))
	m.mux.HandleFunc("/api/monasteries/stats", m.method("GET", m.withMiddleware(m.handleMonasteryStats)))
	m.mux.HandleFunc("/api/monasteries", m.method("POST", m.withMiddleware(m.handleCreateMonastery)))
	m.mux.HandleFunc("/api/monasteries/", m.withMiddleware(m.handleMonasterySubtree))

	// Translation job endpoints
	m.mux.HandleFunc("/api/jobs/translate", m.method("POST", m.withMiddleware(m.handleEnqueueTranslation)))
	m.mux.HandleFunc("/api/jobs/", m.method("GET", m.withMiddleware(m.handleGetJob)))

	return m.mux
}

// method ensures the HTTP method matches the expected method
func (m *Mux) method(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && r.Method != http.MethodOptions {
			err := errordefs.New(errordefs.M360_BAD_REQUEST, "method not allowed", "")
			m.writeErrorDef(w, err)
			return
		}
		h(w, r)
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withMiddleware applies common middleware to handlers
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Handle CORS preflight requests
		if r.Method == http.MethodOptions {
			m.setCORSHeaders(w, r, true)
			w.WriteHeader(http.StatusOK)
			return
		}
		m.setCORSHeaders(w, r, false)

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		duration := time.Since(start)
		status := strconv.Itoa(rec.status)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration.Seconds())
		m.logRequest(r, rec.status, duration, correlationID)
	}
}

func (m *Mux) setCORSHeaders(w http.ResponseWriter, r *http.Request, preflight bool) {
	if len(m.corsAllowedOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, allowedOrigin := range m.corsAllowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	if preflight {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-Id")
		w.Header().Set("Access-Control-Max-Age", "86400")
	}
}

// correlationID extracts the correlation ID from a request context.
func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// writeSuccess writes a response in the standard envelope.
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"success":    true,
		"statusCode": statusCode,
		"data":       data,
	}
	if message != "" {
		response["message"] = message
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response in the standard envelope.
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	errBody := map[string]interface{}{
		"code":          err.Code,
		"correlationId": err.CorrelationID,
	}
	if err.Details != nil {
		errBody["details"] = err.Details
	}
	response := map[string]interface{}{
		"success":    false,
		"statusCode": err.HTTPStatus,
		"message":    err.Message,
		"error":      errBody,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeServiceError maps service-layer errors onto the envelope.
func (m *Mux) writeServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	var appErr *errordefs.Error
	if errors.As(err, &appErr) {
		if appErr.CorrelationID == "" {
			appErr.CorrelationID = correlationID(ctx)
		}
		m.writeErrorDef(w, appErr)
		return
	}
	m.writeErrorDef(w, errordefs.New(errordefs.M360_INTERNAL, "internal error", correlationID(ctx)))
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "request completed", attrs...)
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// A stats query touches the store; any error means we're not ready.
	if _, err := m.store.MonasteryStats(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// parseCoords reads lat/lng query parameters. With legacyAliases, the older
// longitude/latitude spellings are accepted as a fallback. The returned point
// follows the [longitude, latitude] storage order.
func parseCoords(r *http.Request, legacyAliases bool) (model.GeoPoint, *errordefs.Error) {
	q := r.URL.Query()
	latStr, lngStr := q.Get("lat"), q.Get("lng")
	if legacyAliases && (latStr == "" || lngStr == "") {
		latStr, lngStr = q.Get("latitude"), q.Get("longitude")
	}
	if latStr == "" || lngStr == "" {
		return model.GeoPoint{}, errordefs.New(errordefs.M360_VALIDATION, "lat and lng query parameters are required", "")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return model.GeoPoint{}, errordefs.New(errordefs.M360_VALIDATION, "lat must be a number", "")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return model.GeoPoint{}, errordefs.New(errordefs.M360_VALIDATION, "lng must be a number", "")
	}
	pt := model.NewGeoPoint(lng, lat)
	if err := pt.Validate(); err != nil {
		return model.GeoPoint{}, errordefs.New(errordefs.M360_VALIDATION, err.Error(), "")
	}
	return pt, nil
}

// parseRadius reads an optional radius parameter in meters.
func parseRadius(r *http.Request, fallback float64) float64 {
	if v := r.URL.Query().Get("radius"); v != "" {
		if radius, err := strconv.ParseFloat(v, 64); err == nil && radius > 0 {
			return radius
		}
	}
	return fallback
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// handleSearch handles GET /api/search
func (m *Mux) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("monastery360").Start(r.Context(), "handleSearch")
	defer span.End()

	q := r.URL.Query()
	query := q.Get("q")
	entityType := model.EntityType(q.Get("type"))
	language := q.Get("language")
	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", 0)

	span.SetAttributes(
		attribute.String("search.query", query),
		attribute.String("search.type", string(entityType)),
	)

	start := time.Now()
	set, err := m.search.Search(ctx, query, entityType, language, page, limit)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.SearchTotal.WithLabelValues(string(entityType), status).Inc()
	m.metrics.SearchDuration.WithLabelValues(string(entityType), status).Observe(time.Since(start).Seconds())

	if err != nil {
		span.SetStatus(codes.Error, "search failed")
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, set, "")
}

// handleSuggestions handles GET /api/search/suggestions
func (m *Mux) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	suggestions, err := m.search.Suggest(ctx, r.URL.Query().Get("q"))
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions}, "")
}

// handlePopular handles GET /api/search/popular
func (m *Mux) handlePopular(w http.ResponseWriter, r *http.Request) {
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"searches": m.search.Popular()}, "")
}

// handleAdvancedSearch handles GET /api/search/advanced.
// The type parameter selects monasteries (default) or audio-guides; each
// filter maps to a store predicate only when present.
func (m *Mux) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", 0)

	entityType := q.Get("type")
	switch entityType {
	case "", string(model.TypeMonasteries):
		f := model.MonasteryFilter{
			Text:     q.Get("q"),
			District: q.Get("district"),
			Sect:     q.Get("sect"),
		}
		if v := q.Get("hasVirtualTour"); v != "" {
			b := v == "true"
			f.HasVirtualTour = &b
		}
		if v := q.Get("hasAudioGuide"); v != "" {
			b := v == "true"
			f.HasAudioGuide = &b
		}
		if v := q.Get("minRating"); v != "" {
			rating, err := strconv.ParseFloat(v, 64)
			if err != nil {
				m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "minRating must be a number", correlationID(ctx)))
				return
			}
			f.MinRating = &rating
		}
		set, err := m.search.AdvancedMonasteries(ctx, f, page, limit)
		if err != nil {
			m.writeServiceError(w, ctx, err)
			return
		}
		m.writeSuccess(w, http.StatusOK, set, "")
	case string(model.TypeAudioGuides):
		f := model.GuideFilter{
			Text:        q.Get("q"),
			Language:    q.Get("language"),
			Category:    q.Get("category"),
			MonasteryID: q.Get("monasteryId"),
		}
		set, err := m.search.AdvancedGuides(ctx, f, page, limit)
		if err != nil {
			m.writeServiceError(w, ctx, err)
			return
		}
		m.writeSuccess(w, http.StatusOK, set, "")
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "advanced search supports monasteries and audio-guides", correlationID(ctx)))
	}
}

// handleGuideNearby handles GET /api/audio-guides/nearby
func (m *Mux) handleGuideNearby(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("monastery360").Start(r.Context(), "handleGuideNearby")
	defer span.End()

	pt, perr := parseCoords(r, false)
	if perr != nil {
		perr.CorrelationID = correlationID(ctx)
		m.writeErrorDef(w, perr)
		return
	}
	language := r.URL.Query().Get("language")
	radius := parseRadius(r, geo.DefaultGuideRadius)

	res, err := m.guides.ResolveByLocation(ctx, pt, language, radius)
	if err != nil {
		m.metrics.ResolutionTotal.WithLabelValues("location", "error").Inc()
		span.SetStatus(codes.Error, "resolution failed")
		m.writeServiceError(w, ctx, err)
		return
	}
	outcome := "guide"
	if res.IsMockData {
		outcome = "synthesized"
	}
	m.metrics.ResolutionTotal.WithLabelValues("location", outcome).Inc()
	m.writeSuccess(w, http.StatusOK, res, "")
}

// handleTriggeredGuides handles GET /api/audio-guides/location-based
func (m *Mux) handleTriggeredGuides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pt, perr := parseCoords(r, false)
	if perr != nil {
		perr.CorrelationID = correlationID(ctx)
		m.writeErrorDef(w, perr)
		return
	}
	radius := parseRadius(r, geo.DefaultTriggerRadius)

	guides, err := m.guides.TriggeredGuides(ctx, pt, radius)
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"guides": guides, "count": len(guides)}, "")
}

// handleIdentify handles POST /api/audio-guides/identify (multipart "image")
func (m *Mux) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("monastery360").Start(r.Context(), "handleIdentify")
	defer span.End()
	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, m.maxImageSize)
	if err := r.ParseMultipartForm(m.maxImageSize); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "invalid multipart payload", correlationID(ctx)))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "no image file provided", correlationID(ctx)))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !m.mimeAllowed(contentType) {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, fmt.Sprintf("unsupported image type %q", contentType), correlationID(ctx)))
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "failed to read image", correlationID(ctx)))
		return
	}
	span.SetAttributes(attribute.Int("image.size", len(image)))

	res, rerr := m.guides.IdentifyFromImage(ctx, image, contentType, r.FormValue("language"))
	if rerr != nil {
		m.metrics.ResolutionTotal.WithLabelValues("image", "error").Inc()
		span.SetStatus(codes.Error, "identification failed")
		m.writeServiceError(w, ctx, rerr)
		return
	}
	outcome := "guide"
	if res.IsMockData {
		outcome = "synthesized"
	}
	m.metrics.ResolutionTotal.WithLabelValues("image", outcome).Inc()
	m.writeSuccess(w, http.StatusOK, res, "")
}

func (m *Mux) mimeAllowed(contentType string) bool {
	if len(m.allowedMimeTypes) == 0 {
		return true
	}
	for _, allowed := range m.allowedMimeTypes {
		if allowed == contentType {
			return true
		}
	}
	return false
}

// handleGuideSubtree dispatches /api/audio-guides/{id}, {id}/rate and
// monastery/{id}. Exact sibling paths are registered separately and never
// reach this handler.
func (m *Mux) handleGuideSubtree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := strings.TrimPrefix(r.URL.Path, "/api/audio-guides/")

	switch {
	case strings.HasPrefix(path, "monastery/"):
		if r.Method != http.MethodGet {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "method not allowed", correlationID(ctx)))
			return
		}
		m.handleGuidesByMonastery(w, r, strings.TrimPrefix(path, "monastery/"))
	case strings.HasSuffix(path, "/rate"):
		if r.Method != http.MethodPost {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "method not allowed", correlationID(ctx)))
			return
		}
		m.handleRateGuide(w, r, strings.TrimSuffix(path, "/rate"))
	default:
		if r.Method != http.MethodGet {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "method not allowed", correlationID(ctx)))
			return
		}
		m.handleGetGuide(w, r, path)
	}
}

// handleGetGuide handles GET /api/audio-guides/{id}
func (m *Mux) handleGetGuide(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if id == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "guide id is required", correlationID(ctx)))
		return
	}
	g, err := m.guides.GetAndPlay(ctx, id)
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.metrics.GuidePlayTotal.WithLabelValues("direct").Inc()
	m.writeSuccess(w, http.StatusOK, g, "")
}

// handleGuidesByMonastery handles GET /api/audio-guides/monastery/{id}
func (m *Mux) handleGuidesByMonastery(w http.ResponseWriter, r *http.Request, monasteryID string) {
	ctx := r.Context()
	if monasteryID == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "monastery id is required", correlationID(ctx)))
		return
	}
	guides, err := m.guides.GuidesByMonastery(ctx, monasteryID, r.URL.Query().Get("language"))
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"guides": guides, "count": len(guides)}, "")
}

// handleRateGuide handles POST /api/audio-guides/{id}/rate
func (m *Mux) handleRateGuide(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	defer r.Body.Close()

	var req struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "invalid JSON", correlationID(ctx)))
		return
	}
	g, err := m.guides.Rate(ctx, id, req.Rating)
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, g, "rating recorded")
}

// handleCreateGuide handles POST /api/audio-guides
func (m *Mux) handleCreateGuide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer r.Body.Close()

	body, perr := m.readValidated(r, schema.KindAudioGuide)
	if perr != nil {
		perr.CorrelationID = correlationID(ctx)
		m.writeErrorDef(w, perr)
		return
	}

	var g model.AudioGuide
	if err := json.Unmarshal(body, &g); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "invalid audio guide payload", correlationID(ctx)))
		return
	}
	now := time.Now().UTC()
	g.ID = model.NewID()
	if g.Language == "" {
		g.Language = "en"
	}
	if g.Category == "" {
		g.Category = model.CategoryGeneral
	}
	g.IsActive = true
	g.PlayCount = 0
	g.RatingAverage = 0
	g.RatingCount = 0
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := m.store.CreateAudioGuide(ctx, g); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_CONFLICT, "audio guide already exists", correlationID(ctx)))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.M360_UPSTREAM, "failed to create audio guide", correlationID(ctx)))
		return
	}
	m.writeSuccess(w, http.StatusCreated, g, "audio guide created")
}

// handleMonasteriesNearby handles GET /api/monasteries/nearby.
// The legacy longitude/latitude parameter spellings are still accepted here.
func (m *Mux) handleMonasteriesNearby(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("monastery360").Start(r.Context(), "handleMonasteriesNearby")
	defer span.End()

	pt, perr := parseCoords(r, true)
	if perr != nil {
		perr.CorrelationID = correlationID(ctx)
		m.writeErrorDef(w, perr)
		return
	}
	radius := parseRadius(r, geo.DefaultMonasteryRadius)
	span.SetAttributes(attribute.Float64("geo.radius", radius))

	monasteries, err := m.store.FindMonasteriesNear(ctx, pt, radius)
	if err != nil {
		span.SetStatus(codes.Error, "nearby query failed")
		m.writeErrorDef(w, errordefs.New(errordefs.M360_UPSTREAM, "failed to query nearby monasteries", correlationID(ctx)))
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"monasteries": monasteries, "count": len(monasteries)}, "")
}

// handleMonasteryStats handles GET /api/monasteries/stats
func (m *Mux) handleMonasteryStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := m.store.MonasteryStats(ctx)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_UPSTREAM, "failed to compute stats", correlationID(ctx)))
		return
	}
	m.writeSuccess(w, http.StatusOK, stats, "")
}

// handleCreateMonastery handles POST /api/monasteries
func (m *Mux) handleCreateMonastery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer r.Body.Close()

	body, perr := m.readValidated(r, schema.KindMonastery)
	if perr != nil {
		perr.CorrelationID = correlationID(ctx)
		m.writeErrorDef(w, perr)
		return
	}

	var monastery model.Monastery
	if err := json.Unmarshal(body, &monastery); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "invalid monastery payload", correlationID(ctx)))
		return
	}
	if monastery.Location != nil {
		if err := monastery.Location.Validate(); err != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, err.Error(), correlationID(ctx)))
			return
		}
	}
	now := time.Now().UTC()
	monastery.ID = model.NewID()
	if monastery.State == "" {
		monastery.State = "Sikkim"
	}
	monastery.Status = model.StatusActive
	monastery.RatingAverage = 0
	monastery.RatingCount = 0
	monastery.CreatedAt = now
	monastery.UpdatedAt = now

	if err := m.store.CreateMonastery(ctx, monastery); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_CONFLICT, "monastery already exists", correlationID(ctx)))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.M360_UPSTREAM, "failed to create monastery", correlationID(ctx)))
		return
	}
	m.writeSuccess(w, http.StatusCreated, monastery, "monastery created")
}

// handleMonasterySubtree dispatches PUT/DELETE /api/monasteries/{id}.
func (m *Mux) handleMonasterySubtree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimPrefix(r.URL.Path, "/api/monasteries/")
	if id == "" || strings.Contains(id, "/") {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_NOT_FOUND, "not found", correlationID(ctx)))
		return
	}

	switch r.Method {
	case http.MethodPut:
		m.handleUpdateMonastery(w, r, id)
	case http.MethodDelete:
		m.handleDeleteMonastery(w, r, id)
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.M360_BAD_REQUEST, "method not allowed", correlationID(ctx)))
	}
}

// handleUpdateMonastery handles PUT /api/monasteries/{id}.
// Updates merge into the stored entity; absent fields are left untouched.
func (m *Mux) handleUpdateMonastery(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	defer r.Body.Close()

	var patch model.MonasteryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "invalid JSON", correlationID(ctx)))
		return
	}
	monastery, err := m.store.UpdateMonastery(ctx, id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_NOT_FOUND, "monastery not found", correlationID(ctx)))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.M360_UPSTREAM, "failed to update monastery", correlationID(ctx)))
		return
	}
	m.writeSuccess(w, http.StatusOK, monastery, "monastery updated")
}

// handleDeleteMonastery handles DELETE /api/monasteries/{id} (soft delete).
func (m *Mux) handleDeleteMonastery(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if err := m.store.DeactivateMonastery(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.M360_NOT_FOUND, "monastery not found", correlationID(ctx)))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.M360_UPSTREAM, "failed to deactivate monastery", correlationID(ctx)))
		return
	}
	m.writeSuccess(w, http.StatusOK, nil, "monastery deactivated")
}

// handleEnqueueTranslation handles POST /api/jobs/translate
func (m *Mux) handleEnqueueTranslation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer r.Body.Close()

	var req struct {
		ManuscriptID   string `json:"manuscriptId"`
		TargetLanguage string `json:"targetLanguage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_VALIDATION, "invalid JSON", correlationID(ctx)))
		return
	}
	job, err := m.jobs.EnqueueTranslation(ctx, req.ManuscriptID, req.TargetLanguage)
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusAccepted, job, "translation job queued")
}

// handleGetJob handles GET /api/jobs/{id}
func (m *Mux) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		m.writeErrorDef(w, errordefs.New(errordefs.M360_NOT_FOUND, "not found", correlationID(ctx)))
		return
	}
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		m.writeServiceError(w, ctx, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, job, "")
}

// readValidated reads the request body and runs it through schema validation.
// It returns the raw bytes so callers can unmarshal into their concrete type
// without a second read.
func (m *Mux) readValidated(r *http.Request, kind string) ([]byte, *errordefs.Error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, errordefs.New(errordefs.M360_BAD_REQUEST, "failed to read request body", "")
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errordefs.New(errordefs.M360_VALIDATION, "invalid JSON", "")
	}
	if err := m.validator.Validate(kind, payload); err != nil {
		return nil, errordefs.New(errordefs.M360_VALIDATION, err.Error(), "")
	}
	return body, nil
}
