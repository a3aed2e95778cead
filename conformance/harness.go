// Package conformance provides a test harness for verifying Monastery360
// API compliance over real HTTP round trips.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/monastery360/monastery360-go/internal/cache"
	"github.com/monastery360/monastery360-go/internal/event"
	"github.com/monastery360/monastery360-go/internal/guide"
	"github.com/monastery360/monastery360-go/internal/jobs"
	"github.com/monastery360/monastery360-go/internal/media"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/search"
	"github.com/monastery360/monastery360-go/internal/server"
	"github.com/monastery360/monastery360-go/internal/storage"
	"github.com/monastery360/monastery360-go/internal/vision"
)

// Harness drives a full service instance backed by the memory store.
type Harness struct {
	server *httptest.Server
	store  storage.Store
	pub    event.Publisher
	jobs   *jobs.Service
	cancel context.CancelFunc
}

// Config holds configuration for the conformance test harness.
type Config struct {
	// MaxImageSize caps identify uploads; zero selects the default 10MB.
	MaxImageSize int64

	// AllowedMimeTypes for identify uploads; nil selects the defaults.
	AllowedMimeTypes []string
}

// NewHarness creates a new conformance test harness.
func NewHarness(cfg Config) (*Harness, error) {
	store := storage.NewMemory()
	pub := &noopPublisher{}

	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 10 * 1024 * 1024
	}
	if cfg.AllowedMimeTypes == nil {
		cfg.AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}

	resolver := guide.NewResolver(store, vision.NewMock(store), pub, media.NewNoop(), nil)
	searchSvc := search.NewService(store, cache.NewNoop(), pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	jobSvc := jobs.NewService(store, nil)
	jobSvc.Start(ctx)

	mux := server.NewMux(store, searchSvc, resolver, jobSvc, cfg.MaxImageSize, cfg.AllowedMimeTypes, nil)
	srv := httptest.NewServer(mux)

	return &Harness{
		server: srv,
		store:  store,
		pub:    pub,
		jobs:   jobSvc,
		cancel: cancel,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Store exposes the backing store for seeding fixtures.
func (h *Harness) Store() storage.Store {
	return h.store
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.server.Close()
	h.cancel()
	h.jobs.Close()
	h.pub.Close()
}

// RunConformanceTests runs all conformance tests against the implementation.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("MonasteryLifecycle", h.testMonasteryLifecycle)
	t.Run("UnifiedSearch", h.testUnifiedSearch)
	t.Run("GuideResolution", h.testGuideResolution)
	t.Run("ImageIdentification", h.testImageIdentification)
	t.Run("TranslationJobs", h.testTranslationJobs)
}

// noopPublisher is a no-op implementation of event.Publisher for testing.
type noopPublisher struct{}

func (n *noopPublisher) PublishGuidePlayed(ctx context.Context, guideID, monasteryID string) error {
	return nil
}

func (n *noopPublisher) PublishSearchPerformed(ctx context.Context, query, entityType string, totalCount int) error {
	return nil
}

func (n *noopPublisher) Close() error {
	return nil
}

// envelope mirrors the response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (h *Harness) getJSON(t *testing.T, path string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(h.URL() + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("GET %s: failed to decode envelope: %v", path, err)
	}
	return resp.StatusCode, env
}

func (h *Harness) postJSON(t *testing.T, path, body string) (int, envelope) {
	t.Helper()
	resp, err := http.Post(h.URL()+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("POST %s: failed to decode envelope: %v", path, err)
	}
	return resp.StatusCode, env
}

// testHealthEndpoints tests the health check endpoints.
func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, endpoint := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(h.URL() + endpoint)
		if err != nil {
			t.Fatalf("failed to GET %s: %v", endpoint, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", endpoint, resp.StatusCode)
		}
	}
}

// testMonasteryLifecycle creates, updates and deactivates a monastery over HTTP.
func (h *Harness) testMonasteryLifecycle(t *testing.T) {
	status, env := h.postJSON(t, "/api/monasteries",
		`{"name":"Phodong Monastery","description":"A Kagyu monastery in North Sikkim","location":{"coordinates":[88.5834,27.4096]},"district":"North Sikkim"}`)
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("create: status %d, envelope %+v", status, env)
	}
	var created model.Monastery
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}

	// Nearby lookup finds it, nearest first.
	status, env = h.getJSON(t, "/api/monasteries/nearby?lat=27.4096&lng=88.5834&radius=1000")
	if status != http.StatusOK {
		t.Fatalf("nearby: status %d", status)
	}
	var nearby struct {
		Monasteries []model.Monastery `json:"monasteries"`
		Count       int               `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &nearby); err != nil {
		t.Fatal(err)
	}
	if nearby.Count == 0 || nearby.Monasteries[0].ID != created.ID {
		t.Errorf("nearby = %+v", nearby)
	}

	// Update merges; delete deactivates.
	req, _ := http.NewRequest(http.MethodPut, h.URL()+"/api/monasteries/"+created.ID, strings.NewReader(`{"sect":"Kagyu"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("update: status %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, h.URL()+"/api/monasteries/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: status %d", resp.StatusCode)
	}

	// Deactivated monasteries disappear from lookup paths.
	status, env = h.getJSON(t, "/api/monasteries/nearby?lat=27.4096&lng=88.5834&radius=1000")
	if status != http.StatusOK {
		t.Fatalf("nearby after delete: status %d", status)
	}
	if err := json.Unmarshal(env.Data, &nearby); err != nil {
		t.Fatal(err)
	}
	for _, m := range nearby.Monasteries {
		if m.ID == created.ID {
			t.Error("deactivated monastery still visible in nearby results")
		}
	}
}

// testUnifiedSearch seeds entities and checks all-type and single-type search.
func (h *Harness) testUnifiedSearch(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	m := model.Monastery{
		ID: "conf-m-ralang", Name: "Ralang Monastery",
		Description: "Host of the Pang Lhabsol festival",
		Status:      model.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
	if err := h.store.CreateMonastery(ctx, m); err != nil {
		t.Fatal(err)
	}
	tour := model.VirtualTour{
		ID: "conf-t-ralang", MonasteryID: m.ID, Title: "Ralang 360 Tour",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := h.store.CreateVirtualTour(ctx, tour); err != nil {
		t.Fatal(err)
	}

	status, env := h.getJSON(t, "/api/search?q=ralang")
	if status != http.StatusOK {
		t.Fatalf("search: status %d", status)
	}
	var set model.SearchResultSet
	if err := json.Unmarshal(env.Data, &set); err != nil {
		t.Fatal(err)
	}
	if len(set.Results.Monasteries) == 0 || len(set.Results.VirtualTours) == 0 {
		t.Errorf("expected hits in both collections: %+v", set.Results)
	}
	if set.Pagination != nil {
		t.Error("type=all must not paginate")
	}

	// Single-type search carries pagination metadata.
	status, env = h.getJSON(t, "/api/search?q=ralang&type=monasteries")
	if status != http.StatusOK {
		t.Fatalf("typed search: status %d", status)
	}
	if err := json.Unmarshal(env.Data, &set); err != nil {
		t.Fatal(err)
	}
	if set.Pagination == nil || set.Pagination.CurrentPage != 1 {
		t.Errorf("pagination = %+v", set.Pagination)
	}

	// Short queries are rejected.
	status, _ = h.getJSON(t, "/api/search?q=r")
	if status != http.StatusBadRequest {
		t.Errorf("short query: status %d, want 400", status)
	}
}

// testGuideResolution checks the location pipeline end to end.
func (h *Harness) testGuideResolution(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	pt := model.NewGeoPoint(88.3639, 27.2855)
	m := model.Monastery{
		ID: "conf-m-dubdi", Name: "Dubdi Monastery",
		Description: "The oldest monastery in Sikkim, above Yuksom",
		Location:    &pt, Status: model.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
	if err := h.store.CreateMonastery(ctx, m); err != nil {
		t.Fatal(err)
	}

	// No guide exists, so resolution synthesizes a placeholder.
	status, env := h.getJSON(t, "/api/audio-guides/nearby?lat=27.2855&lng=88.3639")
	if status != http.StatusOK {
		t.Fatalf("nearby: status %d", status)
	}
	var res model.AudioResolution
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsMockData || res.Title != "Discover Dubdi Monastery" {
		t.Errorf("synthesized resolution = %+v", res)
	}

	// A real guide takes over.
	g := model.AudioGuide{
		ID: "conf-g-dubdi", MonasteryID: m.ID, Title: "Dubdi History",
		AudioURL: "/audio/dubdi.mp3", Duration: 300, Language: "en",
		Category: model.CategoryHistory, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := h.store.CreateAudioGuide(ctx, g); err != nil {
		t.Fatal(err)
	}
	status, env = h.getJSON(t, "/api/audio-guides/nearby?lat=27.2855&lng=88.3639")
	if status != http.StatusOK {
		t.Fatalf("nearby: status %d", status)
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.GuideID != g.ID || res.IsMockData {
		t.Errorf("resolution = %+v", res)
	}

	// Far away from everything fails with 404.
	resp, err := http.Get(h.URL() + "/api/audio-guides/nearby?lat=-33.86&lng=151.20")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remote location: status %d, want 404", resp.StatusCode)
	}
}

// testImageIdentification uploads an image and expects a resolution either
// from the catalog or from the recognizer's fallback set.
func (h *Harness) testImageIdentification(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte{0xff, 0xd8, 0xff, 0xe0}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(h.URL()+"/api/audio-guides/identify", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("identify: status %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	var res model.AudioResolution
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.RecognizedLocation == "" || res.Confidence < 0.85 || res.Confidence >= 0.95 {
		t.Errorf("identification = %+v", res)
	}
}

// testTranslationJobs enqueues a job and polls it to completion.
func (h *Harness) testTranslationJobs(t *testing.T) {
	status, env := h.postJSON(t, "/api/jobs/translate", `{"manuscriptId":"conf-ms-1","targetLanguage":"hi"}`)
	if status != http.StatusAccepted {
		t.Fatalf("enqueue: status %d", status)
	}
	var job model.TranslationJob
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobQueued {
		t.Fatalf("job = %+v", job)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		status, env = h.getJSON(t, fmt.Sprintf("/api/jobs/%s", job.ID))
		if status != http.StatusOK {
			t.Fatalf("get job: status %d", status)
		}
		if err := json.Unmarshal(env.Data, &job); err != nil {
			t.Fatal(err)
		}
		if job.Status == model.JobCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %+v", job)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if job.Result["targetLanguage"] != "hi" || job.CompletedAt == nil {
		t.Errorf("completed job = %+v", job)
	}
}
