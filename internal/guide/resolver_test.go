package guide

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	apperrors "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
	"github.com/monastery360/monastery360-go/internal/vision"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	played []string
}

func (c *capturePublisher) PublishGuidePlayed(ctx context.Context, guideID, monasteryID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.played = append(c.played, guideID)
	return nil
}

func (c *capturePublisher) PublishSearchPerformed(ctx context.Context, query, entityType string, totalCount int) error {
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) playedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.played)
}

// nilIdentifier is an Identifier that recognizes nothing.
type nilIdentifier struct{}

func (nilIdentifier) Identify(ctx context.Context, image []byte, contentType string) (*vision.Recognition, error) {
	return nil, nil
}

// fixedIdentifier always recognizes the configured monastery.
type fixedIdentifier struct {
	rec vision.Recognition
}

func (f fixedIdentifier) Identify(ctx context.Context, image []byte, contentType string) (*vision.Recognition, error) {
	rec := f.rec
	return &rec, nil
}

func newTestResolver(t *testing.T, store storage.Store, identifier vision.Identifier) (*Resolver, *capturePublisher) {
	t.Helper()
	events := &capturePublisher{}
	return NewResolver(store, identifier, events, nil, slog.Default()), events
}

// waitFor polls until cond holds or the deadline passes. Playback side
// effects run detached from the request, so tests have to wait for them.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func seedMonastery(t *testing.T, store storage.Store, id, name string, lng, lat float64) {
	t.Helper()
	pt := model.NewGeoPoint(lng, lat)
	err := store.CreateMonastery(context.Background(), model.Monastery{
		ID:          id,
		Name:        name,
		Description: "A monastery of Sikkim",
		Location:    &pt,
		Status:      model.StatusActive,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedGuide(t *testing.T, store storage.Store, id, monasteryID, title, language string, createdAt time.Time) {
	t.Helper()
	err := store.CreateAudioGuide(context.Background(), model.AudioGuide{
		ID:          id,
		MonasteryID: monasteryID,
		Title:       title,
		AudioURL:    "/audio/" + id + ".mp3",
		Duration:    300,
		Language:    language,
		Category:    model.CategoryGeneral,
		IsActive:    true,
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestResolveByLocationRealGuide(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	// Visitor stands near Rumtek; Enchey is further away but still in range.
	seedMonastery(t, store, "rumtek", "Rumtek Monastery", 88.6065, 27.3389)
	seedMonastery(t, store, "enchey", "Enchey Monastery", 88.6138, 27.3358)
	base := time.Now().Add(-time.Hour)
	seedGuide(t, store, "g-rumtek-old", "rumtek", "Rumtek history", "en", base)
	seedGuide(t, store, "g-rumtek-new", "rumtek", "Rumtek overview", "en", base.Add(time.Minute))
	seedGuide(t, store, "g-enchey", "enchey", "Enchey overview", "en", base)

	r, events := newTestResolver(t, store, nilIdentifier{})
	res, err := r.ResolveByLocation(ctx, model.NewGeoPoint(88.6066, 27.3390), "en", 0)
	if err != nil {
		t.Fatalf("ResolveByLocation failed: %v", err)
	}

	// Closest monastery wins; among its guides the newest wins.
	if res.GuideID != "g-rumtek-new" {
		t.Errorf("resolved %q, want g-rumtek-new", res.GuideID)
	}
	if res.IsMockData {
		t.Error("real guide flagged as mock")
	}
	if res.AllNearbyGuides != 3 {
		t.Errorf("sibling count = %d, want 3", res.AllNearbyGuides)
	}
	if res.Distance == nil || *res.Distance < 0 || *res.Distance > 50 {
		t.Errorf("distance = %v, want a few whole meters", res.Distance)
	}
	if res.Monastery.Name != "Rumtek Monastery" {
		t.Errorf("monastery = %q", res.Monastery.Name)
	}

	// Playback side effects land shortly after the response.
	waitFor(t, func() bool {
		g, err := store.GetAudioGuide(ctx, "g-rumtek-new")
		return err == nil && g.PlayCount == 1
	})
	waitFor(t, func() bool { return events.playedCount() == 1 })
}

func TestResolveByLocationIdempotent(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	seedMonastery(t, store, "rumtek", "Rumtek Monastery", 88.6065, 27.3389)
	seedGuide(t, store, "g-rumtek", "rumtek", "Rumtek history", "en", time.Now().Add(-time.Hour))

	r, events := newTestResolver(t, store, nilIdentifier{})
	pt := model.NewGeoPoint(88.6066, 27.3390)

	first, err := r.ResolveByLocation(ctx, pt, "en", 0)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := r.ResolveByLocation(ctx, pt, "en", 0)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	// Same input against an unchanged store resolves to the same payload.
	if first.GuideID != second.GuideID || first.Title != second.Title ||
		first.AudioURL != second.AudioURL || first.Duration != second.Duration ||
		first.Description != second.Description || first.Language != second.Language {
		t.Errorf("resolutions differ:\n first = %+v\nsecond = %+v", first, second)
	}
	if first.Monastery.Name != second.Monastery.Name ||
		first.Monastery.Description != second.Monastery.Description {
		t.Errorf("monastery summaries differ: %+v vs %+v", first.Monastery, second.Monastery)
	}
	if first.Monastery.Coordinates == nil || second.Monastery.Coordinates == nil ||
		*first.Monastery.Coordinates != *second.Monastery.Coordinates {
		t.Errorf("coordinates differ: %v vs %v", first.Monastery.Coordinates, second.Monastery.Coordinates)
	}
	if first.Distance == nil || second.Distance == nil || *first.Distance != *second.Distance {
		t.Errorf("distances differ: %v vs %v", first.Distance, second.Distance)
	}
	if first.AllNearbyGuides != second.AllNearbyGuides {
		t.Errorf("sibling counts differ: %d vs %d", first.AllNearbyGuides, second.AllNearbyGuides)
	}

	// Only the play count accumulates.
	waitFor(t, func() bool {
		g, err := store.GetAudioGuide(ctx, "g-rumtek")
		return err == nil && g.PlayCount == 2
	})
	waitFor(t, func() bool { return events.playedCount() == 2 })
}

func TestResolveByLocationSynthesized(t *testing.T) {
	store := storage.NewMemory()
	seedMonastery(t, store, "rumtek", "Rumtek Monastery", 88.6065, 27.3389)

	r, _ := newTestResolver(t, store, nilIdentifier{})
	res, err := r.ResolveByLocation(context.Background(), model.NewGeoPoint(88.6066, 27.3390), "en", 0)
	if err != nil {
		t.Fatalf("ResolveByLocation failed: %v", err)
	}

	if !res.IsMockData {
		t.Error("synthesized resolution must be flagged")
	}
	if res.GuideID != "" {
		t.Errorf("synthesized resolution carries guide id %q", res.GuideID)
	}
	if res.Title != "Discover Rumtek Monastery" {
		t.Errorf("title = %q", res.Title)
	}
	if res.AudioURL != "/audio/rumtek-sample.mp3" || res.Duration != 120 {
		t.Errorf("placeholder media = %q / %ds", res.AudioURL, res.Duration)
	}
	if res.Distance == nil {
		t.Error("distance missing")
	}
}

func TestResolveByLocationNoMonasteries(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory(), nilIdentifier{})

	_, err := r.ResolveByLocation(context.Background(), model.NewGeoPoint(0, 0), "en", 0)
	var appErr *apperrors.Error
	if !asAppError(err, &appErr) || appErr.Code != apperrors.M360_NOT_FOUND {
		t.Fatalf("got %v, want M360_NOT_FOUND", err)
	}
}

func TestResolveByLocationInvalidCoords(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory(), nilIdentifier{})

	_, err := r.ResolveByLocation(context.Background(), model.NewGeoPoint(200, 95), "en", 0)
	var appErr *apperrors.Error
	if !asAppError(err, &appErr) || appErr.Code != apperrors.M360_VALIDATION {
		t.Fatalf("got %v, want M360_VALIDATION", err)
	}
}

func TestResolveByLocationLanguageFallback(t *testing.T) {
	store := storage.NewMemory()
	seedMonastery(t, store, "rumtek", "Rumtek Monastery", 88.6065, 27.3389)
	seedGuide(t, store, "g-en", "rumtek", "Rumtek overview", "en", time.Now())

	r, _ := newTestResolver(t, store, nilIdentifier{})
	// No Hindi guide exists: the pipeline synthesizes rather than switching language.
	res, err := r.ResolveByLocation(context.Background(), model.NewGeoPoint(88.6066, 27.3390), "hi", 0)
	if err != nil {
		t.Fatalf("ResolveByLocation failed: %v", err)
	}
	if !res.IsMockData {
		t.Error("expected synthesized resolution for missing language")
	}
	if res.Language != "hi" {
		t.Errorf("language = %q, want requested language kept", res.Language)
	}
}

func TestIdentifyFromImageEmptyPayload(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory(), nilIdentifier{})

	_, err := r.IdentifyFromImage(context.Background(), nil, "image/jpeg", "en")
	var appErr *apperrors.Error
	if !asAppError(err, &appErr) || appErr.Code != apperrors.M360_BAD_REQUEST {
		t.Fatalf("got %v, want M360_BAD_REQUEST", err)
	}
}

func TestIdentifyFromImageUnrecognized(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory(), nilIdentifier{})

	_, err := r.IdentifyFromImage(context.Background(), []byte("jpeg"), "image/jpeg", "en")
	var appErr *apperrors.Error
	if !asAppError(err, &appErr) || appErr.Code != apperrors.M360_NOT_FOUND {
		t.Fatalf("got %v, want M360_NOT_FOUND", err)
	}
}

func TestIdentifyFromImageRealGuide(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	seedMonastery(t, store, "rumtek", "Rumtek Monastery", 88.6065, 27.3389)
	seedGuide(t, store, "g-rumtek", "rumtek", "Rumtek overview", "en", time.Now())

	identifier := fixedIdentifier{rec: vision.Recognition{
		MonasteryID: "rumtek",
		Monastery:   model.ResolvedMonastery{Name: "Rumtek Monastery"},
		Confidence:  0.91,
		IsMock:      true,
	}}
	r, _ := newTestResolver(t, store, identifier)

	res, err := r.IdentifyFromImage(ctx, []byte("jpeg"), "image/jpeg", "en")
	if err != nil {
		t.Fatalf("IdentifyFromImage failed: %v", err)
	}
	if res.GuideID != "g-rumtek" {
		t.Errorf("resolved %q", res.GuideID)
	}
	if res.RecognizedLocation != "Rumtek Monastery" || res.Confidence != 0.91 {
		t.Errorf("recognition fields: %q / %v", res.RecognizedLocation, res.Confidence)
	}
	waitFor(t, func() bool {
		g, err := store.GetAudioGuide(ctx, "g-rumtek")
		return err == nil && g.PlayCount == 1
	})
}

func TestIdentifyFromImageSynthesis(t *testing.T) {
	// Fallback recognition with no catalog entry: the result is synthesized
	// from the recognizer's own monastery summary.
	identifier := fixedIdentifier{rec: vision.Recognition{
		Monastery: model.ResolvedMonastery{
			Name:        "Pemayangtse Monastery",
			Coordinates: &[2]float64{88.2515, 27.3052},
		},
		Confidence: 0.87,
		IsMock:     true,
	}}
	r, _ := newTestResolver(t, storage.NewMemory(), identifier)

	res, err := r.IdentifyFromImage(context.Background(), []byte("jpeg"), "image/jpeg", "en")
	if err != nil {
		t.Fatalf("IdentifyFromImage failed: %v", err)
	}
	if !res.IsMockData {
		t.Error("fallback resolution must be flagged mock")
	}
	if res.Title != "Discover Pemayangtse Monastery" {
		t.Errorf("title = %q", res.Title)
	}
	if res.RecognizedLocation != "Pemayangtse Monastery" || res.Confidence != 0.87 {
		t.Errorf("recognition fields: %q / %v", res.RecognizedLocation, res.Confidence)
	}
}

func TestTriggeredGuides(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	pt := model.NewGeoPoint(88.6066, 27.3390)
	err := store.CreateAudioGuide(ctx, model.AudioGuide{
		ID: "g-trigger", Title: "Courtyard", Language: "en",
		Category: model.CategoryLocationBased, Location: &pt,
		TriggerRadius: 100, IsActive: true, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	r, _ := newTestResolver(t, store, nilIdentifier{})
	guides, err := r.TriggeredGuides(ctx, model.NewGeoPoint(88.6065, 27.3389), 0)
	if err != nil {
		t.Fatalf("TriggeredGuides failed: %v", err)
	}
	if len(guides) != 1 || guides[0].ID != "g-trigger" {
		t.Errorf("triggered = %v", guides)
	}
}

func TestGetAndPlay(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	seedGuide(t, store, "g-1", "mon-1", "Overview", "en", time.Now())

	r, _ := newTestResolver(t, store, nilIdentifier{})
	g, err := r.GetAndPlay(ctx, "g-1")
	if err != nil {
		t.Fatalf("GetAndPlay failed: %v", err)
	}
	if g.ID != "g-1" {
		t.Errorf("got %q", g.ID)
	}
	waitFor(t, func() bool {
		got, err := store.GetAudioGuide(ctx, "g-1")
		return err == nil && got.PlayCount == 1
	})

	_, err = r.GetAndPlay(ctx, "missing")
	var appErr *apperrors.Error
	if !asAppError(err, &appErr) || appErr.Code != apperrors.M360_NOT_FOUND {
		t.Fatalf("missing guide: got %v", err)
	}
}

func TestRate(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	seedGuide(t, store, "g-1", "mon-1", "Overview", "en", time.Now())

	r, _ := newTestResolver(t, store, nilIdentifier{})

	g, err := r.Rate(ctx, "g-1", 4)
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if g.RatingAverage != 4.0 || g.RatingCount != 1 {
		t.Errorf("after first rating: %v/%d", g.RatingAverage, g.RatingCount)
	}

	g, err = r.Rate(ctx, "g-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if g.RatingAverage != 4.5 || g.RatingCount != 2 {
		t.Errorf("after second rating: %v/%d", g.RatingAverage, g.RatingCount)
	}

	g, err = r.Rate(ctx, "g-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	// (4+5+5)/3 = 4.666..., kept to one decimal.
	if g.RatingAverage != 4.7 {
		t.Errorf("average = %v, want 4.7", g.RatingAverage)
	}

	var appErr *apperrors.Error
	if _, err := r.Rate(ctx, "g-1", 6); !asAppError(err, &appErr) || appErr.Code != apperrors.M360_VALIDATION {
		t.Errorf("rating 6: got %v", err)
	}
	if _, err := r.Rate(ctx, "g-1", 0); !asAppError(err, &appErr) || appErr.Code != apperrors.M360_VALIDATION {
		t.Errorf("rating 0: got %v", err)
	}
}

// asAppError unwraps err into an *apperrors.Error.
func asAppError(err error, target **apperrors.Error) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*apperrors.Error)
	if ok {
		*target = e
	}
	return ok
}
