package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/monastery360/monastery360-go/internal/cache"
	apperrors "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
)

type capturePublisher struct {
	mu       sync.Mutex
	searches []string
}

func (c *capturePublisher) PublishGuidePlayed(ctx context.Context, guideID, monasteryID string) error {
	return nil
}

func (c *capturePublisher) PublishSearchPerformed(ctx context.Context, query, entityType string, totalCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches = append(c.searches, query)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) searchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.searches)
}

// countingStore records how often the search paths reach the store. The
// embedded Store is left nil, so any call outside the overridden methods
// panics and fails the test.
type countingStore struct {
	storage.Store
	calls int
}

func (c *countingStore) SearchMonasteries(ctx context.Context, q model.TextQuery) ([]model.Monastery, error) {
	c.calls++
	return nil, nil
}

func (c *countingStore) SearchVirtualTours(ctx context.Context, q model.TextQuery) ([]model.VirtualTour, error) {
	c.calls++
	return nil, nil
}

func (c *countingStore) SearchAudioGuides(ctx context.Context, q model.TextQuery) ([]model.AudioGuide, error) {
	c.calls++
	return nil, nil
}

func (c *countingStore) SearchManuscripts(ctx context.Context, q model.TextQuery) ([]model.Manuscript, error) {
	c.calls++
	return nil, nil
}

func (c *countingStore) CountMonasteries(ctx context.Context, q model.TextQuery) (int, error) {
	c.calls++
	return 0, nil
}

func (c *countingStore) CountVirtualTours(ctx context.Context, q model.TextQuery) (int, error) {
	c.calls++
	return 0, nil
}

func (c *countingStore) CountAudioGuides(ctx context.Context, q model.TextQuery) (int, error) {
	c.calls++
	return 0, nil
}

func (c *countingStore) CountManuscripts(ctx context.Context, q model.TextQuery) (int, error) {
	c.calls++
	return 0, nil
}

func (c *countingStore) SuggestMonasteries(ctx context.Context, q string, limit int) ([]model.Suggestion, error) {
	c.calls++
	return nil, nil
}

func seedCatalog(t *testing.T, store storage.Store, monasteries int) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < monasteries; i++ {
		err := store.CreateMonastery(ctx, model.Monastery{
			ID:        fmt.Sprintf("mon-%d", i),
			Name:      fmt.Sprintf("Gompa %d", i),
			Tags:      []string{"buddhist"},
			Status:    model.StatusActive,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := store.CreateVirtualTour(ctx, model.VirtualTour{
		ID: "vt-1", Title: "Buddhist hall tour", IsActive: true, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateAudioGuide(ctx, model.AudioGuide{
		ID: "g-en", Title: "Buddhist history", Language: "en",
		Category: model.CategoryGeneral, IsActive: true, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateAudioGuide(ctx, model.AudioGuide{
		ID: "g-hi", Title: "Buddhist history hindi", Language: "hi",
		Category: model.CategoryGeneral, IsActive: true, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateManuscript(ctx, model.Manuscript{
		ID: "ms-1", Title: "Buddhist sutra", IsPublic: true, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}
}

func newTestService(t *testing.T, store storage.Store) (*Service, *capturePublisher) {
	t.Helper()
	events := &capturePublisher{}
	return NewService(store, cache.NewNoop(), events, nil), events
}

func TestSearchRejectsShortQuery(t *testing.T) {
	svc, _ := newTestService(t, storage.NewMemory())

	// The minimum is two characters, not two bytes: a single multi-byte
	// rune is still too short.
	for _, q := range []string{"", "a", "  a  ", " \t ", "日"} {
		_, err := svc.Search(context.Background(), q, model.TypeAll, "en", 1, 10)
		appErr, ok := err.(*apperrors.Error)
		if !ok || appErr.Code != apperrors.M360_VALIDATION {
			t.Errorf("query %q: got %v, want M360_VALIDATION", q, err)
		}
	}
}

func TestShortQuerySkipsStore(t *testing.T) {
	store := &countingStore{}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	for _, q := range []string{"", "a", "  a  ", "日"} {
		if _, err := svc.Search(ctx, q, model.TypeAll, "en", 1, 10); err == nil {
			t.Errorf("Search(%q) did not fail validation", q)
		}
		got, err := svc.Suggest(ctx, q)
		if err != nil {
			t.Errorf("Suggest(%q) error: %v", q, err)
		}
		if len(got) != 0 {
			t.Errorf("Suggest(%q) = %v, want empty", q, got)
		}
	}
	if store.calls != 0 {
		t.Errorf("short queries reached the store %d times", store.calls)
	}

	// Two runes clear the minimum and go through.
	if _, err := svc.Search(ctx, "寺院", model.TypeAll, "en", 1, 10); err != nil {
		t.Fatalf("two-rune query failed: %v", err)
	}
	if store.calls == 0 {
		t.Error("valid query never reached the store")
	}
}

func TestSearchRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService(t, storage.NewMemory())

	_, err := svc.Search(context.Background(), "rumtek", model.EntityType("bogus"), "en", 1, 10)
	appErr, ok := err.(*apperrors.Error)
	if !ok || appErr.Code != apperrors.M360_VALIDATION {
		t.Fatalf("got %v, want M360_VALIDATION", err)
	}
}

func TestSearchAllCapsEachCollection(t *testing.T) {
	store := storage.NewMemory()
	seedCatalog(t, store, 8) // more monasteries than the per-type cap
	svc, events := newTestService(t, store)

	set, err := svc.Search(context.Background(), "buddhist", model.TypeAll, "en", 1, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(set.Results.Monasteries) != 5 {
		t.Errorf("monasteries = %d, want capped at 5", len(set.Results.Monasteries))
	}
	if len(set.Results.VirtualTours) != 1 || len(set.Results.Manuscripts) != 1 {
		t.Errorf("tours=%d manuscripts=%d", len(set.Results.VirtualTours), len(set.Results.Manuscripts))
	}
	// Only the requested language's guides appear.
	if len(set.Results.AudioGuides) != 1 || set.Results.AudioGuides[0].ID != "g-en" {
		t.Errorf("guides = %v", set.Results.AudioGuides)
	}

	// The total is the sum of the capped slices, not the exact corpus count.
	if set.TotalCount != 5+1+1+1 {
		t.Errorf("totalCount = %d, want 8", set.TotalCount)
	}
	if set.Pagination != nil {
		t.Error("type=all must not carry pagination")
	}

	// Search event is published out of band.
	deadline := time.Now().Add(2 * time.Second)
	for events.searchCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if events.searchCount() != 1 {
		t.Errorf("search events = %d", events.searchCount())
	}
}

func TestSearchSingleTypePagination(t *testing.T) {
	store := storage.NewMemory()
	seedCatalog(t, store, 8)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	page1, err := svc.Search(ctx, "buddhist", model.TypeMonasteries, "en", 1, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(page1.Results.Monasteries) != 3 {
		t.Errorf("page 1 size = %d", len(page1.Results.Monasteries))
	}
	// Single-type counts are exact.
	if page1.TotalCount != 8 {
		t.Errorf("totalCount = %d, want 8", page1.TotalCount)
	}
	p := page1.Pagination
	if p == nil {
		t.Fatal("pagination missing")
	}
	if p.CurrentPage != 1 || p.TotalPages != 3 || p.TotalItems != 8 || !p.HasNext || p.HasPrev {
		t.Errorf("pagination = %+v", p)
	}

	page3, err := svc.Search(ctx, "buddhist", model.TypeMonasteries, "en", 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Results.Monasteries) != 2 {
		t.Errorf("page 3 size = %d, want the 2-item remainder", len(page3.Results.Monasteries))
	}
	if page3.Pagination.HasNext || !page3.Pagination.HasPrev {
		t.Errorf("last page flags = %+v", page3.Pagination)
	}

	// Pages never overlap.
	seen := map[string]bool{}
	for _, pg := range []*model.SearchResultSet{page1, page3} {
		for _, m := range pg.Results.Monasteries {
			if seen[m.ID] {
				t.Errorf("monastery %s on two pages", m.ID)
			}
			seen[m.ID] = true
		}
	}

	// A page past the end is empty, not an error.
	beyond, err := svc.Search(ctx, "buddhist", model.TypeMonasteries, "en", 9, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond.Results.Monasteries) != 0 {
		t.Errorf("page past end gave %d results", len(beyond.Results.Monasteries))
	}
}

func TestSearchNoMatches(t *testing.T) {
	store := storage.NewMemory()
	seedCatalog(t, store, 2)
	svc, _ := newTestService(t, store)

	set, err := svc.Search(context.Background(), "zzzzzz", model.TypeAll, "en", 1, 10)
	if err != nil {
		t.Fatalf("no-match search must succeed: %v", err)
	}
	if set.TotalCount != 0 {
		t.Errorf("totalCount = %d", set.TotalCount)
	}
}

func TestSuggest(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	names := []string{"Rumtek Monastery", "Ralang Monastery", "Rinchenpong Monastery",
		"Ravangla Monastery", "Rabdentse Monastery", "Rhenock Monastery"}
	for i, name := range names {
		if err := store.CreateMonastery(ctx, model.Monastery{
			ID: name, Name: name, Status: model.StatusActive,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatal(err)
		}
	}
	svc, _ := newTestService(t, store)

	// Short queries return an empty list, never an error.
	got, err := svc.Suggest(ctx, "r")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("short query gave %v, want empty non-nil list", got)
	}

	// Substring match, not word-anchored: Ralang, Ravangla and Rabdentse.
	got, err = svc.Suggest(ctx, "Ra")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range got {
		if s.Type != "monastery" {
			t.Errorf("suggestion type = %q", s.Type)
		}
	}
	if len(got) != 3 {
		t.Errorf("'Ra' matched %d, want 3", len(got))
	}

	got, err = svc.Suggest(ctx, "monastery")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("suggestion cap: got %d, want 5", len(got))
	}
}

func TestAdvancedMonasteries(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	yes := true

	withTour := model.Monastery{
		ID: "t", Name: "Tour Gompa", Sect: "Kagyu", VirtualTourAvail: true,
		RatingAverage: 4.5, Status: model.StatusActive, CreatedAt: time.Now(),
	}
	plain := model.Monastery{
		ID: "p", Name: "Plain Gompa", Sect: "Nyingma",
		RatingAverage: 3.0, Status: model.StatusActive, CreatedAt: time.Now(),
	}
	for _, m := range []model.Monastery{withTour, plain} {
		if err := store.CreateMonastery(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	svc, _ := newTestService(t, store)

	set, err := svc.AdvancedMonasteries(ctx, model.MonasteryFilter{HasVirtualTour: &yes}, 1, 10)
	if err != nil {
		t.Fatalf("AdvancedMonasteries failed: %v", err)
	}
	if set.TotalCount != 1 || set.Results.Monasteries[0].ID != "t" {
		t.Errorf("filter result: total=%d", set.TotalCount)
	}
	if set.Pagination == nil || set.Pagination.TotalItems != 1 {
		t.Errorf("pagination = %+v", set.Pagination)
	}

	// No criteria matches everything, name ascending.
	set, err = svc.AdvancedMonasteries(ctx, model.MonasteryFilter{}, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if set.TotalCount != 2 || set.Results.Monasteries[0].Name != "Plain Gompa" {
		t.Errorf("unfiltered: total=%d first=%q", set.TotalCount, set.Results.Monasteries[0].Name)
	}
}

func TestAdvancedGuides(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	if err := store.CreateAudioGuide(ctx, model.AudioGuide{
		ID: "g-hist", MonasteryID: "mon-1", Title: "History talk", Language: "en",
		Category: model.CategoryHistory, IsActive: true, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateAudioGuide(ctx, model.AudioGuide{
		ID: "g-gen", MonasteryID: "mon-2", Title: "General talk", Language: "en",
		Category: model.CategoryGeneral, IsActive: true, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	svc, _ := newTestService(t, store)

	set, err := svc.AdvancedGuides(ctx, model.GuideFilter{Category: string(model.CategoryHistory)}, 1, 10)
	if err != nil {
		t.Fatalf("AdvancedGuides failed: %v", err)
	}
	if set.TotalCount != 1 || set.Results.AudioGuides[0].ID != "g-hist" {
		t.Errorf("category filter: total=%d", set.TotalCount)
	}

	set, err = svc.AdvancedGuides(ctx, model.GuideFilter{MonasteryID: "mon-2"}, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if set.TotalCount != 1 || set.Results.AudioGuides[0].ID != "g-gen" {
		t.Errorf("monastery filter: total=%d", set.TotalCount)
	}
}

func TestPopular(t *testing.T) {
	svc, _ := newTestService(t, storage.NewMemory())

	got := svc.Popular()
	if len(got) == 0 {
		t.Fatal("popular list empty")
	}
	// Callers receive a copy, not the shared slice.
	got[0] = "mutated"
	if svc.Popular()[0] == "mutated" {
		t.Error("Popular returned the shared backing slice")
	}
}
