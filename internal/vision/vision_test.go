package vision

import (
	"context"
	"testing"
	"time"

	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
)

func TestIdentifyFromCatalog(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	pt := model.NewGeoPoint(88.6065, 27.3389)
	if err := store.CreateMonastery(ctx, model.Monastery{
		ID:          "mon-1",
		Name:        "Rumtek Monastery",
		Description: "Seat of the Karmapa",
		Location:    &pt,
		Status:      model.StatusActive,
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	svc := NewMock(store)
	for i := 0; i < 20; i++ {
		rec, err := svc.Identify(ctx, []byte("fake-jpeg"), "image/jpeg")
		if err != nil {
			t.Fatalf("Identify failed: %v", err)
		}
		if rec.MonasteryID != "mon-1" {
			t.Errorf("recognized %q, want the single catalog entry", rec.MonasteryID)
		}
		if rec.Confidence < 0.85 || rec.Confidence >= 0.95 {
			t.Errorf("confidence %v outside [0.85, 0.95)", rec.Confidence)
		}
		if !rec.IsMock {
			t.Error("mock recognizer must flag its output")
		}
		if rec.Monastery.Coordinates == nil {
			t.Fatal("coordinates missing")
		}
		// [longitude, latitude] order.
		if rec.Monastery.Coordinates[0] != 88.6065 || rec.Monastery.Coordinates[1] != 27.3389 {
			t.Errorf("coordinates = %v", *rec.Monastery.Coordinates)
		}
	}
}

func TestIdentifyFallback(t *testing.T) {
	svc := NewMock(storage.NewMemory())

	// Unlike catalog draws, each fallback candidate reports a fixed confidence.
	fixed := map[string]float64{
		"Rumtek Monastery":    0.89,
		"Enchey Monastery":    0.82,
		"Tashiding Monastery": 0.75,
	}

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := svc.Identify(context.Background(), nil, "image/png")
		if err != nil {
			t.Fatalf("Identify failed: %v", err)
		}
		if rec.MonasteryID != "" {
			t.Errorf("fallback recognition carries id %q", rec.MonasteryID)
		}
		if !rec.IsMock {
			t.Error("fallback must be flagged mock")
		}
		want, ok := fixed[rec.Monastery.Name]
		if !ok {
			t.Fatalf("unexpected fallback %q", rec.Monastery.Name)
		}
		if rec.Confidence != want {
			t.Errorf("%s confidence = %v, want %v", rec.Monastery.Name, rec.Confidence, want)
		}
		seen[rec.Monastery.Name] = true
	}
	// All three fallbacks should appear over 50 draws.
	if len(seen) != 3 {
		t.Errorf("fallback set = %v, want all 3 built-ins", seen)
	}
}
