// internal/guide/resolver.go
// Package guide implements the audio-guide resolution pipelines: resolving a
// guide from visitor coordinates, from a recognized photo, and the playback
// side effects both paths share. Resolutions are ephemeral; nothing here is
// persisted except the play counter.
package guide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/event"
	"github.com/monastery360/monastery360-go/internal/geo"
	"github.com/monastery360/monastery360-go/internal/media"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
	"github.com/monastery360/monastery360-go/internal/vision"
)

// Synthesis placeholders returned when no real guide exists for a location.
const (
	sampleAudioURL  = "/audio/rumtek-sample.mp3"
	sampleDuration  = 120 // seconds
	sideEffectGrace = 5 * time.Second
)

// Resolver runs the location and image pipelines against the store.
type Resolver struct {
	store    storage.Store
	identify vision.Identifier
	events   event.Publisher
	archive  media.Archiver
	log      *slog.Logger
}

// NewResolver wires the resolution pipelines.
func NewResolver(store storage.Store, identifier vision.Identifier, events event.Publisher, archiver media.Archiver, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:    store,
		identify: identifier,
		events:   events,
		archive:  archiver,
		log:      log,
	}
}

// ResolveByLocation resolves the best audio guide for a visitor standing at pt.
// Nearest active monastery first; among its guides in the requested language,
// most recently created wins. When no guide exists, a placeholder is
// synthesized from the nearest monastery so the client always has something
// to play.
func (r *Resolver) ResolveByLocation(ctx context.Context, pt model.GeoPoint, language string, radiusMeters float64) (*model.AudioResolution, error) {
	if err := pt.Validate(); err != nil {
		return nil, apperrors.New(apperrors.M360_VALIDATION, err.Error(), "")
	}
	if language == "" {
		language = "en"
	}
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultGuideRadius
	}

	monasteries, err := r.store.FindMonasteriesNear(ctx, pt, radiusMeters)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to query nearby monasteries", "")
	}
	if len(monasteries) == 0 {
		return nil, apperrors.New(apperrors.M360_NOT_FOUND, "no monasteries found near your location", "")
	}

	ids := make([]string, len(monasteries))
	byID := make(map[string]*model.Monastery, len(monasteries))
	for i := range monasteries {
		ids[i] = monasteries[i].ID
		byID[monasteries[i].ID] = &monasteries[i]
	}

	guides, err := r.store.FindGuidesByMonasteries(ctx, ids, language)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to query audio guides", "")
	}

	if len(guides) == 0 {
		return r.synthesize(&monasteries[0], pt, language, ""), nil
	}

	best := guides[0]
	r.playedAsync(best.ID, best.MonasteryID)

	res := resolutionFor(best, byID[best.MonasteryID])
	res.Distance = wholeMeters(pt, byID[best.MonasteryID])
	res.AllNearbyGuides = len(guides)
	return res, nil
}

// TriggeredGuides returns the location-based guides whose own coordinates
// place them within radiusMeters of pt, nearest first.
func (r *Resolver) TriggeredGuides(ctx context.Context, pt model.GeoPoint, radiusMeters float64) ([]model.AudioGuide, error) {
	if err := pt.Validate(); err != nil {
		return nil, apperrors.New(apperrors.M360_VALIDATION, err.Error(), "")
	}
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultTriggerRadius
	}
	guides, err := r.store.FindTriggeredGuidesNear(ctx, pt, radiusMeters)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to query triggered guides", "")
	}
	return guides, nil
}

// IdentifyFromImage resolves an audio guide from an uploaded photo. The
// recognizer decides which monastery the photo shows; guide selection then
// follows the same rules as the location pipeline. The uploaded bytes are
// archived out of band when an archiver is configured.
func (r *Resolver) IdentifyFromImage(ctx context.Context, image []byte, contentType, language string) (*model.AudioResolution, error) {
	if len(image) == 0 {
		return nil, apperrors.New(apperrors.M360_BAD_REQUEST, "no image file provided", "")
	}
	if language == "" {
		language = "en"
	}

	r.archiveAsync(image, contentType)

	rec, err := r.identify.Identify(ctx, image, contentType)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "image identification failed", "")
	}
	if rec == nil {
		return nil, apperrors.New(apperrors.M360_NOT_FOUND, "could not identify a monastery from the image", "")
	}

	if rec.MonasteryID != "" {
		monastery, err := r.store.GetMonastery(ctx, rec.MonasteryID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to load recognized monastery", "")
		}
		if monastery != nil {
			guides, err := r.store.FindGuidesByMonastery(ctx, monastery.ID, language)
			if err != nil {
				return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to query audio guides", "")
			}
			if len(guides) > 0 {
				best := guides[0]
				r.playedAsync(best.ID, best.MonasteryID)

				res := resolutionFor(best, monastery)
				res.AllNearbyGuides = len(guides)
				res.RecognizedLocation = monastery.Name
				res.Confidence = rec.Confidence
				return res, nil
			}
			// Recognized but no guide recorded yet.
			synth := r.synthesizeResolved(resolvedFrom(monastery), language)
			synth.RecognizedLocation = monastery.Name
			synth.Confidence = rec.Confidence
			return synth, nil
		}
	}

	// Fallback recognition: synthesize from the recognizer's own summary.
	synth := r.synthesizeResolved(rec.Monastery, language)
	synth.RecognizedLocation = rec.Monastery.Name
	synth.Confidence = rec.Confidence
	return synth, nil
}

// GetAndPlay fetches a guide by ID and counts the playback.
func (r *Resolver) GetAndPlay(ctx context.Context, id string) (*model.AudioGuide, error) {
	g, err := r.store.GetAudioGuide(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.M360_NOT_FOUND, "audio guide not found", "")
		}
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to load audio guide", "")
	}
	r.playedAsync(g.ID, g.MonasteryID)
	return g, nil
}

// GuidesByMonastery lists a monastery's active guides in the given language.
func (r *Resolver) GuidesByMonastery(ctx context.Context, monasteryID, language string) ([]model.AudioGuide, error) {
	if language == "" {
		language = "en"
	}
	guides, err := r.store.FindGuidesByMonastery(ctx, monasteryID, language)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to query audio guides", "")
	}
	return guides, nil
}

// Rate records a 1-5 rating and returns the updated guide. The running
// average is kept to one decimal.
func (r *Resolver) Rate(ctx context.Context, id string, rating int) (*model.AudioGuide, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.New(apperrors.M360_VALIDATION, "rating must be between 1 and 5", "")
	}
	g, err := r.store.GetAudioGuide(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.M360_NOT_FOUND, "audio guide not found", "")
		}
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to load audio guide", "")
	}

	count := g.RatingCount + 1
	average := math.Round((g.RatingAverage*float64(g.RatingCount)+float64(rating))/float64(count)*10) / 10
	if err := r.store.UpdateGuideRating(ctx, id, average, count); err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to store rating", "")
	}
	g.RatingAverage = average
	g.RatingCount = count
	return g, nil
}

// playedAsync counts a playback and publishes the event, detached from the
// request so caller cancellation or a slow broker never delays the response.
func (r *Resolver) playedAsync(guideID, monasteryID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectGrace)
		defer cancel()
		if err := r.store.IncrementPlayCount(ctx, guideID); err != nil {
			r.log.Warn("play count increment failed", "guideId", guideID, "error", err)
		}
		if err := r.events.PublishGuidePlayed(ctx, guideID, monasteryID); err != nil {
			r.log.Warn("guide played event failed", "guideId", guideID, "error", err)
		}
	}()
}

// archiveAsync stores the uploaded image out of band.
func (r *Resolver) archiveAsync(image []byte, contentType string) {
	if r.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectGrace)
		defer cancel()
		if _, err := r.archive.ArchiveImage(ctx, image, contentType); err != nil {
			r.log.Warn("image archive failed", "error", err)
		}
	}()
}

// synthesize builds the placeholder resolution for a monastery with no guide.
func (r *Resolver) synthesize(m *model.Monastery, pt model.GeoPoint, language, recognized string) *model.AudioResolution {
	res := r.synthesizeResolved(resolvedFrom(m), language)
	res.Distance = wholeMeters(pt, m)
	res.RecognizedLocation = recognized
	return res
}

func (r *Resolver) synthesizeResolved(m model.ResolvedMonastery, language string) *model.AudioResolution {
	return &model.AudioResolution{
		Title:       fmt.Sprintf("Discover %s", m.Name),
		AudioURL:    sampleAudioURL,
		Duration:    sampleDuration,
		Description: fmt.Sprintf("An introduction to %s and its history", m.Name),
		Language:    language,
		Monastery:   m,
		IsMockData:  true,
	}
}

// resolutionFor maps a real guide onto the resolution payload.
func resolutionFor(g model.AudioGuide, m *model.Monastery) *model.AudioResolution {
	return &model.AudioResolution{
		GuideID:     g.ID,
		Title:       g.Title,
		AudioURL:    g.AudioURL,
		Duration:    g.Duration,
		Description: g.Description,
		Language:    g.Language,
		Monastery:   resolvedFrom(m),
	}
}

func resolvedFrom(m *model.Monastery) model.ResolvedMonastery {
	if m == nil {
		return model.ResolvedMonastery{}
	}
	resolved := model.ResolvedMonastery{
		Name:        m.Name,
		Description: m.Description,
	}
	if m.Location != nil {
		coords := m.Location.Coordinates
		resolved.Coordinates = &coords
	}
	return resolved
}

// wholeMeters computes the visitor-to-monastery distance, rounded to whole
// meters, or nil when the monastery has no coordinates.
func wholeMeters(pt model.GeoPoint, m *model.Monastery) *int {
	if m == nil || m.Location == nil {
		return nil
	}
	d := int(math.Round(geo.DistanceMeters(pt.Latitude(), pt.Longitude(), m.Location.Latitude(), m.Location.Longitude())))
	return &d
}
