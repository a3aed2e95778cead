// internal/storage/postgres.go
// Package storage provides the PostgreSQL implementation of the Store interface.
// This implementation is intended for production use with persistent data storage.
// Text relevance uses a generated tsvector per collection; spherical queries use
// the earthdistance extension, so the index, not the application, orders by distance.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monastery360/monastery360-go/internal/model"
)

type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema initializes the database schema.
// It creates all required tables, text indexes and the spherical index
// if they don't already exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Extensions backing the spherical nearest-neighbor index
		CREATE EXTENSION IF NOT EXISTS cube;
		CREATE EXTENSION IF NOT EXISTS earthdistance;

		CREATE TABLE IF NOT EXISTS monasteries (
		    id TEXT PRIMARY KEY,
		    name TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    short_description TEXT NOT NULL DEFAULT '',
		    -- GeoJSON order is preserved in the column order: longitude first
		    longitude DOUBLE PRECISION,
		    latitude DOUBLE PRECISION,
		    address TEXT NOT NULL DEFAULT '',
		    district TEXT NOT NULL DEFAULT '',
		    state TEXT NOT NULL DEFAULT 'Sikkim',
		    sect TEXT NOT NULL DEFAULT '',
		    tags TEXT[] NOT NULL DEFAULT '{}',
		    virtual_tour_available BOOLEAN NOT NULL DEFAULT FALSE,
		    audio_guide_available BOOLEAN NOT NULL DEFAULT FALSE,
		    rating_average DOUBLE PRECISION NOT NULL DEFAULT 0,
		    rating_count INTEGER NOT NULL DEFAULT 0,
		    status TEXT NOT NULL DEFAULT 'active',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    -- Derived text index view: recomputed from source columns, never stored independently
		    search_vector tsvector GENERATED ALWAYS AS (
		        to_tsvector('english', name || ' ' || description || ' ' || short_description || ' ' || array_to_string(tags, ' '))
		    ) STORED
		);
		CREATE INDEX IF NOT EXISTS idx_monasteries_search ON monasteries USING GIN (search_vector);
		CREATE INDEX IF NOT EXISTS idx_monasteries_earth ON monasteries USING GIST (ll_to_earth(latitude, longitude));
		CREATE INDEX IF NOT EXISTS idx_monasteries_status ON monasteries(status);

		CREATE TABLE IF NOT EXISTS audio_guides (
		    id TEXT PRIMARY KEY,
		    monastery_id TEXT,  -- advisory reference, may dangle
		    title TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    transcript TEXT NOT NULL DEFAULT '',
		    audio_url TEXT NOT NULL DEFAULT '',
		    duration INTEGER NOT NULL DEFAULT 0,
		    language TEXT NOT NULL DEFAULT 'en',
		    category TEXT NOT NULL DEFAULT 'general',
		    longitude DOUBLE PRECISION,
		    latitude DOUBLE PRECISION,
		    trigger_radius DOUBLE PRECISION NOT NULL DEFAULT 0,
		    is_active BOOLEAN NOT NULL DEFAULT TRUE,
		    play_count BIGINT NOT NULL DEFAULT 0,
		    rating_average DOUBLE PRECISION NOT NULL DEFAULT 0,
		    rating_count INTEGER NOT NULL DEFAULT 0,
		    tags TEXT[] NOT NULL DEFAULT '{}',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    search_vector tsvector GENERATED ALWAYS AS (
		        to_tsvector('english', title || ' ' || description || ' ' || transcript || ' ' || array_to_string(tags, ' '))
		    ) STORED
		);
		CREATE INDEX IF NOT EXISTS idx_audio_guides_search ON audio_guides USING GIN (search_vector);
		CREATE INDEX IF NOT EXISTS idx_audio_guides_earth ON audio_guides USING GIST (ll_to_earth(latitude, longitude));
		CREATE INDEX IF NOT EXISTS idx_audio_guides_monastery ON audio_guides(monastery_id, language);

		CREATE TABLE IF NOT EXISTS virtual_tours (
		    id TEXT PRIMARY KEY,
		    monastery_id TEXT,
		    title TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    views BIGINT NOT NULL DEFAULT 0,
		    is_active BOOLEAN NOT NULL DEFAULT TRUE,
		    tags TEXT[] NOT NULL DEFAULT '{}',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    search_vector tsvector GENERATED ALWAYS AS (
		        to_tsvector('english', title || ' ' || description || ' ' || array_to_string(tags, ' '))
		    ) STORED
		);
		CREATE INDEX IF NOT EXISTS idx_virtual_tours_search ON virtual_tours USING GIN (search_vector);

		CREATE TABLE IF NOT EXISTS manuscripts (
		    id TEXT PRIMARY KEY,
		    monastery_id TEXT,
		    title TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    original_language TEXT NOT NULL DEFAULT '',
		    available_languages TEXT[] NOT NULL DEFAULT '{}',
		    is_public BOOLEAN NOT NULL DEFAULT TRUE,
		    tags TEXT[] NOT NULL DEFAULT '{}',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    search_vector tsvector GENERATED ALWAYS AS (
		        to_tsvector('english', title || ' ' || description || ' ' || array_to_string(tags, ' '))
		    ) STORED
		);
		CREATE INDEX IF NOT EXISTS idx_manuscripts_search ON manuscripts USING GIN (search_vector);

		CREATE TABLE IF NOT EXISTS translation_jobs (
		    id TEXT PRIMARY KEY,
		    type TEXT NOT NULL,
		    status TEXT NOT NULL DEFAULT 'queued',
		    payload JSONB NOT NULL DEFAULT '{}',
		    result JSONB,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    completed_at TIMESTAMP WITH TIME ZONE
		);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

const monasteryColumns = `id, name, description, short_description, longitude, latitude,
	address, district, state, sect, tags, virtual_tour_available, audio_guide_available,
	rating_average, rating_count, status, created_at, updated_at`

func scanMonastery(row pgx.Row) (*model.Monastery, error) {
	var m model.Monastery
	var lng, lat *float64
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.ShortDescription, &lng, &lat,
		&m.Address, &m.District, &m.State, &m.Sect, &m.Tags, &m.VirtualTourAvail, &m.AudioGuideAvail,
		&m.RatingAverage, &m.RatingCount, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lng != nil && lat != nil {
		pt := model.NewGeoPoint(*lng, *lat)
		m.Location = &pt
	}
	return &m, nil
}

func (p *postgres) collectMonasteries(rows pgx.Rows) ([]model.Monastery, error) {
	defer rows.Close()
	var out []model.Monastery
	for rows.Next() {
		m, err := scanMonastery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monastery: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monasteries: %w", err)
	}
	return out, nil
}

func (p *postgres) CreateMonastery(ctx context.Context, m model.Monastery) error {
	var lng, lat *float64
	if m.Location != nil {
		l, a := m.Location.Longitude(), m.Location.Latitude()
		lng, lat = &l, &a
	}
	query := `INSERT INTO monasteries (` + monasteryColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := p.db.Exec(ctx, query, m.ID, m.Name, m.Description, m.ShortDescription, lng, lat,
		m.Address, m.District, m.State, m.Sect, m.Tags, m.VirtualTourAvail, m.AudioGuideAvail,
		m.RatingAverage, m.RatingCount, m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create monastery: %w", err)
	}
	return nil
}

func (p *postgres) GetMonastery(ctx context.Context, id string) (*model.Monastery, error) {
	query := `SELECT ` + monasteryColumns + ` FROM monasteries WHERE id = $1`
	m, err := scanMonastery(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get monastery: %w", err)
	}
	return m, nil
}

func (p *postgres) UpdateMonastery(ctx context.Context, id string, patch model.MonasteryPatch) (*model.Monastery, error) {
	// Read-merge-write keeps the merge semantics in one place (the patch).
	m, err := p.GetMonastery(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(m)
	m.UpdatedAt = time.Now().UTC()

	query := `UPDATE monasteries SET name = $2, description = $3, short_description = $4,
	          address = $5, district = $6, state = $7, sect = $8, tags = $9,
	          virtual_tour_available = $10, audio_guide_available = $11, status = $12, updated_at = $13
	          WHERE id = $1`
	tag, err := p.db.Exec(ctx, query, id, m.Name, m.Description, m.ShortDescription,
		m.Address, m.District, m.State, m.Sect, m.Tags,
		m.VirtualTourAvail, m.AudioGuideAvail, m.Status, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update monastery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

func (p *postgres) DeactivateMonastery(ctx context.Context, id string) error {
	query := `UPDATE monasteries SET status = 'inactive', updated_at = NOW() WHERE id = $1`
	tag, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate monastery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) ListMonasteries(ctx context.Context) ([]model.Monastery, error) {
	query := `SELECT ` + monasteryColumns + ` FROM monasteries WHERE status = 'active' ORDER BY created_at`
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list monasteries: %w", err)
	}
	return p.collectMonasteries(rows)
}

func (p *postgres) FindMonasteriesNear(ctx context.Context, pt model.GeoPoint, maxDistanceMeters float64) ([]model.Monastery, error) {
	// The spherical index orders by distance; the application never re-sorts.
	// Parameters follow the [longitude, latitude] convention.
	query := `SELECT ` + monasteryColumns + ` FROM monasteries
	          WHERE status = 'active' AND longitude IS NOT NULL AND latitude IS NOT NULL
	            AND earth_box(ll_to_earth($2, $1), $3) @> ll_to_earth(latitude, longitude)
	            AND earth_distance(ll_to_earth($2, $1), ll_to_earth(latitude, longitude)) <= $3
	          ORDER BY earth_distance(ll_to_earth($2, $1), ll_to_earth(latitude, longitude)) ASC`
	rows, err := p.db.Query(ctx, query, pt.Longitude(), pt.Latitude(), maxDistanceMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby monasteries: %w", err)
	}
	return p.collectMonasteries(rows)
}

func (p *postgres) SearchMonasteries(ctx context.Context, q model.TextQuery) ([]model.Monastery, error) {
	query := `SELECT ` + monasteryColumns + ` FROM monasteries
	          WHERE status = 'active' AND search_vector @@ plainto_tsquery('english', $1)
	          ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, created_at DESC
	          OFFSET $2 LIMIT $3`
	rows, err := p.db.Query(ctx, query, q.Text, q.Skip, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search monasteries: %w", err)
	}
	return p.collectMonasteries(rows)
}

func (p *postgres) CountMonasteries(ctx context.Context, q model.TextQuery) (int, error) {
	query := `SELECT COUNT(*) FROM monasteries
	          WHERE status = 'active' AND search_vector @@ plainto_tsquery('english', $1)`
	var n int
	if err := p.db.QueryRow(ctx, query, q.Text).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count monasteries: %w", err)
	}
	return n, nil
}

func (p *postgres) FilterMonasteries(ctx context.Context, f model.MonasteryFilter) ([]model.Monastery, int, error) {
	// Each optional criterion maps to a predicate only when present.
	where := `WHERE status = 'active'`
	args := []interface{}{}
	argIndex := 1

	if f.Text != "" {
		where += fmt.Sprintf(" AND search_vector @@ plainto_tsquery('english', $%d)", argIndex)
		args = append(args, f.Text)
		argIndex++
	}
	if f.District != "" {
		where += fmt.Sprintf(" AND district = $%d", argIndex)
		args = append(args, f.District)
		argIndex++
	}
	if f.Sect != "" {
		where += fmt.Sprintf(" AND sect = $%d", argIndex)
		args = append(args, f.Sect)
		argIndex++
	}
	if f.HasVirtualTour != nil {
		where += fmt.Sprintf(" AND virtual_tour_available = $%d", argIndex)
		args = append(args, *f.HasVirtualTour)
		argIndex++
	}
	if f.HasAudioGuide != nil {
		where += fmt.Sprintf(" AND audio_guide_available = $%d", argIndex)
		args = append(args, *f.HasAudioGuide)
		argIndex++
	}
	if f.MinRating != nil {
		where += fmt.Sprintf(" AND rating_average >= $%d", argIndex)
		args = append(args, *f.MinRating)
		argIndex++
	}

	var total int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM monasteries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count filtered monasteries: %w", err)
	}

	order := ` ORDER BY name ASC`
	if f.Text != "" {
		order = ` ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, created_at DESC`
	}
	query := `SELECT ` + monasteryColumns + ` FROM monasteries ` + where + order +
		fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
	args = append(args, f.Skip, f.Limit)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to filter monasteries: %w", err)
	}
	out, err := p.collectMonasteries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p *postgres) SuggestMonasteries(ctx context.Context, q string, limit int) ([]model.Suggestion, error) {
	// Case-insensitive substring match on names only, store-default order.
	query := `SELECT id, name FROM monasteries
	          WHERE status = 'active' AND name ILIKE '%' || $1 || '%'
	          LIMIT $2`
	rows, err := p.db.Query(ctx, query, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var s model.Suggestion
		if err := rows.Scan(&s.ID, &s.Text); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		s.Type = "monastery"
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}
	return out, nil
}

func (p *postgres) MonasteryStats(ctx context.Context) (*model.MonasteryStats, error) {
	query := `SELECT COUNT(*),
	                 COALESCE(ROUND(AVG(rating_average)::numeric, 1), 0),
	                 COUNT(*) FILTER (WHERE virtual_tour_available),
	                 COUNT(*) FILTER (WHERE audio_guide_available)
	          FROM monasteries WHERE status = 'active'`
	var stats model.MonasteryStats
	err := p.db.QueryRow(ctx, query).Scan(&stats.TotalMonasteries, &stats.AverageRating,
		&stats.TotalWithVirtualTour, &stats.TotalWithAudioGuide)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monastery stats: %w", err)
	}
	return &stats, nil
}

const guideColumns = `id, monastery_id, title, description, transcript, audio_url, duration,
	language, category, longitude, latitude, trigger_radius, is_active, play_count,
	rating_average, rating_count, tags, created_at, updated_at`

func scanGuide(row pgx.Row) (*model.AudioGuide, error) {
	var g model.AudioGuide
	var monasteryID *string
	var lng, lat *float64
	err := row.Scan(&g.ID, &monasteryID, &g.Title, &g.Description, &g.Transcript, &g.AudioURL, &g.Duration,
		&g.Language, &g.Category, &lng, &lat, &g.TriggerRadius, &g.IsActive, &g.PlayCount,
		&g.RatingAverage, &g.RatingCount, &g.Tags, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if monasteryID != nil {
		g.MonasteryID = *monasteryID
	}
	if lng != nil && lat != nil {
		pt := model.NewGeoPoint(*lng, *lat)
		g.Location = &pt
	}
	return &g, nil
}

func (p *postgres) collectGuides(rows pgx.Rows) ([]model.AudioGuide, error) {
	defer rows.Close()
	var out []model.AudioGuide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audio guide: %w", err)
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audio guides: %w", err)
	}
	return out, nil
}

func (p *postgres) CreateAudioGuide(ctx context.Context, g model.AudioGuide) error {
	var monasteryID *string
	if g.MonasteryID != "" {
		monasteryID = &g.MonasteryID
	}
	var lng, lat *float64
	if g.Location != nil {
		l, a := g.Location.Longitude(), g.Location.Latitude()
		lng, lat = &l, &a
	}
	query := `INSERT INTO audio_guides (` + guideColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := p.db.Exec(ctx, query, g.ID, monasteryID, g.Title, g.Description, g.Transcript, g.AudioURL, g.Duration,
		g.Language, g.Category, lng, lat, g.TriggerRadius, g.IsActive, g.PlayCount,
		g.RatingAverage, g.RatingCount, g.Tags, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create audio guide: %w", err)
	}
	return nil
}

func (p *postgres) GetAudioGuide(ctx context.Context, id string) (*model.AudioGuide, error) {
	query := `SELECT ` + guideColumns + ` FROM audio_guides WHERE id = $1`
	g, err := scanGuide(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audio guide: %w", err)
	}
	return g, nil
}

func (p *postgres) DeactivateAudioGuide(ctx context.Context, id string) error {
	query := `UPDATE audio_guides SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	tag, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate audio guide: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) FindGuidesByMonasteries(ctx context.Context, monasteryIDs []string, language string) ([]model.AudioGuide, error) {
	// array_position preserves the caller's nearest-first monastery order;
	// created_at DESC breaks ties within a monastery.
	query := `SELECT ` + guideColumns + ` FROM audio_guides
	          WHERE is_active AND language = $2 AND monastery_id = ANY($1)
	          ORDER BY array_position($1, monastery_id), created_at DESC`
	rows, err := p.db.Query(ctx, query, monasteryIDs, language)
	if err != nil {
		return nil, fmt.Errorf("failed to find guides by monasteries: %w", err)
	}
	return p.collectGuides(rows)
}

func (p *postgres) FindGuidesByMonastery(ctx context.Context, monasteryID, language string) ([]model.AudioGuide, error) {
	return p.FindGuidesByMonasteries(ctx, []string{monasteryID}, language)
}

func (p *postgres) FindTriggeredGuidesNear(ctx context.Context, pt model.GeoPoint, maxDistanceMeters float64) ([]model.AudioGuide, error) {
	query := `SELECT ` + guideColumns + ` FROM audio_guides
	          WHERE is_active AND category = 'location-based'
	            AND longitude IS NOT NULL AND latitude IS NOT NULL
	            AND earth_box(ll_to_earth($2, $1), $3) @> ll_to_earth(latitude, longitude)
	            AND earth_distance(ll_to_earth($2, $1), ll_to_earth(latitude, longitude)) <= $3
	          ORDER BY earth_distance(ll_to_earth($2, $1), ll_to_earth(latitude, longitude)) ASC`
	rows, err := p.db.Query(ctx, query, pt.Longitude(), pt.Latitude(), maxDistanceMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to find triggered guides: %w", err)
	}
	return p.collectGuides(rows)
}

func (p *postgres) SearchAudioGuides(ctx context.Context, q model.TextQuery) ([]model.AudioGuide, error) {
	query := `SELECT ` + guideColumns + ` FROM audio_guides
	          WHERE is_active AND language = $2 AND search_vector @@ plainto_tsquery('english', $1)
	          ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, created_at DESC
	          OFFSET $3 LIMIT $4`
	rows, err := p.db.Query(ctx, query, q.Text, q.Language, q.Skip, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search audio guides: %w", err)
	}
	return p.collectGuides(rows)
}

func (p *postgres) CountAudioGuides(ctx context.Context, q model.TextQuery) (int, error) {
	query := `SELECT COUNT(*) FROM audio_guides
	          WHERE is_active AND language = $2 AND search_vector @@ plainto_tsquery('english', $1)`
	var n int
	if err := p.db.QueryRow(ctx, query, q.Text, q.Language).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audio guides: %w", err)
	}
	return n, nil
}

func (p *postgres) FilterAudioGuides(ctx context.Context, f model.GuideFilter) ([]model.AudioGuide, int, error) {
	where := `WHERE is_active`
	args := []interface{}{}
	argIndex := 1

	if f.Text != "" {
		where += fmt.Sprintf(" AND search_vector @@ plainto_tsquery('english', $%d)", argIndex)
		args = append(args, f.Text)
		argIndex++
	}
	if f.Language != "" {
		where += fmt.Sprintf(" AND language = $%d", argIndex)
		args = append(args, f.Language)
		argIndex++
	}
	if f.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIndex)
		args = append(args, f.Category)
		argIndex++
	}
	if f.MonasteryID != "" {
		where += fmt.Sprintf(" AND monastery_id = $%d", argIndex)
		args = append(args, f.MonasteryID)
		argIndex++
	}

	var total int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM audio_guides `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count filtered guides: %w", err)
	}

	order := ` ORDER BY created_at DESC`
	if f.Text != "" {
		order = ` ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, created_at DESC`
	}
	query := `SELECT ` + guideColumns + ` FROM audio_guides ` + where + order +
		fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
	args = append(args, f.Skip, f.Limit)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to filter audio guides: %w", err)
	}
	out, err := p.collectGuides(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p *postgres) IncrementPlayCount(ctx context.Context, id string) error {
	query := `UPDATE audio_guides SET play_count = play_count + 1 WHERE id = $1`
	tag, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment play count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) UpdateGuideRating(ctx context.Context, id string, average float64, count int) error {
	query := `UPDATE audio_guides SET rating_average = $2, rating_count = $3, updated_at = NOW() WHERE id = $1`
	tag, err := p.db.Exec(ctx, query, id, average, count)
	if err != nil {
		return fmt.Errorf("failed to update guide rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) CreateVirtualTour(ctx context.Context, t model.VirtualTour) error {
	var monasteryID *string
	if t.MonasteryID != "" {
		monasteryID = &t.MonasteryID
	}
	query := `INSERT INTO virtual_tours (id, monastery_id, title, description, views, is_active, tags, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := p.db.Exec(ctx, query, t.ID, monasteryID, t.Title, t.Description, t.Views, t.IsActive, t.Tags, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create virtual tour: %w", err)
	}
	return nil
}

func (p *postgres) SearchVirtualTours(ctx context.Context, q model.TextQuery) ([]model.VirtualTour, error) {
	query := `SELECT id, monastery_id, title, description, views, is_active, tags, created_at, updated_at
	          FROM virtual_tours
	          WHERE is_active AND search_vector @@ plainto_tsquery('english', $1)
	          ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, created_at DESC
	          OFFSET $2 LIMIT $3`
	rows, err := p.db.Query(ctx, query, q.Text, q.Skip, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search virtual tours: %w", err)
	}
	defer rows.Close()

	var out []model.VirtualTour
	for rows.Next() {
		var t model.VirtualTour
		var monasteryID *string
		if err := rows.Scan(&t.ID, &monasteryID, &t.Title, &t.Description, &t.Views, &t.IsActive, &t.Tags, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan virtual tour: %w", err)
		}
		if monasteryID != nil {
			t.MonasteryID = *monasteryID
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating virtual tours: %w", err)
	}
	return out, nil
}

func (p *postgres) CountVirtualTours(ctx context.Context, q model.TextQuery) (int, error) {
	query := `SELECT COUNT(*) FROM virtual_tours
	          WHERE is_active AND search_vector @@ plainto_tsquery('english', $1)`
	var n int
	if err := p.db.QueryRow(ctx, query, q.Text).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count virtual tours: %w", err)
	}
	return n, nil
}

func (p *postgres) CreateManuscript(ctx context.Context, ms model.Manuscript) error {
	var monasteryID *string
	if ms.MonasteryID != "" {
		monasteryID = &ms.MonasteryID
	}
	query := `INSERT INTO manuscripts (id, monastery_id, title, description, original_language, available_languages, is_public, tags, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := p.db.Exec(ctx, query, ms.ID, monasteryID, ms.Title, ms.Description, ms.OriginalLanguage, ms.AvailableLanguages, ms.IsPublic, ms.Tags, ms.CreatedAt, ms.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create manuscript: %w", err)
	}
	return nil
}

func (p *postgres) SearchManuscripts(ctx context.Context, q model.TextQuery) ([]model.Manuscript, error) {
	query := `SELECT id, monastery_id, title, description, original_language, available_languages, is_public, tags, created_at, updated_at
	          FROM manuscripts
	          WHERE is_public AND search_vector @@ plainto_tsquery('english', $1)
	          ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, created_at DESC
	          OFFSET $2 LIMIT $3`
	rows, err := p.db.Query(ctx, query, q.Text, q.Skip, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search manuscripts: %w", err)
	}
	defer rows.Close()

	var out []model.Manuscript
	for rows.Next() {
		var ms model.Manuscript
		var monasteryID *string
		if err := rows.Scan(&ms.ID, &monasteryID, &ms.Title, &ms.Description, &ms.OriginalLanguage, &ms.AvailableLanguages, &ms.IsPublic, &ms.Tags, &ms.CreatedAt, &ms.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan manuscript: %w", err)
		}
		if monasteryID != nil {
			ms.MonasteryID = *monasteryID
		}
		out = append(out, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating manuscripts: %w", err)
	}
	return out, nil
}

func (p *postgres) CountManuscripts(ctx context.Context, q model.TextQuery) (int, error) {
	query := `SELECT COUNT(*) FROM manuscripts
	          WHERE is_public AND search_vector @@ plainto_tsquery('english', $1)`
	var n int
	if err := p.db.QueryRow(ctx, query, q.Text).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count manuscripts: %w", err)
	}
	return n, nil
}

func (p *postgres) CreateJob(ctx context.Context, job model.TranslationJob) error {
	query := `INSERT INTO translation_jobs (id, type, status, payload, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.Exec(ctx, query, job.ID, job.Type, job.Status, job.Payload, job.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (p *postgres) GetJob(ctx context.Context, id string) (*model.TranslationJob, error) {
	query := `SELECT id, type, status, payload, result, created_at, completed_at
	          FROM translation_jobs WHERE id = $1`
	var job model.TranslationJob
	err := p.db.QueryRow(ctx, query, id).Scan(&job.ID, &job.Type, &job.Status, &job.Payload, &job.Result, &job.CreatedAt, &job.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (p *postgres) CompleteJob(ctx context.Context, id string, result map[string]string) error {
	query := `UPDATE translation_jobs SET status = 'completed', result = $2, completed_at = NOW() WHERE id = $1`
	tag, err := p.db.Exec(ctx, query, id, result)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
