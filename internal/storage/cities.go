package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civiclight/civiclight/internal/civic"
)

// UpsertCity inserts or updates a city and replaces its zipcodes.
func UpsertCity(ctx context.Context, db DB, c civic.City) error {
	_, err := db.Exec(ctx, `
		INSERT INTO cities (banana, name, state, vendor, slug, county, status, population, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (banana) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			vendor = EXCLUDED.vendor,
			slug = EXCLUDED.slug,
			county = EXCLUDED.county,
			status = EXCLUDED.status,
			population = EXCLUDED.population,
			updated_at = now()`,
		c.Banana, c.Name, c.State, string(c.Vendor), c.Slug, c.County, string(c.Status), c.Population)
	if err != nil {
		return fmt.Errorf("upsert city %s: %w", c.Banana, err)
	}

	if _, err := db.Exec(ctx, `DELETE FROM zipcodes WHERE banana = $1`, c.Banana); err != nil {
		return fmt.Errorf("clear zipcodes for %s: %w", c.Banana, err)
	}
	for _, z := range c.Zipcodes {
		if _, err := db.Exec(ctx,
			`INSERT INTO zipcodes (banana, code, is_primary) VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			c.Banana, z.Code, z.Primary); err != nil {
			return fmt.Errorf("insert zipcode %s for %s: %w", z.Code, c.Banana, err)
		}
	}
	return nil
}

// GetCity loads one city.
func GetCity(ctx context.Context, db DB, banana string) (civic.City, error) {
	var c civic.City
	var vendor, status string
	err := db.QueryRow(ctx, `
		SELECT banana, name, state, vendor, slug, county, status, population, last_synced
		FROM cities WHERE banana = $1`, banana).Scan(
		&c.Banana, &c.Name, &c.State, &vendor, &c.Slug, &c.County, &status, &c.Population, &c.LastSynced)
	if errors.Is(err, pgx.ErrNoRows) {
		return civic.City{}, fmt.Errorf("city %s: %w", banana, ErrNotFound)
	}
	if err != nil {
		return civic.City{}, fmt.Errorf("get city %s: %w", banana, err)
	}
	c.Vendor = civic.Vendor(vendor)
	c.Status = civic.CityStatus(status)

	rows, err := db.Query(ctx, `SELECT code, is_primary FROM zipcodes WHERE banana = $1 ORDER BY code`, banana)
	if err != nil {
		return civic.City{}, fmt.Errorf("get zipcodes for %s: %w", banana, err)
	}
	defer rows.Close()
	for rows.Next() {
		var z civic.Zipcode
		if err := rows.Scan(&z.Code, &z.Primary); err != nil {
			return civic.City{}, err
		}
		c.Zipcodes = append(c.Zipcodes, z)
	}
	return c, rows.Err()
}

// ActiveCities returns every city eligible for sync passes.
func ActiveCities(ctx context.Context, db DB) ([]civic.City, error) {
	rows, err := db.Query(ctx, `
		SELECT banana, name, state, vendor, slug, county, status, population, last_synced
		FROM cities WHERE status = 'active' ORDER BY banana`)
	if err != nil {
		return nil, fmt.Errorf("list active cities: %w", err)
	}
	defer rows.Close()

	var cities []civic.City
	for rows.Next() {
		var c civic.City
		var vendor, status string
		if err := rows.Scan(&c.Banana, &c.Name, &c.State, &vendor, &c.Slug,
			&c.County, &status, &c.Population, &c.LastSynced); err != nil {
			return nil, err
		}
		c.Vendor = civic.Vendor(vendor)
		c.Status = civic.CityStatus(status)
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// MarkCitySynced records a completed sync.
func MarkCitySynced(ctx context.Context, db DB, banana string, at time.Time) error {
	tag, err := db.Exec(ctx,
		`UPDATE cities SET last_synced = $2, updated_at = now() WHERE banana = $1`, banana, at)
	if err != nil {
		return fmt.Errorf("mark city %s synced: %w", banana, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("city %s: %w", banana, ErrNotFound)
	}
	return nil
}

// DeleteCity removes a city; dependents cascade.
func DeleteCity(ctx context.Context, db DB, banana string) error {
	tag, err := db.Exec(ctx, `DELETE FROM cities WHERE banana = $1`, banana)
	if err != nil {
		return fmt.Errorf("delete city %s: %w", banana, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("city %s: %w", banana, ErrNotFound)
	}
	return nil
}

// CityReader adapts the Store's pool to the method-style city surface
// the fetcher consumes.
type CityReader struct {
	db DB
}

// CityStore returns the method-style city surface over the pool.
func (s *Store) CityStore() *CityReader {
	return &CityReader{db: s.pool}
}

func (r *CityReader) ActiveCities(ctx context.Context) ([]civic.City, error) {
	return ActiveCities(ctx, r.db)
}

func (r *CityReader) RecentMeetingCount(ctx context.Context, banana string, days int) (int, error) {
	return RecentMeetingCount(ctx, r.db, banana, days)
}

func (r *CityReader) MarkCitySynced(ctx context.Context, banana string, at time.Time) error {
	return MarkCitySynced(ctx, r.db, banana, at)
}

// RecentMeetingCount counts meetings for a city within the trailing
// number of days. Drives sync priority and cadence.
func RecentMeetingCount(ctx context.Context, db DB, banana string, days int) (int, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT count(*) FROM meetings
		WHERE banana = $1 AND start_time >= now() - make_interval(days => $2)`,
		banana, days).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("recent meeting count for %s: %w", banana, err)
	}
	return n, nil
}
