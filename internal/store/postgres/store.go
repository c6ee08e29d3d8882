// Package postgres provides a Postgres-backed lot store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everylotbot/everylot/internal/everylot"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const lotColumns = `ogc_fid, address, zipcode, zoning, neighborhood,
	land_value, improvement_value, total_market_value, acreage,
	lat, lon, auditor_parcel_ids, is_posted, post_url, post_date`

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store reads and updates lots in Postgres.
type Store struct {
	pool               dbPool
	table              string
	requireImprovement bool
}

// Option configures the store.
type Option func(*Store)

// WithRequireImprovement makes selection skip lots without a positive
// improvement value.
func WithRequireImprovement() Option {
	return func(s *Store) {
		s.requireImprovement = true
	}
}

// NewStore creates a Postgres-backed lot store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.postgres.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "cincinnati_lots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{pool: pool, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool dbPool, table string, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cincinnati_lots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &Store{pool: pool, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetLot returns the lot with the given ID regardless of posted state.
func (s *Store) GetLot(ctx context.Context, id int64) (everylot.Lot, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ogc_fid = $1`, lotColumns, s.table)
	lot, err := scanLot(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return everylot.Lot{}, everylot.ErrNotFound
	}
	if err != nil {
		return everylot.Lot{}, fmt.Errorf("get lot %d: %w", id, err)
	}
	return lot, nil
}

// NextUnposted returns the eligible unposted lot with the smallest ID.
func (s *Store) NextUnposted(ctx context.Context) (everylot.Lot, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE is_posted = FALSE%s ORDER BY ogc_fid ASC LIMIT 1`,
		lotColumns, s.table, s.improvementFilter())
	lot, err := scanLot(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return everylot.Lot{}, everylot.ErrExhausted
	}
	if err != nil {
		return everylot.Lot{}, fmt.Errorf("next unposted lot: %w", err)
	}
	return lot, nil
}

// MarkPosted transitions the lot to posted in one atomic write. The
// is_posted guard in the WHERE clause is the compare-and-set.
func (s *Store) MarkPosted(ctx context.Context, id int64, postURL string, postedAt time.Time) error {
	query := fmt.Sprintf(
		`UPDATE %s SET is_posted = TRUE, post_url = $2, post_date = $3 WHERE ogc_fid = $1 AND is_posted = FALSE`,
		s.table)
	tag, err := s.pool.Exec(ctx, query, id, postURL, postedAt.UTC())
	if err != nil {
		return fmt.Errorf("mark lot %d posted: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	check := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE ogc_fid = $1)`, s.table)
	if err := s.pool.QueryRow(ctx, check, id).Scan(&exists); err != nil {
		return fmt.Errorf("mark lot %d posted: disambiguate: %w", id, err)
	}
	if exists {
		return everylot.ErrAlreadyPosted
	}
	return everylot.ErrNotFound
}

// CountUnposted reports how many eligible lots remain.
func (s *Store) CountUnposted(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_posted = FALSE%s`, s.table, s.improvementFilter())
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unposted lots: %w", err)
	}
	return n, nil
}

// ForEachLot visits every lot in ascending ID order.
func (s *Store) ForEachLot(ctx context.Context, fn func(everylot.Lot) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY ogc_fid ASC`, lotColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("scan lots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return fmt.Errorf("scan lots: %w", err)
		}
		if err := fn(lot); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan lots: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) improvementFilter() string {
	if s.requireImprovement {
		return " AND improvement_value > 0"
	}
	return ""
}

func scanLot(row pgx.Row) (everylot.Lot, error) {
	var (
		lot                                           everylot.Lot
		zipcode, zoning, hood, parcelIDs, postURL     *string
		landVal, imprVal, totalVal, acreage, lat, lon *float64
		postedAt                                      *time.Time
	)

	err := row.Scan(
		&lot.ID, &lot.Address, &zipcode, &zoning, &hood,
		&landVal, &imprVal, &totalVal, &acreage,
		&lat, &lon, &parcelIDs, &lot.Posted, &postURL, &postedAt,
	)
	if err != nil {
		return everylot.Lot{}, err
	}

	lot.ZipCode = strOrEmpty(zipcode)
	lot.Zoning = strOrEmpty(zoning)
	lot.Neighborhood = strOrEmpty(hood)
	lot.LandValue = landVal
	lot.ImprovementValue = imprVal
	lot.TotalMarketValue = totalVal
	lot.Acreage = acreage
	lot.Latitude = floatOrZero(lat)
	lot.Longitude = floatOrZero(lon)
	lot.ParcelIDs = splitParcelIDs(strOrEmpty(parcelIDs))
	lot.PostURL = strOrEmpty(postURL)
	lot.PostedAt = postedAt
	return lot, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func splitParcelIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}
