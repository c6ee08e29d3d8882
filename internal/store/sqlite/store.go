// Package sqlite reads and updates the lot dataset in a SQLite database.
//
// The dataset file is produced by an offline ETL pipeline; this package never
// creates tables or inserts rows. It only selects lots and flips their
// posted state. WAL mode plus a single connection keeps the one writer the
// bot needs free of SQLITE_BUSY surprises.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/everylotbot/everylot/internal/everylot"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const lotColumns = `ogc_fid, address, zipcode, zoning, neighborhood,
	land_value, improvement_value, total_market_value, acreage,
	lat, lon, auditor_parcel_ids, is_posted, post_url, post_date`

// Store is a SQLite-backed lot store.
type Store struct {
	db                 *sql.DB
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

// Open opens the lot database at the given path and verifies the connection.
func Open(path, table string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if table == "" {
		table = "cincinnati_lots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between the selection read and the posted-state write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// GetLot returns the lot with the given ID regardless of posted state.
func (s *Store) GetLot(ctx context.Context, id int64) (everylot.Lot, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ogc_fid = ? LIMIT 1`, lotColumns, s.table)
	lot, err := scanLot(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return everylot.Lot{}, everylot.ErrNotFound
	}
	if err != nil {
		return everylot.Lot{}, fmt.Errorf("get lot %d: %w", id, err)
	}
	return lot, nil
}

// NextUnposted returns the eligible unposted lot with the smallest ID.
func (s *Store) NextUnposted(ctx context.Context) (everylot.Lot, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE is_posted = 0%s ORDER BY ogc_fid ASC LIMIT 1`,
		lotColumns, s.table, s.improvementFilter())
	lot, err := scanLot(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return everylot.Lot{}, everylot.ErrExhausted
	}
	if err != nil {
		return everylot.Lot{}, fmt.Errorf("next unposted lot: %w", err)
	}
	return lot, nil
}

// MarkPosted transitions the lot to posted in one atomic write. The
// is_posted guard in the WHERE clause is the compare-and-set: a lot posted
// by a concurrent invocation affects zero rows here.
func (s *Store) MarkPosted(ctx context.Context, id int64, postURL string, postedAt time.Time) error {
	query := fmt.Sprintf(
		`UPDATE %s SET is_posted = 1, post_url = ?, post_date = ? WHERE ogc_fid = ? AND is_posted = 0`,
		s.table)
	res, err := s.db.ExecContext(ctx, query, postURL, postedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark lot %d posted: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark lot %d posted: rows affected: %w", id, err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	check := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE ogc_fid = ?)`, s.table)
	if err := s.db.QueryRowContext(ctx, check, id).Scan(&exists); err != nil {
		return fmt.Errorf("mark lot %d posted: disambiguate: %w", id, err)
	}
	if exists {
		return everylot.ErrAlreadyPosted
	}
	return everylot.ErrNotFound
}

// CountUnposted reports how many eligible lots remain.
func (s *Store) CountUnposted(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_posted = 0%s`, s.table, s.improvementFilter())
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unposted lots: %w", err)
	}
	return n, nil
}

// ForEachLot visits every lot in ascending ID order.
func (s *Store) ForEachLot(ctx context.Context, fn func(everylot.Lot) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY ogc_fid ASC`, lotColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query)
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

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) improvementFilter() string {
	if s.requireImprovement {
		return " AND improvement_value > 0"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (everylot.Lot, error) {
	var (
		lot       everylot.Lot
		zipcode   sql.NullString
		zoning    sql.NullString
		hood      sql.NullString
		landVal   sql.NullFloat64
		imprVal   sql.NullFloat64
		totalVal  sql.NullFloat64
		acreage   sql.NullFloat64
		lat       sql.NullFloat64
		lon       sql.NullFloat64
		parcelIDs sql.NullString
		posted    sql.NullBool
		postURL   sql.NullString
		postDate  any
	)

	err := row.Scan(
		&lot.ID, &lot.Address, &zipcode, &zoning, &hood,
		&landVal, &imprVal, &totalVal, &acreage,
		&lat, &lon, &parcelIDs, &posted, &postURL, &postDate,
	)
	if err != nil {
		return everylot.Lot{}, err
	}

	lot.ZipCode = zipcode.String
	lot.Zoning = zoning.String
	lot.Neighborhood = hood.String
	lot.LandValue = nullableFloat(landVal)
	lot.ImprovementValue = nullableFloat(imprVal)
	lot.TotalMarketValue = nullableFloat(totalVal)
	lot.Acreage = nullableFloat(acreage)
	lot.Latitude = lat.Float64
	lot.Longitude = lon.Float64
	lot.ParcelIDs = splitParcelIDs(parcelIDs.String)
	lot.Posted = posted.Bool
	lot.PostURL = postURL.String
	lot.PostedAt = parsePostDate(postDate)
	return lot, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// parsePostDate normalizes the post_date column, whose declared type depends
// on how the dataset file was built: TIMESTAMP columns come back as
// time.Time, TEXT columns as strings.
func parsePostDate(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case []byte:
		return parsePostDateString(string(t))
	case string:
		return parsePostDateString(t)
	default:
		return nil
	}
}

func parsePostDateString(s string) *time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// splitParcelIDs splits the comma-joined auditor_parcel_ids column.
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
