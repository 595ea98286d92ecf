package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

// DefaultTable is the table PostgresStore writes to.
const DefaultTable = "air_quality_records"

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var postgresColumns = []string{
	"dataset", "row_num", "district", "local_time", "utc_time", "city", "country_code", "timezone",
	"aqi", "co", "no2", "o3", "pm10", "pm25", "so2",
	"clouds", "precipitation", "pressure", "relative_humidity", "temperature", "wind_speed",
}

// PostgresStoreConfig holds configuration for a PostgresStore.
type PostgresStoreConfig struct {
	DB DB

	// Table name (default: DefaultTable).
	Table string

	Logger zerolog.Logger
}

// PostgresStore keeps tables as row sets keyed by dataset name.
type PostgresStore struct {
	db     DB
	table  string
	logger zerolog.Logger
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(cfg PostgresStoreConfig) *PostgresStore {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{db: cfg.DB, table: table, logger: cfg.Logger}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			dataset           TEXT NOT NULL,
			row_num           BIGINT NOT NULL,
			district          TEXT NOT NULL,
			local_time        TEXT NOT NULL,
			utc_time          TIMESTAMPTZ NOT NULL,
			city              TEXT NOT NULL,
			country_code      TEXT NOT NULL,
			timezone          TEXT NOT NULL,
			aqi               DOUBLE PRECISION,
			co                DOUBLE PRECISION,
			no2               DOUBLE PRECISION,
			o3                DOUBLE PRECISION,
			pm10              DOUBLE PRECISION,
			pm25              DOUBLE PRECISION,
			so2               DOUBLE PRECISION,
			clouds            DOUBLE PRECISION,
			precipitation     DOUBLE PRECISION,
			pressure          DOUBLE PRECISION,
			relative_humidity DOUBLE PRECISION,
			temperature       DOUBLE PRECISION,
			wind_speed        DOUBLE PRECISION,
			PRIMARY KEY (dataset, row_num)
		)
	`, pgx.Identifier{s.table}.Sanitize())

	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Write replaces every row of dataset name in one transaction.
func (s *PostgresStore) Write(ctx context.Context, name string, records []dataset.Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE dataset = $1`, pgx.Identifier{s.table}.Sanitize())
	if _, err := tx.Exec(ctx, deleteQuery, name); err != nil {
		return fmt.Errorf("clear dataset %s: %w", name, err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{s.table}, postgresColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return rowValues(name, i, records[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("copy dataset %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().Str("dataset", name).Int64("rows", copied).Msg("dataset copied to postgres")
	return nil
}

// Read loads dataset name in written order.
func (s *PostgresStore) Read(ctx context.Context, name string) ([]dataset.Record, error) {
	query := fmt.Sprintf(`
		SELECT district, utc_time, city, country_code, timezone,
		       aqi, co, no2, o3, pm10, pm25, so2,
		       clouds, precipitation, pressure, relative_humidity, temperature, wind_speed
		FROM %s
		WHERE dataset = $1
		ORDER BY row_num
	`, pgx.Identifier{s.table}.Sanitize())

	rows, err := s.db.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query dataset %s: %w", name, err)
	}
	defer rows.Close()

	var records []dataset.Record
	for rows.Next() {
		var (
			r      dataset.Record
			utc    time.Time
			values [13]*float64
		)
		if err := rows.Scan(
			&r.Point, &utc, &r.City, &r.Country, &r.Timezone,
			&values[0], &values[1], &values[2], &values[3], &values[4], &values[5], &values[6],
			&values[7], &values[8], &values[9], &values[10], &values[11], &values[12],
		); err != nil {
			return nil, fmt.Errorf("scan dataset %s: %w", name, err)
		}

		r.UTC = utc.UTC()
		r.Local = r.UTC
		if loc, err := time.LoadLocation(r.Timezone); err == nil {
			r.Local = r.UTC.In(loc)
		}
		targets := []*nullable.Float64{
			&r.AQI, &r.CO, &r.NO2, &r.O3, &r.PM10, &r.PM25, &r.SO2,
			&r.Clouds, &r.Precipitation, &r.Pressure, &r.Humidity, &r.Temperature, &r.WindSpeed,
		}
		for i, dst := range targets {
			*dst = nullable.FromPtr(values[i])
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return records, nil
}

// Remove deletes every row of dataset name.
func (s *PostgresStore) Remove(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE dataset = $1`, pgx.Identifier{s.table}.Sanitize())
	if _, err := s.db.Exec(ctx, query, name); err != nil {
		return fmt.Errorf("remove dataset %s: %w", name, err)
	}
	return nil
}

func rowValues(name string, i int, r dataset.Record) []any {
	return []any{
		name,
		int64(i),
		r.Point,
		r.Local.Format(dataset.LocalLayout),
		r.UTC,
		r.City,
		r.Country,
		r.Timezone,
		r.AQI.Ptr(),
		r.CO.Ptr(),
		r.NO2.Ptr(),
		r.O3.Ptr(),
		r.PM10.Ptr(),
		r.PM25.Ptr(),
		r.SO2.Ptr(),
		r.Clouds.Ptr(),
		r.Precipitation.Ptr(),
		r.Pressure.Ptr(),
		r.Humidity.Ptr(),
		r.Temperature.Ptr(),
		r.WindSpeed.Ptr(),
	}
}
