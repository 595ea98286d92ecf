package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/breatheroute/aqbackfill/internal/dataset"
)

// parquetRow is the Parquet schema of a record. Absent numbers are nulls.
type parquetRow struct {
	District         string   `parquet:"name=district, type=BYTE_ARRAY, convertedtype=UTF8"`
	LocalTime        string   `parquet:"name=local_time, type=BYTE_ARRAY, convertedtype=UTF8"`
	UTCTime          int64    `parquet:"name=utc_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	City             string   `parquet:"name=city, type=BYTE_ARRAY, convertedtype=UTF8"`
	CountryCode      string   `parquet:"name=country_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timezone         string   `parquet:"name=timezone, type=BYTE_ARRAY, convertedtype=UTF8"`
	AQI              *float64 `parquet:"name=aqi, type=DOUBLE, repetitiontype=OPTIONAL"`
	CO               *float64 `parquet:"name=co, type=DOUBLE, repetitiontype=OPTIONAL"`
	NO2              *float64 `parquet:"name=no2, type=DOUBLE, repetitiontype=OPTIONAL"`
	O3               *float64 `parquet:"name=o3, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM10             *float64 `parquet:"name=pm10, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM25             *float64 `parquet:"name=pm25, type=DOUBLE, repetitiontype=OPTIONAL"`
	SO2              *float64 `parquet:"name=so2, type=DOUBLE, repetitiontype=OPTIONAL"`
	Clouds           *float64 `parquet:"name=clouds, type=DOUBLE, repetitiontype=OPTIONAL"`
	Precipitation    *float64 `parquet:"name=precipitation, type=DOUBLE, repetitiontype=OPTIONAL"`
	Pressure         *float64 `parquet:"name=pressure, type=DOUBLE, repetitiontype=OPTIONAL"`
	RelativeHumidity *float64 `parquet:"name=relative_humidity, type=DOUBLE, repetitiontype=OPTIONAL"`
	Temperature      *float64 `parquet:"name=temperature, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindSpeed        *float64 `parquet:"name=wind_speed, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func toParquetRow(r dataset.Record) parquetRow {
	return parquetRow{
		District:         r.Point,
		LocalTime:        r.Local.Format(dataset.LocalLayout),
		UTCTime:          r.UTC.UnixMilli(),
		City:             r.City,
		CountryCode:      r.Country,
		Timezone:         r.Timezone,
		AQI:              r.AQI.Ptr(),
		CO:               r.CO.Ptr(),
		NO2:              r.NO2.Ptr(),
		O3:               r.O3.Ptr(),
		PM10:             r.PM10.Ptr(),
		PM25:             r.PM25.Ptr(),
		SO2:              r.SO2.Ptr(),
		Clouds:           r.Clouds.Ptr(),
		Precipitation:    r.Precipitation.Ptr(),
		Pressure:         r.Pressure.Ptr(),
		RelativeHumidity: r.Humidity.Ptr(),
		Temperature:      r.Temperature.Ptr(),
		WindSpeed:        r.WindSpeed.Ptr(),
	}
}

// ParquetStoreConfig holds configuration for a ParquetStore.
type ParquetStoreConfig struct {
	// Dir is the output directory (default: current directory).
	Dir string

	// Compression is SNAPPY, GZIP or NONE (default: SNAPPY).
	Compression string

	Logger zerolog.Logger
}

// ParquetStore keeps each table as <Dir>/<name>.parquet in a single row group.
type ParquetStore struct {
	dir         string
	compression parquet.CompressionCodec
	logger      zerolog.Logger
}

// NewParquetStore creates a new Parquet file store.
func NewParquetStore(cfg ParquetStoreConfig) (*ParquetStore, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	return &ParquetStore{dir: dir, compression: codec, logger: cfg.Logger}, nil
}

// Path returns the file backing name.
func (s *ParquetStore) Path(name string) string {
	return filepath.Join(s.dir, name+".parquet")
}

// Write replaces the table with records.
func (s *ParquetStore) Write(_ context.Context, name string, records []dataset.Record) error {
	if err := validateName(name); err != nil {
		return err
	}

	path := s.Path(name)
	err := writeAtomic(path, func(f *os.File) (err error) {
		pw, err := writer.NewParquetWriterFromWriter(f, new(parquetRow), 1)
		if err != nil {
			return fmt.Errorf("create parquet writer: %w", err)
		}
		pw.CompressionType = s.compression

		for _, r := range records {
			if err := pw.Write(toParquetRow(r)); err != nil {
				return fmt.Errorf("write parquet row: %w", err)
			}
		}

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("parquet writer panicked on finish: %v", r)
			}
		}()
		if err := pw.WriteStop(); err != nil {
			return fmt.Errorf("finish parquet file: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Int("records", len(records)).Msg("table written")
	return nil
}

// Remove deletes the table. A missing table is not an error.
func (s *ParquetStore) Remove(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return removeFile(s.Path(name))
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported parquet compression %q", name)
	}
}
