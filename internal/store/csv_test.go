package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/store"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

func sampleRecords(n int) []dataset.Record {
	hcm, _ := time.LoadLocation("Asia/Ho_Chi_Minh")
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	records := make([]dataset.Record, n)
	for i := range records {
		ts := base.Add(time.Duration(i) * time.Hour)
		records[i] = dataset.Record{
			Point:       "Tay Ho",
			UTC:         ts,
			Local:       ts.In(hcm),
			City:        "Hanoi",
			Country:     "VN",
			Timezone:    "Asia/Ho_Chi_Minh",
			AQI:         nullable.Of(float64(50 + i)),
			PM25:        nullable.Of(12.5),
			Temperature: nullable.Of(21),
		}
	}
	return records
}

func TestCSVStore_WriteRead(t *testing.T) {
	dir := t.TempDir()
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})
	ctx := context.Background()

	want := sampleRecords(3)
	require.NoError(t, s.Write(ctx, "Tay_Ho", want))
	assert.FileExists(t, filepath.Join(dir, "Tay_Ho.csv"))

	got, err := s.Read(ctx, "Tay_Ho")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.True(t, want[i].UTC.Equal(got[i].UTC))
		assert.Equal(t, want[i].AQI, got[i].AQI)
		assert.Equal(t, want[i].Local.Format(dataset.LocalLayout), got[i].Local.Format(dataset.LocalLayout))
		assert.False(t, got[i].SO2.Valid)
	}
}

func TestCSVStore_WriteOverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "__chkpt_Tay_Ho", sampleRecords(5)))
	require.NoError(t, s.Write(ctx, "__chkpt_Tay_Ho", sampleRecords(2)))

	got, err := s.Read(ctx, "__chkpt_Tay_Ho")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "__chkpt_Tay_Ho.csv", entries[0].Name())
}

func TestCSVStore_WritesHeaderForEmptyTable(t *testing.T) {
	dir := t.TempDir()
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})

	require.NoError(t, s.Write(context.Background(), "empty", nil))

	data, err := os.ReadFile(filepath.Join(dir, "empty.csv"))
	require.NoError(t, err)
	assert.Equal(t, "District,Local Time,UTC Time,City,Country Code,Timezone,AQI,CO,NO2,O3,PM10,PM25,SO2,Clouds,Precipitation,Pressure,Relative Humidity,Temperature,Wind Speed\n", string(data))

	got, err := s.Read(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCSVStore_ReadMissing(t *testing.T) {
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: t.TempDir()})

	_, err := s.Read(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCSVStore_ReadRejectsForeignHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("a,b\n1,2\n"), 0o600))

	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})
	_, err := s.Read(context.Background(), "other")
	assert.Error(t, err)
}

func TestCSVStore_Remove(t *testing.T) {
	dir := t.TempDir()
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: dir})
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "gone", sampleRecords(1)))
	require.NoError(t, s.Remove(ctx, "gone"))
	assert.NoFileExists(t, filepath.Join(dir, "gone.csv"))

	assert.NoError(t, s.Remove(ctx, "gone"), "removing a missing table is not an error")
}

func TestCSVStore_InvalidName(t *testing.T) {
	s := store.NewCSVStore(store.CSVStoreConfig{Dir: t.TempDir()})

	for _, name := range []string{"", "../escape", "a/b", ".."} {
		err := s.Write(context.Background(), name, nil)
		assert.ErrorIs(t, err, store.ErrInvalidName, name)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := store.ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, store.FormatCSV, f)

	f, err = store.ParseFormat("parquet")
	require.NoError(t, err)
	assert.Equal(t, store.FormatParquet, f)

	_, err = store.ParseFormat("xlsx")
	assert.Error(t, err)
}
