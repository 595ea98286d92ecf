package dataset_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

func sampleRecord(t *testing.T) dataset.Record {
	t.Helper()
	hcm, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	utc := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return dataset.Record{
		Point:       "Ba Dinh",
		UTC:         utc,
		Local:       utc.In(hcm),
		City:        "Hanoi",
		Country:     "VN",
		Timezone:    "Asia/Ho_Chi_Minh",
		AQI:         nullable.Of(112.08),
		CO:          nullable.Of(1.20163),
		PM25:        nullable.Of(40),
		PM10:        nullable.Of(60),
		Temperature: nullable.Of(17.2),
	}
}

func TestRecord_Row(t *testing.T) {
	row := sampleRecord(t).Row()

	require.Len(t, row, len(dataset.Columns))
	assert.Equal(t, "Ba Dinh", row[0])
	assert.Equal(t, "2022-01-01 07:00:00", row[1])
	assert.Equal(t, "2022-01-01T00:00:00+00:00", row[2])
	assert.Equal(t, "Asia/Ho_Chi_Minh", row[5])
	assert.Equal(t, "112.08", row[6])
	assert.Equal(t, "1.20163", row[7])
	assert.Equal(t, "", row[8], "absent NO2 is an empty cell")
	assert.Equal(t, "", row[13], "unmatched weather is empty")
	assert.Equal(t, "17.2", row[17])
}

func TestFromRow_ReadsBackRow(t *testing.T) {
	want := sampleRecord(t)

	got, err := dataset.FromRow(want.Row())
	require.NoError(t, err)

	assert.Equal(t, want.Point, got.Point)
	assert.True(t, want.UTC.Equal(got.UTC))
	assert.Equal(t, "2022-01-01 07:00:00", got.Local.Format(dataset.LocalLayout))
	assert.Equal(t, want.AQI, got.AQI)
	assert.Equal(t, want.CO, got.CO)
	assert.False(t, got.SO2.Valid)
	assert.False(t, got.Clouds.Valid)
	assert.Equal(t, want.Temperature, got.Temperature)
}

func TestFromRow_Errors(t *testing.T) {
	_, err := dataset.FromRow([]string{"too", "short"})
	assert.ErrorIs(t, err, dataset.ErrRowWidth)

	row := sampleRecord(t).Row()
	row[2] = "yesterday"
	_, err = dataset.FromRow(row)
	assert.Error(t, err)

	row = sampleRecord(t).Row()
	row[6] = "high"
	_, err = dataset.FromRow(row)
	assert.ErrorContains(t, err, "AQI")

	row = sampleRecord(t).Row()
	row[5] = "Mars/Olympus"
	_, err = dataset.FromRow(row)
	assert.Error(t, err)
}

func TestValidateHeader(t *testing.T) {
	require.NoError(t, dataset.ValidateHeader(dataset.Columns))

	withBOM := append([]string{"\ufeffDistrict"}, dataset.Columns[1:]...)
	require.NoError(t, dataset.ValidateHeader(withBOM))

	assert.ErrorIs(t, dataset.ValidateHeader(dataset.Columns[:3]), dataset.ErrHeaderMismatch)

	swapped := append([]string(nil), dataset.Columns...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	assert.ErrorIs(t, dataset.ValidateHeader(swapped), dataset.ErrHeaderMismatch)
}
