package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/store"
)

// fakeTx records statements. Methods not overridden panic via the nil embedded Tx.
type fakeTx struct {
	pgx.Tx
	execs      []string
	execArgs   [][]any
	copyTable  pgx.Identifier
	copyCols   []string
	copiedRows [][]any
	copyErr    error
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	tx.execArgs = append(tx.execArgs, args)
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	if tx.copyErr != nil {
		return 0, tx.copyErr
	}
	tx.copyTable = table
	tx.copyCols = cols
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		tx.copiedRows = append(tx.copiedRows, vals)
	}
	return int64(len(tx.copiedRows)), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx    *fakeTx
	execs []string
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) { return db.tx, nil }

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPostgresStore_WriteReplacesDataset(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	s := store.NewPostgresStore(store.PostgresStoreConfig{DB: db})

	require.NoError(t, s.Write(context.Background(), "air_quality_all_districts", sampleRecords(3)))

	tx := db.tx
	require.Len(t, tx.execs, 1)
	assert.Contains(t, tx.execs[0], "DELETE FROM")
	assert.Equal(t, []any{"air_quality_all_districts"}, tx.execArgs[0])

	assert.Equal(t, pgx.Identifier{store.DefaultTable}, tx.copyTable)
	require.Len(t, tx.copiedRows, 3)
	assert.Len(t, tx.copyCols, len(tx.copiedRows[0]))

	first := tx.copiedRows[0]
	assert.Equal(t, "air_quality_all_districts", first[0])
	assert.Equal(t, int64(0), first[1])
	assert.Equal(t, "Tay Ho", first[2])
	assert.Equal(t, "2022-01-01 07:00:00", first[3])

	aqi, ok := first[8].(*float64)
	require.True(t, ok)
	assert.InDelta(t, 50, *aqi, 1e-9)
	assert.Nil(t, first[10], "absent NO2 is copied as NULL")

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestPostgresStore_WriteRollsBackOnCopyFailure(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{copyErr: errors.New("copy failed")}}
	s := store.NewPostgresStore(store.PostgresStoreConfig{DB: db})

	err := s.Write(context.Background(), "all", sampleRecords(1))
	require.Error(t, err)
	assert.False(t, db.tx.committed)
	assert.True(t, db.tx.rolledBack)
}

func TestPostgresStore_EnsureSchemaAndRemove(t *testing.T) {
	db := &fakeDB{}
	s := store.NewPostgresStore(store.PostgresStoreConfig{DB: db, Table: "records"})

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.Remove(context.Background(), "all"))

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0], `CREATE TABLE IF NOT EXISTS "records"`)
	assert.Contains(t, db.execs[1], `DELETE FROM "records"`)
}
