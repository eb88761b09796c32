package akita

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqld "github.com/syssam/akita/dialect/sql"
)

// openSQLite opens a client over a throwaway on-disk database with the users
// table created.
func openSQLite(t *testing.T) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	client, err := Open(Config{URL: "sqlite://" + path})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})

	_, err = ExecRaw(context.Background(), client,
		"CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, age INTEGER NOT NULL)")
	require.NoError(t, err)
	return client
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	client := openSQLite(t)
	ctx := context.Background()

	id, err := Save(ctx, client, users, user{Name: "ann", Age: 30})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, found, err := SelectByID(ctx, client, users, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, user{ID: id, Name: "ann", Age: 30}, got)

	n, err := UpdateByID(ctx, client, users, user{ID: id, Name: "ann", Age: 31})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := List(ctx, client, users, sqld.W().Ge("age", 31))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(31), recs[0].Age)
}

// A transaction whose second insert violates a uniqueness constraint leaves
// the database exactly as it was: neither insert is visible afterwards.
func TestSQLiteTransactionAtomicity(t *testing.T) {
	t.Parallel()
	client := openSQLite(t)
	ctx := context.Background()

	_, err := Save(ctx, client, users, user{Name: "solo", Age: 20})
	require.NoError(t, err)

	err = client.WithTx(ctx, func(tx *Tx) error {
		if _, err := Save(ctx, tx, users, user{Name: "ann", Age: 30}); err != nil {
			return err
		}
		_, err := Save(ctx, tx, users, user{Name: "ann", Age: 31})
		return err
	})
	require.Error(t, err)
	assert.True(t, IsTransactionAborted(err))
	assert.True(t, IsConstraint(err))

	total, err := Count(ctx, client, users, sqld.W())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, found, err := SelectOne(ctx, client, users, sqld.W().Eq("name", "ann"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteTxCommitVisible(t *testing.T) {
	t.Parallel()
	client := openSQLite(t)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *Tx) error {
		if _, err := Save(ctx, tx, users, user{Name: "ann", Age: 30}); err != nil {
			return err
		}
		_, err := Save(ctx, tx, users, user{Name: "bob", Age: 25})
		return err
	})
	require.NoError(t, err)

	total, err := Count(ctx, client, users, sqld.W())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
