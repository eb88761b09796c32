package akita

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqld "github.com/syssam/akita/dialect/sql"
	"github.com/syssam/akita/value"
)

type user struct {
	ID   int64
	Name string
	Age  int64
}

type userMapper struct{}

func (userMapper) Descriptor() *Descriptor {
	return &Descriptor{
		Table: "users",
		Columns: []Column{
			{Name: "id", Kind: value.KindInt64},
			{Name: "name", Kind: value.KindText},
			{Name: "age", Kind: value.KindInt64},
		},
		PrimaryKey: "id",
	}
}

func (userMapper) DecodeRow(row Row) (user, error) {
	var u user
	if v, ok := row.Get("id"); ok {
		u.ID, _ = v.AsInt64()
	}
	if v, ok := row.Get("name"); ok {
		u.Name, _ = v.AsText()
	}
	if v, ok := row.Get("age"); ok {
		u.Age, _ = v.AsInt64()
	}
	return u, nil
}

func (userMapper) EncodeRecord(u user) ([]ColumnValue, error) {
	id := value.Null()
	if u.ID != 0 {
		id = value.Int64(u.ID)
	}
	return []ColumnValue{
		{Column: "id", V: id},
		{Column: "name", V: value.Text(u.Name)},
		{Column: "age", V: value.Int64(u.Age)},
	}, nil
}

// Declared as the interface so call sites infer the record type.
var users Mapper[user] = userMapper{}

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	client, err := NewClient("mysql", db, Config{MaxSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	return client, mock
}

// q anchors an expectation to the exact SQL text.
func q(sql string) string { return regexp.QuoteMeta(sql) }

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "age"})
}

func TestList(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT `id`, `name`, `age` FROM `users` WHERE `age` >= ? ORDER BY `id`")).
		WithArgs(int64(18)).
		WillReturnRows(userRows().
			AddRow(int64(1), "ann", int64(30)).
			AddRow(int64(2), "bob", int64(25)))

	got, err := List(context.Background(), client, users, sqld.W().Ge("age", 18).OrderByAsc("id"))
	require.NoError(t, err)
	assert.Equal(t, []user{{1, "ann", 30}, {2, "bob", 25}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMissingColumn(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ann"))

	_, err := List(context.Background(), client, users, sqld.W())
	require.Error(t, err)
	assert.True(t, IsMissingColumn(err))
	assert.Contains(t, err.Error(), `"age"`)
}

func TestSelectOne(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT `id`, `name`, `age` FROM `users` WHERE `name` = ? LIMIT 1")).
		WithArgs("ann").
		WillReturnRows(userRows().AddRow(int64(1), "ann", int64(30)))

	got, found, err := SelectOne(context.Background(), client, users, sqld.W().Eq("name", "ann"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, user{1, "ann", 30}, got)

	mock.ExpectQuery("SELECT").WillReturnRows(userRows())
	_, found, err = SelectOne(context.Background(), client, users, sqld.W().Eq("name", "zed"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSelectByID(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT `id`, `name`, `age` FROM `users` WHERE `id` = ? LIMIT 1")).
		WithArgs(int64(7)).
		WillReturnRows(userRows().AddRow(int64(7), "ann", int64(30)))

	got, found, err := SelectByID(context.Background(), client, users, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), got.ID)
}

func TestCount(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT COUNT(1) FROM `users` WHERE `age` >= ?")).
		WithArgs(int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := Count(context.Background(), client, users, sqld.W().Ge("age", 18))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestPage(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT COUNT(1) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery(q("SELECT `id`, `name`, `age` FROM `users` LIMIT 2 OFFSET 2")).
		WillReturnRows(userRows().
			AddRow(int64(3), "cid", int64(40)).
			AddRow(int64(4), "dot", int64(22)))

	page, err := Page(context.Background(), client, users, sqld.W(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, int64(3), page.Pages())
	assert.True(t, page.HasNext())
	require.Len(t, page.Records, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPagePastEnd(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT COUNT(1) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	// No row query is issued for a page past the end.
	page, err := Page(context.Background(), client, users, sqld.W(), 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Empty(t, page.Records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPageInvalidArgs(t *testing.T) {
	client, _ := newMockClient(t)
	_, err := Page(context.Background(), client, users, sqld.W(), 0, 10)
	require.Error(t, err)
	_, err = Page(context.Background(), client, users, sqld.W(), 1, 0)
	require.Error(t, err)
}

func TestSaveOmitsNullKey(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("INSERT INTO `users` (`name`, `age`) VALUES (?, ?)")).
		WithArgs("ann", int64(30)).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := Save(context.Background(), client, users, user{Name: "ann", Age: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestSaveKeepsExplicitKey(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("INSERT INTO `users` (`id`, `name`, `age`) VALUES (?, ?, ?)")).
		WithArgs(int64(9), "ann", int64(30)).
		WillReturnResult(sqlmock.NewResult(9, 1))

	_, err := Save(context.Background(), client, users, user{ID: 9, Name: "ann", Age: 30})
	require.NoError(t, err)
}

func TestSaveBatch(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("INSERT INTO `users` (`name`, `age`) VALUES (?, ?), (?, ?)")).
		WithArgs("ann", int64(30), "bob", int64(25)).
		WillReturnResult(sqlmock.NewResult(8, 2))

	n, err := SaveBatch(context.Background(), client, users, []user{
		{Name: "ann", Age: 30},
		{Name: "bob", Age: 25},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = SaveBatch(context.Background(), client, users, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

// sparseUserMapper drops the age column for zero ages, producing records that
// cannot share one insert shape.
type sparseUserMapper struct{ userMapper }

func (sparseUserMapper) EncodeRecord(u user) ([]ColumnValue, error) {
	cvs, err := userMapper{}.EncodeRecord(u)
	if err != nil {
		return nil, err
	}
	if u.Age != 0 {
		return cvs, nil
	}
	out := make([]ColumnValue, 0, len(cvs))
	for _, cv := range cvs {
		if cv.Column == "age" {
			continue
		}
		out = append(out, cv)
	}
	return out, nil
}

func TestSaveBatchMismatchedColumns(t *testing.T) {
	client, mock := newMockClient(t)
	var sparse Mapper[user] = sparseUserMapper{}

	// The second record misses a column of the batch shape; nothing may be
	// inserted with a silently defaulted value.
	_, err := SaveBatch(context.Background(), client, sparse, []user{
		{Name: "ann", Age: 30},
		{Name: "bob"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"age"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveOrUpdate(t *testing.T) {
	client, mock := newMockClient(t)

	// Null key inserts.
	mock.ExpectExec(q("INSERT INTO `users`")).
		WillReturnResult(sqlmock.NewResult(3, 1))
	key, err := SaveOrUpdate(context.Background(), client, users, user{Name: "ann", Age: 30})
	require.NoError(t, err)
	assert.True(t, key.Equal(value.Int64(3)))

	// A carried key updates.
	mock.ExpectExec(q("UPDATE `users` SET `name` = ?, `age` = ? WHERE `id` = ?")).
		WithArgs("ann", int64(31), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	key, err = SaveOrUpdate(context.Background(), client, users, user{ID: 3, Name: "ann", Age: 31})
	require.NoError(t, err)
	assert.True(t, key.Equal(value.Int64(3)))
}

func TestUpdateByID(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("UPDATE `users` SET `name` = ?, `age` = ? WHERE `id` = ?")).
		WithArgs("ann", int64(31), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := UpdateByID(context.Background(), client, users, user{ID: 7, Name: "ann", Age: 31})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = UpdateByID(context.Background(), client, users, user{Name: "ann"})
	assert.ErrorIs(t, err, ErrMissingPrimaryKey)
}

func TestUpdateWithAssignments(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("UPDATE `users` SET `age` = ? WHERE `age` < ?")).
		WithArgs(int64(18), int64(18)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := Update(context.Background(), client, users, user{}, sqld.W().Set("age", 18).Lt("age", 18))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestRemove(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("DELETE FROM `users` WHERE `age` < ?")).
		WithArgs(int64(18)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := Remove(context.Background(), client, users, sqld.W().Lt("age", 18))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRemoveByID(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("DELETE FROM `users` WHERE `id` = ?")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := RemoveByID(context.Background(), client, users, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRemoveByIDs(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("DELETE FROM `users` WHERE `id` IN (?, ?, ?)")).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := RemoveByIDs(context.Background(), client, users, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// No ids, no statement.
	n, err = RemoveByIDs(context.Background(), client, users)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecRaw(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(q("UPDATE users SET age = age + 1 WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := ExecRaw(context.Background(), client, "UPDATE users SET age = age + 1 WHERE id = ?", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueryRaw(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery(q("SELECT name, age FROM users WHERE age > ?")).
		WithArgs(int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "age"}).AddRow("ann", int64(30)))

	rows, err := QueryRaw(context.Background(), client, "SELECT name, age FROM users WHERE age > ?", 18)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, ok := rows[0].Get("name")
	require.True(t, ok)
	assert.True(t, name.Equal(value.Text("ann")))
	age, ok := rows[0].Get("age")
	require.True(t, ok)
	assert.True(t, age.Equal(value.Int64(30)))
}

func TestDriverErrorCarriesShape(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, err := List(context.Background(), client, users, sqld.W())
	require.Error(t, err)
	assert.True(t, IsDriverError(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "binds")
}

func TestInvalidWrapperNeverTouchesPool(t *testing.T) {
	client, mock := newMockClient(t)

	_, err := List(context.Background(), client, users, sqld.W().Eq("", 1))
	require.Error(t, err)
	assert.True(t, IsInvalidExpression(err))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, client.Stats().Open)
}
