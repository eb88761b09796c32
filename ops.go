package akita

import (
	"context"
	"database/sql"
	"fmt"

	sqld "github.com/syssam/akita/dialect/sql"
	"github.com/syssam/akita/value"
)

// List returns every record matching the wrapper's conditions, in the
// wrapper's order.
func List[T any](ctx context.Context, s Session, m Mapper[T], w sqld.Wrapper) ([]T, error) {
	q, err := mapperQuery(m, w)
	if err != nil {
		return nil, err
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderSelect(q, s.Dialect())
	})
	if err != nil {
		return nil, err
	}
	var out []T
	err = s.query(ctx, stmt, func(rows *sql.Rows) error {
		return decodeRows(m, s.Dialect(), rows, func(rec T) { out = append(out, rec) })
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SelectOne returns the first record matching the wrapper's conditions and
// whether one matched at all.
func SelectOne[T any](ctx context.Context, s Session, m Mapper[T], w sqld.Wrapper) (T, bool, error) {
	var zero T
	recs, err := List(ctx, s, m, w.Limit(1))
	if err != nil {
		return zero, false, err
	}
	if len(recs) == 0 {
		return zero, false, nil
	}
	return recs[0], true, nil
}

// SelectByID returns the record whose primary key equals id.
func SelectByID[T any](ctx context.Context, s Session, m Mapper[T], id any) (T, bool, error) {
	var zero T
	pk, ok := m.Descriptor().Primary()
	if !ok {
		return zero, false, ErrMissingPrimaryKey
	}
	return SelectOne(ctx, s, m, sqld.W().Eq(pk.Name, id))
}

// Count returns the number of rows matching the wrapper's conditions. The
// wrapper's projection, ordering and paging are ignored.
func Count[T any](ctx context.Context, s Session, m Mapper[T], w sqld.Wrapper) (int64, error) {
	q, err := mapperQuery(m, w)
	if err != nil {
		return 0, err
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderCount(q, s.Dialect())
	})
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.query(ctx, stmt, func(rows *sql.Rows) error {
		if !rows.Next() {
			return fmt.Errorf("akita: count returned no rows")
		}
		return rows.Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IPage is one page of results with total-count accounting.
type IPage[T any] struct {
	Total   int64 // rows matching the conditions across all pages
	Size    int   // page size requested
	Current int   // 1-based page number
	Records []T
}

// Pages returns the number of pages the total spans.
func (p *IPage[T]) Pages() int64 {
	if p.Size <= 0 {
		return 0
	}
	return (p.Total + int64(p.Size) - 1) / int64(p.Size)
}

// HasNext reports whether a page follows the current one.
func (p *IPage[T]) HasNext() bool { return int64(p.Current) < p.Pages() }

// Page counts the rows matching the wrapper's conditions and fetches the
// 1-based page current of the given size. Pages past the end come back with
// empty Records and the true Total.
func Page[T any](ctx context.Context, s Session, m Mapper[T], w sqld.Wrapper, current, size int) (*IPage[T], error) {
	if current < 1 || size < 1 {
		return nil, fmt.Errorf("akita: invalid page %d size %d", current, size)
	}
	total, err := Count(ctx, s, m, w)
	if err != nil {
		return nil, err
	}
	page := &IPage[T]{Total: total, Size: size, Current: current}
	offset := (current - 1) * size
	if total <= int64(offset) {
		return page, nil
	}
	page.Records, err = List(ctx, s, m, w.Limit(size).Offset(offset))
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Save inserts one record and returns the engine-assigned row id, when the
// engine reports one. A null primary-key column is omitted from the insert so
// auto-increment keys take effect.
func Save[T any](ctx context.Context, s Session, m Mapper[T], rec T) (int64, error) {
	desc := m.Descriptor()
	cols, row, err := insertColumns(m, rec)
	if err != nil {
		return 0, err
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderInsert(s.Dialect(), desc.Table, cols, [][]value.Value{row})
	})
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	// Engines without insert-id reporting (postgres) return an error here;
	// the insert itself succeeded.
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil
	}
	return id, nil
}

// SaveBatch inserts the records in one multi-row statement. All records must
// shape the same insert: the column set is taken from the first record.
func SaveBatch[T any](ctx context.Context, s Session, m Mapper[T], recs []T) (int64, error) {
	if len(recs) == 0 {
		return 0, ErrEmptyBatch
	}
	desc := m.Descriptor()
	cols, first, err := insertColumns(m, recs[0])
	if err != nil {
		return 0, err
	}
	rows := make([][]value.Value, 0, len(recs))
	rows = append(rows, first)
	for idx, rec := range recs[1:] {
		cvs, err := m.EncodeRecord(rec)
		if err != nil {
			return 0, err
		}
		byName := make(map[string]value.Value, len(cvs))
		for _, cv := range cvs {
			byName[cv.Column] = cv.V
		}
		row := make([]value.Value, len(cols))
		for i, c := range cols {
			v, ok := byName[c]
			if !ok {
				return 0, fmt.Errorf("akita: batch record %d misses column %q", idx+1, c)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderInsert(s.Dialect(), desc.Table, cols, rows)
	})
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SaveOrUpdate inserts the record when its primary key is null, otherwise
// updates the existing row by primary key. It returns the record's key: the
// engine-assigned one after an insert, the carried one after an update.
func SaveOrUpdate[T any](ctx context.Context, s Session, m Mapper[T], rec T) (value.Value, error) {
	pk, ok := m.Descriptor().Primary()
	if !ok {
		return value.Null(), ErrMissingPrimaryKey
	}
	cvs, err := m.EncodeRecord(rec)
	if err != nil {
		return value.Null(), err
	}
	pkVal := value.Null()
	for _, cv := range cvs {
		if cv.Column == pk.Name {
			pkVal = cv.V
		}
	}
	if pkVal.IsNull() {
		id, err := Save(ctx, s, m, rec)
		if err != nil {
			return value.Null(), err
		}
		return value.Int64(id), nil
	}
	if _, err := UpdateByID(ctx, s, m, rec); err != nil {
		return value.Null(), err
	}
	return pkVal, nil
}

// Update applies the wrapper's Set assignments to the rows matching its
// conditions and returns the affected row count. When the wrapper carries no
// assignments, every non-key column of the record is written.
func Update[T any](ctx context.Context, s Session, m Mapper[T], rec T, w sqld.Wrapper) (int64, error) {
	desc := m.Descriptor()
	q, err := mapperQuery(m, w)
	if err != nil {
		return 0, err
	}
	if len(q.Sets) == 0 {
		cvs, err := m.EncodeRecord(rec)
		if err != nil {
			return 0, err
		}
		for _, cv := range cvs {
			if cv.Column == desc.PrimaryKey {
				continue
			}
			q.Sets = append(q.Sets, sqld.Assignment{Column: cv.Column, V: cv.V})
		}
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderUpdate(q, s.Dialect())
	})
	if err != nil {
		return 0, err
	}
	return affected(s.exec(ctx, stmt))
}

// UpdateByID writes every non-key column of the record to the row its primary
// key names. A null or undeclared primary key is an error.
func UpdateByID[T any](ctx context.Context, s Session, m Mapper[T], rec T) (int64, error) {
	pk, ok := m.Descriptor().Primary()
	if !ok {
		return 0, ErrMissingPrimaryKey
	}
	cvs, err := m.EncodeRecord(rec)
	if err != nil {
		return 0, err
	}
	pkVal := value.Null()
	sets := make([]sqld.Assignment, 0, len(cvs))
	for _, cv := range cvs {
		if cv.Column == pk.Name {
			pkVal = cv.V
			continue
		}
		sets = append(sets, sqld.Assignment{Column: cv.Column, V: cv.V})
	}
	if pkVal.IsNull() {
		return 0, ErrMissingPrimaryKey
	}
	q := &sqld.Query{
		Table: m.Descriptor().Table,
		Where: sqld.EQ(pk.Name, pkVal),
		Sets:  sets,
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderUpdate(q, s.Dialect())
	})
	if err != nil {
		return 0, err
	}
	return affected(s.exec(ctx, stmt))
}

// Remove deletes the rows matching the wrapper's conditions and returns the
// affected row count. An unconditioned wrapper deletes every row.
func Remove[T any](ctx context.Context, s Session, m Mapper[T], w sqld.Wrapper) (int64, error) {
	q, err := mapperQuery(m, w)
	if err != nil {
		return 0, err
	}
	stmt, err := render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderDelete(q, s.Dialect())
	})
	if err != nil {
		return 0, err
	}
	return affected(s.exec(ctx, stmt))
}

// RemoveByID deletes the row whose primary key equals id.
func RemoveByID[T any](ctx context.Context, s Session, m Mapper[T], id any) (int64, error) {
	pk, ok := m.Descriptor().Primary()
	if !ok {
		return 0, ErrMissingPrimaryKey
	}
	return Remove(ctx, s, m, sqld.W().Eq(pk.Name, id))
}

// RemoveByIDs deletes the rows whose primary keys appear in ids, one bind per
// id. An empty id list deletes nothing.
func RemoveByIDs[T any](ctx context.Context, s Session, m Mapper[T], ids ...any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pk, ok := m.Descriptor().Primary()
	if !ok {
		return 0, ErrMissingPrimaryKey
	}
	return Remove(ctx, s, m, sqld.W().In(pk.Name, ids...))
}

// ExecRaw runs a raw statement written with `?` placeholders, rewritten to the
// session's dialect, and returns the affected row count.
func ExecRaw(ctx context.Context, s Session, fragment string, binds ...any) (int64, error) {
	stmt, err := renderRaw(ctx, s, fragment, binds)
	if err != nil {
		return 0, err
	}
	return affected(s.exec(ctx, stmt))
}

// QueryRaw runs a raw query written with `?` placeholders and returns the rows
// decoded by the engine's reported native types.
func QueryRaw(ctx context.Context, s Session, fragment string, binds ...any) ([]Row, error) {
	stmt, err := renderRaw(ctx, s, fragment, binds)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = s.query(ctx, stmt, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			natives, err := scanNatives(rows, len(cols))
			if err != nil {
				return err
			}
			vals := make([]value.Value, len(cols))
			for i, n := range natives {
				if vals[i], err = value.Detect(n); err != nil {
					return err
				}
			}
			out = append(out, NewRow(cols, vals))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func renderRaw(ctx context.Context, s Session, fragment string, binds []any) (*sqld.Statement, error) {
	vals := make([]value.Value, len(binds))
	for i, b := range binds {
		v, err := value.Of(b)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return render(ctx, s, func() (*sqld.Statement, error) {
		return sqld.RenderRaw(s.Dialect(), fragment, vals)
	})
}

// mapperQuery materializes the wrapper and fills the table and projection
// from the descriptor where the wrapper left them open.
func mapperQuery[T any](m Mapper[T], w sqld.Wrapper) (*sqld.Query, error) {
	q, err := w.Query()
	if err != nil {
		return nil, err
	}
	desc := m.Descriptor()
	if q.Table == "" {
		q.Table = desc.Table
	}
	if len(q.Columns) == 0 {
		q.Columns = desc.ColumnNames()
	}
	return q, nil
}

// insertColumns encodes rec for insertion, dropping the primary-key column
// when its value is null.
func insertColumns[T any](m Mapper[T], rec T) ([]string, []value.Value, error) {
	desc := m.Descriptor()
	cvs, err := m.EncodeRecord(rec)
	if err != nil {
		return nil, nil, err
	}
	cols := make([]string, 0, len(cvs))
	row := make([]value.Value, 0, len(cvs))
	for _, cv := range cvs {
		if cv.Column == desc.PrimaryKey && cv.V.IsNull() {
			continue
		}
		cols = append(cols, cv.Column)
		row = append(row, cv.V)
	}
	return cols, row, nil
}

// decodeRows maps every remaining row of the result set through the mapper.
// Every column the descriptor declares must be present in the result set.
func decodeRows[T any](m Mapper[T], d string, rows *sql.Rows, emit func(T)) error {
	desc := m.Descriptor()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	kinds := make([]value.Kind, len(cols))
	declared := make([]bool, len(cols))
	for _, dc := range desc.Columns {
		if !present[dc.Name] {
			return &MissingColumnError{Table: desc.Table, Column: dc.Name}
		}
	}
	for i, c := range cols {
		for _, dc := range desc.Columns {
			if dc.Name == c {
				kinds[i] = dc.Kind
				declared[i] = true
				break
			}
		}
	}
	for rows.Next() {
		natives, err := scanNatives(rows, len(cols))
		if err != nil {
			return err
		}
		vals := make([]value.Value, len(cols))
		for i, n := range natives {
			if declared[i] {
				vals[i], err = value.FromNative(kinds[i], n, d)
			} else {
				vals[i], err = value.Detect(n)
			}
			if err != nil {
				return err
			}
		}
		rec, err := m.DecodeRow(NewRow(cols, vals))
		if err != nil {
			return err
		}
		emit(rec)
	}
	return nil
}

func scanNatives(rows *sql.Rows, n int) ([]any, error) {
	natives := make([]any, n)
	dests := make([]any, n)
	for i := range natives {
		dests[i] = &natives[i]
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}
	return natives, nil
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
