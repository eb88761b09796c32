package sql

import (
	"github.com/syssam/akita/value"
)

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// JoinKind selects the join type. Availability depends on the dialect; the
// renderer rejects combinations the engine cannot execute.
type JoinKind string

// Join kinds.
const (
	JoinInner JoinKind = "JOIN"
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinRight JoinKind = "RIGHT JOIN"
	JoinFull  JoinKind = "FULL JOIN"
)

// Join is one join clause. Joins render in declaration order.
type Join struct {
	Kind  JoinKind
	Table string
	On    Expr
}

// Assignment is one SET term of an update statement.
type Assignment struct {
	Column string
	V      value.Value
}

// Query is the backend-agnostic descriptor a renderer consumes: target table,
// projection, filter tree, ordering, grouping, paging and joins. Build one
// through a Wrapper or populate it directly.
type Query struct {
	Table   string
	Columns []string // empty means all columns
	Where   Expr     // nil means no filter
	Orders  []Order
	Groups  []string
	Having  Expr
	Limit   *int
	Offset  *int
	Joins   []Join
	Sets    []Assignment // update statements only
}

// Wrapper is the fluent builder over Query. Wrapper has value semantics:
// every call returns a derived Wrapper and never mutates state observable
// through a previously shared one, so intermediate wrappers can be reused as
// templates. The name follows the original mybatis-style condition wrapper.
type Wrapper struct {
	table   string
	columns []string
	preds   []Expr
	orders  []Order
	groups  []string
	having  Expr
	limit   *int
	offset  *int
	joins   []Join
	sets    []Assignment
	err     error
}

// NewWrapper starts a builder for the given table.
func NewWrapper(table string) Wrapper {
	w := Wrapper{table: table}
	if table == "" {
		w.err = invalidf("empty table name")
	}
	return w
}

// W starts a builder with no table, for operations that take the table from
// a mapping descriptor.
func W() Wrapper { return Wrapper{} }

func (w Wrapper) fail(err error) Wrapper {
	if w.err == nil {
		w.err = err
	}
	return w
}

// where appends a predicate, checking it eagerly so malformed input surfaces
// at build time.
func (w Wrapper) where(e Expr) Wrapper {
	if err := validateExpr(e); err != nil {
		return w.fail(err)
	}
	w.preds = appendCopy(w.preds, e)
	return w
}

func appendCopy[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

// Select sets the projected columns. Without it the query projects all
// columns the caller's descriptor declares.
func (w Wrapper) Select(columns ...string) Wrapper {
	for _, c := range columns {
		if c == "" {
			return w.fail(invalidf("empty column name"))
		}
	}
	w.columns = append([]string(nil), columns...)
	return w
}

// Eq appends a `column = value` predicate.
func (w Wrapper) Eq(col string, v any) Wrapper { return w.where(EQ(col, v)) }

// Ne appends a `column <> value` predicate.
func (w Wrapper) Ne(col string, v any) Wrapper { return w.where(NEQ(col, v)) }

// Gt appends a `column > value` predicate.
func (w Wrapper) Gt(col string, v any) Wrapper { return w.where(GT(col, v)) }

// Ge appends a `column >= value` predicate.
func (w Wrapper) Ge(col string, v any) Wrapper { return w.where(GTE(col, v)) }

// Lt appends a `column < value` predicate.
func (w Wrapper) Lt(col string, v any) Wrapper { return w.where(LT(col, v)) }

// Le appends a `column <= value` predicate.
func (w Wrapper) Le(col string, v any) Wrapper { return w.where(LTE(col, v)) }

// Like appends a `column LIKE pattern` predicate.
func (w Wrapper) Like(col, pattern string) Wrapper { return w.where(Like(col, pattern)) }

// NotLike appends a `column NOT LIKE pattern` predicate.
func (w Wrapper) NotLike(col, pattern string) Wrapper { return w.where(NotLike(col, pattern)) }

// Between appends a `column BETWEEN lo AND hi` predicate.
func (w Wrapper) Between(col string, lo, hi any) Wrapper { return w.where(Between(col, lo, hi)) }

// NotBetween appends a `column NOT BETWEEN lo AND hi` predicate.
func (w Wrapper) NotBetween(col string, lo, hi any) Wrapper {
	return w.where(NotBetween(col, lo, hi))
}

// In appends a `column IN (...)` predicate.
func (w Wrapper) In(col string, vs ...any) Wrapper { return w.where(In(col, vs...)) }

// NotIn appends a `column NOT IN (...)` predicate.
func (w Wrapper) NotIn(col string, vs ...any) Wrapper { return w.where(NotIn(col, vs...)) }

// IsNull appends a `column IS NULL` predicate.
func (w Wrapper) IsNull(col string) Wrapper { return w.where(IsNull(col)) }

// NotNull appends a `column IS NOT NULL` predicate.
func (w Wrapper) NotNull(col string) Wrapper { return w.where(NotNull(col)) }

// Where appends an arbitrary predicate built from the package combinators,
// e.g. w.Where(sql.Or(sql.EQ("city", "NY"), sql.EQ("city", "LA"))).
func (w Wrapper) Where(e Expr) Wrapper { return w.where(e) }

// Raw appends a raw SQL fragment predicate with explicit binds.
func (w Wrapper) Raw(fragment string, binds ...any) Wrapper {
	return w.where(Raw(fragment, binds...))
}

// OrderByAsc appends ascending ORDER BY terms.
func (w Wrapper) OrderByAsc(columns ...string) Wrapper { return w.orderBy(false, columns) }

// OrderByDesc appends descending ORDER BY terms.
func (w Wrapper) OrderByDesc(columns ...string) Wrapper { return w.orderBy(true, columns) }

func (w Wrapper) orderBy(desc bool, columns []string) Wrapper {
	orders := make([]Order, len(w.orders), len(w.orders)+len(columns))
	copy(orders, w.orders)
	for _, c := range columns {
		if c == "" {
			return w.fail(invalidf("empty column name"))
		}
		orders = append(orders, Order{Column: c, Desc: desc})
	}
	w.orders = orders
	return w
}

// GroupBy appends grouping columns.
func (w Wrapper) GroupBy(columns ...string) Wrapper {
	groups := make([]string, len(w.groups), len(w.groups)+len(columns))
	copy(groups, w.groups)
	for _, c := range columns {
		if c == "" {
			return w.fail(invalidf("empty column name"))
		}
		groups = append(groups, c)
	}
	w.groups = groups
	return w
}

// Having sets the HAVING predicate. A query with a HAVING predicate and no
// GROUP BY columns is rejected when the descriptor is built.
func (w Wrapper) Having(e Expr) Wrapper {
	if err := validateExpr(e); err != nil {
		return w.fail(err)
	}
	w.having = e
	return w
}

// Limit caps the row count. Negative values are rejected.
func (w Wrapper) Limit(n int) Wrapper {
	if n < 0 {
		return w.fail(invalidf("negative limit %d", n))
	}
	w.limit = &n
	return w
}

// Offset skips leading rows. Negative values are rejected.
func (w Wrapper) Offset(n int) Wrapper {
	if n < 0 {
		return w.fail(invalidf("negative offset %d", n))
	}
	w.offset = &n
	return w
}

// Join appends an inner join.
func (w Wrapper) Join(table string, on Expr) Wrapper { return w.join(JoinInner, table, on) }

// LeftJoin appends a left outer join.
func (w Wrapper) LeftJoin(table string, on Expr) Wrapper { return w.join(JoinLeft, table, on) }

// RightJoin appends a right outer join.
func (w Wrapper) RightJoin(table string, on Expr) Wrapper { return w.join(JoinRight, table, on) }

// FullJoin appends a full outer join. Not every dialect can render it; the
// renderer reports UnsupportedOperationError where it cannot.
func (w Wrapper) FullJoin(table string, on Expr) Wrapper { return w.join(JoinFull, table, on) }

func (w Wrapper) join(kind JoinKind, table string, on Expr) Wrapper {
	if table == "" {
		return w.fail(invalidf("empty join table name"))
	}
	if err := validateExpr(on); err != nil {
		return w.fail(err)
	}
	w.joins = appendCopy(w.joins, Join{Kind: kind, Table: table, On: on})
	return w
}

// Set records an update assignment, used by update statements only.
func (w Wrapper) Set(col string, v any) Wrapper {
	if col == "" {
		return w.fail(invalidf("empty column name"))
	}
	val, err := value.Of(v)
	if err != nil {
		return w.fail(invalidf("set %s: %v", col, err))
	}
	w.sets = appendCopy(w.sets, Assignment{Column: col, V: val})
	return w
}

// Err returns the first build-time failure recorded on this wrapper.
func (w Wrapper) Err() error { return w.err }

// Query materializes the descriptor. Chained predicates combine under one
// explicit AND node so operator precedence is fully recorded in the tree.
func (w Wrapper) Query() (*Query, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.having != nil && len(w.groups) == 0 {
		return nil, invalidf("HAVING requires GROUP BY")
	}
	q := &Query{
		Table:   w.table,
		Columns: w.columns,
		Orders:  w.orders,
		Groups:  w.groups,
		Having:  w.having,
		Limit:   w.limit,
		Offset:  w.offset,
		Joins:   w.joins,
		Sets:    w.sets,
	}
	switch len(w.preds) {
	case 0:
	case 1:
		q.Where = w.preds[0]
	default:
		q.Where = LogicalExpr{Op: LogicAnd, Children: w.preds}
	}
	return q, nil
}
