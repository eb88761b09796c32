package sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/akita/dialect"
	"github.com/syssam/akita/value"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores,
// dots for schema.name).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// Statement is the output of rendering: dialect-specific SQL text plus the
// ordered bind values whose positions match the placeholder order. The
// placeholder count always equals the bind count.
type Statement struct {
	SQL     string
	Binds   []value.Value
	Dialect string
}

// Args encodes the binds into the driver-native representation for the
// statement's dialect, in placeholder order.
func (s *Statement) Args() ([]any, error) {
	args := make([]any, len(s.Binds))
	for i, b := range s.Binds {
		native, err := value.ToNative(b, s.Dialect)
		if err != nil {
			return nil, err
		}
		args[i] = native
	}
	return args, nil
}

// Shape describes the statement for diagnostics: the SQL text and the bind
// count, without the literal bind values.
func (s *Statement) Shape() string {
	return fmt.Sprintf("%s [%d binds]", s.SQL, len(s.Binds))
}

// builder accumulates SQL text and binds for one dialect. Rendering is pure:
// the same descriptor renders to a byte-identical Statement every time.
type builder struct {
	d     string
	sb    strings.Builder
	binds []value.Value
	err   error
}

func newBuilder(d string) (*builder, error) {
	if !dialect.Valid(d) {
		return nil, unsupportedf(d, "any statement (unknown dialect)")
	}
	return &builder{d: d}, nil
}

func (b *builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) writeString(s string) { b.sb.WriteString(s) }

// bind appends v and writes its placeholder. MySQL uses positional `?`;
// SQLite and Postgres use numbered `$n`.
func (b *builder) bind(v value.Value) {
	b.binds = append(b.binds, v)
	if b.d == dialect.MySQL {
		b.sb.WriteString("?")
		return
	}
	b.sb.WriteString("$")
	b.sb.WriteString(strconv.Itoa(len(b.binds)))
}

// quote writes an identifier with the dialect's quoting rules, quoting each
// dot-separated part on its own.
func (b *builder) quote(ident string) {
	if !isValidIdentifier(ident) {
		b.setErr(invalidf("malformed identifier %q", ident))
		return
	}
	q := `"`
	if b.d == dialect.MySQL {
		q = "`"
	}
	for i, part := range strings.Split(ident, ".") {
		if i > 0 {
			b.sb.WriteString(".")
		}
		b.sb.WriteString(q)
		b.sb.WriteString(part)
		b.sb.WriteString(q)
	}
}

func (b *builder) statement() (*Statement, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Statement{SQL: b.sb.String(), Binds: b.binds, Dialect: b.d}, nil
}

// RenderSelect renders a SELECT statement for the query descriptor.
func RenderSelect(q *Query, d string) (*Statement, error) {
	b, err := newBuilder(d)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(q, d); err != nil {
		return nil, err
	}
	b.writeString("SELECT ")
	if len(q.Columns) == 0 {
		b.writeString("*")
	} else {
		for i, c := range q.Columns {
			if i > 0 {
				b.writeString(", ")
			}
			b.quote(c)
		}
	}
	b.writeString(" FROM ")
	b.quote(q.Table)
	b.renderJoins(q)
	b.renderWhere(q.Where)
	if len(q.Groups) > 0 {
		b.writeString(" GROUP BY ")
		for i, g := range q.Groups {
			if i > 0 {
				b.writeString(", ")
			}
			b.quote(g)
		}
		if q.Having != nil {
			b.writeString(" HAVING ")
			b.renderExpr(q.Having, true)
		}
	}
	if len(q.Orders) > 0 {
		b.writeString(" ORDER BY ")
		for i, o := range q.Orders {
			if i > 0 {
				b.writeString(", ")
			}
			b.quote(o.Column)
			if o.Desc {
				b.writeString(" DESC")
			}
		}
	}
	b.renderLimit(q)
	return b.statement()
}

// RenderCount renders a SELECT COUNT(1) over the descriptor's table, joins
// and filter, ignoring projection, ordering and paging.
func RenderCount(q *Query, d string) (*Statement, error) {
	b, err := newBuilder(d)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(q, d); err != nil {
		return nil, err
	}
	b.writeString("SELECT COUNT(1) FROM ")
	b.quote(q.Table)
	b.renderJoins(q)
	b.renderWhere(q.Where)
	return b.statement()
}

// RenderInsert renders a multi-row INSERT for the given columns. Every row
// must carry one value per column, in column order.
func RenderInsert(d, table string, columns []string, rows [][]value.Value) (*Statement, error) {
	b, err := newBuilder(d)
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, invalidf("empty table name")
	}
	if len(columns) == 0 || len(rows) == 0 {
		return nil, invalidf("insert requires at least one column and one row")
	}
	b.writeString("INSERT INTO ")
	b.quote(table)
	b.writeString(" (")
	for i, c := range columns {
		if i > 0 {
			b.writeString(", ")
		}
		b.quote(c)
	}
	b.writeString(") VALUES ")
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, invalidf("insert row %d has %d values for %d columns", i, len(row), len(columns))
		}
		if i > 0 {
			b.writeString(", ")
		}
		b.writeString("(")
		for j, v := range row {
			if j > 0 {
				b.writeString(", ")
			}
			b.bind(v)
		}
		b.writeString(")")
	}
	return b.statement()
}

// RenderRaw renders a standalone raw statement written with `?` placeholders,
// rewriting them to the dialect's style. The placeholder count must equal the
// bind count.
func RenderRaw(d, fragment string, binds []value.Value) (*Statement, error) {
	b, err := newBuilder(d)
	if err != nil {
		return nil, err
	}
	raw := RawExpr{Fragment: fragment, Binds: binds}
	if err := validateExpr(raw); err != nil {
		return nil, err
	}
	b.renderRaw(raw)
	return b.statement()
}

// RenderUpdate renders an UPDATE from the descriptor's assignments and
// filter.
func RenderUpdate(q *Query, d string) (*Statement, error) {
	b, err := newBuilder(d)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(q, d); err != nil {
		return nil, err
	}
	if len(q.Sets) == 0 {
		return nil, invalidf("update requires at least one assignment")
	}
	b.writeString("UPDATE ")
	b.quote(q.Table)
	b.writeString(" SET ")
	for i, a := range q.Sets {
		if i > 0 {
			b.writeString(", ")
		}
		b.quote(a.Column)
		b.writeString(" = ")
		b.bind(a.V)
	}
	b.renderWhere(q.Where)
	return b.statement()
}

// RenderDelete renders a DELETE from the descriptor's table and filter.
func RenderDelete(q *Query, d string) (*Statement, error) {
	b, err := newBuilder(d)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(q, d); err != nil {
		return nil, err
	}
	b.writeString("DELETE FROM ")
	b.quote(q.Table)
	b.renderWhere(q.Where)
	return b.statement()
}

func validateQuery(q *Query, d string) error {
	if q == nil {
		return invalidf("nil query")
	}
	if q.Table == "" {
		return invalidf("empty table name")
	}
	if q.Having != nil && len(q.Groups) == 0 {
		return invalidf("HAVING requires GROUP BY")
	}
	if q.Limit != nil && *q.Limit < 0 {
		return invalidf("negative limit %d", *q.Limit)
	}
	if q.Offset != nil && *q.Offset < 0 {
		return invalidf("negative offset %d", *q.Offset)
	}
	if q.Where != nil {
		if err := validateExpr(q.Where); err != nil {
			return err
		}
	}
	if q.Having != nil {
		if err := validateExpr(q.Having); err != nil {
			return err
		}
	}
	for _, j := range q.Joins {
		if err := validateExpr(j.On); err != nil {
			return err
		}
		switch {
		case j.Kind == JoinFull && (d == dialect.MySQL || d == dialect.SQLite):
			return unsupportedf(d, "FULL JOIN")
		case j.Kind == JoinRight && d == dialect.SQLite:
			return unsupportedf(d, "RIGHT JOIN")
		}
	}
	if q.Offset != nil && q.Limit == nil && d != dialect.Postgres {
		return unsupportedf(d, "OFFSET without LIMIT")
	}
	return nil
}

func (b *builder) renderJoins(q *Query) {
	for _, j := range q.Joins {
		b.writeString(" ")
		b.writeString(string(j.Kind))
		b.writeString(" ")
		b.quote(j.Table)
		b.writeString(" ON ")
		b.renderExpr(j.On, true)
	}
}

func (b *builder) renderWhere(e Expr) {
	if e == nil {
		return
	}
	b.writeString(" WHERE ")
	b.renderExpr(e, true)
}

func (b *builder) renderLimit(q *Query) {
	if q.Limit != nil {
		b.writeString(" LIMIT ")
		b.writeString(strconv.Itoa(*q.Limit))
	}
	if q.Offset != nil {
		b.writeString(" OFFSET ")
		b.writeString(strconv.Itoa(*q.Offset))
	}
}

// renderExpr writes one tree node. The caller's explicit grouping is
// preserved: nested logical groups are parenthesized, the top-level group is
// not.
func (b *builder) renderExpr(e Expr, top bool) {
	switch x := e.(type) {
	case errExpr:
		b.setErr(x.err)
	case ColumnExpr:
		b.quote(x.Name)
	case LiteralExpr:
		b.bind(x.V)
	case CompareExpr:
		b.renderOperand(x.Left)
		b.writeString(" ")
		b.writeString(string(x.Op))
		b.writeString(" ")
		b.renderOperand(x.Right)
	case LogicalExpr:
		if x.Op == LogicNot {
			b.writeString("NOT (")
			b.renderExpr(x.Children[0], true)
			b.writeString(")")
			return
		}
		sep := " AND "
		if x.Op == LogicOr {
			sep = " OR "
		}
		if !top {
			b.writeString("(")
		}
		for i, c := range x.Children {
			if i > 0 {
				b.writeString(sep)
			}
			b.renderExpr(c, false)
		}
		if !top {
			b.writeString(")")
		}
	case BetweenExpr:
		b.quote(x.Col)
		if x.Not {
			b.writeString(" NOT")
		}
		b.writeString(" BETWEEN ")
		b.bind(x.Lo)
		b.writeString(" AND ")
		b.bind(x.Hi)
	case InExpr:
		if len(x.Values) == 0 {
			// Empty set: always false (always true when negated),
			// never invalid SQL.
			if x.Not {
				b.writeString("1 = 1")
			} else {
				b.writeString("1 = 0")
			}
			return
		}
		b.quote(x.Col)
		if x.Not {
			b.writeString(" NOT")
		}
		b.writeString(" IN (")
		for i, v := range x.Values {
			if i > 0 {
				b.writeString(", ")
			}
			b.bind(v)
		}
		b.writeString(")")
	case NullExpr:
		b.quote(x.Col)
		if x.Not {
			b.writeString(" IS NOT NULL")
		} else {
			b.writeString(" IS NULL")
		}
	case RawExpr:
		b.renderRaw(x)
	default:
		b.setErr(invalidf("unknown expression node %T", e))
	}
}

// renderOperand renders a comparison operand, parenthesizing nested groups.
func (b *builder) renderOperand(e Expr) {
	if _, ok := e.(LogicalExpr); ok {
		b.writeString("(")
		b.renderExpr(e, true)
		b.writeString(")")
		return
	}
	b.renderExpr(e, false)
}

// renderRaw copies the fragment, rewriting each `?` to the dialect's
// placeholder and consuming one bind per placeholder. The counts were
// verified at build time.
func (b *builder) renderRaw(x RawExpr) {
	next := 0
	for _, r := range x.Fragment {
		if r != '?' {
			b.sb.WriteRune(r)
			continue
		}
		if next >= len(x.Binds) {
			b.setErr(invalidf("raw fragment placeholder/bind mismatch"))
			return
		}
		b.bind(x.Binds[next])
		next++
	}
	if next != len(x.Binds) {
		b.setErr(invalidf("raw fragment placeholder/bind mismatch"))
	}
}
