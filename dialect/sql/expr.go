package sql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/akita/value"
)

// Op is a comparison operator token, translated per dialect at render time.
type Op string

// Comparison operators.
const (
	OpEQ      Op = "="
	OpNEQ     Op = "<>"
	OpGT      Op = ">"
	OpGTE     Op = ">="
	OpLT      Op = "<"
	OpLTE     Op = "<="
	OpLike    Op = "LIKE"
	OpNotLike Op = "NOT LIKE"
)

// Expr is one node of the backend-agnostic expression tree. A tree is
// immutable once handed to the renderer; the fluent API only ever appends.
type Expr interface {
	expr()
}

// ColumnExpr references a column by name.
type ColumnExpr struct {
	Name string
}

// LiteralExpr holds a literal operand. Literals always render as bind
// placeholders, never as inline SQL text.
type LiteralExpr struct {
	V value.Value
}

// CompareExpr applies a binary comparison operator.
type CompareExpr struct {
	Op    Op
	Left  Expr
	Right Expr
}

// LogicOp is a logical connective.
type LogicOp uint8

// Logical connectives.
const (
	LogicAnd LogicOp = iota
	LogicOr
	LogicNot
)

// LogicalExpr groups child predicates under one connective. The grouping the
// caller expressed is preserved verbatim; children are never reordered or
// flattened.
type LogicalExpr struct {
	Op       LogicOp
	Children []Expr
}

// BetweenExpr is a range predicate.
type BetweenExpr struct {
	Col    string
	Lo, Hi value.Value
	Not    bool
}

// InExpr is a set membership predicate. An empty set renders as an
// always-false predicate (always-true when negated) rather than invalid SQL.
type InExpr struct {
	Col    string
	Values []value.Value
	Not    bool
}

// NullExpr is an IS [NOT] NULL predicate.
type NullExpr struct {
	Col string
	Not bool
}

// RawExpr is the escape hatch: a SQL fragment written with `?` placeholders
// plus its binds. The placeholder count must match the bind count exactly;
// the renderer rewrites the placeholders to the dialect's style.
type RawExpr struct {
	Fragment string
	Binds    []value.Value
}

// errExpr carries a build-time failure through the tree so it surfaces before
// the pool is touched.
type errExpr struct {
	err error
}

func (ColumnExpr) expr()  {}
func (LiteralExpr) expr() {}
func (CompareExpr) expr() {}
func (LogicalExpr) expr() {}
func (BetweenExpr) expr() {}
func (InExpr) expr()      {}
func (NullExpr) expr()    {}
func (RawExpr) expr()     {}
func (errExpr) expr()     {}

// C references a column.
func C(name string) Expr {
	if name == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	return ColumnExpr{Name: name}
}

// V lifts a Go value into a literal operand.
func V(v any) Expr {
	val, err := value.Of(v)
	if err != nil {
		return errExpr{err: invalidf("literal: %v", err)}
	}
	return LiteralExpr{V: val}
}

func compare(op Op, col string, v any) Expr {
	if col == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	val, err := value.Of(v)
	if err != nil {
		return errExpr{err: invalidf("%s %s: %v", col, op, err)}
	}
	return CompareExpr{Op: op, Left: ColumnExpr{Name: col}, Right: LiteralExpr{V: val}}
}

// EQ returns a `column = value` predicate.
func EQ(col string, v any) Expr { return compare(OpEQ, col, v) }

// NEQ returns a `column <> value` predicate.
func NEQ(col string, v any) Expr { return compare(OpNEQ, col, v) }

// GT returns a `column > value` predicate.
func GT(col string, v any) Expr { return compare(OpGT, col, v) }

// GTE returns a `column >= value` predicate.
func GTE(col string, v any) Expr { return compare(OpGTE, col, v) }

// LT returns a `column < value` predicate.
func LT(col string, v any) Expr { return compare(OpLT, col, v) }

// LTE returns a `column <= value` predicate.
func LTE(col string, v any) Expr { return compare(OpLTE, col, v) }

// Like returns a `column LIKE pattern` predicate.
func Like(col, pattern string) Expr { return compare(OpLike, col, pattern) }

// NotLike returns a `column NOT LIKE pattern` predicate.
func NotLike(col, pattern string) Expr { return compare(OpNotLike, col, pattern) }

// ColumnsEQ compares two columns, typically in a join condition.
func ColumnsEQ(left, right string) Expr {
	if left == "" || right == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	return CompareExpr{Op: OpEQ, Left: ColumnExpr{Name: left}, Right: ColumnExpr{Name: right}}
}

// Between returns a `column BETWEEN lo AND hi` predicate.
func Between(col string, lo, hi any) Expr { return between(col, lo, hi, false) }

// NotBetween returns a `column NOT BETWEEN lo AND hi` predicate.
func NotBetween(col string, lo, hi any) Expr { return between(col, lo, hi, true) }

func between(col string, lo, hi any, not bool) Expr {
	if col == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	lov, err := value.Of(lo)
	if err != nil {
		return errExpr{err: invalidf("%s between: %v", col, err)}
	}
	hiv, err := value.Of(hi)
	if err != nil {
		return errExpr{err: invalidf("%s between: %v", col, err)}
	}
	return BetweenExpr{Col: col, Lo: lov, Hi: hiv, Not: not}
}

// In returns a `column IN (...)` predicate. With no values it renders as an
// always-false predicate.
func In(col string, vs ...any) Expr { return in(col, vs, false) }

// NotIn returns a `column NOT IN (...)` predicate. With no values it renders
// as an always-true predicate.
func NotIn(col string, vs ...any) Expr { return in(col, vs, true) }

func in(col string, vs []any, not bool) Expr {
	if col == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	vals := make([]value.Value, len(vs))
	for i, v := range vs {
		val, err := value.Of(v)
		if err != nil {
			return errExpr{err: invalidf("%s in: %v", col, err)}
		}
		vals[i] = val
	}
	return InExpr{Col: col, Values: vals, Not: not}
}

// IsNull returns a `column IS NULL` predicate.
func IsNull(col string) Expr {
	if col == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	return NullExpr{Col: col}
}

// NotNull returns a `column IS NOT NULL` predicate.
func NotNull(col string) Expr {
	if col == "" {
		return errExpr{err: invalidf("empty column name")}
	}
	return NullExpr{Col: col, Not: true}
}

// And groups predicates under an explicit conjunction node.
func And(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return errExpr{err: invalidf("empty AND group")}
	}
	return LogicalExpr{Op: LogicAnd, Children: exprs}
}

// Or groups predicates under an explicit disjunction node.
func Or(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return errExpr{err: invalidf("empty OR group")}
	}
	return LogicalExpr{Op: LogicOr, Children: exprs}
}

// Not negates a predicate.
func Not(e Expr) Expr {
	return LogicalExpr{Op: LogicNot, Children: []Expr{e}}
}

// Raw returns a raw SQL fragment predicate. The fragment uses `?` for every
// placeholder regardless of dialect; the number of `?` must equal the number
// of binds — the contract is deliberately explicit, nothing is inferred.
func Raw(fragment string, binds ...any) Expr {
	vals := make([]value.Value, len(binds))
	for i, b := range binds {
		val, err := value.Of(b)
		if err != nil {
			return errExpr{err: invalidf("raw bind %d: %v", i, err)}
		}
		vals[i] = val
	}
	return RawExpr{Fragment: fragment, Binds: vals}
}

// validateExpr walks the tree and surfaces any build-time failure.
func validateExpr(e Expr) error {
	switch x := e.(type) {
	case nil:
		return invalidf("nil expression")
	case errExpr:
		return x.err
	case ColumnExpr:
		if x.Name == "" {
			return invalidf("empty column name")
		}
	case LiteralExpr:
	case CompareExpr:
		if err := validateExpr(x.Left); err != nil {
			return err
		}
		return validateExpr(x.Right)
	case LogicalExpr:
		if len(x.Children) == 0 {
			return invalidf("empty logical group")
		}
		if x.Op == LogicNot && len(x.Children) != 1 {
			return invalidf("NOT takes exactly one child")
		}
		for _, c := range x.Children {
			if err := validateExpr(c); err != nil {
				return err
			}
		}
	case BetweenExpr:
		if x.Col == "" {
			return invalidf("empty column name")
		}
	case InExpr:
		if x.Col == "" {
			return invalidf("empty column name")
		}
	case NullExpr:
		if x.Col == "" {
			return invalidf("empty column name")
		}
	case RawExpr:
		if n := strings.Count(x.Fragment, "?"); n != len(x.Binds) {
			return invalidf("raw fragment declares %d placeholders but %d binds were supplied", n, len(x.Binds))
		}
	default:
		return invalidf("unknown expression node %T", e)
	}
	return nil
}

// InvalidExpressionError reports a malformed expression tree, detected at
// build time before any connection is touched.
type InvalidExpressionError struct {
	Reason string
}

// Error returns the error string.
func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("sql: invalid expression: %s", e.Reason)
}

// IsInvalidExpression reports whether err is an InvalidExpressionError.
func IsInvalidExpression(err error) bool {
	var e *InvalidExpressionError
	return errors.As(err, &e)
}

func invalidf(format string, args ...any) error {
	return &InvalidExpressionError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedOperationError reports a construct the active dialect cannot
// render. It is returned at render time instead of emitting incorrect SQL.
type UnsupportedOperationError struct {
	Dialect string
	Op      string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("sql: dialect %s cannot render %s", e.Dialect, e.Op)
}

// IsUnsupported reports whether err is an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}

func unsupportedf(dialect, format string, args ...any) error {
	return &UnsupportedOperationError{Dialect: dialect, Op: fmt.Sprintf(format, args...)}
}
