// Package sqlexpr parses caller-supplied filter expressions and re-emits them
// as engine-native SQL text. Parsing is grammar-aware (the PostgreSQL parser
// via pg_query); formatting walks the AST and only emits a closed set of
// constructs, so anything outside plain boolean predicates fails closed. The
// package holds no state and is safe for concurrent use.
package sqlexpr

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	// ErrParse marks filter text the SQL grammar rejects.
	ErrParse = errors.New("malformed filter expression")

	// ErrUnsupportedExpr marks syntactically valid filters using constructs
	// outside the supported predicate subset (subqueries, casts to exotic
	// types, and so on).
	ErrUnsupportedExpr = errors.New("unsupported filter construct")
)

// ColumnRewrite maps a column reference (its identifier parts, unquoted) to
// replacement SQL text. Formatting with a nil rewrite quotes parts as-is.
type ColumnRewrite func(parts []string) string

// Expr is a parsed filter expression.
type Expr struct {
	root *pg_query.Node
	raw  string
}

// probe wraps a filter so it parses as the WHERE clause of a minimal statement.
const probe = "select 1 where "

// Parse checks a raw filter against the SQL grammar and captures its AST.
func Parse(filter string) (*Expr, error) {
	trimmed := strings.TrimSpace(filter)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrParse)
	}

	result, err := pg_query.Parse(probe + trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(result.Stmts) != 1 {
		return nil, fmt.Errorf("%w: expected a single expression", ErrParse)
	}

	sel, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok || sel.SelectStmt.WhereClause == nil {
		return nil, fmt.Errorf("%w: not a boolean expression", ErrParse)
	}
	if sel.SelectStmt.Op != pg_query.SetOperation_SETOP_NONE || len(sel.SelectStmt.FromClause) != 0 {
		return nil, fmt.Errorf("%w: not a boolean expression", ErrParse)
	}

	return &Expr{root: sel.SelectStmt.WhereClause, raw: trimmed}, nil
}

// String returns the original filter text.
func (e *Expr) String() string { return e.raw }

// Format renders the expression as SQL, passing every column reference
// through rewrite.
func (e *Expr) Format(rewrite ColumnRewrite) (string, error) {
	return formatNode(e.root, rewrite)
}

func formatNode(node *pg_query.Node, rewrite ColumnRewrite) (string, error) {
	if node == nil {
		return "", fmt.Errorf("%w: empty node", ErrUnsupportedExpr)
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		return formatBoolExpr(n.BoolExpr, rewrite)
	case *pg_query.Node_AExpr:
		return formatAExpr(n.AExpr, rewrite)
	case *pg_query.Node_ColumnRef:
		return formatColumnRef(n.ColumnRef, rewrite)
	case *pg_query.Node_AConst:
		return formatConst(n.AConst)
	case *pg_query.Node_NullTest:
		arg, err := formatNode(n.NullTest.Arg, rewrite)
		if err != nil {
			return "", err
		}
		if n.NullTest.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL {
			return fmt.Sprintf("(%s is not null)", arg), nil
		}
		return fmt.Sprintf("(%s is null)", arg), nil
	case *pg_query.Node_FuncCall:
		return formatFuncCall(n.FuncCall, rewrite)
	case *pg_query.Node_List:
		return formatList(n.List.Items, rewrite)
	case *pg_query.Node_TypeCast:
		return formatTypeCast(n.TypeCast, rewrite)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedExpr, node.Node)
	}
}

func formatBoolExpr(be *pg_query.BoolExpr, rewrite ColumnRewrite) (string, error) {
	args := make([]string, 0, len(be.Args))
	for _, arg := range be.Args {
		s, err := formatNode(arg, rewrite)
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}

	switch be.Boolop {
	case pg_query.BoolExprType_AND_EXPR:
		return "(" + strings.Join(args, " and ") + ")", nil
	case pg_query.BoolExprType_OR_EXPR:
		return "(" + strings.Join(args, " or ") + ")", nil
	case pg_query.BoolExprType_NOT_EXPR:
		if len(args) != 1 {
			return "", fmt.Errorf("%w: malformed negation", ErrUnsupportedExpr)
		}
		return "(not " + args[0] + ")", nil
	default:
		return "", fmt.Errorf("%w: boolean operator %v", ErrUnsupportedExpr, be.Boolop)
	}
}

// likeOperators maps the parser's internal operator spellings back to keywords.
var likeOperators = map[string]string{
	"~~":   "like",
	"!~~":  "not like",
	"~~*":  "ilike",
	"!~~*": "not ilike",
}

func formatAExpr(ae *pg_query.A_Expr, rewrite ColumnRewrite) (string, error) {
	op, err := operatorName(ae.Name)
	if err != nil {
		return "", err
	}

	switch ae.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		right, err := formatNode(ae.Rexpr, rewrite)
		if err != nil {
			return "", err
		}
		if ae.Lexpr == nil {
			return op + right, nil
		}
		left, err := formatNode(ae.Lexpr, rewrite)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, op, right), nil

	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		keyword, ok := likeOperators[op]
		if !ok {
			return "", fmt.Errorf("%w: operator %q", ErrUnsupportedExpr, op)
		}
		left, err := formatNode(ae.Lexpr, rewrite)
		if err != nil {
			return "", err
		}
		right, err := formatNode(ae.Rexpr, rewrite)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, keyword, right), nil

	case pg_query.A_Expr_Kind_AEXPR_IN:
		left, err := formatNode(ae.Lexpr, rewrite)
		if err != nil {
			return "", err
		}
		items, err := formatNode(ae.Rexpr, rewrite)
		if err != nil {
			return "", err
		}
		keyword := "in"
		if op == "<>" {
			keyword = "not in"
		}
		return fmt.Sprintf("(%s %s (%s))", left, keyword, items), nil

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		left, err := formatNode(ae.Lexpr, rewrite)
		if err != nil {
			return "", err
		}
		list, ok := ae.Rexpr.Node.(*pg_query.Node_List)
		if !ok || len(list.List.Items) != 2 {
			return "", fmt.Errorf("%w: malformed between", ErrUnsupportedExpr)
		}
		low, err := formatNode(list.List.Items[0], rewrite)
		if err != nil {
			return "", err
		}
		high, err := formatNode(list.List.Items[1], rewrite)
		if err != nil {
			return "", err
		}
		keyword := "between"
		if ae.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN {
			keyword = "not between"
		}
		return fmt.Sprintf("(%s %s %s and %s)", left, keyword, low, high), nil

	default:
		return "", fmt.Errorf("%w: expression kind %v", ErrUnsupportedExpr, ae.Kind)
	}
}

func formatColumnRef(ref *pg_query.ColumnRef, rewrite ColumnRewrite) (string, error) {
	parts := make([]string, 0, len(ref.Fields))
	for _, field := range ref.Fields {
		s, ok := field.Node.(*pg_query.Node_String_)
		if !ok {
			return "", fmt.Errorf("%w: wildcard column reference", ErrUnsupportedExpr)
		}
		parts = append(parts, s.String_.Sval)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: empty column reference", ErrUnsupportedExpr)
	}

	if rewrite != nil {
		return rewrite(parts), nil
	}

	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdentifier(p)
	}
	return strings.Join(quoted, "."), nil
}

func formatConst(c *pg_query.A_Const) (string, error) {
	if c.Isnull {
		return "null", nil
	}

	switch v := c.Val.(type) {
	case *pg_query.A_Const_Ival:
		return fmt.Sprintf("%d", v.Ival.Ival), nil
	case *pg_query.A_Const_Fval:
		return v.Fval.Fval, nil
	case *pg_query.A_Const_Sval:
		return "'" + strings.ReplaceAll(v.Sval.Sval, "'", "''") + "'", nil
	case *pg_query.A_Const_Boolval:
		if v.Boolval.Boolval {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("%w: literal %T", ErrUnsupportedExpr, c.Val)
	}
}

func formatFuncCall(fc *pg_query.FuncCall, rewrite ColumnRewrite) (string, error) {
	nameParts := make([]string, 0, len(fc.Funcname))
	for _, n := range fc.Funcname {
		s, ok := n.Node.(*pg_query.Node_String_)
		if !ok {
			return "", fmt.Errorf("%w: function name", ErrUnsupportedExpr)
		}
		if s.String_.Sval == "pg_catalog" {
			continue
		}
		nameParts = append(nameParts, s.String_.Sval)
	}
	if len(nameParts) == 0 {
		return "", fmt.Errorf("%w: function name", ErrUnsupportedExpr)
	}

	if fc.AggStar {
		return strings.Join(nameParts, ".") + "(*)", nil
	}

	args := make([]string, 0, len(fc.Args))
	for _, arg := range fc.Args {
		s, err := formatNode(arg, rewrite)
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}
	return strings.Join(nameParts, ".") + "(" + strings.Join(args, ", ") + ")", nil
}

func formatList(items []*pg_query.Node, rewrite ColumnRewrite) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, err := formatNode(item, rewrite)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

func formatTypeCast(tc *pg_query.TypeCast, rewrite ColumnRewrite) (string, error) {
	arg, err := formatNode(tc.Arg, rewrite)
	if err != nil {
		return "", err
	}
	if tc.TypeName == nil || len(tc.TypeName.Names) == 0 {
		return "", fmt.Errorf("%w: cast without type", ErrUnsupportedExpr)
	}
	last := tc.TypeName.Names[len(tc.TypeName.Names)-1]
	s, ok := last.Node.(*pg_query.Node_String_)
	if !ok {
		return "", fmt.Errorf("%w: cast type name", ErrUnsupportedExpr)
	}
	typeName, ok := castTypes[s.String_.Sval]
	if !ok {
		return "", fmt.Errorf("%w: cast to %q", ErrUnsupportedExpr, s.String_.Sval)
	}
	return fmt.Sprintf("cast(%s as %s)", arg, typeName), nil
}

// castTypes is the closed set of cast targets filters may use, keyed by the
// parser's internal type names.
var castTypes = map[string]string{
	"int4":    "integer",
	"int8":    "bigint",
	"float8":  "double precision",
	"numeric": "numeric",
	"bool":    "boolean",
	"text":    "varchar",
	"varchar": "varchar",
	"date":    "date",
}

func operatorName(name []*pg_query.Node) (string, error) {
	if len(name) != 1 {
		return "", fmt.Errorf("%w: qualified operator", ErrUnsupportedExpr)
	}
	s, ok := name[0].Node.(*pg_query.Node_String_)
	if !ok {
		return "", fmt.Errorf("%w: operator name", ErrUnsupportedExpr)
	}
	return s.String_.Sval, nil
}
