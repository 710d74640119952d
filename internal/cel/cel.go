// Package cel compiles CEL filter expressions for the recent changes listing and
// translates them into SQL WHERE clauses.
//
// Field validation and column mapping are interfaces so the walker and operator
// translation are shared, while the SQL dialect decides placeholders, list syntax
// and string functions for each backend.
package cel

import (
	"fmt"
	"strings"
	"time"

	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// FieldValidator validates field selections in a parsed expression.
type FieldValidator interface {
	ValidateSelectExpr(sel *expr.Expr_Select) error
}

// FieldMapper maps CEL fields to logical column names.
type FieldMapper interface {
	// MapSelectExpr handles dotted access such as objectRef.namespace.
	MapSelectExpr(sel *expr.Expr_Select) (string, error)
	// MapIdentExpr handles bare identifiers such as verb.
	MapIdentExpr(ident *expr.Expr_Ident) (string, error)
}

// ValidateFieldAccess walks e and validates every field selection with validator.
func ValidateFieldAccess(e *expr.Expr, validator FieldValidator) error {
	if e == nil {
		return nil
	}
	if sel := e.GetSelectExpr(); sel != nil {
		if err := validator.ValidateSelectExpr(sel); err != nil {
			return err
		}
	}
	for _, child := range children(e) {
		if err := ValidateFieldAccess(child, validator); err != nil {
			return err
		}
	}
	return nil
}

// children returns the direct sub-expressions of e.
func children(e *expr.Expr) []*expr.Expr {
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_SelectExpr:
		return []*expr.Expr{kind.SelectExpr.GetOperand()}
	case *expr.Expr_CallExpr:
		return append([]*expr.Expr{kind.CallExpr.GetTarget()}, kind.CallExpr.GetArgs()...)
	case *expr.Expr_ListExpr:
		return kind.ListExpr.GetElements()
	case *expr.Expr_StructExpr:
		out := make([]*expr.Expr, 0, len(kind.StructExpr.GetEntries()))
		for _, entry := range kind.StructExpr.GetEntries() {
			out = append(out, entry.GetValue())
		}
		return out
	case *expr.Expr_ComprehensionExpr:
		c := kind.ComprehensionExpr
		return []*expr.Expr{c.GetIterRange(), c.GetAccuInit(), c.GetLoopCondition(), c.GetLoopStep(), c.GetResult()}
	default:
		return nil
	}
}

// binaryOperators maps CEL operator functions to SQL operators.
var binaryOperators = map[string]string{
	"_==_": "=",
	"_!=_": "!=",
	"_>=_": ">=",
	"_<=_": "<=",
	"_>_":  ">",
	"_<_":  "<",
}

// BaseSQLConverter translates a checked CEL expression into a SQL condition.
// Literal values are never inlined; they are collected as query arguments.
type BaseSQLConverter struct {
	args    []any
	offset  int
	mapper  FieldMapper
	dialect Dialect
}

// NewBaseSQLConverter returns a converter. offset is the number of arguments that
// precede the filter in the final query, so numbered placeholders line up.
func NewBaseSQLConverter(mapper FieldMapper, dialect Dialect, offset int) *BaseSQLConverter {
	return &BaseSQLConverter{
		mapper:  mapper,
		dialect: dialect,
		offset:  offset,
	}
}

// Args returns the collected query arguments.
func (c *BaseSQLConverter) Args() []any {
	return c.args
}

func (c *BaseSQLConverter) addArg(value any) string {
	c.args = append(c.args, value)
	return c.dialect.Placeholder(c.offset + len(c.args))
}

// ConvertExpr converts e to SQL.
func (c *BaseSQLConverter) ConvertExpr(e *expr.Expr) (string, error) {
	switch e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return c.convertCallExpr(e.GetCallExpr())
	case *expr.Expr_IdentExpr:
		col, err := c.mapper.MapIdentExpr(e.GetIdentExpr())
		if err != nil {
			return "", err
		}
		return c.dialect.Column(col), nil
	case *expr.Expr_SelectExpr:
		col, err := c.mapper.MapSelectExpr(e.GetSelectExpr())
		if err != nil {
			return "", err
		}
		return c.dialect.Column(col), nil
	case *expr.Expr_ConstExpr:
		return c.convertConstExpr(e.GetConstExpr())
	case *expr.Expr_ListExpr:
		return c.convertListExpr(e.GetListExpr())
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
}

func (c *BaseSQLConverter) convertCallExpr(call *expr.Expr_Call) (string, error) {
	if op, ok := binaryOperators[call.Function]; ok {
		left, right, err := c.convertPair(call.Args[0], call.Args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, op, right), nil
	}

	switch call.Function {
	case "!_":
		arg, err := c.ConvertExpr(call.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", arg), nil

	case "_&&_", "_||_":
		left, right, err := c.convertPair(call.Args[0], call.Args[1])
		if err != nil {
			return "", err
		}
		op := "AND"
		if call.Function == "_||_" {
			op = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", left, op, right), nil

	case "@in":
		left, right, err := c.convertPair(call.Args[0], call.Args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IN %s", left, right), nil

	case "startsWith", "endsWith", "contains":
		if call.Target == nil || len(call.Args) != 1 {
			break
		}
		target, arg, err := c.convertPair(call.Target, call.Args[0])
		if err != nil {
			return "", err
		}
		switch call.Function {
		case "startsWith":
			return c.dialect.StartsWith(target, arg), nil
		case "endsWith":
			return c.dialect.EndsWith(target, arg), nil
		default:
			return c.dialect.Contains(target, arg), nil
		}

	case "timestamp":
		if len(call.Args) != 1 {
			break
		}
		if constExpr := call.Args[0].GetConstExpr(); constExpr != nil {
			if strVal := constExpr.GetStringValue(); strVal != "" {
				t, err := time.Parse(time.RFC3339, strVal)
				if err != nil {
					return "", fmt.Errorf("invalid timestamp format: %w", err)
				}
				return c.addArg(t), nil
			}
		}
	}

	return "", fmt.Errorf("unsupported CEL function: %s", call.Function)
}

func (c *BaseSQLConverter) convertPair(a, b *expr.Expr) (string, string, error) {
	left, err := c.ConvertExpr(a)
	if err != nil {
		return "", "", err
	}
	right, err := c.ConvertExpr(b)
	if err != nil {
		return "", "", err
	}
	return left, right, nil
}

func (c *BaseSQLConverter) convertConstExpr(constant *expr.Constant) (string, error) {
	switch constant.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return c.addArg(constant.GetStringValue()), nil
	case *expr.Constant_Int64Value:
		return c.addArg(constant.GetInt64Value()), nil
	case *expr.Constant_Uint64Value:
		return c.addArg(constant.GetUint64Value()), nil
	case *expr.Constant_DoubleValue:
		return c.addArg(constant.GetDoubleValue()), nil
	case *expr.Constant_BoolValue:
		return c.dialect.Bool(constant.GetBoolValue()), nil
	default:
		return "", fmt.Errorf("unsupported constant type: %T", constant.ConstantKind)
	}
}

func (c *BaseSQLConverter) convertListExpr(list *expr.Expr_CreateList) (string, error) {
	elements := make([]string, len(list.Elements))
	for i, elem := range list.Elements {
		val, err := c.ConvertExpr(elem)
		if err != nil {
			return "", err
		}
		elements[i] = val
	}
	return c.dialect.List(elements), nil
}

// joinList is shared by dialects that only differ in brackets.
func joinList(opening, closing string, elements []string) string {
	return opening + strings.Join(elements, ", ") + closing
}
