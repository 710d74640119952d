package cel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"go.miloapis.com/auditdashboard/internal/metrics"
)

var tracer = otel.Tracer("audit-dashboard-cel-filter")

// identColumns maps bare identifiers to logical columns.
var identColumns = map[string]string{
	"auditID":                  "audit_id",
	"verb":                     "verb",
	"userAgent":                "user_agent",
	"requestReceivedTimestamp": "timestamp",
}

// selectColumns maps dotted fields to logical columns, keyed by base object.
var selectColumns = map[string]map[string]string{
	"objectRef": {
		"namespace": "namespace",
		"resource":  "resource",
		"name":      "resource_name",
		"apiGroup":  "api_group",
	},
	"user": {
		"username": "user",
	},
	"responseStatus": {
		"code": "status_code",
	},
}

// AvailableFields lists every field accepted in a filter expression.
func AvailableFields() []string {
	fields := make([]string, 0, len(identColumns)+6)
	for name := range identColumns {
		fields = append(fields, name)
	}
	for base, cols := range selectColumns {
		for field := range cols {
			fields = append(fields, base+"."+field)
		}
	}
	sort.Strings(fields)
	return fields
}

// EventFieldValidator rejects fields of structured variables that have no column.
type EventFieldValidator struct{}

func (EventFieldValidator) ValidateSelectExpr(sel *expr.Expr_Select) error {
	ident := sel.GetOperand().GetIdentExpr()
	if ident == nil {
		return nil
	}
	base := ident.GetName()
	cols, ok := selectColumns[base]
	if !ok {
		return nil
	}
	if _, ok := cols[sel.GetField()]; !ok {
		available := make([]string, 0, len(cols))
		for f := range cols {
			available = append(available, base+"."+f)
		}
		sort.Strings(available)
		return fmt.Errorf("field '%s.%s' is not available for filtering. Available fields for %s: %v",
			base, sel.GetField(), base, available)
	}
	return nil
}

// EventFieldMapper maps audit event fields to logical columns.
type EventFieldMapper struct{}

func (EventFieldMapper) MapIdentExpr(ident *expr.Expr_Ident) (string, error) {
	if col, ok := identColumns[ident.Name]; ok {
		return col, nil
	}
	if _, ok := selectColumns[ident.Name]; ok {
		return "", fmt.Errorf("field '%s' must be accessed with dot notation (e.g., objectRef.namespace, user.username, responseStatus.code)", ident.Name)
	}
	return "", fmt.Errorf("field '%s' is not available for filtering", ident.Name)
}

func (EventFieldMapper) MapSelectExpr(sel *expr.Expr_Select) (string, error) {
	ident := sel.GetOperand().GetIdentExpr()
	if ident == nil {
		return "", fmt.Errorf("select expression operand must be an identifier")
	}
	if col, ok := selectColumns[ident.GetName()][sel.GetField()]; ok {
		return col, nil
	}
	return "", fmt.Errorf("field '%s.%s' is not available for filtering", ident.GetName(), sel.GetField())
}

// Environment creates the CEL environment for recent changes filters.
//
// Supports ==, !=, <, >, <=, >=, &&, ||, !, in and the string methods
// startsWith, endsWith and contains.
func Environment() (*cel.Env, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	return cel.NewEnv(
		cel.Variable("auditID", cel.StringType),
		cel.Variable("verb", cel.StringType),
		cel.Variable("userAgent", cel.StringType),
		cel.Variable("requestReceivedTimestamp", cel.TimestampType),

		cel.Variable("objectRef", mapType),
		cel.Variable("user", mapType),
		cel.Variable("responseStatus", mapType),
	)
}

// CompileFilter compiles and validates a filter expression. Errors are *FilterError
// values with messages meant for end users.
func CompileFilter(filterExpr string) (*cel.Ast, error) {
	startTime := time.Now()
	defer func() {
		metrics.CELFilterParseDuration.Observe(time.Since(startTime).Seconds())
	}()

	if filterExpr == "" {
		metrics.CELFilterErrors.WithLabelValues("empty").Inc()
		return nil, &FilterError{Message: "filter expression cannot be empty"}
	}

	env, err := Environment()
	if err != nil {
		metrics.CELFilterErrors.WithLabelValues("environment").Inc()
		return nil, fmt.Errorf("unable to process filter expression. Try again or contact support if the problem persists")
	}

	ast, issues := env.Compile(filterExpr)
	if issues != nil && issues.Err() != nil {
		metrics.CELFilterErrors.WithLabelValues("compilation").Inc()
		return nil, newFilterError(issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		metrics.CELFilterErrors.WithLabelValues("type_mismatch").Inc()
		return nil, newFilterError(fmt.Errorf("filter expression must return a boolean, got %v", ast.OutputType()))
	}

	if err := ValidateFieldAccess(ast.Expr(), EventFieldValidator{}); err != nil {
		metrics.CELFilterErrors.WithLabelValues("invalid_field").Inc()
		return nil, newFilterError(err)
	}

	return ast, nil
}

// ConvertToSQL converts a filter expression into a WHERE condition for dialect.
// offset is the number of arguments already bound before the condition. An empty
// filter yields an empty condition.
func ConvertToSQL(ctx context.Context, filterExpr string, dialect Dialect, offset int) (string, []any, error) {
	_, span := tracer.Start(ctx, "cel.filter.convert",
		trace.WithAttributes(attribute.String("cel.expression", filterExpr)),
	)
	defer span.End()

	if filterExpr == "" {
		span.SetStatus(codes.Ok, "empty filter")
		return "", nil, nil
	}

	ast, err := CompileFilter(filterExpr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compilation failed")
		return "", nil, err
	}

	converter := NewBaseSQLConverter(EventFieldMapper{}, dialect, offset)
	sql, err := converter.ConvertExpr(ast.Expr())
	if err != nil {
		metrics.CELFilterErrors.WithLabelValues("conversion").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversion failed")
		return "", nil, newFilterError(err)
	}

	span.SetAttributes(
		attribute.String("sql.where_clause", sql),
		attribute.Int("sql.param_count", len(converter.Args())),
	)
	span.SetStatus(codes.Ok, "conversion successful")

	return sql, converter.Args(), nil
}
