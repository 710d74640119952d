package storage

import (
	"context"
	"fmt"
	"strings"

	"go.miloapis.com/auditdashboard/internal/cel"
)

// sqlQuery accumulates WHERE conditions with dialect-specific placeholders.
type sqlQuery struct {
	dialect    cel.Dialect
	conditions []string
	args       []any
}

func newSQLQuery(dialect cel.Dialect) *sqlQuery {
	return &sqlQuery{dialect: dialect}
}

// where adds "column op value" with value bound as an argument.
func (q *sqlQuery) where(column, op string, value any) {
	q.args = append(q.args, value)
	q.conditions = append(q.conditions,
		fmt.Sprintf("%s %s %s", q.dialect.Column(column), op, q.dialect.Placeholder(len(q.args))))
}

// whereFilter adds a CEL filter expression. Its placeholders continue after the
// arguments already bound.
func (q *sqlQuery) whereFilter(ctx context.Context, filter string) error {
	if filter == "" {
		return nil
	}
	condition, args, err := cel.ConvertToSQL(ctx, filter, q.dialect, len(q.args))
	if err != nil {
		return err
	}
	if condition != "" {
		q.conditions = append(q.conditions, condition)
		q.args = append(q.args, args...)
	}
	return nil
}

func (q *sqlQuery) whereClause() string {
	if len(q.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conditions, " AND ")
}

// recentChangesStatements builds the page and count statements for a recent
// changes query. Both statements share args.
func recentChangesStatements(ctx context.Context, dialect cel.Dialect, table, orderBy string, query RecentChangesQuery) (selectSQL, countSQL string, args []any, err error) {
	q := newSQLQuery(dialect)
	q.where("level", "=", levelRequestResponse)
	q.where("stage", "=", stageResponseComplete)

	if !query.Since.IsZero() {
		q.where("timestamp", ">=", query.Since)
	}
	if !query.Until.IsZero() {
		q.where("timestamp", "<", query.Until)
	}
	if err := q.whereFilter(ctx, query.Filter); err != nil {
		return "", "", nil, err
	}

	where := q.whereClause()
	selectSQL = fmt.Sprintf("SELECT event_json FROM %s%s ORDER BY %s LIMIT %d OFFSET %d",
		table, where, orderBy, query.PageSize, query.Offset())
	countSQL = fmt.Sprintf("SELECT count(*) FROM %s%s", table, where)
	return selectSQL, countSQL, q.args, nil
}

// countStatements builds the statements behind EventCounts. The mutating
// statement extends the total one, so its args start with totalArgs.
func countStatements(dialect cel.Dialect, table string, query CountQuery) (totalSQL string, totalArgs []any, mutatingSQL string, mutatingArgs []any) {
	q := newSQLQuery(dialect)
	if !query.Since.IsZero() {
		q.where("timestamp", ">=", query.Since)
	}
	if !query.Until.IsZero() {
		q.where("timestamp", "<", query.Until)
	}
	totalSQL = fmt.Sprintf("SELECT count(*) FROM %s%s", table, q.whereClause())
	totalArgs = append([]any(nil), q.args...)

	for _, verb := range readOnlyVerbs {
		q.where("verb", "!=", verb)
	}
	mutatingSQL = fmt.Sprintf("SELECT count(*) FROM %s%s", table, q.whereClause())
	return totalSQL, totalArgs, mutatingSQL, q.args
}

// lifecycleStatement builds the statement that loads every completed event of one
// resource.
func lifecycleStatement(dialect cel.Dialect, table, orderBy string, query ResourceQuery) (string, []any) {
	q := newSQLQuery(dialect)
	q.where("stage", "=", stageResponseComplete)
	q.where("api_group", "=", query.APIGroup)
	q.where("resource", "=", query.Resource)
	q.where("namespace", "=", query.Namespace)
	q.where("resource_name", "=", query.Name)

	return fmt.Sprintf("SELECT event_json FROM %s%s ORDER BY %s LIMIT %d",
		table, q.whereClause(), orderBy, query.limit()), q.args
}

// classifyError buckets a query error for metrics and logs.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "syntax"):
		return "syntax"
	case strings.Contains(msg, "memory"):
		return "memory"
	case strings.Contains(msg, "parameter"):
		return "parameter"
	default:
		return "unknown"
	}
}

// truncateStatement keeps statements short enough for span attributes and logs.
func truncateStatement(statement string) string {
	if len(statement) > 1000 {
		return statement[:1000] + "..."
	}
	return statement
}
