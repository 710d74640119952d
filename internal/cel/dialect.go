package cel

import "fmt"

// Dialect renders the backend-specific parts of a SQL condition.
type Dialect interface {
	// Placeholder returns the placeholder for the n-th argument, starting at 1.
	Placeholder(n int) string
	// Column maps a logical column name to the physical column.
	Column(name string) string
	List(elements []string) string
	Bool(v bool) string
	StartsWith(target, prefix string) string
	EndsWith(target, suffix string) string
	Contains(target, substring string) string
}

// ClickHouseDialect uses positional "?" placeholders and ClickHouse string functions.
type ClickHouseDialect struct{}

func (ClickHouseDialect) Placeholder(int) string { return "?" }

func (ClickHouseDialect) Column(name string) string { return name }

func (ClickHouseDialect) List(elements []string) string { return joinList("[", "]", elements) }

func (ClickHouseDialect) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (ClickHouseDialect) StartsWith(target, prefix string) string {
	return fmt.Sprintf("startsWith(%s, %s)", target, prefix)
}

func (ClickHouseDialect) EndsWith(target, suffix string) string {
	return fmt.Sprintf("endsWith(%s, %s)", target, suffix)
}

func (ClickHouseDialect) Contains(target, substring string) string {
	return fmt.Sprintf("position(%s, %s) > 0", target, substring)
}

// PostgresDialect uses numbered "$n" placeholders.
type PostgresDialect struct{}

// postgresColumns renames logical columns that collide with reserved words.
var postgresColumns = map[string]string{
	"user": "username",
}

func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (PostgresDialect) Column(name string) string {
	if col, ok := postgresColumns[name]; ok {
		return col
	}
	return name
}

func (PostgresDialect) List(elements []string) string { return joinList("(", ")", elements) }

func (PostgresDialect) Bool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (PostgresDialect) StartsWith(target, prefix string) string {
	return fmt.Sprintf("starts_with(%s, %s)", target, prefix)
}

func (PostgresDialect) EndsWith(target, suffix string) string {
	return fmt.Sprintf("right(%s, length(%s)) = %s", target, suffix, suffix)
}

func (PostgresDialect) Contains(target, substring string) string {
	return fmt.Sprintf("strpos(%s, %s) > 0", target, substring)
}
