package cel

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// celErrorRegex extracts position information from CEL compilation errors.
var celErrorRegex = regexp.MustCompile(`ERROR:\s+<input>:(\d+):(\d+):\s+(.+)`)

// FilterError is an invalid filter expression. The message is safe to show to users.
type FilterError struct {
	Message string
	Line    int
	Column  int
}

func (e *FilterError) Error() string {
	return e.Message
}

// IsFilterError reports whether err is caused by an invalid filter expression.
func IsFilterError(err error) bool {
	var fe *FilterError
	return errors.As(err, &fe)
}

func newFilterError(err error) *FilterError {
	line, column := extractErrorPosition(err)
	return &FilterError{
		Message: formatFilterError(err, line, column),
		Line:    line,
		Column:  column,
	}
}

// extractErrorPosition returns (0, 0) when err carries no position.
func extractErrorPosition(err error) (line, column int) {
	matches := celErrorRegex.FindStringSubmatch(err.Error())
	if len(matches) < 4 {
		return 0, 0
	}
	line, _ = strconv.Atoi(matches[1])
	column, _ = strconv.Atoi(matches[2])
	return line, column
}

func formatFilterError(err error, line, column int) string {
	var msg strings.Builder

	errMsg := simplifyErrorMessage(err.Error())
	if column > 0 {
		fmt.Fprintf(&msg, "Invalid filter at line %d, column %d: %s", line, column, errMsg)
	} else {
		fmt.Fprintf(&msg, "Invalid filter: %s", errMsg)
	}

	msg.WriteString(". Available fields: ")
	msg.WriteString(strings.Join(AvailableFields(), ", "))
	msg.WriteString(". See https://cel.dev for CEL syntax")

	return msg.String()
}

// simplifyErrorMessage strips the CEL location prefix and keeps the first line.
func simplifyErrorMessage(celError string) string {
	msg := strings.ReplaceAll(celError, "ERROR: <input>:", "")

	if idx := strings.Index(msg, ": "); idx != -1 && idx < 10 {
		msg = msg[idx+2:]
	}
	if idx := strings.Index(msg, "\n"); idx != -1 {
		msg = msg[:idx]
	}
	return strings.TrimSpace(msg)
}
