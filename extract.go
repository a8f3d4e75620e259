package csvagent

import (
	"errors"
	"strings"
)

var errNoSQL = errors.New("model output contains no SQL statement")

// statementKeywords start a line that holds SQL. Mutating statements are
// included so the safety gate, not extraction, rejects them.
var statementKeywords = []string{
	"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"REPLACE", "ATTACH", "DETACH", "PRAGMA", "VACUUM", "REINDEX", "TRUNCATE", "VALUES", "EXPLAIN",
}

// sqlLabels introduce the query in the text-to-SQL answer format
var sqlLabels = []string{"SQLQuery:", "SQL Query:", "SQL:", "Query:"}

// stopLabels end the query in the text-to-SQL answer format
var stopLabels = []string{"SQLResult:", "SQL Result:", "Answer:", "Explanation:", "Question:"}

// extractSQL pulls the SQL statement out of free-form model output.
// Markdown fences, labels and surrounding prose are removed. The statement
// ends at a blank line or a result label; semicolons are kept so that
// trailing statements reach the safety gate.
func extractSQL(output string) (string, error) {
	text := strings.ReplaceAll(output, "\r\n", "\n")
	text = strings.ReplaceAll(text, "</s>", "")
	if fenced, ok := fencedBlock(text); ok {
		text = fenced
	}

	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		trimmed := strings.Trim(strings.TrimSpace(line), "`")
		if rest, ok := cutLabel(trimmed, sqlLabels); ok {
			lines[i] = rest
			start = i
			if strings.TrimSpace(rest) == "" {
				start = nextNonBlank(lines, i+1)
			}
			break
		}
		if startsWithKeyword(trimmed) {
			lines[i] = trimmed
			start = i
			break
		}
	}
	if start < 0 {
		for i, line := range lines {
			if rest, ok := inlineStatement(line); ok {
				lines[i] = rest
				start = i
				break
			}
		}
	}
	if start < 0 || start >= len(lines) {
		return "", errNoSQL
	}

	var collected []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && len(collected) > 0 {
			break
		}
		if _, ok := cutLabel(trimmed, stopLabels); ok {
			break
		}
		if idx := indexLabel(line, stopLabels); idx >= 0 {
			collected = append(collected, line[:idx])
			break
		}
		collected = append(collected, line)
	}

	sql := strings.TrimSpace(strings.Join(collected, "\n"))
	sql = strings.TrimSpace(strings.Trim(sql, "`"))
	if sql == "" {
		return "", errNoSQL
	}
	return sql, nil
}

// fencedBlock returns the body of the first ``` fenced block
func fencedBlock(text string) (string, bool) {
	open := strings.Index(text, "```")
	if open < 0 {
		return "", false
	}
	body := text[open+3:]
	// Drop the info string such as "sql"
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body, true
}

func cutLabel(line string, labels []string) (string, bool) {
	for _, label := range labels {
		if len(line) >= len(label) && strings.EqualFold(line[:len(label)], label) {
			return strings.TrimSpace(line[len(label):]), true
		}
	}
	return "", false
}

func indexLabel(line string, labels []string) int {
	upper := strings.ToUpper(line)
	for _, label := range labels {
		if idx := strings.Index(upper, strings.ToUpper(label)); idx > 0 {
			return idx
		}
	}
	return -1
}

func startsWithKeyword(line string) bool {
	upper := strings.ToUpper(line)
	for _, kw := range statementKeywords {
		if !strings.HasPrefix(upper, kw) {
			continue
		}
		if len(upper) == len(kw) {
			return true
		}
		next := upper[len(kw)]
		if next == ' ' || next == '\t' || next == '(' || next == '*' || next == ';' {
			return true
		}
	}
	return false
}

// inlineStatement finds an upper case SELECT or WITH ... SELECT that follows
// prose on the same line, as in "Here is the query: SELECT ...".
func inlineStatement(line string) (string, bool) {
	for idx := 0; idx < len(line); idx++ {
		if idx > 0 && isWordByte(line[idx-1]) {
			continue
		}
		rest := line[idx:]
		isWith := strings.HasPrefix(rest, "WITH")
		if !isWith && !strings.HasPrefix(rest, "SELECT") {
			continue
		}
		rest = strings.TrimRight(strings.TrimSpace(rest), "`")
		if !startsWithKeyword(rest) {
			continue
		}
		if isWith && !strings.Contains(rest, "SELECT") {
			continue
		}
		return rest, true
	}
	return "", false
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func nextNonBlank(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}
