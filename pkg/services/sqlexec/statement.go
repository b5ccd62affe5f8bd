/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Statement defines a SQL statement with positional parameters.
type Statement struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

// NewStatement creates a new statement.
func NewStatement(sql string, params ...interface{}) Statement {
	if params == nil {
		params = []interface{}{}
	}

	return Statement{SQL: sql, Params: params}
}

// Row represents a result row keyed by column name.
type Row map[string]interface{}

// Scan decodes the row into v matching columns by JSON field names.
func (r Row) Scan(v interface{}) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to encode row")
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to decode row")
	}

	return nil
}

// Result represents a row set returned for a statement.
type Result struct {
	Rows         []Row `json:"rows"`
	RowsAffected int64 `json:"rowCount,omitempty"`
}

// Empty checks whether the result has no rows.
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// First returns the first row or nil.
func (r *Result) First() Row {
	if r.Empty() {
		return nil
	}

	return r.Rows[0]
}

var prohibitedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*drop\s+`),
	regexp.MustCompile(`(?i);\s*delete\s+`),
	regexp.MustCompile(`(?i);\s*truncate\s+`),
	regexp.MustCompile(`(?i);\s*alter\s+`),
	regexp.MustCompile(`(?i);\s*create\s+`),
}

// Validate checks that the statement may be sent to the database.
func (s Statement) Validate() error {
	if strings.TrimSpace(s.SQL) == "" {
		return &ValidationError{Reason: "SQL must be a non-empty string"}
	}

	for _, pattern := range prohibitedPatterns {
		if pattern.MatchString(s.SQL) {
			return &ValidationError{Reason: "SQL contains prohibited commands"}
		}
	}

	return nil
}
