package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

// ErrorDump flattens an error chain into log fields.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	// Backend names the datastore that produced the root failure:
	// "postgres", "sqlite" or "redis".
	Backend    string `json:"backend,omitempty"`
	BackendErr string `json:"backend_code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Fields returns the non-empty parts of d keyed for structured logs.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	add := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	add("error_code", string(d.Code))
	add("reason", d.Reason)
	add("backend", d.Backend)
	add("backend_code", d.BackendErr)
	add("constraint", d.Constraint)
	add("table", d.Table)
	add("column", d.Column)
	add("detail", d.Detail)
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	return fields
}

// Dump walks err and collects what the logs need to diagnose it.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		if details, ok := te.Details().(map[string]string); ok {
			d.Reason = details["reason"]
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	var liteErr sqlite3.Error
	var redisErr redis.Error
	switch {
	case errors.As(err, &pgxErr):
		d.Backend = "postgres"
		d.BackendErr = pgxErr.Code
		d.Constraint = pgxErr.ConstraintName
		d.Table = pgxErr.TableName
		d.Column = pgxErr.ColumnName
		d.Detail = pgxErr.Detail
	case errors.As(err, &pqErr):
		d.Backend = "postgres"
		d.BackendErr = string(pqErr.Code)
		d.Constraint = pqErr.Constraint
		d.Table = pqErr.Table
		d.Column = pqErr.Column
		d.Detail = pqErr.Detail
	case errors.As(err, &liteErr):
		d.Backend = "sqlite"
		d.BackendErr = liteErr.ExtendedCode.Error()
		d.Detail = liteErr.Error()
	case errors.As(err, &redisErr):
		d.Backend = "redis"
		d.Detail = redisErr.Error()
	}
	return d
}
