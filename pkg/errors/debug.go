package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-side rendering of a failure. It resolves the domain
// code against the taxonomy so a log line carries the same HTTP status and
// retry hint the client saw, plus the cause chain and any Postgres detail.
type ErrorDump struct {
	Message    string `json:"message"`
	Code       Code   `json:"code"`
	HTTPStatus int    `json:"http_status"`
	Retryable  bool   `json:"retryable"`
	Details    any    `json:"details,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Postgres *PGDetail `json:"postgres,omitempty"`
}

// PGDetail surfaces the driver-level Postgres fields for constraint hunting.
type PGDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		Message: err.Error(),
		Code:    CodeInternal,
	}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Details = typed.Details()
	}
	meta := MetadataFor(d.Code)
	d.HTTPStatus = meta.HTTPStatus
	d.Retryable = meta.Retryable

	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", cause, cause))
	}

	d.Postgres = pgDetail(err)
	return d
}

// Fields flattens the dump for structured log context.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  string(d.Code),
		"http_status": d.HTTPStatus,
		"retryable":   d.Retryable,
	}
	if len(d.Chain) > 0 {
		fields["error_chain"] = d.Chain
	}
	if d.Postgres != nil {
		fields["pg_code"] = d.Postgres.Code
		fields["pg_message"] = d.Postgres.Message
		fields["pg_detail"] = d.Postgres.Detail
		fields["pg_table"] = d.Postgres.Table
		fields["pg_column"] = d.Postgres.Column
		fields["pg_constraint"] = d.Postgres.Constraint
	}
	return fields
}

func pgDetail(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Message:    pgxErr.Message,
			Detail:     pgxErr.Detail,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Constraint: pgxErr.ConstraintName,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}

	return nil
}
