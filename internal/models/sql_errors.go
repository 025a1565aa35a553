// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

type constraintKind int

const (
	constraintUnique constraintKind = iota + 1
	constraintForeignKey
	constraintCheck
)

// constraintViolation describes which constraint a failed write tripped.
// Postgres reports the constraint name. SQLite reports table.column pairs
// for unique violations, the check expression for unnamed checks and
// nothing at all for foreign keys.
type constraintViolation struct {
	kind       constraintKind
	constraint string
	columns    []string
	detail     string
}

func violatedConstraint(err error) (constraintViolation, bool) {
	if err == nil {
		return constraintViolation{}, false
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		v := constraintViolation{detail: sqliteConstraintDetail(sqlErr.Error())}
		switch sqlErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			v.kind = constraintUnique
			for col := range strings.SplitSeq(v.detail, ",") {
				if col = strings.TrimSpace(col); col != "" {
					v.columns = append(v.columns, col)
				}
			}
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			v.kind = constraintForeignKey
		case sqlitelib.SQLITE_CONSTRAINT_CHECK:
			v.kind = constraintCheck
		default:
			return constraintViolation{}, false
		}
		return v, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		v := constraintViolation{constraint: pgErr.ConstraintName, detail: pgErr.Detail}
		switch pgErr.Code {
		case "23505":
			v.kind = constraintUnique
		case "23503":
			v.kind = constraintForeignKey
		case "23514":
			v.kind = constraintCheck
		default:
			return constraintViolation{}, false
		}
		return v, true
	}

	return constraintViolation{}, false
}

// sqliteConstraintDetail returns the part of the message after the last
// "constraint failed: ", minus the trailing result code.
func sqliteConstraintDetail(msg string) string {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	detail := msg[i+len(marker):]
	if j := strings.LastIndex(detail, " ("); j >= 0 {
		detail = detail[:j]
	}
	return detail
}

// on reports whether the violation names table.column, either as a SQLite
// column pair or as a Postgres default constraint name.
func (v constraintViolation) on(table, column string) bool {
	for _, c := range v.columns {
		if c == table+"."+column {
			return true
		}
	}
	if v.constraint == "" {
		return false
	}
	prefix := table + "_" + column + "_"
	return v.constraint == prefix+"key" || v.constraint == prefix+"fkey" || v.constraint == prefix+"check"
}

// named reports whether the engine said which constraint failed.
func (v constraintViolation) named() bool {
	return v.constraint != "" || len(v.columns) > 0
}

func isUniqueConstraintError(err error) bool {
	v, ok := violatedConstraint(err)
	return ok && v.kind == constraintUnique
}
