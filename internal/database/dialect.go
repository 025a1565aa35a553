// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"fmt"
	"strconv"
	"strings"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) String() string {
	return string(d)
}

func parseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(DialectSQLite):
		return DialectSQLite, nil
	case string(DialectPostgres), "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database engine %q", raw)
	}
}

func (db *DB) Dialect() string {
	if db == nil || db.dialect == "" {
		return string(DialectSQLite)
	}
	return db.dialect.String()
}

func (db *DB) bindQuery(query string) string {
	if db == nil || db.dialect != DialectPostgres {
		return query
	}
	return rebindQuestionToDollar(query)
}

// rebindQuestionToDollar numbers ? placeholders as $1..$n, leaving question
// marks inside quotes and comments alone.
func rebindQuestionToDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	const (
		plain = iota
		singleQuote
		doubleQuote
		lineComment
		blockComment
	)

	var out strings.Builder
	out.Grow(len(query) + 16)

	state := plain
	param := 0
	for i := 0; i < len(query); i++ {
		ch := query[i]
		next := byte(0)
		if i+1 < len(query) {
			next = query[i+1]
		}

		switch state {
		case singleQuote:
			if ch == '\'' {
				state = plain
			}
		case doubleQuote:
			if ch == '"' {
				state = plain
			}
		case lineComment:
			if ch == '\n' {
				state = plain
			}
		case blockComment:
			if ch == '*' && next == '/' {
				out.WriteString("*/")
				i++
				state = plain
				continue
			}
		default:
			switch {
			case ch == '\'':
				state = singleQuote
			case ch == '"':
				state = doubleQuote
			case ch == '-' && next == '-':
				state = lineComment
			case ch == '/' && next == '*':
				out.WriteString("/*")
				i++
				state = blockComment
				continue
			case ch == '?':
				param++
				out.WriteByte('$')
				out.WriteString(strconv.Itoa(param))
				continue
			}
		}
		out.WriteByte(ch)
	}

	return out.String()
}
