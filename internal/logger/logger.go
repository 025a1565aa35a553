// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/digiprod/internal/domain"
)

// Setup configures the global zerolog logger from cfg and returns a closer
// for the rotated log file, if any.
func Setup(cfg *domain.Config) io.Closer {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(ParseLevel(cfg.LogLevel))

	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.LogPath); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(cfg.LogMaxSize, 50),
			MaxBackups: cfg.LogMaxBackups,
		}
		writer = io.MultiWriter(writer, rotating)
		closer = rotating
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return closer
}

// ParseLevel maps the configured level name to a zerolog level. Unknown
// names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
