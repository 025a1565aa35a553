// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"fmt"
	"net/http"

	"github.com/CAFxX/httpcompression"
	cbrotli "github.com/CAFxX/httpcompression/contrib/andybalholm/brotli"
	czstd "github.com/CAFxX/httpcompression/contrib/klauspost/zstd"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// CompressionConfig controls response compression on the API.
type CompressionConfig struct {
	// MinSize is the smallest body in bytes worth compressing.
	MinSize int
	// Level is the gzip and brotli level, 1 to 9.
	Level int
}

var DefaultCompression = CompressionConfig{
	MinSize: 1024,
	Level:   4,
}

// Compress negotiates zstd, brotli or gzip from Accept-Encoding and
// compresses JSON and text bodies above MinSize. zstd wins over brotli and
// brotli over gzip when the client accepts several.
func Compress(cfg CompressionConfig) (func(http.Handler) http.Handler, error) {
	level := min(max(cfg.Level, 1), 9)
	minSize := cfg.MinSize
	if minSize < 0 {
		minSize = DefaultCompression.MinSize
	}

	zstdProvider, err := czstd.New(zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	brotliProvider, err := cbrotli.New(brotli.WriterOptions{Quality: level})
	if err != nil {
		return nil, fmt.Errorf("brotli encoder: %w", err)
	}

	return httpcompression.Adapter(
		httpcompression.MinSize(minSize),
		httpcompression.ContentTypes([]string{"application/json", "text/plain", "text/csv"}, false),
		httpcompression.Prefer(httpcompression.PreferServer),
		httpcompression.Compressor(czstd.Encoding, 2, zstdProvider),
		httpcompression.Compressor(cbrotli.Encoding, 1, brotliProvider),
		httpcompression.GzipCompressionLevel(level),
	)
}
