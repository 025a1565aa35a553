// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/autobrr/digiprod/internal/models"
)

// SKURenderer fills product type SKU formats. Text outside braces is copied
// as is; every {expression} is evaluated against the product.
//
// Available names: id, uid, title, typeId, price and type (with handle, name,
// uid and id). Example: "{type.handle}-{id}".
type SKURenderer struct {
	programs *ttlcache.Cache[string, *vm.Program]
}

func NewSKURenderer() *SKURenderer {
	return &SKURenderer{
		programs: ttlcache.New(ttlcache.Options[string, *vm.Program]{}.SetDefaultTTL(30 * time.Minute)),
	}
}

func skuEnv(p *models.Product, pt *models.ProductType) map[string]any {
	return map[string]any{
		"id":     p.ID,
		"uid":    p.UID,
		"title":  p.Title,
		"typeId": p.TypeID,
		"price":  p.Price.String(),
		"type": map[string]any{
			"id":     pt.ID,
			"uid":    pt.UID,
			"name":   pt.Name,
			"handle": pt.Handle,
		},
	}
}

// Render returns the SKU for p. An empty format renders an empty SKU.
func (r *SKURenderer) Render(format string, p *models.Product, pt *models.ProductType) (string, error) {
	env := skuEnv(p, pt)

	var b strings.Builder
	rest := format
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated expression in sku format %q", format)
		}

		b.WriteString(rest[:open])
		code := strings.TrimSpace(rest[open+1 : open+closing])
		out, err := r.eval(code, env)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
		rest = rest[open+closing+1:]
	}
	return strings.TrimSpace(b.String()), nil
}

func (r *SKURenderer) eval(code string, env map[string]any) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty expression in sku format")
	}

	program, found := r.programs.Get(code)
	if !found || program == nil {
		var err error
		program, err = expr.Compile(code, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("compile %q: %w", code, err)
		}
		r.programs.Set(code, program, ttlcache.DefaultTTL)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", code, err)
	}
	if out == nil {
		return "", nil
	}
	return fmt.Sprint(out), nil
}
