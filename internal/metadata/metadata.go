// Package metadata builds the key/value map attached to every exported page.
//
// Providers run in registration order. Each one that applies to an item
// contributes a map that is shallow-merged into the result, so a later
// provider replaces a top-level key set by an earlier one.
package metadata

import (
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/content"
)

// Provider contributes metadata for the items it applies to.
type Provider interface {
	Name() string
	Applies(it content.Item) bool
	Build(it content.Item) map[string]any
}

// Merge runs every applicable provider and merges the results. The result is
// never nil.
func Merge(providers []Provider, it content.Item) map[string]any {
	out := make(map[string]any)
	for _, p := range providers {
		if !p.Applies(it) {
			continue
		}
		for k, v := range p.Build(it) {
			out[k] = v
		}
	}
	return out
}

// Defaults is the provider set registered for node exports.
func Defaults() []Provider {
	return []Provider{Info{}, Published{}, Transitions{}}
}

// Route is the metadata attached to exports that have no backing item.
func Route(now time.Time) map[string]any {
	return map[string]any{
		"info": map[string]any{
			"author":         "",
			"date_timestamp": now.Unix(),
			"log":            "",
		},
		"published":   true,
		"transitions": []map[string]any{},
	}
}
