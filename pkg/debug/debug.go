// Package debug provides category-based debug logging for digsite.
//
// Categories select WHAT to debug and are set via DIGSITE_DEBUG or the
// logging.debug config key. The slog level still decides whether debug
// records are written at all, so categories only take effect at
// logging.level=debug.
//
// Usage:
//
//	debug.Log("ratelimit", "check", "rule", rule.Name, "count", v.Count)
//	if debug.Enabled("auth") { /* expensive formatting */ }
//
// Categories: auth, ratelimit, reset, storage, all.
package debug

import (
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Known categories.
const (
	Auth      = "auth"
	RateLimit = "ratelimit"
	Reset     = "reset"
	Storage   = "storage"
)

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("DIGSITE_DEBUG"))
}

// Init sets the enabled categories from config. DIGSITE_DEBUG, when set,
// takes precedence. Call before serving.
func Init(configCategories string) {
	cats := os.Getenv("DIGSITE_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug record tagged with category. It is a no-op when the
// category is off.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
