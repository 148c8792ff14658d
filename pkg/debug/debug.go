// Package debug gates verbose logging by area of the web surface.
//
// WEFT_DEBUG (or log.debug) selects the areas, WEFT_LOG_LEVEL (or
// log.level) the slog level. A message logged with Log is only emitted when
// its Category is selected and the level is DEBUG or lower; Trace and
// Frame additionally need TRACE.
//
//	debug.Log(debug.Channel, "frame received", "conn_id", id, "event", name)
package debug

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// Environment variables that override configuration.
const (
	EnvDebug    = "WEFT_DEBUG"
	EnvLogLevel = "WEFT_LOG_LEVEL"
)

// LevelTrace is below slog.LevelDebug. Raw channel frames are only logged
// at this level.
const LevelTrace = slog.LevelDebug - 4

// maxFrameLog caps how much of a raw frame Frame writes.
const maxFrameLog = 512

// Category is one area of the surface that can be debugged on its own.
type Category string

// Categories understood by WEFT_DEBUG.
const (
	Hooks     Category = "hooks"
	Pipeline  Category = "pipeline"
	Transport Category = "transport"
	Channel   Category = "channel"
	Auth      Category = "auth"
	Session   Category = "session"
	Config    Category = "config"

	// All selects every category.
	All Category = "all"
)

// Known lists every category except All.
var Known = []Category{Hooks, Pipeline, Transport, Channel, Auth, Session, Config}

var selected atomic.Pointer[map[Category]bool]

func init() {
	set, _ := ParseCategories(os.Getenv(EnvDebug))
	selected.Store(&set)
}

// Init selects categories and installs the default slog handler. The
// environment wins over the arguments. Names that are not a known category
// are returned so the caller can report them.
func Init(categories, level string) (unknown []string) {
	if env := os.Getenv(EnvDebug); env != "" {
		categories = env
	}
	set, unknown := ParseCategories(categories)
	selected.Store(&set)

	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
	return unknown
}

// ParseCategories parses a comma-separated category list. Matching is case
// insensitive; unknown names are returned separately and not selected.
func ParseCategories(s string) (map[Category]bool, []string) {
	set := make(map[Category]bool)
	var unknown []string
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		c := Category(name)
		if c != All && !slices.Contains(Known, c) {
			unknown = append(unknown, name)
			continue
		}
		set[c] = true
	}
	return set, unknown
}

// Enabled reports whether c is selected.
func Enabled(c Category) bool {
	set := *selected.Load()
	return set[All] || set[c]
}

// Selected returns the selected categories in the order of Known.
func Selected() []Category {
	var out []Category
	for _, c := range Known {
		if Enabled(c) {
			out = append(out, c)
		}
	}
	return out
}

// Log emits a DEBUG message tagged with c when c is selected.
func Log(c Category, msg string, args ...any) {
	if !Enabled(c) {
		return
	}
	slog.Debug(msg, append([]any{"debug", string(c)}, args...)...)
}

// Trace emits a TRACE message tagged with c when c is selected.
func Trace(c Category, msg string, args ...any) {
	if !Enabled(c) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", string(c)}, args...)...)
}

// Frame logs one raw channel frame at TRACE, truncated to a readable size.
// direction is "in" or "out".
func Frame(connID, direction string, data []byte) {
	if !Enabled(Channel) || !slog.Default().Enabled(context.Background(), LevelTrace) {
		return
	}
	slog.Log(context.Background(), LevelTrace, "frame",
		"debug", string(Channel),
		"conn_id", connID,
		"direction", direction,
		"bytes", len(data),
		"data", truncate(string(data), maxFrameLog),
	)
}

// ParseLevel converts a level name to a slog.Level. Unknown names are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
