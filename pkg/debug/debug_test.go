package debug

import (
	"bytes"
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

// withSelection replaces the selected categories for the duration of a test.
func withSelection(t *testing.T, s string) {
	t.Helper()
	orig := selected.Load()
	t.Cleanup(func() { selected.Store(orig) })
	set, _ := ParseCategories(s)
	selected.Store(&set)
}

// captureTrace routes the default logger into a buffer at TRACE level.
func captureTrace(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})))
	return &buf
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        map[Category]bool
		wantUnknown []string
	}{
		{"empty", "", map[Category]bool{}, nil},
		{"single", "channel", map[Category]bool{Channel: true}, nil},
		{"multiple", "channel,hooks", map[Category]bool{Channel: true, Hooks: true}, nil},
		{"all", "all", map[Category]bool{All: true}, nil},
		{"spaces and case", " CHANNEL , Pipeline ", map[Category]bool{Channel: true, Pipeline: true}, nil},
		{"empty segments", "channel,,session", map[Category]bool{Channel: true, Session: true}, nil},
		{"unknown kept apart", "channel,storage,engine", map[Category]bool{Channel: true}, []string{"storage", "engine"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unknown := ParseCategories(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCategories(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !reflect.DeepEqual(unknown, tt.wantUnknown) {
				t.Errorf("unknown = %v, want %v", unknown, tt.wantUnknown)
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	withSelection(t, "channel,hooks")

	for _, c := range []Category{Channel, Hooks} {
		if !Enabled(c) {
			t.Errorf("%s should be enabled", c)
		}
	}
	for _, c := range []Category{Pipeline, Session, All} {
		if Enabled(c) {
			t.Errorf("%s should not be enabled", c)
		}
	}
	if got, want := Selected(), []Category{Hooks, Channel}; !reflect.DeepEqual(got, want) {
		t.Errorf("Selected() = %v, want %v", got, want)
	}
}

func TestEnabledAll(t *testing.T) {
	withSelection(t, "all")

	for _, c := range Known {
		if !Enabled(c) {
			t.Errorf("%s should be enabled via all", c)
		}
	}
	if got := Selected(); !reflect.DeepEqual(got, Known) {
		t.Errorf("Selected() = %v, want every known category", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLogRespectsSelection(t *testing.T) {
	buf := captureTrace(t)
	withSelection(t, "hooks")

	Log(Channel, "hidden message")
	Log(Hooks, "hook message", "hook", "web.pre-init")
	Trace(Hooks, "trace message")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("unselected category was logged: %s", out)
	}
	if !strings.Contains(out, "hook message") || !strings.Contains(out, "debug=hooks") {
		t.Errorf("selected category missing from output: %s", out)
	}
	if !strings.Contains(out, "trace message") {
		t.Errorf("trace message missing at TRACE level: %s", out)
	}
}

func TestFrame(t *testing.T) {
	buf := captureTrace(t)
	withSelection(t, "channel")

	big := `{"event":"chat","data":"` + strings.Repeat("x", 2*maxFrameLog) + `"}`
	Frame("conn-1", "in", []byte(big))

	out := buf.String()
	if !strings.Contains(out, "conn_id=conn-1") || !strings.Contains(out, "direction=in") {
		t.Errorf("frame attributes missing: %s", out)
	}
	if strings.Contains(out, strings.Repeat("x", maxFrameLog+1)) {
		t.Error("frame data should be truncated")
	}

	buf.Reset()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Frame("conn-1", "in", []byte(`{"event":"chat"}`))
	if buf.Len() != 0 {
		t.Errorf("frame logged below TRACE: %s", buf.String())
	}
}

func TestInitEnvOverridesConfig(t *testing.T) {
	withSelection(t, "")
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	t.Setenv(EnvDebug, "hooks,bogus")
	t.Setenv(EnvLogLevel, "DEBUG")
	unknown := Init("session", "ERROR")

	if !Enabled(Hooks) || Enabled(Session) {
		t.Errorf("Selected() = %v, want hooks from environment only", Selected())
	}
	if !reflect.DeepEqual(unknown, []string{"bogus"}) {
		t.Errorf("unknown = %v, want [bogus]", unknown)
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("DEBUG level from environment should be active")
	}
}

func TestInitConfigFallback(t *testing.T) {
	withSelection(t, "")
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	t.Setenv(EnvDebug, "")
	t.Setenv(EnvLogLevel, "")
	Init("transport,channel", "WARN")

	if !Enabled(Transport) || !Enabled(Channel) {
		t.Errorf("Selected() = %v, want transport and channel", Selected())
	}
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("INFO should be disabled at WARN level")
	}
}
