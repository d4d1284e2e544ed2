package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithComponentTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", &buf)
	defer InitWithWriter("info", &bytes.Buffer{})

	WithComponent("session").Info().Msg("started")

	out := buf.String()
	if !strings.Contains(out, `"component":"session"`) {
		t.Fatalf("expected component field in %q", out)
	}
	if !strings.Contains(out, `"message":"started"`) {
		t.Fatalf("expected message in %q", out)
	}
}

func TestParseLevelStrict(t *testing.T) {
	if _, err := ParseLevelStrict("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if l, err := ParseLevelStrict(" Debug "); err != nil || l != zerolog.DebugLevel {
		t.Fatalf("got %v, %v", l, err)
	}
}
