package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/national-talent-atm/data-retrieval/internal/testutil"
	runctx "github.com/national-talent-atm/data-retrieval/pkg/common/context"
	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	testutil.AssertEqual(t, cfg.Level, "info")
	testutil.AssertEqual(t, cfg.Format, "console")
	testutil.AssertEqual(t, cfg.Output, "stderr")
	testutil.AssertNoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"json debug", Config{Level: "debug", Format: "json"}, true},
		{"upper case level", Config{Level: "WARN", Format: "console"}, true},
		{"bad level", Config{Level: "verbose", Format: "json"}, false},
		{"bad format", Config{Level: "info", Format: "xml"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				testutil.AssertNoError(t, err)
				return
			}
			testutil.AssertErrorIs(t, err, errors.ErrInvalidConfiguration)
		})
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieve.log")
	l, closer, err := New(Config{Level: "info", Format: "json", Output: path})
	testutil.AssertNoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Str("id", "57194").Msg("fetched")
	testutil.AssertNoError(t, closer.Close())

	data, err := os.ReadFile(path)
	testutil.AssertNoError(t, err)
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	if !strings.Contains(out, `"id":"57194"`) || !strings.Contains(out, `"message":"fetched"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	testutil.AssertErrorIs(t, err, errors.ErrInvalidConfiguration)
}

func TestFromContextAddsRunID(t *testing.T) {
	var buf strings.Builder
	base := zerolog.New(&buf)
	ctx := runctx.WithRunID(base.WithContext(context.Background()), "run-42")

	l := FromContext(ctx)
	WithComponent(l, "generator").Info().Msg("started")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-42"`) || !strings.Contains(out, `"component":"generator"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}
