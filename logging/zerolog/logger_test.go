package zerolog

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/taskline/conveyor/core"
)

func TestLogger_EmitsLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(zerolog.New(&buf))

	log.Info("push unit", core.F("conveyor", "workers"), core.F("size", 3))
	log.Error("due unit dropped", core.F("error", errors.New("already shut down")))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2:\n%s", len(lines), out)
	}

	if !strings.Contains(lines[0], `"level":"info"`) {
		t.Errorf("first line missing info level: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"conveyor":"workers"`) {
		t.Errorf("first line missing string field: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"size":3`) {
		t.Errorf("first line missing int field: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"message":"push unit"`) {
		t.Errorf("first line missing message: %s", lines[0])
	}

	if !strings.Contains(lines[1], `"level":"error"`) {
		t.Errorf("second line missing error level: %s", lines[1])
	}
	if !strings.Contains(lines[1], `"error":"already shut down"`) {
		t.Errorf("second line missing error field: %s", lines[1])
	}
}

func TestLogger_DebugRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(zerolog.New(&buf).Level(zerolog.InfoLevel))

	log.Debug("checking timers", core.F("conveyor", "workers"))

	if buf.Len() != 0 {
		t.Errorf("debug line emitted despite info level: %s", buf.String())
	}
}
