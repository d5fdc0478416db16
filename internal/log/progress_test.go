package log

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestProgressIndicator_LogsEveryNth(t *testing.T) {
	var buf bytes.Buffer
	pi := NewProgressIndicator("simulate", 10, ProgressConfig{Every: 5}).WithLogger(zerolog.New(&buf))

	for i := 1; i <= 10; i++ {
		pi.UpdateWithMessage(i, "2025-01-02")
	}
	pi.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"current":5`)
	assert.Contains(t, lines[1], `"percent":100`)
	assert.Contains(t, lines[2], `"message":"Completed"`)
	assert.Equal(t, 10, pi.Current())
}

func TestProgressIndicator_QuietOnlyFinishes(t *testing.T) {
	var buf bytes.Buffer
	pi := NewProgressIndicator("simulate", 3, QuietProgressConfig()).WithLogger(zerolog.New(&buf))
	pi.Increment()
	pi.Increment()
	pi.Fail("boom")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"reason":"boom"`)
	assert.Contains(t, out, `"items":2`)
}

func TestStepLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStepLogger([]string{"load", "simulate"})
	sl.logger = zerolog.New(&buf)

	sl.StartStep("load")
	sl.StartStep("simulate")
	sl.StartStep("bogus")
	sl.Finish()

	assert.Greater(t, sl.StepDuration("load"), time.Duration(0))
	assert.Greater(t, sl.StepDuration("simulate"), time.Duration(0))
	assert.Contains(t, buf.String(), "Unknown pipeline step")
	assert.Contains(t, buf.String(), "Pipeline completed")
}
