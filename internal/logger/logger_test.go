package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerbosityFiltersMessages(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetVerbosity(int(Info))

	SetVerbosity(int(Info))
	Debugf("event=hidden")
	Infof("event=shown")

	assert.NotContains(t, buf.String(), "event=hidden")
	assert.Contains(t, buf.String(), "event=shown")

	buf.Reset()
	SetVerbosity(int(Trace))
	Tracef("event=trace_line")
	assert.Contains(t, buf.String(), "event=trace_line")

	buf.Reset()
	SetVerbosity(-3)
	Infof("event=clamped")
	Errorf("event=still_logged")
	assert.NotContains(t, buf.String(), "event=clamped")
	assert.Contains(t, buf.String(), "event=still_logged")
}
