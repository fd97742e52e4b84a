package logutil

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVerbose(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})

	Debugf("hidden %d", 1)
	assert.False(t, Verbose())
	assert.NotContains(t, buf.String(), "hidden")

	SetVerbose(true)
	assert.True(t, Verbose())
	Debugf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}

func TestSetJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)
	t.Cleanup(func() {
		SetJSON(false)
		SetOutput(os.Stderr)
	})

	With("stage", "publish").Info("done")
	assert.Contains(t, buf.String(), `"stage":"publish"`)
	assert.Contains(t, buf.String(), `"msg":"done"`)
}
