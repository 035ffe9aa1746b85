package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLineReporter(&buf)
	r.Start(2)
	r.Update(1, "ssh.md")
	r.Update(2, "apt.md")
	r.Finish()

	assert.Equal(t, "Ingesting 2 files\n[1/2] ssh.md\n[2/2] apt.md\nIngestion complete\n", buf.String())
}

func TestNewReporterUnderCI(t *testing.T) {
	t.Setenv("CI", "true")
	var buf bytes.Buffer
	_, ok := NewReporter(&buf).(*LineReporter)
	assert.True(t, ok)
}

func TestTerminalReporterWritesToWriter(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	var buf bytes.Buffer
	r := NewReporter(&buf)
	_, ok := r.(*TerminalReporter)
	assert.True(t, ok)

	r.Start(3)
	r.Update(1, "a.md")
	r.Finish()
	assert.NotEmpty(t, buf.String())
}
