package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMulti(NewConsoleLogger(&a, "trace"), NewConsoleLogger(&b, "trace"))

	m.Tracef("t")
	m.Debugf("d")
	m.Infof("i")
	m.Warnf("w")
	m.Errorf("e")

	for _, buf := range []*bytes.Buffer{&a, &b} {
		out := buf.String()
		assert.Contains(t, out, "[TRACE] t")
		assert.Contains(t, out, "[DEBUG] d")
		assert.Contains(t, out, "[INFO] i")
		assert.Contains(t, out, "[WARN] w")
		assert.Contains(t, out, "[ERROR] e")
	}
}

func TestMultiEachLoggerKeepsItsLevel(t *testing.T) {
	var console, file bytes.Buffer
	m := NewMulti(NewConsoleLogger(&console, "warn"), NewConsoleLogger(&file, "trace"))

	m.Infof("quiet on console")

	assert.NotContains(t, console.String(), "quiet on console")
	assert.Contains(t, file.String(), "quiet on console")
}

func TestMultiSkipsNilLoggers(t *testing.T) {
	var buf bytes.Buffer
	m := NewMulti(nil, NewConsoleLogger(&buf, "info"), nil)

	// Must not panic on the nil entries.
	m.Infof("still works")
	assert.Contains(t, buf.String(), "still works")
}

func TestMultiEmpty(t *testing.T) {
	m := NewMulti()
	m.Infof("nowhere to go")
}
