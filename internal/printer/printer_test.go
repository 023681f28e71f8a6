package printer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Successf("staged %s", "a.go")
	p.Warnf("stale")
	p.Errorf("denied")
	p.Infof("pending %d", 2)
	p.Printf("plain")

	assert.Equal(t, "✔ staged a.go\n! stale\n✘ denied\n• pending 2\nplain\n", buf.String())
}

func TestPrinter_Lines(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Lines("+ ", []string{"a", "b"})
	assert.Equal(t, "+ a\n+ b\n", buf.String())
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	assert.Same(t, p, Ctx(NewContext(context.Background(), p)))
	assert.NotNil(t, Ctx(context.Background()))
}
