package pkg

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCombinedWriter_Write(t *testing.T) {
	first := &strings.Builder{}
	first.WriteString("[boot] ")
	second := &strings.Builder{}

	cw := NewCombinedWriter(first, second)
	require.Len(t, cw.Writers, 2)

	lines := []string{"workout added\n", "workout deleted\n"}
	for _, line := range lines {
		n, err := cw.Write([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, 2*len(line), n)
	}

	assert.Equal(t, "[boot] workout added\nworkout deleted\n", first.String())
	assert.Equal(t, "workout added\nworkout deleted\n", second.String())
}

func TestCombinedWriter_Write_WithErrors(t *testing.T) {
	sb := &strings.Builder{}
	cw := NewCombinedWriter(&failingWriter{err: errors.New("disk full")}, sb, &failingWriter{err: errors.New("pipe closed")})

	msg := "a message"
	n, err := cw.Write([]byte(msg))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorContains(t, err, "pipe closed")

	// the healthy writer still got the message
	assert.Equal(t, len(msg), n)
	assert.Equal(t, msg, sb.String())
}

func TestCombinedWriter_Close(t *testing.T) {
	closing := &failingWriter{}
	cw := NewCombinedWriter(&strings.Builder{}, closing)
	require.NoError(t, cw.Close())
	assert.True(t, closing.closed)

	cw = NewCombinedWriter(&failingWriter{closeErr: errors.New("already closed")})
	assert.ErrorContains(t, cw.Close(), "already closed")
}

type failingWriter struct {
	err      error
	closeErr error
	closed   bool
}

func (fw *failingWriter) Write(p []byte) (int, error) {
	if fw.err != nil {
		return 0, fw.err
	}
	return len(p), nil
}

func (fw *failingWriter) Close() error {
	fw.closed = true
	return fw.closeErr
}
