package safeio_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formdeck/formdeck/internal/safeio"
)

type recordingWriter struct {
	writes int
	err    error
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.err != nil {
		return 0, w.err
	}
	return len(p), nil
}

func TestWriter(t *testing.T) {
	t.Run("forwards writes and never reports errors", func(t *testing.T) {
		out := &recordingWriter{}
		w := safeio.NewWriter(out)

		n, err := w.Write([]byte("hello"))
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.Equal(t, 1, out.writes)
	})

	t.Run("latches closed on broken pipe", func(t *testing.T) {
		out := &recordingWriter{err: syscall.EPIPE}
		w := safeio.NewWriter(out)

		_, err := w.Write([]byte("first"))
		require.NoError(t, err)
		_, err = w.Write([]byte("second"))
		require.NoError(t, err)

		// The second write was dropped without touching the pipe again.
		require.Equal(t, 1, out.writes)
	})

	t.Run("shutdown drops all further writes", func(t *testing.T) {
		out := &recordingWriter{}
		w := safeio.NewWriter(out)

		w.Shutdown()
		_, err := w.Write([]byte("late"))
		require.NoError(t, err)
		require.Equal(t, 0, out.writes)
	})

	t.Run("other errors do not latch", func(t *testing.T) {
		out := &recordingWriter{err: syscall.ENOSPC}
		w := safeio.NewWriter(out)

		w.Write([]byte("a"))
		w.Write([]byte("b"))
		require.Equal(t, 2, out.writes)
	})
}
