package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferKeepsNewest(t *testing.T) {
	lb := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		lb.Add("robot-0", "", msg)
	}

	all := lb.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Message)
	assert.Equal(t, "d", all[2].Message)

	recent := lb.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Message)

	assert.Len(t, lb.GetRecent(10), 3)

	lb.Clear()
	assert.Empty(t, lb.GetAll())
}

func TestLogBufferWriterAttributesLines(t *testing.T) {
	lb := NewLogBuffer(10)
	w := NewLogBufferWriter(lb)

	_, err := w.Write([]byte("[robot-2] [WARN] registry reports robot disconnected\n[registry] Registered robot (2, rex)\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("plain line without source\n"))
	require.NoError(t, err)

	all := lb.GetAll()
	require.Len(t, all, 3)

	assert.Equal(t, "robot-2", all[0].Source)
	assert.Equal(t, "WARN", all[0].Level)
	assert.Equal(t, "registry reports robot disconnected", all[0].Message)

	assert.Equal(t, "registry", all[1].Source)
	assert.Equal(t, "", all[1].Level)

	assert.Equal(t, "system", all[2].Source)
	assert.Len(t, lb.BySource("robot-2"), 1)
}

func TestLogBufferWriterJoinsPartialWrites(t *testing.T) {
	lb := NewLogBuffer(10)
	w := NewLogBufferWriter(lb)

	_, _ = w.Write([]byte("[broker] half"))
	assert.Empty(t, lb.GetAll())

	_, _ = w.Write([]byte(" a line\n"))
	all := lb.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "broker", all[0].Source)
	assert.Equal(t, "half a line", all[0].Message)
}

func TestScopeWritesThroughGlobalLogger(t *testing.T) {
	Init("", false)
	lb := NewLogBuffer(10)
	w := NewLogBufferWriter(lb)
	require.NoError(t, AddOutput(w))
	defer RemoveOutput(w)

	Named("robot-7").Infof("elected as captain (%d)", 7)

	entries := lb.BySource("robot-7")
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "elected as captain (7)", entries[0].Message)
}
