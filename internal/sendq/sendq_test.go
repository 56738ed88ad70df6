package sendq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDrainOrder(t *testing.T) {
	q := NewQueue(1024)
	require.NoError(t, q.Enqueue("NORMAL ONE\r\n", Normal))
	require.NoError(t, q.Enqueue("HIGH ONE\r\n", High))
	require.NoError(t, q.Enqueue("NORMAL TWO\r\n", Normal))

	lines := q.Drain()
	require.Len(t, lines, 3)
	require.Equal(t, "HIGH ONE\r\n", lines[0], "expected high priority line first")
	require.Zero(t, q.Bytes())
}

func TestEnqueueExceedsCap(t *testing.T) {
	q := NewQueue(10)
	err := q.Enqueue("0123456789ABCDEF\r\n", Normal)
	require.Error(t, err)
	require.IsType(t, &ErrSendQExceeded{}, err)
}

type fakeFormatter struct{}

func (fakeFormatter) FormatClient(s string) string  { return "C<" + s + ">" }
func (fakeFormatter) FormatChannel(s string) string { return "H<" + s + ">" }

func TestFormatDirectives(t *testing.T) {
	f := fakeFormatter{}
	got := Format(f, "%C JOIN %H at %Tu", "AAA", "#test", int64(1000))
	require.Equal(t, "C<AAA> JOIN H<#test> at 1000", got)
}

func TestFormatPlainDirectives(t *testing.T) {
	f := fakeFormatter{}
	got := Format(f, "%s scored %d%%", "alice", 42)
	require.Equal(t, "alice scored 42%", got)
}
