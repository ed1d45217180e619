package jsonstream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seantiz/partload/internal/loader"
)

type item struct {
	Name string `json:"name"`
}

func TestSinkWritesChunks(t *testing.T) {
	var s Sink[item]
	u := s.Utilizer()

	var first bytes.Buffer
	require.NoError(t, s.Begin(&first))
	u(item{"a"})
	u(item{"b"})
	require.NoError(t, s.End(loader.Partial))
	require.Equal(t, "[{\"name\":\"a\"},{\"name\":\"b\"}]\n", first.String())

	var second bytes.Buffer
	require.NoError(t, s.Begin(&second))
	u(item{"c"})
	require.Equal(t, 1, s.Written())
	require.NoError(t, s.End(loader.Full))
	require.Equal(t, "[{\"name\":\"c\"},null]\n", second.String())
}

func TestSinkEmptyFull(t *testing.T) {
	var s Sink[int]
	var buf bytes.Buffer
	require.NoError(t, s.Begin(&buf))
	require.NoError(t, s.End(loader.Full))
	require.Equal(t, "[null]\n", buf.String())
}

func TestSinkPassesThroughWithoutDestination(t *testing.T) {
	var s Sink[int]
	require.Equal(t, 7, s.Utilizer()(7))
	require.ErrorIs(t, s.End(loader.Full), ErrNotStarted)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestSinkReportsWriteError(t *testing.T) {
	var s Sink[int]
	require.Error(t, s.Begin(failingWriter{}))
	s.Utilizer()(1)
	err := s.End(loader.Partial)
	require.ErrorContains(t, err, "broken pipe")
}

func TestReaderFull(t *testing.T) {
	items, full, err := ReadAll[item](strings.NewReader(`[{"name":"a"},{"name":"b"},null]`))
	require.NoError(t, err)
	require.True(t, full)
	require.Equal(t, []item{{"a"}, {"b"}}, items)
}

func TestReaderPartial(t *testing.T) {
	items, full, err := ReadAll[int](strings.NewReader("[1,2,3]\n"))
	require.NoError(t, err)
	require.False(t, full)
	require.Equal(t, []int{1, 2, 3}, items)
}

func TestReaderRejectsBadInput(t *testing.T) {
	for _, in := range []string{`{"a":1}`, `[1,null,2]`, `[1,`, `["x"]`} {
		_, _, err := ReadAll[int](strings.NewReader(in))
		require.Error(t, err, "input %q", in)
	}
}

func TestSinkThroughLoader(t *testing.T) {
	l := loader.NewChunkLoader[int]()
	t.Cleanup(l.Reset)

	var s Sink[int]
	src := loader.FromSlice([]int{1, 2, 3, 4, 5})
	require.NoError(t, l.Configure(context.Background(), src, 0, 3))
	require.NoError(t, l.AddUtilizer(s.Utilizer()))

	var got []int
	for {
		var buf bytes.Buffer
		require.NoError(t, s.Begin(&buf))
		st, err := l.Resume()
		require.NoError(t, err)
		require.NoError(t, s.End(st))

		items, full, err := ReadAll[int](&buf)
		require.NoError(t, err)
		got = append(got, items...)
		if full {
			require.Equal(t, loader.Full, st)
			break
		}
		require.Equal(t, loader.Partial, st)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}
