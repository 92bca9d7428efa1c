package dispatch

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
	err    error
}

func (r *recorder) Checkpoint(label string) error {
	r.events = append(r.events, "checkpoint:"+label)
	return r.err
}

func newTestRouter(t *testing.T, rec *recorder) *Router {
	t.Helper()
	table, err := NewTable(
		Command{Name: "echo", Handler: func(params string) (string, error) {
			rec.events = append(rec.events, "echo:"+params)
			return params, nil
		}},
		Command{Name: "translate", Checkpoint: true, Handler: func(params string) (string, error) {
			rec.events = append(rec.events, "translate:"+params)
			return "", nil
		}},
		Command{Name: "fail", Handler: func(string) (string, error) {
			return "", errors.New("boom")
		}},
	)
	require.NoError(t, err)
	return NewRouter(table, rec)
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	noop := func(string) (string, error) { return "", nil }
	_, err := NewTable(Command{Name: "a", Handler: noop}, Command{Name: "a", Handler: noop})
	assert.Error(t, err)

	_, err = NewTable(Command{Name: "b"})
	assert.Error(t, err)

	_, err = NewTable(Command{Handler: noop})
	assert.Error(t, err)
}

func TestTableNames(t *testing.T) {
	rec := &recorder{}
	router := newTestRouter(t, rec)
	assert.Equal(t, []string{"echo", "fail", "translate"}, router.table.Names())
	assert.Equal(t, []string{"translate"}, router.table.CheckpointNames())
	assert.Equal(t, 3, router.table.Len())
}

func TestParsePayload(t *testing.T) {
	reqs, err := ParsePayload([]byte("\n\necho hello world\r\nrename a,b\n"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, Request{Command: "echo", Params: "hello world"}, reqs[0])
	assert.Equal(t, Request{Command: "rename", Params: "a,b"}, reqs[1])

	reqs, err = ParsePayload([]byte("get_scene_name"))
	require.NoError(t, err)
	assert.Equal(t, []Request{{Command: "get_scene_name"}}, reqs)

	_, err = ParsePayload([]byte{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestRouteNormalizesEmptyResponse(t *testing.T) {
	rec := &recorder{}
	router := newTestRouter(t, rec)

	resp, err := router.Route([]byte("echo "))
	require.NoError(t, err)
	assert.Equal(t, "None", resp)

	resp, err = router.Route([]byte("echo payload with spaces"))
	require.NoError(t, err)
	assert.Equal(t, "payload with spaces", resp)
}

func TestRouteOnlyFirstCommand(t *testing.T) {
	rec := &recorder{}
	router := newTestRouter(t, rec)

	resp, err := router.Route([]byte("echo first\necho second"))
	require.NoError(t, err)
	assert.Equal(t, "first", resp)
	assert.Equal(t, []string{"echo:first"}, rec.events)
}

func TestRouteCheckpointBeforeHandler(t *testing.T) {
	rec := &recorder{}
	router := newTestRouter(t, rec)

	_, err := router.Route([]byte(`translate [[1,2,3],["Cube"]]`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"checkpoint:Promethean AI: translate",
		`translate:[[1,2,3],["Cube"]]`,
	}, rec.events)
}

func TestRouteCheckpointFailureSkipsHandler(t *testing.T) {
	rec := &recorder{err: errors.New("undo stack unavailable")}
	router := newTestRouter(t, rec)

	_, err := router.Route([]byte("translate x"))
	require.Error(t, err)
	assert.Equal(t, []string{"checkpoint:Promethean AI: translate"}, rec.events)
}

func TestRouteUnknownCommand(t *testing.T) {
	rec := &recorder{}
	router := newTestRouter(t, rec)

	_, err := router.Route([]byte("does_not_exist 1 2 3"))
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Empty(t, rec.events)
}

func TestRouteHandlerError(t *testing.T) {
	router := newTestRouter(t, &recorder{})
	_, err := router.Route([]byte("fail"))
	assert.EqualError(t, err, "fail: boom")
}

func TestRouteEmptyPayload(t *testing.T) {
	router := newTestRouter(t, &recorder{})
	resp, err := router.Route([]byte("\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "None", resp)
}

func TestRouteWithoutCheckpointer(t *testing.T) {
	table, err := NewTable(Command{Name: "translate", Checkpoint: true, Handler: func(string) (string, error) {
		return "ok", nil
	}})
	require.NoError(t, err)

	resp, err := NewRouter(table, nil).Route([]byte("translate"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 256))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "ü" is two bytes; a cut at 3 would split the second one
	got := truncate("aüü", 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "aü...", got)

	long := strings.Repeat("a", 255) + "日本語"
	got = truncate(long, 256)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 255)+"...", got)
}
