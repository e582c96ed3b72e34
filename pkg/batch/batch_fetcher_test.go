package batch

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/Sternrassler/tile-fetch/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tileCoord struct {
	Col, Row int
}

func tileURL(c tileCoord) string {
	return fmt.Sprintf("https://tiles.example.com/14/%d/%d.pbf", c.Col, c.Row)
}

func ok(body string, after int) testutil.FakeResponse {
	return testutil.FakeResponse{StatusCode: 200, Body: []byte(body), CompleteAfter: after}
}

func TestFetchAll_AllSucceed(t *testing.T) {
	r := require.New(t)

	ft := testutil.NewFakeTransport()
	ft.Respond("u1", ok("a", 1))
	ft.Respond("u2", ok("b", 2))
	ft.Respond("u3", ok("c", 1))

	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[int]{
		{Label: 1, URL: "u1"},
		{Label: 2, URL: "u2"},
		{Label: 3, URL: "u3"},
	}, nil, nil)

	r.NoError(err)
	r.Equal(map[int][]byte{1: []byte("a"), 2: []byte("b"), 3: []byte("c")}, got)
}

func TestFetchAll_FailedRequestOmittedAndLogged(t *testing.T) {
	r := require.New(t)

	ft := testutil.NewFakeTransport()
	ft.Respond("https://tiles.example.com/missing.pbf?key=secret", testutil.FakeResponse{StatusCode: 404, CompleteAfter: 1})
	ft.Respond("https://tiles.example.com/ok.pbf", ok("ok", 1))

	buf := &bytes.Buffer{}
	bf := NewBatchFetcher[string](ft, zerolog.New(buf))
	got, err := bf.FetchAll(context.Background(), []Request[string]{
		{Label: "missing", URL: "https://tiles.example.com/missing.pbf?key=secret"},
		{Label: "ok", URL: "https://tiles.example.com/ok.pbf"},
	}, nil, nil)

	r.NoError(err)
	r.Equal(map[string][]byte{"ok": []byte("ok")}, got)

	logs := buf.String()
	assert.Contains(t, logs, "Error during network request")
	assert.Contains(t, logs, `"status":404`)
	assert.Contains(t, logs, `"label":"missing"`)
	assert.NotContains(t, logs, "secret")
}

func TestFetchAll_TransportFailureOmitted(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond("u1", ok("a", 0))
	// "u2" is unscripted: the fake refuses the connection.

	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[int]{
		{Label: 1, URL: "u1"},
		{Label: 2, URL: "u2"},
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, map[int][]byte{1: []byte("a")}, got)
}

func TestFetchAll_DrainsEachHandleOnce(t *testing.T) {
	r := require.New(t)

	ft := testutil.NewFakeTransport()
	ft.Respond("fast1", ok("1", 1))
	ft.Respond("fast2", ok("2", 1))
	ft.Respond("slow", ok("3", 6))

	bf := NewBatchFetcher[string](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[string]{
		{Label: "fast1", URL: "fast1"},
		{Label: "fast2", URL: "fast2"},
		{Label: "slow", URL: "slow"},
	}, nil, nil)

	r.NoError(err)
	r.Len(got, 3)
	r.GreaterOrEqual(ft.Ticks(), 6, "fast handles must have been observed complete across several iterations")

	for _, h := range ft.Handles() {
		assert.Equal(t, 1, h.Reads(), "reads for %s", h.URL())
		assert.Equal(t, 1, h.Releases(), "releases for %s", h.URL())
		assert.Equal(t, 0, h.Aborts(), "aborts for %s", h.URL())
	}
}

func TestFetchAll_ProgressStrictlyIncreasing(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond("a", ok("a", 1))
	ft.Respond("b", ok("b", 1))
	ft.Respond("c", ok("c", 3))
	ft.Respond("d", testutil.FakeResponse{StatusCode: 500, CompleteAfter: 5})

	var progress []int
	bf := NewBatchFetcher[string](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[string]{
		{Label: "a", URL: "a"},
		{Label: "b", URL: "b"},
		{Label: "c", URL: "c"},
		{Label: "d", URL: "d"},
	}, func(completed int) {
		progress = append(progress, completed)
	}, nil)

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []int{2, 3, 4}, progress)
}

func TestFetchAll_ResultSizeMatchesSuccesses(t *testing.T) {
	ft := testutil.NewFakeTransport()

	var requests []Request[tileCoord]
	wantOK := 0
	for col := 0; col < 5; col++ {
		for row := 0; row < 4; row++ {
			c := tileCoord{Col: col, Row: row}
			requests = append(requests, Request[tileCoord]{Label: c, URL: tileURL(c)})
			if (col+row)%3 == 0 {
				ft.Respond(tileURL(c), testutil.FakeResponse{StatusCode: 500, CompleteAfter: col})
				continue
			}
			ft.Respond(tileURL(c), ok(tileURL(c), row))
			wantOK++
		}
	}

	var last int
	bf := NewBatchFetcher[tileCoord](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), requests, func(completed int) {
		assert.Greater(t, completed, last)
		last = completed
	}, nil)

	require.NoError(t, err)
	assert.Len(t, got, wantOK)
	assert.Equal(t, len(requests), last)
	for c, body := range got {
		assert.NotEqual(t, 0, (c.Col+c.Row)%3, "failed tile %v present", c)
		assert.Equal(t, tileURL(c), string(body))
	}
}

func TestFetchAll_CancelledAfterTwo(t *testing.T) {
	r := require.New(t)

	ft := testutil.NewFakeTransport()
	ft.Respond("u1", ok("1", 1))
	ft.Respond("u2", ok("2", 1))
	for _, u := range []string{"u3", "u4", "u5"} {
		ft.Respond(u, testutil.FakeResponse{StatusCode: 200, CompleteAfter: -1})
	}

	completed := 0
	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[int]{
		{Label: 1, URL: "u1"},
		{Label: 2, URL: "u2"},
		{Label: 3, URL: "u3"},
		{Label: 4, URL: "u4"},
		{Label: 5, URL: "u5"},
	}, func(n int) {
		completed = n
	}, func() bool {
		return completed >= 2
	})

	r.NoError(err)
	r.NotNil(got)
	r.Empty(got)

	for _, u := range []string{"u1", "u2"} {
		assert.Equal(t, 0, ft.HandleFor(u).Aborts(), "completed handle %s aborted", u)
	}
	for _, u := range []string{"u3", "u4", "u5"} {
		h := ft.HandleFor(u)
		assert.Equal(t, 1, h.Aborts(), "handle %s not aborted", u)
		assert.Equal(t, 1, h.Releases(), "handle %s not released", u)
	}
}

func TestFetchAll_CancelledWithCompletedUndrainedHandle(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond("done", ok("x", 1))
	ft.Respond("hung", testutil.FakeResponse{CompleteAfter: -1})

	bf := NewBatchFetcher[string](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[string]{
		{Label: "done", URL: "done"},
		{Label: "hung", URL: "hung"},
	}, nil, func() bool {
		return ft.Ticks() >= 1
	})

	require.NoError(t, err)
	assert.Empty(t, got)

	done := ft.HandleFor("done")
	assert.Equal(t, 0, done.Aborts())
	assert.Equal(t, 0, done.Reads())
	assert.Equal(t, 1, done.Releases())
	assert.Equal(t, 1, ft.HandleFor("hung").Aborts())
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond("u1", ok("1", 3))
	ft.Respond("u2", ok("2", 3))

	ctx, cancel := context.WithCancel(context.Background())
	ft.OnProcessEvents = func(tick int) {
		if tick == 1 {
			cancel()
		}
	}

	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	got, err := bf.FetchAll(ctx, []Request[int]{
		{Label: 1, URL: "u1"},
		{Label: 2, URL: "u2"},
	}, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, got)
	for _, h := range ft.Handles() {
		assert.Equal(t, 1, h.Aborts())
	}
}

func TestFetchAll_DuplicateLabel(t *testing.T) {
	ft := testutil.NewFakeTransport()

	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), []Request[int]{
		{Label: 1, URL: "u1"},
		{Label: 1, URL: "u2"},
	}, nil, nil)

	require.ErrorIs(t, err, ErrDuplicateLabel)
	assert.Nil(t, got)
	assert.Empty(t, ft.Handles(), "no request may be issued for an invalid batch")
}

func TestFetchAll_Empty(t *testing.T) {
	ft := testutil.NewFakeTransport()

	called := false
	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	got, err := bf.FetchAll(context.Background(), nil, func(int) { called = true }, nil)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, called)
	assert.Equal(t, 0, ft.Ticks())
}

func TestNewBatchFetcher_Panic(t *testing.T) {
	assert.Panics(t, func() {
		NewBatchFetcher[int](nil, zerolog.Nop())
	})
}

func TestFetch_CompletedBatchNotCancelledByLateContext(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond("u1", ok("1", 0))
	ft.Respond("u2", ok("2", 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bf := NewBatchFetcher[int](ft, zerolog.Nop())
	out, err := bf.Fetch(ctx, []Request[int]{
		{Label: 1, URL: "u1"},
		{Label: 2, URL: "u2"},
	}, func(completed int) {
		if completed == 2 {
			cancel()
		}
	}, nil)

	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.False(t, out.Cancelled)
	assert.Equal(t, map[int][]byte{1: []byte("1"), 2: []byte("2")}, out.Results)
}

func TestFetch_CancelledOutcome(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond("hung", testutil.FakeResponse{CompleteAfter: -1})

	bf := NewBatchFetcher[string](ft, zerolog.Nop())
	out, err := bf.Fetch(context.Background(), []Request[string]{
		{Label: "hung", URL: "hung"},
	}, nil, func() bool { return ft.Ticks() >= 2 })

	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}
