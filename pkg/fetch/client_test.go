package fetch

import (
	"bytes"
	"context"
	"testing"

	"github.com/Sternrassler/tile-fetch/internal/testutil"
	"github.com/Sternrassler/tile-fetch/pkg/batch"
	"github.com/Sternrassler/tile-fetch/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://tiles.example.com"

func newTestClient(t *testing.T, ft *testutil.FakeTransport, maxRedirects int) *Client {
	t.Helper()
	cfg := DefaultConfig(ft)
	cfg.MaxRedirects = maxRedirects
	c, err := New(cfg)
	require.NoError(t, err)
	c.SetLogger(zerolog.Nop())
	c.SetBatchLogger(zerolog.Nop())
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(testutil.NewFakeTransport()),
		},
		{
			name:        "nil transport",
			config:      Config{MaxRedirects: 10},
			expectError: true,
			errorMsg:    "transport is required",
		},
		{
			name:        "negative max redirects",
			config:      Config{Transport: testutil.NewFakeTransport(), MaxRedirects: -1},
			expectError: true,
			errorMsg:    "max_redirects must be >= 0 (got -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, tt.errorMsg, err.Error())
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestCheckExists_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		resp    testutil.FakeResponse
		url     string
		wantOK  bool
		wantErr string
	}{
		{
			name:   "ok",
			resp:   testutil.FakeResponse{StatusCode: 200},
			url:    base + "/ok.pbf",
			wantOK: true,
		},
		{
			name:    "not found",
			resp:    testutil.FakeResponse{StatusCode: 404},
			url:     base + "/missing.pbf",
			wantErr: "Loading error: Resource not found.\n\nURL incorrect?",
		},
		{
			name:    "moved temporarily",
			resp:    testutil.FakeResponse{StatusCode: 302, Headers: map[string]string{"Location": base + "/login"}},
			url:     base + "/tiles.json",
			wantErr: "Loading error: Moved Temporarily.\n\nURL incorrect? Missing or incorrect API key?",
		},
		{
			name:    "server error with transport error text",
			resp:    testutil.FakeResponse{StatusCode: 500},
			url:     base + "/broken.pbf",
			wantErr: "Loading error: server replied: Internal Server Error\n\nURL incorrect? (HTTP Status 500)",
		},
		{
			name:    "other status without error text",
			resp:    testutil.FakeResponse{StatusCode: 303},
			url:     base + "/other.pbf?key=abc",
			wantErr: "Something went wrong with 'https://tiles.example.com/other.pbf?key=xxx'. HTTP Status is 303",
		},
		{
			name:    "no status",
			resp:    testutil.FakeResponse{Err: testutil.ErrConnectionRefused},
			url:     base + "/down.pbf",
			wantErr: "connection refused",
		},
		{
			name:    "permanent redirect to itself",
			resp:    testutil.FakeResponse{StatusCode: 301, Headers: map[string]string{"Location": base + "/self.pbf"}},
			url:     base + "/self.pbf",
			wantErr: "Something went wrong with 'https://tiles.example.com/self.pbf'. HTTP Status is 301",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := testutil.NewFakeTransport()
			ft.Respond(tt.url, tt.resp)
			c := newTestClient(t, ft, 10)

			got := c.CheckExists(context.Background(), tt.url)

			assert.Equal(t, ExistsResult{Success: tt.wantOK, Error: tt.wantErr, FinalURL: tt.url}, got)
			require.Len(t, ft.Handles(), 1)
			assert.True(t, ft.Handles()[0].HeadOnly, "existence check must not request a body")
		})
	}
}

func TestCheckExists_FollowsPermanentRedirect(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond(base+"/old.pbf", testutil.FakeResponse{
		StatusCode:    301,
		Headers:       map[string]string{"Location": base + "/new.pbf"},
		CompleteAfter: 1,
	})
	ft.Respond(base+"/new.pbf", testutil.FakeResponse{StatusCode: 200, CompleteAfter: 2})
	c := newTestClient(t, ft, 10)

	got := c.CheckExists(context.Background(), base+"/old.pbf")

	assert.Equal(t, ExistsResult{Success: true, FinalURL: base + "/new.pbf"}, got)
	for _, h := range ft.Handles() {
		assert.Equal(t, 1, h.Releases())
	}
}

func TestCheckExists_RelativeLocation(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond(base+"/v1/style.json", testutil.FakeResponse{
		StatusCode: 301,
		Headers:    map[string]string{"Location": "/v2/style.json"},
	})
	ft.Respond(base+"/v2/style.json", testutil.FakeResponse{StatusCode: 404})
	c := newTestClient(t, ft, 10)

	got := c.CheckExists(context.Background(), base+"/v1/style.json")

	assert.Equal(t, ExistsResult{Error: MsgNotFound, FinalURL: base + "/v2/style.json"}, got)
}

func TestCheckExists_RedirectLoopBounded(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond(base+"/a", testutil.FakeResponse{StatusCode: 301, Headers: map[string]string{"Location": base + "/b"}})
	ft.Respond(base+"/b", testutil.FakeResponse{StatusCode: 301, Headers: map[string]string{"Location": base + "/a"}})
	c := newTestClient(t, ft, 3)
	buf := &bytes.Buffer{}
	c.SetLogger(zerolog.New(buf))

	got := c.CheckExists(context.Background(), base+"/a")

	assert.Equal(t, ExistsResult{Error: MsgTooManyRedirects, FinalURL: base + "/b"}, got)
	assert.Len(t, ft.Handles(), 4)
	assert.Contains(t, buf.String(), `"message":"URL check"`)
	assert.Contains(t, buf.String(), `"status":301`)
	assert.Contains(t, buf.String(), `"message":"Too many redirects"`)
}

func TestCheckExists_LogsStatus(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond(base+"/t.pbf?key=secret", testutil.FakeResponse{StatusCode: 404})
	c := newTestClient(t, ft, 10)

	buf := &bytes.Buffer{}
	c.SetLogger(zerolog.New(buf))
	c.CheckExists(context.Background(), base+"/t.pbf?key=secret")

	assert.Contains(t, buf.String(), `"message":"URL check"`)
	assert.Contains(t, buf.String(), `"status":404`)
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.NotContains(t, buf.String(), "secret")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		resp        testutil.FakeResponse
		wantStatus  int
		wantContent string
		wantWarn    bool
	}{
		{
			name:        "ok",
			resp:        testutil.FakeResponse{StatusCode: 200, Body: []byte(`{"tiles":[]}`), CompleteAfter: 2},
			wantStatus:  200,
			wantContent: `{"tiles":[]}`,
		},
		{
			name:        "http error",
			resp:        testutil.FakeResponse{StatusCode: 404, Body: []byte("nope")},
			wantStatus:  404,
			wantContent: "Request failed: HTTP status 404",
			wantWarn:    true,
		},
		{
			name:        "non-200 success status",
			resp:        testutil.FakeResponse{StatusCode: 204},
			wantStatus:  204,
			wantContent: "Request failed: HTTP status 204",
			wantWarn:    true,
		},
		{
			name:        "no status",
			resp:        testutil.FakeResponse{Err: testutil.ErrConnectionRefused},
			wantStatus:  0,
			wantContent: "Request failed: connection refused",
			wantWarn:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := testutil.NewFakeTransport()
			ft.Respond(base+"/tiles.json", tt.resp)
			c := newTestClient(t, ft, 10)
			buf := &bytes.Buffer{}
			c.SetLogger(zerolog.New(buf))

			got := c.Load(context.Background(), base+"/tiles.json")

			assert.Equal(t, LoadResult{StatusCode: tt.wantStatus, Content: tt.wantContent}, got)
			assert.False(t, ft.Handles()[0].HeadOnly)
			assert.Equal(t, 1, ft.Handles()[0].Releases())
			if tt.wantWarn {
				assert.Contains(t, buf.String(), `"level":"warn"`)
				assert.Contains(t, buf.String(), tt.wantContent)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestFetchAll_UsesBatchFetcherComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logging.Setup(logging.Config{Level: logging.LevelInfo, Output: buf})

	ft := testutil.NewFakeTransport()
	ft.Respond(base+"/0/0/0.pbf", testutil.FakeResponse{StatusCode: 200, Body: []byte("t")})
	c, err := New(DefaultConfig(ft))
	require.NoError(t, err)

	got, err := FetchAll(context.Background(), c, []batch.Request[string]{
		{Label: "root", URL: base + "/0/0/0.pbf"},
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"root": []byte("t")}, got)
	assert.Contains(t, buf.String(), `"component":"batch-fetcher"`)
	assert.Contains(t, buf.String(), `"message":"Starting batch fetch"`)
	assert.NotContains(t, buf.String(), `"component":"fetch-client"`)
}

func TestFetch_ReportsCancellation(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.Respond(base+"/hung.pbf", testutil.FakeResponse{CompleteAfter: -1})
	c := newTestClient(t, ft, 10)

	out, err := Fetch(context.Background(), c, []batch.Request[string]{
		{Label: "hung", URL: base + "/hung.pbf"},
	}, nil, func() bool { return ft.Ticks() >= 1 })

	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Empty(t, out.Results)
}
