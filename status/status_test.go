package status

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/fleet/registry"
)

func do(t *testing.T, h http.Handler, method, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestStatusEndpoints(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	h := NewHandler(reg)

	tests := []struct {
		name     string
		setup    func()
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "empty count", method: http.MethodGet, path: "/status", wantCode: 200, wantBody: "0"},
		{name: "no captain", method: http.MethodGet, path: "/captain", wantCode: 200, wantBody: "None"},
		{name: "health", method: http.MethodGet, path: "/health", wantCode: 200, wantBody: "OK"},
		{name: "elect on empty fleet", method: http.MethodPost, path: "/electCaptain", wantCode: 400, wantBody: "no members available"},
		{
			name: "count after joins",
			setup: func() {
				reg.Register("r0")
				reg.Register("r1")
			},
			method: http.MethodGet, path: "/status", wantCode: 200, wantBody: "2",
		},
		{
			name: "captain",
			setup: func() {
				_, err := reg.ReportCaptain(context.Background(), registry.CaptainClaim{ID: 1, Name: "r1"})
				require.NoError(t, err)
			},
			method: http.MethodGet, path: "/captain", wantCode: 200, wantBody: "id=1 name=r1",
		},
		{name: "elect", method: http.MethodPost, path: "/electCaptain", wantCode: 200, wantBody: "New captain election started"},
		{name: "wrong method", method: http.MethodGet, path: "/electCaptain", wantCode: 405, wantBody: "Unsupported Method"},
		{name: "post to reader", method: http.MethodPost, path: "/status", wantCode: 405, wantBody: "Unsupported Method"},
		{name: "unknown path", method: http.MethodGet, path: "/robots", wantCode: 404, wantBody: "Invalid Endpoint"},
	}

	// cases build on each other
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			code, body := do(t, h, tt.method, tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, body)
		})
	}

	assert.Equal(t, uint64(1), reg.Epoch())
}

type brokenFleet struct{}

func (brokenFleet) Count() int                        { return 0 }
func (brokenFleet) GetCaptain() (registry.Node, bool) { return registry.Node{}, false }
func (brokenFleet) RequestElection() (uint64, error)  { return 0, errors.New("boom") }

func TestElectUnexpectedError(t *testing.T) {
	code, body := do(t, NewHandler(brokenFleet{}), http.MethodPost, "/electCaptain")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Error: boom", body)
}

func TestServerShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", brokenFleet{})
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
