package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ca-srg/halalfinder/internal/metrics"
	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Run(ctx context.Context, loc types.Coordinate) ([]types.ResultEntry, error) {
	args := m.Called(ctx, loc)
	results, _ := args.Get(0).([]types.ResultEntry)
	return results, args.Error(1)
}

func (m *mockSearcher) RunFromAddress(ctx context.Context, text string) ([]types.ResultEntry, *types.GeocodeResult, error) {
	args := m.Called(ctx, text)
	results, _ := args.Get(0).([]types.ResultEntry)
	match, _ := args.Get(1).(*types.GeocodeResult)
	return results, match, args.Error(2)
}

func (m *mockSearcher) Describe(ctx context.Context, loc types.Coordinate) string {
	return m.Called(ctx, loc).String(0)
}

type stubLocator struct {
	at  types.Coordinate
	err error
}

func (s stubLocator) Locate(context.Context) (types.Coordinate, error) {
	return s.at, s.err
}

type prefixEnricher struct{}

func (prefixEnricher) Enrich(_ context.Context, entries []types.ResultEntry) []types.ResultEntry {
	out := append([]types.ResultEntry(nil), entries...)
	for i := range out {
		out[i].Phone = "555-" + out[i].ID
	}
	return out
}

var nyc = types.Coordinate{Lat: 40.7128, Lng: -74.006}

func newTestServer(t *testing.T, searcher Searcher, deps Dependencies) *Server {
	t.Helper()

	store, err := metrics.NewStoreWithPath(t.TempDir() + "/stats.db")
	require.NoError(t, err)
	metrics.SetStoreForTesting(store)
	t.Cleanup(func() {
		metrics.ResetForTesting()
		_ = store.Close()
	})

	deps.Searcher = searcher
	deps.DefaultLocation = nyc
	server, err := NewServer(DefaultServerConfig(), deps, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return server
}

func post(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearchByAddress(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("RunFromAddress", mock.Anything, "New York").Return(sampleResults(3),
		&types.GeocodeResult{FormattedAddress: "New York, NY, USA", Location: nyc}, nil)

	server := newTestServer(t, searcher, Dependencies{Enricher: prefixEnricher{}})
	rec := post(t, server.Handler(), "/api/search", `{"address":" New York ","limit":2,"include_phone":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "New York", body.Query)
	assert.Equal(t, "New York, NY, USA", body.ResolvedAddress)
	assert.Equal(t, nyc, body.Origin)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "555-p0", body.Results[0].Phone)
	assert.NotEmpty(t, body.Token)

	assert.Equal(t, StatusReady, server.GetState().GetStatus())
	assert.Len(t, server.GetState().Snapshot().Results, 3)
	assert.Equal(t, int64(1), metrics.GetTotalForMode(metrics.ModeAPI))
}

func TestHandleSearchByCoordinate(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		return types.RunTokenFrom(ctx) != ""
	}), nyc).Return(sampleResults(1), nil)

	server := newTestServer(t, searcher, Dependencies{})
	rec := post(t, server.Handler(), "/api/search", `{"lat":40.7128,"lng":-74.006}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"query":"40.712800,-74.006000"`)
	searcher.AssertExpectations(t)
}

func TestHandleSearchErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setup    func(m *mockSearcher)
		wantCode int
		wantType types.ErrorType
		wantMsg  string
	}{
		{
			name:     "empty request",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
			wantType: types.ErrorTypeValidation,
			wantMsg:  types.MessageInvalidSearchRequest,
		},
		{
			name:     "malformed json",
			body:     `{"address":`,
			wantCode: http.StatusBadRequest,
			wantType: types.ErrorTypeValidation,
		},
		{
			name:     "half a coordinate",
			body:     `{"lat":40.7}`,
			wantCode: http.StatusBadRequest,
			wantType: types.ErrorTypeValidation,
		},
		{
			name: "location not found",
			body: `{"address":"Atlantis"}`,
			setup: func(m *mockSearcher) {
				m.On("RunFromAddress", mock.Anything, "Atlantis").Return(nil, nil,
					types.NewSearchError(types.ErrorTypeLocationNotFound, types.MessageLocationNotFound, nil))
			},
			wantCode: http.StatusNotFound,
			wantType: types.ErrorTypeLocationNotFound,
			wantMsg:  "Location not found",
		},
		{
			name: "no results",
			body: `{"lat":1,"lng":2}`,
			setup: func(m *mockSearcher) {
				m.On("Run", mock.Anything, types.Coordinate{Lat: 1, Lng: 2}).Return(nil,
					types.NewSearchError(types.ErrorTypeNoResults, types.MessageNoResults, nil))
			},
			wantCode: http.StatusNotFound,
			wantType: types.ErrorTypeNoResults,
			wantMsg:  "No restaurants found",
		},
		{
			name: "unexpected failure",
			body: `{"lat":1,"lng":2}`,
			setup: func(m *mockSearcher) {
				m.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
			},
			wantCode: http.StatusBadGateway,
			wantType: types.ErrorTypeUnknown,
			wantMsg:  types.MessageProviderExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{}
			if tt.setup != nil {
				tt.setup(searcher)
			}
			server := newTestServer(t, searcher, Dependencies{})
			rec := post(t, server.Handler(), "/api/search", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body.Type)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Error)
			}
			assert.NotEqual(t, StatusSearching, server.GetState().GetStatus(), "controller returns to an interactive state")
		})
	}
}

func TestHandleSearchSuperseded(t *testing.T) {
	searcher := &mockSearcher{}
	server := newTestServer(t, searcher, Dependencies{})

	// a second search starts while the first one is in flight
	searcher.On("Run", mock.Anything, types.Coordinate{Lat: 1, Lng: 1}).Run(func(args mock.Arguments) {
		post(t, server.Handler(), "/api/search", `{"lat":2,"lng":2}`)
	}).Return(sampleResults(4), nil)
	searcher.On("Run", mock.Anything, types.Coordinate{Lat: 2, Lng: 2}).Return(sampleResults(1), nil)

	rec := post(t, server.Handler(), "/api/search", `{"lat":1,"lng":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), types.MessageSearchSuperseded)

	snapshot := server.GetState().Snapshot()
	assert.Len(t, snapshot.Results, 1, "stale results never replace the newer run")
	assert.Equal(t, "2.000000,2.000000", snapshot.LastRun.Label)
}

func TestHandleDeviceSearch(t *testing.T) {
	t.Run("located", func(t *testing.T) {
		searcher := &mockSearcher{}
		searcher.On("Run", mock.Anything, nyc).Return(sampleResults(2), nil)
		searcher.On("Describe", mock.Anything, nyc).Return("City Hall Park")

		server := newTestServer(t, searcher, Dependencies{Locator: stubLocator{at: nyc}})
		rec := post(t, server.Handler(), "/api/search/device", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "City Hall Park")
	})

	t.Run("denied", func(t *testing.T) {
		server := newTestServer(t, &mockSearcher{}, Dependencies{Locator: stubLocator{
			err: types.NewSearchError(types.ErrorTypeDeviceLocationDenied, types.MessageDeviceDenied, nil),
		}})
		rec := post(t, server.Handler(), "/api/search/device", "{}")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), string(types.ErrorTypeDeviceLocationDenied))
	})

	t.Run("timeout", func(t *testing.T) {
		server := newTestServer(t, &mockSearcher{}, Dependencies{Locator: stubLocator{
			err: types.NewSearchError(types.ErrorTypeDeviceLocationTimeout, types.MessageDeviceTimeout, context.DeadlineExceeded),
		}})
		rec := post(t, server.Handler(), "/api/search/device", "")
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		server := newTestServer(t, &mockSearcher{}, Dependencies{})
		rec := post(t, server.Handler(), "/api/search/device", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestReadOnlyEndpoints(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("Run", mock.Anything, mock.Anything).Return(nil,
		types.NewSearchError(types.ErrorTypeNoResults, types.MessageNoResults, nil))
	server := newTestServer(t, searcher, Dependencies{})
	handler := server.Handler()

	post(t, handler, "/api/search", `{"lat":1,"lng":2}`)

	for _, path := range []string{"/api/status", "/api/history", "/api/errors", "/"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status APIStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusError, status.Status)
	require.NotNil(t, status.LastError)
	assert.Equal(t, types.ErrorTypeNoResults, status.LastError.ErrorType)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "No restaurants found")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateHelpers(t *testing.T) {
	open, closed := true, false
	assert.Equal(t, "4.5 (120)", formatRating(4.5, 120))
	assert.Equal(t, "-", formatRating(0, 0))
	assert.Equal(t, "Open now", openLabel(&open))
	assert.Equal(t, "Closed", openLabel(&closed))
	assert.Equal(t, "", openLabel(nil))
	assert.Equal(t, "status-error", statusClass(StatusError))
}
