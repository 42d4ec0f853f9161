package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

type staticLoader[T any] struct {
	value T
	err   error
}

func (l staticLoader[T]) Load(context.Context) (T, error) {
	return l.value, l.err
}

func testDraw(round int) lotto.DrawRecord {
	return lotto.DrawRecord{Round: round, Date: "2024-01-06", Numbers: []int{1, 2, 3, 4, 5, 6}, Bonus: 7, Result: lotto.NewResult()}
}

func store(name string, first, second []int) lotto.StoreRecord {
	rec := lotto.NewStoreRecord(name, "Seoul")
	rec.Wins = lotto.Wins{First: first, Second: second}
	return rec
}

func newTestServer() *Server {
	return NewServer(Sources{
		History: staticLoader[lotto.History]{value: lotto.History{testDraw(2), testDraw(3), testDraw(1)}},
		Active: staticLoader[[]lotto.StoreRecord]{value: []lotto.StoreRecord{
			store("A", []int{1}, []int{}),
			store("B", []int{3, 2}, []int{1}),
			store("C", []int{}, []int{3, 2}),
		}},
		Retired: staticLoader[[]lotto.StoreRecord]{value: []lotto.StoreRecord{store("Gone", []int{}, []int{})}},
	}, zap.NewNop())
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

type drawList struct {
	Total int                `json:"total"`
	Draws []lotto.DrawRecord `json:"draws"`
}

type storeList struct {
	Total  int                 `json:"total"`
	Stores []lotto.StoreRecord `json:"stores"`
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	var body map[string]string
	require.Equal(t, http.StatusOK, get(t, newTestServer(), "/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestServer_ListDrawsNewestFirst(t *testing.T) {
	t.Parallel()

	var body drawList
	require.Equal(t, http.StatusOK, get(t, newTestServer(), "/v1/draws?limit=2", &body))
	require.Equal(t, 3, body.Total)
	require.Len(t, body.Draws, 2)
	require.Equal(t, 3, body.Draws[0].Round)
	require.Equal(t, 2, body.Draws[1].Round)
}

func TestServer_ListDrawsRejectsBadLimit(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, get(t, newTestServer(), "/v1/draws?limit=zero", nil))
	require.Equal(t, http.StatusBadRequest, get(t, newTestServer(), "/v1/draws?limit=-1", nil))
}

func TestServer_GetDraw(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	var rec lotto.DrawRecord
	require.Equal(t, http.StatusOK, get(t, s, "/v1/draws/2", &rec))
	require.Equal(t, 2, rec.Round)

	require.Equal(t, http.StatusNotFound, get(t, s, "/v1/draws/99", nil))
	require.Equal(t, http.StatusBadRequest, get(t, s, "/v1/draws/abc", nil))
}

func TestServer_LatestPrefersSnapshot(t *testing.T) {
	t.Parallel()

	latest := testDraw(42)
	s := NewServer(Sources{
		History: staticLoader[lotto.History]{value: lotto.History{testDraw(1)}},
		Latest:  staticLoader[lotto.DrawRecord]{value: latest},
	}, nil)

	var rec lotto.DrawRecord
	require.Equal(t, http.StatusOK, get(t, s, "/v1/draws/latest", &rec))
	require.Equal(t, 42, rec.Round)
}

func TestServer_LatestFallsBackToHistory(t *testing.T) {
	t.Parallel()

	var rec lotto.DrawRecord
	require.Equal(t, http.StatusOK, get(t, newTestServer(), "/v1/draws/latest", &rec))
	require.Equal(t, 3, rec.Round)

	empty := NewServer(Sources{History: staticLoader[lotto.History]{}}, nil)
	require.Equal(t, http.StatusNotFound, get(t, empty, "/v1/draws/latest", nil))
}

func TestServer_HistoryErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	s := NewServer(Sources{History: staticLoader[lotto.History]{err: errors.New("disk")}}, nil)
	require.Equal(t, http.StatusServiceUnavailable, get(t, s, "/v1/draws", nil))
}

func TestServer_ListStoresRanksByTier(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	var all storeList
	require.Equal(t, http.StatusOK, get(t, s, "/v1/stores", &all))
	require.Equal(t, 3, all.Total)
	require.Equal(t, []string{"B", "C", "A"}, storeNames(all.Stores))

	var first storeList
	require.Equal(t, http.StatusOK, get(t, s, "/v1/stores?tier=1st&limit=1", &first))
	require.Equal(t, []string{"B"}, storeNames(first.Stores))

	var second storeList
	require.Equal(t, http.StatusOK, get(t, s, "/v1/stores?tier=2nd", &second))
	require.Equal(t, []string{"C", "B"}, storeNames(second.Stores))

	require.Equal(t, http.StatusBadRequest, get(t, s, "/v1/stores?tier=3rd", nil))
}

func TestServer_ListRetired(t *testing.T) {
	t.Parallel()

	var body storeList
	require.Equal(t, http.StatusOK, get(t, newTestServer(), "/v1/stores/retired", &body))
	require.Equal(t, []string{"Gone"}, storeNames(body.Stores))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusOK, get(t, newTestServer(), "/metrics", nil))
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(requestIDKey{}).(string)
		require.True(t, ok)
		require.NotEmpty(t, id)
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	handler := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func storeNames(records []lotto.StoreRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Name)
	}
	return out
}
