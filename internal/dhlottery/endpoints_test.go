package dhlottery

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequests(t *testing.T) {
	t.Parallel()

	e, err := New("http://127.0.0.1:8080/", 0)
	require.NoError(t, err)

	draw := e.Draw(1100)
	require.Equal(t, http.MethodGet, draw.Method)
	require.Equal(t, EndpointDraw, draw.Endpoint)
	u, err := url.Parse(draw.URL)
	require.NoError(t, err)
	require.Equal(t, "/common.do", u.Path)
	require.Equal(t, "getLottoNumber", u.Query().Get("method"))
	require.Equal(t, "1100", u.Query().Get("drwNo"))

	prize := e.Prize(7)
	u, err = url.Parse(prize.URL)
	require.NoError(t, err)
	require.Equal(t, "/gameResult.do", u.Path)
	require.Equal(t, "byWin", u.Query().Get("method"))
	require.Equal(t, "7", u.Query().Get("drwNo"))

	stores := e.Stores(7)
	require.Equal(t, http.MethodPost, stores.Method)
	require.Equal(t, "http://127.0.0.1:8080/store.do?method=topStore&pageGubun=L645", stores.URL)
	require.Equal(t, "7", stores.Form["drwNo"])
	require.Equal(t, "5133", stores.Form["gameNo"])
	require.Equal(t, "all", stores.Form["schKey"])
}

func TestNewRejectsBadBase(t *testing.T) {
	t.Parallel()

	_, err := New("ftp://example.com", 1)
	require.Error(t, err)
	_, err = New("://", 1)
	require.Error(t, err)

	e, err := New("", 0)
	require.NoError(t, err)
	require.Contains(t, e.Draw(1).URL, DefaultBaseURL)
}
