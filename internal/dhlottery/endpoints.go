// Package dhlottery builds the requests for the lottery operator's results site.
package dhlottery

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/lotto-store-crawler/internal/fetcher"
)

// Defaults for the public site.
const (
	DefaultBaseURL = "https://www.dhlottery.co.kr"
	DefaultGameNo  = 5133
)

// Endpoint labels used in metrics and logs.
const (
	EndpointDraw   = "draw"
	EndpointPrize  = "prize"
	EndpointStores = "stores"
)

// Endpoints builds per-round requests against one site root.
type Endpoints struct {
	base   string
	gameNo int
}

// New validates base and returns the request builder. An empty base selects DefaultBaseURL.
func New(base string, gameNo int) (Endpoints, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return Endpoints{}, fmt.Errorf("dhlottery: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoints{}, errors.New("dhlottery: base url must be http or https")
	}
	if gameNo <= 0 {
		gameNo = DefaultGameNo
	}
	return Endpoints{base: strings.TrimRight(base, "/"), gameNo: gameNo}, nil
}

// Draw is the numeric round API. It answers {"returnValue":"fail"} past the newest round.
func (e Endpoints) Draw(round int) fetcher.Request {
	q := url.Values{}
	q.Set("method", "getLottoNumber")
	q.Set("drwNo", strconv.Itoa(round))
	return fetcher.Request{
		Method:   http.MethodGet,
		URL:      e.base + "/common.do?" + q.Encode(),
		Endpoint: EndpointDraw,
	}
}

// Prize is the per-round results page with the draw block and the tier table.
func (e Endpoints) Prize(round int) fetcher.Request {
	q := url.Values{}
	q.Set("method", "byWin")
	q.Set("drwNo", strconv.Itoa(round))
	return fetcher.Request{
		Method:   http.MethodGet,
		URL:      e.base + "/gameResult.do?" + q.Encode(),
		Endpoint: EndpointPrize,
	}
}

// Stores is the winning-store listing for a round, requested as a form POST.
func (e Endpoints) Stores(round int) fetcher.Request {
	return fetcher.Request{
		Method: http.MethodPost,
		URL:    e.base + "/store.do?method=topStore&pageGubun=L645",
		Form: map[string]string{
			"method":  "topStore",
			"nowPage": "1",
			"rankNo":  "",
			"gameNo":  strconv.Itoa(e.gameNo),
			"drwNo":   strconv.Itoa(round),
			"schKey":  "all",
			"schVal":  "",
		},
		Endpoint: EndpointStores,
	}
}
