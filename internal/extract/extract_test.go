package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

const drawJSON = `{"totSellamnt":111840714000,"returnValue":"success","drwNoDate":"2024-01-06",
"firstWinamnt":1860614625,"drwtNo6":41,"drwtNo4":24,"firstPrzwnerCo":14,"drwtNo5":35,
"bnusNo":7,"firstAccumamnt":26048604750,"drwNo":1100,"drwtNo2":11,"drwtNo3":19,"drwtNo1":3}`

const resultPage = `<html><body>
<div class="win_result">
  <h4><strong>1100회</strong> 당첨결과</h4>
  <p class="desc">(2024년 01월 06일 추첨)</p>
  <div class="num win"><p>
    <span class="ball_645">3</span><span class="ball_645">11</span><span class="ball_645">19</span>
    <span class="ball_645">24</span><span class="ball_645">35</span><span class="ball_645">41</span>
  </p></div>
  <div class="num bonus"><p><span class="ball_645">7</span></p></div>
</div>
<table class="tbl_data">
  <thead><tr><th>순위</th><th>총 당첨금액</th><th>당첨게임 수</th><th>1게임당 당첨금액</th><th>당첨기준</th><th>비고</th></tr></thead>
  <tbody>
    <tr><td>1등</td><td>26,048,604,750원</td><td>14</td><td>1,860,614,625원</td><td>당첨번호 6개 숫자일치</td><td>1등 자동10</td></tr>
    <tr><td>2등</td><td>4,341,434,130원</td><td>83</td><td>52,306,435원</td><td>당첨번호 5개 숫자일치 +보너스 숫자일치</td><td></td></tr>
    <tr><td>3등</td><td>4,341,436,050원</td></tr>
  </tbody>
</table>
</body></html>`

const storePage = `<html><body>
<table class="tbl_data"><tbody><tr><td>search form</td></tr></tbody></table>
<table class="tbl_data">
  <thead><tr><th>번호</th><th>상호명</th><th>구분</th><th>소재지</th><th>위치보기</th></tr></thead>
  <tbody>
    <tr><td>1</td><td>Lucky  Mart</td><td>자동</td><td>Seoul Gangnam 1</td><td>map</td></tr>
    <tr><td>2</td><td>인터넷 복권판매사이트</td><td>자동</td><td>동행복권(dhlottery.co.kr)</td><td></td></tr>
    <tr><td>3</td><td>short row</td></tr>
  </tbody>
</table>
<table class="tbl_data">
  <thead><tr><th>번호</th><th>상호명</th><th>소재지</th><th>위치보기</th></tr></thead>
  <tbody>
    <tr><td>1</td><td>대박복권</td><td>부산 해운대구 2</td><td>map</td></tr>
    <tr><td>2</td><td></td><td>빈 이름</td><td></td></tr>
  </tbody>
</table>
</body></html>`

func TestJSONDrawStrategy(t *testing.T) {
	t.Parallel()

	fields, err := JSONDrawStrategy{}.ExtractDraw([]byte(drawJSON))
	require.NoError(t, err)
	require.Equal(t, DrawFields{
		Round:   1100,
		Date:    "2024-01-06",
		Numbers: []int{3, 11, 19, 24, 35, 41},
		Bonus:   7,
	}, fields)
}

func TestJSONDrawStrategyFailFlag(t *testing.T) {
	t.Parallel()

	_, err := JSONDrawStrategy{}.ExtractDraw([]byte(`{"returnValue":"fail"}`))
	require.ErrorIs(t, err, ErrRoundNotFound)
}

func TestJSONDrawStrategyMalformed(t *testing.T) {
	t.Parallel()

	_, err := JSONDrawStrategy{}.ExtractDraw([]byte(`<html>maintenance</html>`))
	require.ErrorIs(t, err, ErrMalformed)
	require.NotErrorIs(t, err, ErrRoundNotFound)

	_, err = JSONDrawStrategy{}.ExtractDraw([]byte(`{"returnValue":"success","drwNo":5}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestHTMLDrawStrategyTakesLastBallAsBonus(t *testing.T) {
	t.Parallel()

	fields, err := HTMLDrawStrategy{}.ExtractDraw([]byte(resultPage))
	require.NoError(t, err)
	require.Equal(t, 1100, fields.Round)
	require.Equal(t, "2024-01-06", fields.Date)
	require.Equal(t, []int{3, 11, 19, 24, 35, 41}, fields.Numbers)
	require.Equal(t, 7, fields.Bonus)
}

func TestHTMLDrawStrategyWithoutResultBlock(t *testing.T) {
	t.Parallel()

	_, err := HTMLDrawStrategy{}.ExtractDraw([]byte(`<html><body><p>nothing</p></body></html>`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestPrizeStrategyScansFromTheRight(t *testing.T) {
	t.Parallel()

	res, err := NewTablePrizeStrategy().ExtractPrizes([]byte(resultPage))
	require.NoError(t, err)
	require.Equal(t, lotto.Prize{Amount: 1860614625, Winners: 14}, res.Prizes[lotto.TierFirst])
	require.Equal(t, lotto.Prize{Amount: 52306435, Winners: 83}, res.Prizes[lotto.TierSecond])
	// truncated third row: the cell before the prize is the rank label, not a count
	require.Equal(t, lotto.Prize{}, res.Prizes[lotto.TierThird])
	require.Equal(t, []lotto.Tier{lotto.TierThird}, res.Missing)
	require.False(t, res.OK())
}

func TestPrizeStrategyShortRowDefaultsOnlyThatTier(t *testing.T) {
	t.Parallel()

	page := `<table class="tbl_data"><tbody>
<tr><td>1등</td><td>5</td><td>2,000,000,000원</td></tr>
<tr><td>2등</td></tr>
<tr><td>3등</td><td>1,000</td><td>1,500,000원</td></tr>
</tbody></table>`
	res, err := NewTablePrizeStrategy().ExtractPrizes([]byte(page))
	require.NoError(t, err)
	require.Equal(t, lotto.Prize{Amount: 2000000000, Winners: 5}, res.Prizes[lotto.TierFirst])
	require.Equal(t, lotto.Prize{}, res.Prizes[lotto.TierSecond])
	require.Equal(t, lotto.Prize{Amount: 1500000, Winners: 1000}, res.Prizes[lotto.TierThird])
	require.Equal(t, []lotto.Tier{lotto.TierSecond}, res.Missing)
}

func TestPrizeStrategyMissingTable(t *testing.T) {
	t.Parallel()

	res, err := NewTablePrizeStrategy().ExtractPrizes([]byte(`<html><body></body></html>`))
	require.NoError(t, err)
	require.Len(t, res.Missing, 3)
	for _, tier := range lotto.PrizeTiers {
		require.Equal(t, lotto.Prize{}, res.Prizes[tier])
	}
}

func TestStoreStrategyUsesTrailingTables(t *testing.T) {
	t.Parallel()

	res, err := NewTableStoreStrategy(nil).ExtractStores([]byte(storePage))
	require.NoError(t, err)
	require.Equal(t, 3, res.Tables)
	require.Equal(t, []lotto.StoreAppearance{
		{Name: "Lucky Mart", Method: "자동", Address: "Seoul Gangnam 1"},
		{Name: "인터넷 복권판매사이트", Method: "자동", Address: "동행복권(dhlottery.co.kr)"},
	}, res.Stores[lotto.TierFirst])
	require.Equal(t, []lotto.StoreAppearance{
		{Name: "대박복권", Address: "부산 해운대구 2"},
	}, res.Stores[lotto.TierSecond])
	require.Equal(t, 2, res.Skipped)
}

func TestStoreStrategyFiltersNoResultSentinel(t *testing.T) {
	t.Parallel()

	page := `<table class="tbl_data"><tbody><tr><td colspan="5">조회 결과가 없습니다.</td></tr></tbody></table>
<table class="tbl_data"><tbody>
<tr><td>1</td><td>조회 결과가 없습니다</td><td>-</td></tr>
</tbody></table>`
	res, err := NewTableStoreStrategy(nil).ExtractStores([]byte(page))
	require.NoError(t, err)
	require.Empty(t, res.Stores[lotto.TierFirst])
	require.NotNil(t, res.Stores[lotto.TierFirst])
	require.Empty(t, res.Stores[lotto.TierSecond])
	require.Zero(t, res.Skipped)
	require.True(t, res.OK())
}

func TestStoreStrategySingleTableIsFirstTier(t *testing.T) {
	t.Parallel()

	page := `<table class="tbl_data"><tbody>
<tr><td>1</td><td>행운점</td><td>수동</td><td>대구 중구 3</td></tr>
</tbody></table>`
	res, err := NewTableStoreStrategy(nil).ExtractStores([]byte(page))
	require.NoError(t, err)
	require.Len(t, res.Stores[lotto.TierFirst], 1)
	require.Equal(t, "수동", res.Stores[lotto.TierFirst][0].Method)
	require.Empty(t, res.Stores[lotto.TierSecond])
}

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2002-12-07", normalizeDate("(2002년 12월 7일 추첨)"))
	require.Equal(t, "2024.01.06", normalizeDate("(2024.01.06 추첨)"))
}
