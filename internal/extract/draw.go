// Package extract turns raw source payloads into draw, prize and store fields. Each field group
// has its own strategy so a layout change in one page cannot break the others.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

var (
	// ErrRoundNotFound is the source's explicit "no such round" answer.
	ErrRoundNotFound = errors.New("round does not exist")
	// ErrMalformed means the payload could not be read as the expected shape.
	ErrMalformed = errors.New("malformed payload")
)

// DrawFields are the round identity and numbers of a draw.
type DrawFields struct {
	Round   int
	Date    string
	Numbers []int
	Bonus   int
}

// DrawStrategy extracts draw fields from one payload.
type DrawStrategy interface {
	ExtractDraw(payload []byte) (DrawFields, error)
}

// JSONDrawStrategy reads the numeric draw API.
type JSONDrawStrategy struct{}

type drawPayload struct {
	ReturnValue string `json:"returnValue"`
	DrwNo       int    `json:"drwNo"`
	DrwNoDate   string `json:"drwNoDate"`
	DrwtNo1     int    `json:"drwtNo1"`
	DrwtNo2     int    `json:"drwtNo2"`
	DrwtNo3     int    `json:"drwtNo3"`
	DrwtNo4     int    `json:"drwtNo4"`
	DrwtNo5     int    `json:"drwtNo5"`
	DrwtNo6     int    `json:"drwtNo6"`
	BnusNo      int    `json:"bnusNo"`
}

// ExtractDraw returns ErrRoundNotFound for the explicit fail flag and ErrMalformed for anything
// else it cannot read.
func (JSONDrawStrategy) ExtractDraw(payload []byte) (DrawFields, error) {
	var p drawPayload
	if err := json.Unmarshal(bytes.TrimSpace(payload), &p); err != nil {
		return DrawFields{}, fmt.Errorf("%w: decode draw json: %v", ErrMalformed, err)
	}
	if p.ReturnValue == "fail" {
		return DrawFields{}, ErrRoundNotFound
	}
	fields := DrawFields{
		Round:   p.DrwNo,
		Date:    strings.TrimSpace(p.DrwNoDate),
		Numbers: []int{p.DrwtNo1, p.DrwtNo2, p.DrwtNo3, p.DrwtNo4, p.DrwtNo5, p.DrwtNo6},
		Bonus:   p.BnusNo,
	}
	if err := validate(fields); err != nil {
		return DrawFields{}, err
	}
	return fields, nil
}

// HTMLDrawStrategy reads the result block of a results page. The first match of each slot wins,
// and the last ball is the bonus.
type HTMLDrawStrategy struct{}

var koreanDate = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)

// ExtractDraw parses round label, date label and balls.
func (HTMLDrawStrategy) ExtractDraw(payload []byte) (DrawFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return DrawFields{}, fmt.Errorf("%w: parse html: %v", ErrMalformed, err)
	}
	block := doc.Find(".win_result").First()
	if block.Length() == 0 {
		return DrawFields{}, fmt.Errorf("%w: no result block", ErrMalformed)
	}

	round, err := strconv.Atoi(digits(block.Find("h4 strong").First().Text()))
	if err != nil {
		return DrawFields{}, fmt.Errorf("%w: round label: %v", ErrMalformed, err)
	}

	var balls []int
	block.Find(".ball_645").Each(func(_ int, s *goquery.Selection) {
		if n, convErr := strconv.Atoi(strings.TrimSpace(s.Text())); convErr == nil {
			balls = append(balls, n)
		}
	})
	if len(balls) < 2 {
		return DrawFields{}, fmt.Errorf("%w: found %d balls", ErrMalformed, len(balls))
	}

	fields := DrawFields{
		Round:   round,
		Date:    normalizeDate(block.Find(".desc").First().Text()),
		Numbers: balls[:len(balls)-1],
		Bonus:   balls[len(balls)-1],
	}
	if err := validate(fields); err != nil {
		return DrawFields{}, err
	}
	return fields, nil
}

func validate(f DrawFields) error {
	if f.Round <= 0 {
		return fmt.Errorf("%w: round %d", ErrMalformed, f.Round)
	}
	if err := lotto.ValidateNumbers(f.Numbers, f.Bonus); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// normalizeDate turns "(2024년 01월 06일 추첨)" into "2024-01-06". Labels in any other shape are
// kept with the parentheses and draw suffix removed.
func normalizeDate(raw string) string {
	if m := koreanDate.FindStringSubmatch(raw); m != nil {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
	}
	cleaned := strings.NewReplacer("(", "", ")", "", "추첨", "").Replace(raw)
	return strings.TrimSpace(cleaned)
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
