// Package quote turns a list of sticker lines into a priced order: rows to
// print per line, totals with and without VAT, and the minimum order check.
package quote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"stickerquote/internal/pricing"
)

// ErrInvalidRequest wraps every rejection of a quote request.
var ErrInvalidRequest = errors.New("invalid quote request")

const maxQuantity = 10_000_000

var hundred = decimal.NewFromInt(100)

type Sticker struct {
	Width    Value `json:"width"`
	Height   Value `json:"height"`
	Quantity Value `json:"quantity"`
}

type Request struct {
	Material       string    `json:"material"`
	VATRate        *float64  `json:"vat_rate,omitempty"`
	IncludeVAT     bool      `json:"include_vat"`
	RoundedCorners bool      `json:"rounded_corners"`
	Stickers       []Sticker `json:"stickers"`
}

// Line is one sticker size of the order. Rows and totals are zero for
// lines whose Result is invalid.
type Line struct {
	Index         int
	Width         string
	Height        string
	Quantity      string
	Result        pricing.Result
	Rows          int
	TotalStickers int
	TotalExclVAT  decimal.Decimal
	TotalInclVAT  decimal.Decimal
}

type Quote struct {
	Material       string
	VATRate        decimal.Decimal
	IncludeVAT     bool
	RoundedCorners bool
	Currency       string
	Lines          []Line
	TotalExclVAT   decimal.Decimal
	TotalInclVAT   decimal.Decimal
	MinOrderAmount decimal.Decimal
	BelowMinOrder  bool
}

// ValidLines counts the lines that could be priced.
func (q Quote) ValidLines() int {
	n := 0
	for _, l := range q.Lines {
		if l.Result.Valid() {
			n++
		}
	}
	return n
}

type Options struct {
	DefaultVATRate float64
	MinOrderAmount float64
	Currency       string
	MaxStickers    int
}

// Builder prices requests against one calculator. Safe for concurrent use.
type Builder struct {
	calc *pricing.Calculator
	opts Options
}

func NewBuilder(calc *pricing.Calculator, opts Options) *Builder {
	if opts.Currency == "" {
		opts.Currency = "R"
	}
	return &Builder{calc: calc, opts: opts}
}

func (b *Builder) Calculator() *pricing.Calculator { return b.calc }

// Build prices every sticker of req. Invalid stickers stay in the quote as
// invalid lines; only malformed requests are rejected.
func (b *Builder) Build(req Request) (Quote, error) {
	if len(req.Stickers) == 0 {
		return Quote{}, fmt.Errorf("%w: at least one sticker is required", ErrInvalidRequest)
	}
	if b.opts.MaxStickers > 0 && len(req.Stickers) > b.opts.MaxStickers {
		return Quote{}, fmt.Errorf("%w: at most %d stickers per quote", ErrInvalidRequest, b.opts.MaxStickers)
	}

	vat := decimal.NewFromFloat(b.opts.DefaultVATRate)
	if req.VATRate != nil {
		if *req.VATRate < 0 {
			return Quote{}, fmt.Errorf("%w: vat_rate must not be negative", ErrInvalidRequest)
		}
		vat = decimal.NewFromFloat(*req.VATRate)
	}
	vatFactor := decimal.NewFromInt(1).Add(vat.Div(hundred))

	material := req.Material
	if material == "" {
		material = pricing.Unspecified
	}

	q := Quote{
		Material:       material,
		VATRate:        vat,
		IncludeVAT:     req.IncludeVAT,
		RoundedCorners: req.RoundedCorners,
		Currency:       b.opts.Currency,
		Lines:          make([]Line, 0, len(req.Stickers)),
		MinOrderAmount: decimal.NewFromFloat(b.opts.MinOrderAmount),
	}

	for i, s := range req.Stickers {
		line := Line{
			Index:    i + 1,
			Width:    s.Width.String(),
			Height:   s.Height.String(),
			Quantity: s.Quantity.String(),
			Result:   b.calc.Calculate(s.Width.Decimal(), s.Height.Decimal(), material),
		}
		if pq, ok := line.Result.Quote(); ok {
			qty, ok := s.Quantity.Number()
			if !ok || qty.GreaterThan(decimal.NewFromInt(maxQuantity)) {
				return Quote{}, fmt.Errorf("%w: sticker %d quantity must not exceed %d", ErrInvalidRequest, i+1, maxQuantity)
			}
			line.Rows = rowsFor(qty, pq.StickersPerRow)
			line.TotalStickers = line.Rows * pq.StickersPerRow
			line.TotalExclVAT = pq.PricePerSticker.Mul(decimal.NewFromInt(int64(line.TotalStickers)))
			line.TotalInclVAT = line.TotalExclVAT.Mul(vatFactor)
			q.TotalExclVAT = q.TotalExclVAT.Add(line.TotalExclVAT)
		}
		q.Lines = append(q.Lines, line)
	}

	q.TotalInclVAT = q.TotalExclVAT.Mul(vatFactor)
	q.BelowMinOrder = q.TotalExclVAT.LessThan(q.MinOrderAmount)
	return q, nil
}

// rowsFor is the number of full rows needed to print at least qty stickers.
func rowsFor(qty decimal.Decimal, perRow int) int {
	if !qty.IsPositive() || perRow <= 0 {
		return 0
	}
	return int(qty.Div(decimal.NewFromInt(int64(perRow))).Ceil().IntPart())
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type lineJSON struct {
	Index         int            `json:"index"`
	Width         string         `json:"width"`
	Height        string         `json:"height"`
	Quantity      string         `json:"quantity"`
	Calculation   pricing.Result `json:"calculation"`
	Rows          int            `json:"rows"`
	TotalStickers int            `json:"total_stickers"`
	TotalExclVAT  string         `json:"total_excl_vat"`
	TotalInclVAT  string         `json:"total_incl_vat"`
}

func (l Line) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineJSON{
		Index:         l.Index,
		Width:         l.Width,
		Height:        l.Height,
		Quantity:      l.Quantity,
		Calculation:   l.Result,
		Rows:          l.Rows,
		TotalStickers: l.TotalStickers,
		TotalExclVAT:  money(l.TotalExclVAT),
		TotalInclVAT:  money(l.TotalInclVAT),
	})
}

type quoteJSON struct {
	Material       string `json:"material"`
	VATRate        string `json:"vat_rate"`
	IncludeVAT     bool   `json:"include_vat"`
	RoundedCorners bool   `json:"rounded_corners"`
	Currency       string `json:"currency"`
	Lines          []Line `json:"lines"`
	TotalExclVAT   string `json:"total_excl_vat"`
	TotalInclVAT   string `json:"total_incl_vat"`
	MinOrderAmount string `json:"min_order_amount"`
	BelowMinOrder  bool   `json:"below_min_order"`
}

func (q Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(quoteJSON{
		Material:       q.Material,
		VATRate:        q.VATRate.String(),
		IncludeVAT:     q.IncludeVAT,
		RoundedCorners: q.RoundedCorners,
		Currency:       q.Currency,
		Lines:          q.Lines,
		TotalExclVAT:   money(q.TotalExclVAT),
		TotalInclVAT:   money(q.TotalInclVAT),
		MinOrderAmount: money(q.MinOrderAmount),
		BelowMinOrder:  q.BelowMinOrder,
	})
}
