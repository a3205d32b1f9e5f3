package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"barterforge.ai/internal/sim/model"
)

// ShopPrice is the generic vendor price: base value scaled by quality and by
// the vendor's recent sales against purchases of the same template. The
// modifier is clamped to [minMod, 1/minMod] and the result never drops below
// floor.
func ShopPrice(base int64, quality float64, bought, sold int, minMod float64, floor int64) int64 {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	if bought < 0 {
		bought = 0
	}
	if sold < 0 {
		sold = 0
	}
	mod := decimal.NewFromInt(int64(1 + sold)).Div(decimal.NewFromInt(int64(1 + bought)))
	if minMod > 0 && minMod <= 1 {
		lo := decimal.NewFromFloat(minMod)
		hi := decimal.NewFromInt(1).Div(lo)
		if mod.LessThan(lo) {
			mod = lo
		}
		if mod.GreaterThan(hi) {
			mod = hi
		}
	}
	price := decimal.NewFromInt(base).
		Mul(decimal.NewFromFloat(quality)).
		Div(decimal.NewFromInt(100)).
		Mul(mod).
		Truncate(0).
		IntPart()
	if price < floor {
		price = floor
	}
	return price
}

type counts struct {
	Bought int
	Sold   int
}

// Market tracks per-template purchase and sale counts of one vendor.
type Market struct {
	byTemplate map[model.TemplateID]*counts
}

func NewMarket() *Market {
	return &Market{byTemplate: map[model.TemplateID]*counts{}}
}

func (m *Market) entry(tpl model.TemplateID) *counts {
	c := m.byTemplate[tpl]
	if c == nil {
		c = &counts{}
		m.byTemplate[tpl] = c
	}
	return c
}

// RecordSale notes the vendor sold one item of tpl.
func (m *Market) RecordSale(tpl model.TemplateID) { m.entry(tpl).Sold++ }

// RecordPurchase notes the vendor bought one item of tpl.
func (m *Market) RecordPurchase(tpl model.TemplateID) { m.entry(tpl).Bought++ }

func (m *Market) Counts(tpl model.TemplateID) (bought, sold int) {
	if c := m.byTemplate[tpl]; c != nil {
		return c.Bought, c.Sold
	}
	return 0, 0
}

// Decay halves every count and forgets templates that reach zero.
func (m *Market) Decay() {
	for tpl, c := range m.byTemplate {
		c.Bought /= 2
		c.Sold /= 2
		if c.Bought == 0 && c.Sold == 0 {
			delete(m.byTemplate, tpl)
		}
	}
}

func (m *Market) Len() int { return len(m.byTemplate) }

// TemplateCount is one row of a market book.
type TemplateCount struct {
	Template model.TemplateID
	Bought   int
	Sold     int
}

// Rows returns the book ordered by template.
func (m *Market) Rows() []TemplateCount {
	out := make([]TemplateCount, 0, len(m.byTemplate))
	for tpl, c := range m.byTemplate {
		out = append(out, TemplateCount{Template: tpl, Bought: c.Bought, Sold: c.Sold})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Template < out[j].Template })
	return out
}

// Set overwrites the counts of tpl, as restored from a snapshot.
func (m *Market) Set(tpl model.TemplateID, bought, sold int) {
	if bought <= 0 && sold <= 0 {
		delete(m.byTemplate, tpl)
		return
	}
	c := m.entry(tpl)
	c.Bought, c.Sold = bought, sold
}
