package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/tuning"
)

// Table resolves the configured multipliers for improvement quotes.
type Table struct {
	skillBase   map[model.SkillID]decimal.Decimal
	defaultBase decimal.Decimal

	moon     map[string]bool
	moonMult decimal.Decimal
	precious map[string]bool
	precMult decimal.Decimal
	mailFee  int64
}

func NewTable(p tuning.Pricing) *Table {
	t := &Table{
		skillBase:   make(map[model.SkillID]decimal.Decimal, len(p.SkillBase)),
		defaultBase: decimal.NewFromFloat(p.DefaultSkillBase),
		moon:        lowerSet(p.MoonMetals),
		moonMult:    decimal.NewFromFloat(p.MoonMetalMult),
		precious:    lowerSet(p.PreciousMetals),
		precMult:    decimal.NewFromFloat(p.PreciousMetalMult),
		mailFee:     p.MailFee,
	}
	for id, v := range p.SkillBase {
		t.skillBase[id] = decimal.NewFromFloat(v)
	}
	return t
}

func lowerSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return out
}

func (t *Table) SkillBase(skill model.SkillID) decimal.Decimal {
	if v, ok := t.skillBase[skill]; ok {
		return v
	}
	return t.defaultBase
}

func (t *Table) MaterialMult(material string) decimal.Decimal {
	m := strings.ToLower(material)
	switch {
	case t.moon[m]:
		return t.moonMult
	case t.precious[m]:
		return t.precMult
	default:
		return decimal.NewFromInt(1)
	}
}

func (t *Table) MailFee() int64 { return t.mailFee }

// Quote prices improving it to target under skill.
func (t *Table) Quote(skill model.SkillID, it *model.Item, target float64) int64 {
	return ImprovePrice(it.Quality, target, t.SkillBase(skill), t.MaterialMult(it.Material))
}
