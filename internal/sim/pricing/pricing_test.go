package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/tuning"
)

var one = decimal.NewFromInt(1)

func TestCurveAnchors(t *testing.T) {
	cases := []struct {
		q    float64
		want int64
	}{
		{0, 0},
		{1, 0},
		{10, 20},
		{30, 181},
		{70, 1000},
	}
	for _, c := range cases {
		if got := Curve(c.q); got != c.want {
			t.Fatalf("Curve(%v): got %d want %d", c.q, got, c.want)
		}
	}
	// The cubic regime roughly triples every 10ql above 70.
	if c80, c90 := Curve(80), Curve(90); !(c80 > 2500 && c80 < 3500 && c90 > 8000 && c90 < 10000) {
		t.Fatalf("unexpected high-ql curve: 80=%d 90=%d", c80, c90)
	}
}

func TestImprovePriceScenario(t *testing.T) {
	if got := ImprovePrice(10, 30, one, one); got != 161 {
		t.Fatalf("10->30 at base 1.0: got %d want 161", got)
	}
	if got := ImprovePrice(30, 30, one, one); got != 0 {
		t.Fatalf("no improvement should be free, got %d", got)
	}
	if got := ImprovePrice(40, 30, one, one); got != 0 {
		t.Fatalf("downgrade should be free, got %d", got)
	}
	// 161 * 1.5 * 1.5 = 362.25 truncates to 362.
	half := decimal.NewFromFloat(1.5)
	if got := ImprovePrice(10, 30, half, half); got != 362 {
		t.Fatalf("scaled price: got %d want 362", got)
	}
}

func TestImprovePriceMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q1 := rapid.IntRange(1, 99).Draw(t, "q1")
		q2 := rapid.IntRange(q1+1, 100).Draw(t, "q2")
		p1 := ImprovePrice(0, float64(q1), one, one)
		p2 := ImprovePrice(0, float64(q2), one, one)
		if p1 >= p2 {
			t.Fatalf("price(%d)=%d not below price(%d)=%d", q1, p1, q2, p2)
		}
	})
}

func TestTableMultipliers(t *testing.T) {
	p := tuning.Defaults().Pricing
	p.SkillBase = map[model.SkillID]float64{10015: 2}
	tab := NewTable(p)

	iron := &model.Item{Quality: 10, Material: "iron"}
	if got := tab.Quote(10015, iron, 30); got != 322 {
		t.Fatalf("iron quote: got %d want 322", got)
	}
	if got := tab.Quote(1, iron, 30); got != 161 {
		t.Fatalf("default base quote: got %d want 161", got)
	}
	seryll := &model.Item{Quality: 10, Material: "Seryll"}
	if got := tab.Quote(1, seryll, 30); got != 483 {
		t.Fatalf("moon metal quote: got %d want 483", got)
	}
	gold := &model.Item{Quality: 10, Material: "gold"}
	if got := tab.Quote(1, gold, 30); got != 241 {
		t.Fatalf("precious metal quote: got %d want 241", got)
	}
	if tab.MailFee() != p.MailFee {
		t.Fatalf("mail fee: got %d", tab.MailFee())
	}
}

func TestShopPrice(t *testing.T) {
	if got := ShopPrice(100, 50, 0, 0, 0.5, 2); got != 50 {
		t.Fatalf("neutral market: got %d want 50", got)
	}
	if got := ShopPrice(100, 100, 0, 9, 0.5, 2); got != 200 {
		t.Fatalf("high demand should clamp at 2x: got %d", got)
	}
	if got := ShopPrice(100, 100, 9, 0, 0.5, 2); got != 50 {
		t.Fatalf("oversupply should clamp at 0.5x: got %d", got)
	}
	if got := ShopPrice(1, 10, 0, 0, 0.5, 2); got != 2 {
		t.Fatalf("floor: got %d want 2", got)
	}
}

func TestMarketCountsAndDecay(t *testing.T) {
	m := NewMarket()
	for i := 0; i < 4; i++ {
		m.RecordSale("tool.hammer")
	}
	m.RecordPurchase("tool.hammer")
	m.RecordPurchase("food.bread")

	if b, s := m.Counts("tool.hammer"); b != 1 || s != 4 {
		t.Fatalf("counts: bought=%d sold=%d", b, s)
	}
	m.Decay()
	if b, s := m.Counts("tool.hammer"); b != 0 || s != 2 {
		t.Fatalf("after decay: bought=%d sold=%d", b, s)
	}
	if m.Len() != 1 {
		t.Fatalf("empty templates should be forgotten, len=%d", m.Len())
	}
}
