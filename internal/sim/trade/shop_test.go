package trade

import (
	"strings"
	"testing"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
)

func TestShopSellsWithChangeAndRevenueSplit(t *testing.T) {
	f := newFixture(t)
	market := pricing.NewMarket()
	f.withShops(map[model.PartyID]*pricing.Market{100: market})
	alice, ac := f.player(1, "alice")
	trader, _ := f.vendor(100, "trader", VendorTrader)
	hammer := f.give(t, 100, "tool.hammer", 50)
	copper := f.give(t, 1, "coin.copper", 50)

	s, err := Begin(f.env, trader, alice)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s.B() != Party(trader) {
		t.Fatalf("vendor must be side B")
	}
	if !s.Window(OfferOfB).Contains(hammer) {
		t.Fatalf("trader stock should be on display")
	}
	if !s.Satisfied(trader) {
		t.Fatalf("an empty trade is balanced")
	}

	if err := s.Move(alice, hammer.ID, RequestOfA); err != nil {
		t.Fatalf("request hammer: %v", err)
	}
	if s.Satisfied(trader) {
		t.Fatalf("trader must wait for payment")
	}
	if !strings.Contains(ac.LastMessage(), "20 more coins") {
		t.Fatalf("expected a demand, got %q", ac.LastMessage())
	}

	if err := s.Offer(alice, copper.ID); err != nil {
		t.Fatalf("offer coin: %v", err)
	}
	if !s.Window(RequestOfB).Contains(copper) {
		t.Fatalf("offered coin should be pulled in as payment")
	}
	if got := s.ChangeValue(alice); got != 80 {
		t.Fatalf("change: got %d want 80", got)
	}
	if !s.Satisfied(trader) {
		t.Fatalf("trader should be satisfied once paid")
	}

	if err := s.SetSatisfied(alice, true, s.Rev()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if s.State() != StateSettled {
		t.Fatalf("expected settled, got %s", s.State())
	}
	if hammer.Owner != 1 {
		t.Fatalf("hammer owner: %d", hammer.Owner)
	}
	if got := f.w.CoinTotal(1); got != 80 {
		t.Fatalf("alice coins: got %d want 80", got)
	}
	res := s.Result()
	if res.MoneyAdded != 100 || res.MoneyLost != 80 {
		t.Fatalf("money flow: %+v", res)
	}
	if f.w.King != 2 || f.w.Upkeep != 1 || f.w.Money(100) != 17 {
		t.Fatalf("split: king=%d upkeep=%d shop=%d", f.w.King, f.w.Upkeep, f.w.Money(100))
	}
	if _, sold := market.Counts("tool.hammer"); sold != 1 {
		t.Fatalf("sale not recorded")
	}
}

func TestShopRefusesWhatItCannotAfford(t *testing.T) {
	f := newFixture(t)
	f.withShops(map[model.PartyID]*pricing.Market{100: pricing.NewMarket()})
	alice, ac := f.player(1, "alice")
	trader, _ := f.vendor(100, "trader", VendorTrader)
	hammer := f.give(t, 1, "tool.hammer", 50)

	s, _ := Begin(f.env, alice, trader)
	_ = s.Offer(alice, hammer.ID)
	if err := s.Move(alice, hammer.ID, RequestOfB); err != nil {
		t.Fatalf("sell hammer: %v", err)
	}
	if s.Satisfied(trader) {
		t.Fatalf("broke trader must not agree")
	}
	if !strings.Contains(ac.LastMessage(), "can not afford") {
		t.Fatalf("expected refusal, got %q", ac.LastMessage())
	}

	f.w.AdjustMoney(100, 50)
	s.Balance()
	if !s.Satisfied(trader) || s.ChangeValue(alice) != 10 {
		t.Fatalf("trader should pay 10 once funded: satisfied=%v change=%d", s.Satisfied(trader), s.ChangeValue(alice))
	}
}
