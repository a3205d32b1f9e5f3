package main

import (
	"testing"

	"barterforge.ai/internal/protocol"
)

func TestCustomerScript(t *testing.T) {
	c := &customer{vendor: 100, offer: []int64{7, 8}, option: "30ql", accept: true}

	if out := c.welcome(); len(out) != 1 || out[0].Type != protocol.InstantTradeRequest || out[0].With != 100 {
		t.Fatalf("welcome: %+v", out)
	}
	// no accept before the trade exists
	if out := c.handle(protocol.Event{"type": protocol.EventTradeChanged, "rev": float64(1)}); len(out) != 0 {
		t.Fatalf("early accept: %+v", out)
	}
	out := c.handle(protocol.Event{"type": protocol.EventTradeStarted, "a": float64(1), "b": float64(100), "rev": float64(0)})
	if len(out) != 2 || out[0].Item != 7 || out[1].Item != 8 || out[1].Type != protocol.InstantTradeOffer {
		t.Fatalf("offers: %+v", out)
	}
	// waits for the menu entry before accepting
	if out := c.handle(protocol.Event{"type": protocol.EventTradeChanged, "rev": float64(2)}); len(out) != 0 {
		t.Fatalf("accepted before moving the option: %+v", out)
	}
	if out := c.handle(protocol.Event{"type": protocol.EventTradeItemAdded, "window": "OFFER_B", "item": float64(50), "name": "Improve blacksmithing items to 20ql"}); len(out) != 0 {
		t.Fatalf("moved the wrong option: %+v", out)
	}
	out = c.handle(protocol.Event{"type": protocol.EventTradeItemAdded, "window": "OFFER_B", "item": float64(51), "name": "Improve blacksmithing items to 30ql"})
	if len(out) != 1 || out[0].Type != protocol.InstantTradeMove || out[0].Item != 51 || out[0].To != "REQUEST_A" {
		t.Fatalf("move: %+v", out)
	}
	if out := c.handle(protocol.Event{"type": protocol.EventTradeItemAdded, "window": "OFFER_B", "item": float64(52), "name": "Improve blacksmithing items to 30ql"}); len(out) != 0 {
		t.Fatalf("moved twice: %+v", out)
	}
	out = c.handle(protocol.Event{"type": protocol.EventTradeChanged, "rev": float64(3)})
	if len(out) != 1 || out[0].Type != protocol.InstantTradeAccept || out[0].Rev != 3 {
		t.Fatalf("accept: %+v", out)
	}
	c.handle(protocol.Event{"type": protocol.EventTradeDone})
	if !c.finished || c.outcome != protocol.EventTradeDone {
		t.Fatalf("outcome: %v %q", c.finished, c.outcome)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 3, 4,,5 ")
	if err != nil || len(ids) != 3 || ids[2] != 5 {
		t.Fatalf("ids: %v %v", ids, err)
	}
	if _, err := parseIDs("x"); err == nil {
		t.Fatalf("expected error")
	}
}
