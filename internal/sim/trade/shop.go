package trade

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/tuning"
)

// MarketSource returns the supply/demand book of a vendor.
type MarketSource func(vendor model.PartyID) *pricing.Market

// NewShopConstructor builds handlers for trader vendors.
func NewShopConstructor(markets MarketSource, cfg tuning.Pricing) Constructor {
	return func(env *Env, vendor *Vendor, customer Party) (Handler, error) {
		m := markets(vendor.ID())
		if m == nil {
			return nil, fmt.Errorf("no market for vendor %d", vendor.ID())
		}
		return &ShopHandler{vendor: vendor, customer: customer, market: m, cfg: cfg}, nil
	}
}

// ShopHandler sells the vendor's stock and buys what the customer puts in
// the vendor's request window, priced by supply and demand.
type ShopHandler struct {
	vendor   *Vendor
	customer Party
	market   *pricing.Market
	cfg      tuning.Pricing

	lastNote string
}

func (h *ShopHandler) Start(s *Session) {
	offer := s.OfferOf(h.vendor)
	for _, it := range s.env.Items.Inventory(h.vendor.ID()) {
		if it.Coin || it.Flags.NoTrade || it.Holder() != nil {
			continue
		}
		offer.AddItem(it)
	}
}

// SellPrice is what the vendor asks for it.
func (h *ShopHandler) SellPrice(env *Env, it *model.Item) int64 {
	bought, sold := h.market.Counts(it.Template)
	return pricing.ShopPrice(env.Items.ValueOf(it.Template), it.Quality, bought, sold, h.cfg.MinPriceModifier, h.cfg.MinPrice)
}

// BuyPrice is what the vendor pays for it.
func (h *ShopHandler) BuyPrice(env *Env, it *model.Item) int64 {
	sell := decimal.NewFromInt(h.SellPrice(env, it))
	return sell.Mul(decimal.NewFromFloat(h.cfg.BuyRatio)).Truncate(0).IntPart()
}

func (h *ShopHandler) Balance(s *Session) {
	// Coins offered by the customer are payment.
	pay := s.GivingOf(h.customer)
	for _, it := range s.OfferOf(h.customer).Items() {
		if it.Coin {
			pay.AddItem(it)
		}
	}

	var demand, credit int64
	for _, it := range s.RequestOf(h.customer).Items() {
		if it.Coin && it.Owner == model.EscrowOwner {
			continue
		}
		demand += h.SellPrice(s.env, it)
	}
	for _, it := range pay.Items() {
		if it.Coin {
			continue
		}
		credit += h.BuyPrice(s.env, it)
	}
	paid := pay.CoinValue()
	owed := demand - credit - paid

	if owed > 0 {
		s.SetChange(h.customer, 0)
		h.note(fmt.Sprintf("%s says: I need %d more coins for that.", h.vendor.Name(), owed))
		return
	}
	change := -owed
	if outflow := change - paid; outflow > 0 && s.env.Shops != nil && s.env.Shops.Money(h.vendor.ID()) < outflow {
		s.SetChange(h.customer, 0)
		h.note(fmt.Sprintf("%s says: I can not afford that right now.", h.vendor.Name()))
		return
	}
	s.SetChange(h.customer, change)
	h.lastNote = ""
	if !s.Satisfied(h.vendor) {
		_ = s.SetSatisfied(h.vendor, true, s.Rev())
	}
}

func (h *ShopHandler) note(text string) {
	if text == h.lastNote {
		return
	}
	h.lastNote = text
	h.customer.Notify(text)
}

func (h *ShopHandler) BeforeTransfer(*Session, *Window, *model.Item) bool { return false }
func (h *ShopHandler) AdmitSettlement(*Session) error                     { return nil }

func (h *ShopHandler) AfterSettlement(s *Session, res *Result) {
	for _, t := range res.Transferred {
		if t.Item.Coin {
			continue
		}
		switch {
		case t.From == h.vendor.ID():
			h.market.RecordSale(t.Item.Template)
		case t.To == h.vendor.ID():
			h.market.RecordPurchase(t.Item.Template)
		}
	}
}

func (h *ShopHandler) End(*Session) { h.lastNote = "" }
