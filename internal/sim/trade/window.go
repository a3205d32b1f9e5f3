package trade

import (
	"errors"
	"fmt"

	"barterforge.ai/internal/sim/model"
)

type WindowKind int

const (
	OfferOfA WindowKind = iota
	OfferOfB
	RequestOfA
	RequestOfB
)

func (k WindowKind) String() string {
	switch k {
	case OfferOfA:
		return "OFFER_A"
	case OfferOfB:
		return "OFFER_B"
	case RequestOfA:
		return "REQUEST_A"
	case RequestOfB:
		return "REQUEST_B"
	default:
		return fmt.Sprintf("WINDOW(%d)", int(k))
	}
}

func ParseWindowKind(s string) (WindowKind, bool) {
	for k := OfferOfA; k <= RequestOfB; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

func (k WindowKind) IsOffer() bool { return k == OfferOfA || k == OfferOfB }

var (
	ErrNotTradable    = errors.New("item cannot be traded")
	ErrNotWindowOwner = errors.New("not the window owner")
	ErrAlreadyHeld    = errors.New("item already in a trade window")
	ErrOwnership      = errors.New("item not owned by the giving party")
)

// Window is one of the four item buckets of a session.
//
// An offer window belongs to the party displaying the items. A request window
// RequestOfX holds what X asks for: its owner is the other party, who gives,
// and its watcher is X, who receives.
type Window struct {
	kind    WindowKind
	s       *Session
	owner   Party
	watcher Party
	items   []*model.Item
}

func (w *Window) HolderID() string { return w.s.id + "/" + w.kind.String() }

func (w *Window) Kind() WindowKind { return w.kind }
func (w *Window) Owner() Party     { return w.owner }
func (w *Window) Watcher() Party   { return w.watcher }
func (w *Window) IsOffer() bool    { return w.kind.IsOffer() }

// Items returns the top-level items in the window.
func (w *Window) Items() []*model.Item {
	return append([]*model.Item(nil), w.items...)
}

func (w *Window) Len() int { return len(w.items) }

// Contains reports whether it is a top-level item of the window. Contents of
// a container share its holder but are not listed on their own.
func (w *Window) Contains(it *model.Item) bool {
	if it == nil || it.Holder() != model.Holder(w) {
		return false
	}
	p := it.Parent()
	return p == nil || p.Holder() != model.Holder(w)
}

// Nested reports the container it sits in when that container is in a
// trade window. Such an item only moves with its container.
func Nested(it *model.Item) (*model.Item, bool) {
	p := it.Parent()
	if p == nil || p.Holder() == nil {
		return nil, false
	}
	return p, true
}

// MayAddFromInventory checks whether actor may place it from its inventory
// into this window. The returned reason is meant for the actor.
func (w *Window) MayAddFromInventory(actor Party, it *model.Item) (bool, string) {
	if it == nil {
		return false, "That item does not exist."
	}
	if it.Flags.NoTrade {
		return false, fmt.Sprintf("The %s can not be traded.", it.Name)
	}
	if actor == nil || actor.ID() != w.owner.ID() {
		return false, "You may only add items to your own side of the trade."
	}
	if it.Owner != actor.ID() {
		return false, fmt.Sprintf("You do not own the %s.", it.Name)
	}
	held := false
	it.Walk(func(x *model.Item) {
		if x.Holder() != nil {
			held = true
		}
	})
	if held {
		if it.Holder() == nil {
			return false, fmt.Sprintf("The %s holds items that are already in a trade.", it.Name)
		}
		return false, fmt.Sprintf("The %s is already in a trade.", it.Name)
	}
	if w.IsOffer() {
		for _, c := range it.Contents() {
			bad := false
			c.Walk(func(x *model.Item) {
				if x.Flags.NoTrade {
					bad = true
				}
			})
			if bad {
				return false, fmt.Sprintf("The %s contains items that can not be traded.", it.Name)
			}
		}
	}
	return true, ""
}

// AddItem attaches it and its contents to this window, taking them from any
// window that held them, including windows that list one of the contents on
// its own. Request-window changes invalidate the session.
func (w *Window) AddItem(it *model.Item) {
	if it == nil || w.Contains(it) {
		return
	}
	it.Walk(func(x *model.Item) {
		if prev, ok := x.Holder().(*Window); ok && prev != nil {
			prev.detach(x)
		}
	})
	it.Walk(func(x *model.Item) { x.SetHolder(w) })
	w.items = append(w.items, it)
	w.s.itemAdded(w, it)
}

// RemoveItem detaches it from the window. Minted coins go back to the mint.
func (w *Window) RemoveItem(it *model.Item) {
	if !w.detach(it) {
		return
	}
	if it.Coin && it.Owner == model.EscrowOwner {
		w.s.env.Items.ReturnCoin(it)
	}
}

func (w *Window) detach(it *model.Item) bool {
	idx := -1
	for i, x := range w.items {
		if x == it {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	w.items = append(w.items[:idx], w.items[idx+1:]...)
	it.Walk(func(x *model.Item) {
		if x.Holder() == model.Holder(w) {
			x.SetHolder(nil)
		}
	})
	w.s.itemRemoved(w, it)
	return true
}

// WeightGrams is the total weight of everything in the window.
func (w *Window) WeightGrams() int {
	total := 0
	for _, it := range w.items {
		total += it.TotalWeight()
	}
	return total
}

// CoinValue sums the coins at any depth in the window.
func (w *Window) CoinValue() int64 {
	var total int64
	for _, it := range w.items {
		it.Walk(func(x *model.Item) {
			if x.Coin {
				total += x.CoinValue
			}
		})
	}
	return total
}

// HasInventorySpace checks the watcher can take every top-level item. Only
// request windows materialize into an inventory.
func (w *Window) HasInventorySpace() bool {
	if w.IsOffer() {
		return true
	}
	need := 0
	for _, it := range w.items {
		if it.Option != nil {
			continue
		}
		need++
	}
	return need == 0 || w.watcher.FreeSlots() >= need
}

// ValidateTrade checks every item is still owned by the window owner. Minted
// coins are accepted when a vendor gives them.
func (w *Window) ValidateTrade() error {
	_, ownerIsVendor := AsVendor(w.owner)
	for _, it := range w.items {
		var bad *model.Item
		it.Walk(func(x *model.Item) {
			if bad != nil {
				return
			}
			if x.Owner == w.owner.ID() {
				return
			}
			if ownerIsVendor && x.Coin && x.Owner == model.EscrowOwner {
				return
			}
			bad = x
		})
		if bad != nil {
			return fmt.Errorf("%w: %s (%d)", ErrOwnership, bad.Name, bad.ID)
		}
	}
	return nil
}

func (w *Window) clear() {
	for len(w.items) > 0 {
		w.RemoveItem(w.items[len(w.items)-1])
	}
}
