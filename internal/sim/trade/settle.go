package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
)

var ErrBlocked = errors.New("transfer blocked")

type Transfer struct {
	Item *model.Item
	From model.PartyID
	To   model.PartyID
}

type Failure struct {
	Item   model.ItemID
	Name   string
	Reason string
}

// Result summarizes a settlement. Per-item failures do not undo transfers
// that already happened.
type Result struct {
	Transferred []Transfer
	Consumed    []*model.Item
	Failed      []Failure

	MoneyAdded int64
	MoneyLost  int64
	KingCut    int64
	UpkeepCut  int64
}

// ReceivedBy lists the items that ended up with party.
func (r *Result) ReceivedBy(party model.PartyID) []*model.Item {
	var out []*model.Item
	for _, t := range r.Transferred {
		if t.To == party {
			out = append(out, t.Item)
		}
	}
	return out
}

func (r *Result) Net() int64 { return r.MoneyAdded - r.MoneyLost }

// trySettle runs the admission gate and, when it passes, settles. Nothing
// changes owner unless every check passes.
func (s *Session) trySettle(initiator Party) {
	for _, p := range []Party{s.a, s.b} {
		if !connectable(p) {
			s.Cancel(nil, fmt.Sprintf("%s withdrew from the trade.", p.Name()))
			return
		}
	}
	if reason := s.admit(); reason != "" {
		s.satisfied = [2]bool{}
		s.emit(protocol.EventTradeSatisfied, protocol.Event{
			"satisfied": false,
			"rev":       s.rev,
			"reason":    reason,
		})
		s.a.Notify(reason)
		s.b.Notify(reason)
		s.audit(AuditEntry{Party: initiator.ID(), Action: "SETTLE_REFUSED", Reason: reason})
		return
	}
	s.settle(initiator)
}

func (s *Session) admit() string {
	for _, k := range []WindowKind{RequestOfA, RequestOfB} {
		w := s.windows[k]
		if !w.HasInventorySpace() {
			return fmt.Sprintf("%s does not have enough room in the inventory.", w.watcher.Name())
		}
	}
	for _, p := range []Party{s.a, s.b} {
		diff := s.RequestOf(p).WeightGrams() - s.GivingOf(p).WeightGrams()
		if diff > 0 && !p.CanCarry(diff) {
			return fmt.Sprintf("%s can not carry that much.", p.Name())
		}
	}
	for _, k := range []WindowKind{RequestOfA, RequestOfB} {
		if err := s.windows[k].ValidateTrade(); err != nil {
			s.logf("validation failed for %s: %v", k, err)
			return "Some items changed owner during the trade. Please check the windows and try again."
		}
	}
	if err := s.handler.AdmitSettlement(s); err != nil {
		return err.Error()
	}
	return ""
}

func (s *Session) settle(initiator Party) {
	s.settling = true
	res := &Result{}
	for _, k := range []WindowKind{RequestOfA, RequestOfB} {
		s.swapOwners(s.windows[k], res)
	}
	s.applyMoney(res)
	s.result = res

	s.state = StateSettled
	s.windows[OfferOfA].clear()
	s.windows[OfferOfB].clear()
	s.handler.AfterSettlement(s, res)
	s.settling = false

	s.emitClosed(protocol.EventTradeDone, protocol.Event{
		"transferred": len(res.Transferred),
		"failed":      len(res.Failed),
		"rev":         s.rev,
	})
	if len(res.Failed) > 0 {
		initiator.Notify("Not all items were traded.")
	}
	s.audit(AuditEntry{Party: initiator.ID(), Action: "SETTLE", Amount: res.Net()})
	s.release()
}

// swapOwners moves every item of a request window from its owner to its
// watcher, in window order.
func (s *Session) swapOwners(w *Window, res *Result) {
	giver, receiver := w.owner, w.watcher
	for _, it := range w.Items() {
		w.detach(it)
		if s.handler.BeforeTransfer(s, w, it) {
			res.Consumed = append(res.Consumed, it)
			continue
		}
		if err := s.transfer(giver, receiver, it, res); err != nil {
			s.logf("item %d (%s) from %d to %d not transferred: %v", it.ID, it.Name, giver.ID(), receiver.ID(), err)
			res.Failed = append(res.Failed, Failure{Item: it.ID, Name: it.Name, Reason: err.Error()})
			s.audit(AuditEntry{Party: giver.ID(), Action: "TRANSFER_FAILED", Item: it.ID, Reason: err.Error()})
			continue
		}
		res.Transferred = append(res.Transferred, Transfer{Item: it, From: giver.ID(), To: receiver.ID()})
		s.audit(AuditEntry{Party: receiver.ID(), Action: "TRANSFER", Item: it.ID, Amount: it.CoinValue})
	}
}

func (s *Session) transfer(giver, receiver Party, it *model.Item, res *Result) error {
	if _, ok := s.env.Items.Item(it.ID); !ok {
		return host.ErrNoSuchItem
	}
	if it.Flags.Royal {
		return fmt.Errorf("%w: royal items stay with their owner", ErrBlocked)
	}
	minted := it.Coin && it.Owner == model.EscrowOwner
	if !minted && it.Owner != giver.ID() {
		return ErrOwnership
	}
	if it.Deed != nil {
		if s.env.Controllers == nil {
			return fmt.Errorf("%w: no controller registry", ErrBlocked)
		}
		if err := s.env.Controllers.ReassignController(it.Deed.Subject, receiver.ID()); err != nil {
			return fmt.Errorf("deed for %d: %w", it.Deed.Subject, err)
		}
	}
	if !minted {
		if err := s.env.Items.TakeFromInventory(giver.ID(), it); err != nil {
			if !errors.Is(err, host.ErrNoContainer) {
				return err
			}
			s.logf("item %d had no container at %d", it.ID, giver.ID())
		}
	}

	if it.Coin {
		value := it.CoinValue
		absorbed, err := receiver.ReceiveCoin(s.env, it)
		if err != nil {
			s.restore(giver, it, minted)
			return err
		}
		if v, ok := AsVendor(giver); ok && v.Shop() {
			res.MoneyLost += value
		}
		if absorbed {
			res.MoneyAdded += value
		}
		return nil
	}
	if err := receiver.ReceiveGoods(s.env, it); err != nil {
		s.restore(giver, it, false)
		return err
	}
	return nil
}

func (s *Session) restore(giver Party, it *model.Item, minted bool) {
	if minted {
		s.env.Items.ReturnCoin(it)
		return
	}
	if err := s.env.Items.InsertIntoInventory(giver.ID(), it); err != nil {
		s.logf("item %d could not be returned to %d: %v", it.ID, giver.ID(), err)
	}
}

// applyMoney books the net coin flow on the vendor shop and splits positive
// revenue to the treasury.
func (s *Session) applyMoney(res *Result) {
	v, ok := AsVendor(s.b)
	if !ok || !v.Shop() || s.env.Shops == nil {
		return
	}
	net := res.Net()
	if net > 0 && s.env.Treasury != nil {
		n := decimal.NewFromInt(net)
		hundred := decimal.NewFromInt(100)
		res.KingCut = n.Mul(decimal.NewFromFloat(s.env.Revenue.KingPct)).Div(hundred).Truncate(0).IntPart()
		res.UpkeepCut = n.Mul(decimal.NewFromFloat(s.env.Revenue.UpkeepPct)).Div(hundred).Truncate(0).IntPart()
		if res.KingCut > 0 {
			s.env.Treasury.DepositKing(res.KingCut)
		}
		if res.UpkeepCut > 0 {
			s.env.Treasury.DepositUpkeep(res.UpkeepCut)
		}
	}
	if delta := net - res.KingCut - res.UpkeepCut; delta != 0 {
		s.env.Shops.AdjustMoney(v.ID(), delta)
	}
}
