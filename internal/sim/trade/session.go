package trade

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/tuning"
)

var (
	ErrClosed        = errors.New("trade session closed")
	ErrNotParty      = errors.New("not a party to this trade")
	ErrSelfTrade     = errors.New("cannot trade with self")
	ErrBusy          = errors.New("party already trading")
	ErrUnavailable   = errors.New("party cannot trade right now")
	ErrStaleRevision = errors.New("stale trade revision")
	ErrRejected      = errors.New("rejected")
	ErrBadMove       = errors.New("items may only move between an offer and its paired request window")
)

type AuditEntry struct {
	Session string        `json:"session"`
	Vendor  model.PartyID `json:"vendor,omitempty"`
	Party   model.PartyID `json:"party,omitempty"`
	Action  string        `json:"action"`
	Item    model.ItemID  `json:"item,omitempty"`
	Amount  int64         `json:"amount,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// Env bundles the host services a session works against.
type Env struct {
	Items       host.Items
	Controllers host.Controllers
	Treasury    host.Treasury
	Shops       host.Shops
	Revenue     tuning.Revenue
	Handlers    *Factory

	Logger *log.Logger
	Audit  AuditLogger
}

type State int

const (
	StateOpen State = iota
	StateSettled
	StateCancelled
)

func (st State) String() string {
	switch st {
	case StateOpen:
		return "OPEN"
	case StateSettled:
		return "SETTLED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("STATE(%d)", int(st))
	}
}

// Session is a pairwise negotiation. B is the vendor side whenever one of
// the parties is a vendor.
type Session struct {
	id  string
	env *Env

	a, b      Party
	windows   [4]*Window
	satisfied [2]bool
	rev       uint64

	handler   Handler
	state     State
	balancing bool
	settling  bool
	result    *Result
}

// Begin opens a session between initiator and target and puts both into the
// trading state.
func Begin(env *Env, initiator, target Party) (*Session, error) {
	if initiator == nil || target == nil {
		return nil, ErrNotParty
	}
	if initiator.ID() == target.ID() {
		return nil, ErrSelfTrade
	}
	for _, p := range []Party{initiator, target} {
		if p.Trading() {
			return nil, fmt.Errorf("%w: %s", ErrBusy, p.Name())
		}
		if !connectable(p) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, p.Name())
		}
	}

	a, b := initiator, target
	if _, ok := AsVendor(a); ok {
		if _, ok := AsVendor(b); !ok {
			a, b = b, a
		}
	}

	s := &Session{id: uuid.NewString(), env: env, a: a, b: b}
	s.windows[OfferOfA] = &Window{kind: OfferOfA, s: s, owner: a, watcher: b}
	s.windows[OfferOfB] = &Window{kind: OfferOfB, s: s, owner: b, watcher: a}
	s.windows[RequestOfA] = &Window{kind: RequestOfA, s: s, owner: b, watcher: a}
	s.windows[RequestOfB] = &Window{kind: RequestOfB, s: s, owner: a, watcher: b}

	h, err := env.Handlers.For(env, a, b)
	if err != nil {
		return nil, err
	}
	s.handler = h

	a.StartTrading()
	b.StartTrading()
	s.emit(protocol.EventTradeStarted, protocol.Event{
		"a":   int64(a.ID()),
		"b":   int64(b.ID()),
		"rev": s.rev,
	})
	s.audit(AuditEntry{Party: initiator.ID(), Action: "START"})

	h.Start(s)
	s.Balance()
	return s, nil
}

func connectable(p Party) bool {
	if !p.Interactive() {
		return true
	}
	return p.Connected() && !p.Dead()
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Env() *Env        { return s.env }
func (s *Session) A() Party         { return s.a }
func (s *Session) B() Party         { return s.b }
func (s *Session) Rev() uint64      { return s.rev }
func (s *Session) State() State     { return s.state }
func (s *Session) Open() bool       { return s.state == StateOpen }
func (s *Session) Handler() Handler { return s.handler }

// Result is the outcome of the settlement, nil until settled.
func (s *Session) Result() *Result { return s.result }

func (s *Session) Window(k WindowKind) *Window { return s.windows[k] }

func (s *Session) side(p Party) int {
	switch {
	case p == nil:
		return -1
	case p.ID() == s.a.ID():
		return 0
	case p.ID() == s.b.ID():
		return 1
	default:
		return -1
	}
}

// Party returns the session party with the given id.
func (s *Session) Party(id model.PartyID) (Party, bool) {
	switch id {
	case s.a.ID():
		return s.a, true
	case s.b.ID():
		return s.b, true
	}
	return nil, false
}

func (s *Session) Other(p Party) Party {
	if s.side(p) == 0 {
		return s.b
	}
	return s.a
}

// OfferOf is the window p displays items in.
func (s *Session) OfferOf(p Party) *Window {
	if s.side(p) == 0 {
		return s.windows[OfferOfA]
	}
	return s.windows[OfferOfB]
}

// RequestOf is the window holding what p will receive.
func (s *Session) RequestOf(p Party) *Window {
	if s.side(p) == 0 {
		return s.windows[RequestOfA]
	}
	return s.windows[RequestOfB]
}

// GivingOf is the window holding what p will give.
func (s *Session) GivingOf(p Party) *Window { return s.RequestOf(s.Other(p)) }

func (s *Session) Satisfied(p Party) bool {
	i := s.side(p)
	return i >= 0 && s.satisfied[i]
}

func (s *Session) member(p Party) error {
	if s.state != StateOpen {
		return ErrClosed
	}
	if s.side(p) < 0 {
		return ErrNotParty
	}
	return nil
}

func (s *Session) reject(actor Party, reason string) error {
	actor.Notify(reason)
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

// Offer places an item from actor's inventory into actor's offer window.
func (s *Session) Offer(actor Party, id model.ItemID) error {
	if err := s.member(actor); err != nil {
		return err
	}
	it, ok := s.env.Items.Item(id)
	if !ok {
		return s.reject(actor, "That item does not exist.")
	}
	w := s.OfferOf(actor)
	if ok, reason := w.MayAddFromInventory(actor, it); !ok {
		return s.reject(actor, reason)
	}
	w.AddItem(it)
	s.Balance()
	return nil
}

// Move shifts an item between an offer window and the request window its
// owner gives from, in either direction.
func (s *Session) Move(actor Party, id model.ItemID, to WindowKind) error {
	if err := s.member(actor); err != nil {
		return err
	}
	if to < OfferOfA || to > RequestOfB {
		return ErrBadMove
	}
	it, ok := s.env.Items.Item(id)
	if !ok {
		return s.reject(actor, "That item does not exist.")
	}
	if p, ok := Nested(it); ok {
		return s.reject(actor, fmt.Sprintf("Take the %s out of the %s first.", it.Name, p.Name))
	}
	from, ok := it.Holder().(*Window)
	if !ok || from == nil || from.s != s || !from.Contains(it) {
		return s.reject(actor, "That item is not part of this trade.")
	}
	dest := s.windows[to]
	if from == dest {
		return nil
	}
	if from.IsOffer() == dest.IsOffer() || from.owner.ID() != dest.owner.ID() {
		return ErrBadMove
	}
	dest.AddItem(it)
	s.Balance()
	return nil
}

// Withdraw takes an item actor gives back out of the trade.
func (s *Session) Withdraw(actor Party, id model.ItemID) error {
	if err := s.member(actor); err != nil {
		return err
	}
	it, ok := s.env.Items.Item(id)
	if !ok {
		return s.reject(actor, "That item does not exist.")
	}
	if p, ok := Nested(it); ok {
		return s.reject(actor, fmt.Sprintf("Take the %s out of the %s first.", it.Name, p.Name))
	}
	w, ok := it.Holder().(*Window)
	if !ok || w == nil || w.s != s || !w.Contains(it) {
		return s.reject(actor, "That item is not part of this trade.")
	}
	if w.owner.ID() != actor.ID() {
		return s.reject(actor, "You can only take back your own items.")
	}
	w.RemoveItem(it)
	s.Balance()
	return nil
}

// SetSatisfied records p's agreement to the windows as of asOfRev. A stale
// revision leaves both flags untouched. When both parties agree the session
// attempts settlement.
func (s *Session) SetSatisfied(p Party, v bool, asOfRev uint64) error {
	if err := s.member(p); err != nil {
		return err
	}
	if asOfRev != s.rev {
		return fmt.Errorf("%w: got %d, current %d", ErrStaleRevision, asOfRev, s.rev)
	}
	i := s.side(p)
	if s.satisfied[i] == v {
		return nil
	}
	s.satisfied[i] = v
	s.emit(protocol.EventTradeSatisfied, protocol.Event{
		"party":     int64(p.ID()),
		"satisfied": v,
		"rev":       s.rev,
	})
	if s.satisfied[0] && s.satisfied[1] && !s.settling {
		s.trySettle(p)
	}
	return nil
}

// Balance asks the handler to re-evaluate. Nested calls made while the
// handler is running are ignored.
func (s *Session) Balance() {
	if s.state != StateOpen || s.balancing || s.settling {
		return
	}
	s.balancing = true
	defer func() { s.balancing = false }()
	s.handler.Balance(s)
}

// Cancel tears the whole session down. Every item goes back to free use and
// minted coins return to the mint. by may be nil for system cancels.
func (s *Session) Cancel(by Party, reason string) {
	if s.state != StateOpen {
		return
	}
	s.state = StateCancelled
	for _, k := range []WindowKind{RequestOfA, RequestOfB, OfferOfA, OfferOfB} {
		s.windows[k].clear()
	}
	s.satisfied = [2]bool{}

	ev := protocol.Event{"reason": reason}
	entry := AuditEntry{Action: "CANCEL", Reason: reason}
	if by != nil {
		ev["by"] = int64(by.ID())
		entry.Party = by.ID()
	}
	s.emitClosed(protocol.EventTradeCancelled, ev)
	if reason != "" {
		s.a.Notify(reason)
		s.b.Notify(reason)
	}
	s.audit(entry)
	s.release()
}

func (s *Session) release() {
	s.handler.End(s)
	s.a.EndTrading()
	s.b.EndTrading()
}

// SetChange makes the minted coins in to's request window add up to amount.
// Existing change is kept when it already matches.
func (s *Session) SetChange(to Party, amount int64) {
	w := s.RequestOf(to)
	var current int64
	var minted []*model.Item
	for _, it := range w.items {
		if it.Coin && it.Owner == model.EscrowOwner {
			current += it.CoinValue
			minted = append(minted, it)
		}
	}
	if current == amount {
		return
	}
	for _, c := range minted {
		w.RemoveItem(c)
	}
	for _, c := range s.env.Items.CoinsFor(amount) {
		w.AddItem(c)
	}
}

// ChangeValue is the value of minted coins waiting for to.
func (s *Session) ChangeValue(to Party) int64 {
	var total int64
	for _, it := range s.RequestOf(to).items {
		if it.Coin && it.Owner == model.EscrowOwner {
			total += it.CoinValue
		}
	}
	return total
}

func (s *Session) itemAdded(w *Window, it *model.Item) {
	if s.state != StateOpen {
		return
	}
	s.emit(protocol.EventTradeItemAdded, protocol.Event{
		"window": w.kind.String(),
		"item":   int64(it.ID),
		"name":   it.Name,
	})
	if !w.IsOffer() {
		s.invalidate()
	}
}

func (s *Session) itemRemoved(w *Window, it *model.Item) {
	if s.state != StateOpen {
		return
	}
	s.emit(protocol.EventTradeItemRemoved, protocol.Event{
		"window": w.kind.String(),
		"item":   int64(it.ID),
	})
	if !w.IsOffer() {
		s.invalidate()
	}
}

// invalidate clears both satisfaction flags and bumps the revision.
func (s *Session) invalidate() {
	if s.settling {
		return
	}
	s.satisfied = [2]bool{}
	s.rev++
	s.emit(protocol.EventTradeChanged, protocol.Event{"rev": s.rev})
}

func (s *Session) emit(typ string, ev protocol.Event) {
	if s.state != StateOpen {
		return
	}
	s.emitClosed(typ, ev)
}

func (s *Session) emitClosed(typ string, ev protocol.Event) {
	for _, p := range []Party{s.a, s.b} {
		e := protocol.Event{"type": typ, "session": s.id}
		for k, v := range ev {
			e[k] = v
		}
		p.AddEvent(e)
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.env.Logger != nil {
		s.env.Logger.Printf("trade %s: "+format, append([]any{s.id}, args...)...)
	}
}

func (s *Session) audit(e AuditEntry) {
	if s.env.Audit == nil {
		return
	}
	e.Session = s.id
	if v, ok := AsVendor(s.b); ok {
		e.Vendor = v.ID()
	}
	if err := s.env.Audit.WriteAudit(e); err != nil {
		s.logf("audit write: %v", err)
	}
}
