package market

import (
	"errors"
	"sort"

	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/trade"
)

func (m *Market) step(joins []JoinRequest, leaves []model.PartyID, actions []ActionEnvelope) {
	nowTick := m.tick.Load()
	mt := m.cfg.Tuning.Market

	recordedLeaves := make([]model.PartyID, 0, len(leaves))
	for _, id := range leaves {
		if m.leaveParty(id) {
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]JoinRecord, 0, len(joins))
	for _, req := range joins {
		resp := m.joinParty(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.Err == "" {
			recordedJoins = append(recordedJoins, JoinRecord{PartyID: req.PartyID, Name: req.Name})
		}
	}

	// Acts apply in inbox order.
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		p, ok := m.players[env.PartyID]
		if !ok {
			continue
		}
		for i, inst := range env.Act.Instants {
			if mt.ActMaxPerTick > 0 && i >= mt.ActMaxPerTick {
				p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBusy, "too many instants in one act"))
				continue
			}
			recorded = append(recorded, RecordedAction{PartyID: env.PartyID, Act: inst})
			m.applyInstant(p, inst, nowTick)
		}
	}

	if every := mt.BalanceEveryTicks; every > 0 && nowTick%uint64(every) == 0 {
		m.balanceSessions()
	}
	if every := m.cfg.Tuning.Pricing.DecayEveryTicks; every > 0 && nowTick != 0 && nowTick%uint64(every) == 0 {
		for _, e := range m.reg.Vendors() {
			if e.Market != nil {
				e.Market.Decay()
			}
		}
	}

	m.flush(nowTick)

	admin := m.pendingAdmin
	m.pendingAdmin = nil
	if m.tickLogger != nil && (len(admin) > 0 || len(recordedJoins) > 0 || len(recordedLeaves) > 0 || len(recorded) > 0) {
		if err := m.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			Admin:    admin,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Actions:  recorded,
			Sessions: m.openSessions(),
		}); err != nil {
			m.logf("tick log: %v", err)
		}
	}

	if every := mt.SnapshotEveryTicks; m.snapshotSink != nil && every > 0 && nowTick != 0 && nowTick%uint64(every) == 0 {
		snap := m.ExportSnapshot(nowTick)
		select {
		case m.snapshotSink <- snap:
		default:
			m.logf("snapshot sink busy, tick %d skipped", nowTick)
		}
	}
	if len(m.snapWaiters) > 0 {
		snap := m.ExportSnapshot(nowTick)
		for _, ch := range m.snapWaiters {
			ch <- snap
		}
		m.snapWaiters = nil
	}

	m.tick.Add(1)
}

// StepOnce advances one tick with the same ordering as Run.
func (m *Market) StepOnce(joins []JoinRequest, leaves []model.PartyID, actions []ActionEnvelope) uint64 {
	tick := m.tick.Load()
	m.step(joins, leaves, actions)
	return tick
}

// balanceSessions re-runs negotiation on every open session and cancels
// those whose interactive party is gone.
func (m *Market) balanceSessions() {
	for _, s := range m.uniqueSessions() {
		for _, p := range []trade.Party{s.A(), s.B()} {
			if p.Interactive() && (!p.Connected() || p.Dead()) {
				s.Cancel(nil, p.Name()+" withdrew from the trade.")
				break
			}
		}
		if s.Open() {
			s.Balance()
		}
		m.forget(s)
	}
}

func (m *Market) uniqueSessions() []*trade.Session {
	seen := map[*trade.Session]bool{}
	var out []*trade.Session
	for _, s := range m.sessions {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (m *Market) openSessions() int { return len(m.uniqueSessions()) }

func (m *Market) applyInstant(p *trade.Player, inst protocol.InstantReq, nowTick uint64) {
	fail := func(code, msg string) {
		p.AddEvent(actionResult(nowTick, inst.ID, false, code, msg))
	}

	if inst.Type == protocol.InstantTradeRequest {
		if _, busy := m.sessions[p.ID()]; busy {
			fail(protocol.ErrBusy, "already trading")
			return
		}
		target, ok := m.Party(model.PartyID(inst.With))
		if !ok {
			fail(protocol.ErrPartyNotFound, "no such party")
			return
		}
		s, err := trade.Begin(m.env, p, target)
		if err != nil {
			code, msg := errorCode(err)
			fail(code, msg)
			return
		}
		m.sessions[s.A().ID()] = s
		m.sessions[s.B().ID()] = s
		res := actionResult(nowTick, inst.ID, true, "", "trade started")
		res["session"] = s.ID()
		res["rev"] = s.Rev()
		p.AddEvent(res)
		return
	}

	s, ok := m.sessions[p.ID()]
	if !ok {
		fail(protocol.ErrInvalidTarget, "not trading")
		return
	}
	defer m.forget(s)

	var err error
	switch inst.Type {
	case protocol.InstantTradeOffer:
		err = s.Offer(p, model.ItemID(inst.Item))
	case protocol.InstantTradeMove:
		to, ok := trade.ParseWindowKind(inst.To)
		if !ok {
			fail(protocol.ErrBadRequest, "unknown window")
			return
		}
		err = s.Move(p, model.ItemID(inst.Item), to)
	case protocol.InstantTradeWithdraw:
		err = s.Withdraw(p, model.ItemID(inst.Item))
	case protocol.InstantTradeAccept:
		err = s.SetSatisfied(p, true, inst.Rev)
	case protocol.InstantTradeUnaccept:
		err = s.SetSatisfied(p, false, inst.Rev)
	case protocol.InstantTradeCancel:
		s.Cancel(p, p.Name()+" cancelled the trade.")
	default:
		fail(protocol.ErrBadRequest, "unknown instant type")
		return
	}
	if err != nil {
		code, msg := errorCode(err)
		fail(code, msg)
		return
	}
	res := actionResult(nowTick, inst.ID, true, "", "ok")
	res["rev"] = s.Rev()
	res["state"] = s.State().String()
	p.AddEvent(res)
}

// errorCode maps trade errors onto wire codes.
func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, trade.ErrStaleRevision):
		return protocol.ErrStale, err.Error()
	case errors.Is(err, trade.ErrBusy):
		return protocol.ErrBusy, err.Error()
	case errors.Is(err, trade.ErrUnavailable):
		return protocol.ErrBlocked, err.Error()
	case errors.Is(err, trade.ErrRejected):
		return protocol.ErrNoPermission, err.Error()
	case errors.Is(err, trade.ErrSelfTrade), errors.Is(err, trade.ErrBadMove):
		return protocol.ErrBadRequest, err.Error()
	case errors.Is(err, trade.ErrClosed), errors.Is(err, trade.ErrNotParty):
		return protocol.ErrInvalidTarget, err.Error()
	default:
		return protocol.ErrInternal, err.Error()
	}
}

func actionResult(tick uint64, ref string, ok bool, code, message string) protocol.Event {
	e := protocol.Event{
		"t":    tick,
		"type": protocol.EventActionResult,
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}
