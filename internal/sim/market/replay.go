package market

import (
	"fmt"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/model"
)

// RejoinPlayers re-registers the parties that were connected when snap was
// taken. They have no client, so their events are dropped.
func (m *Market) RejoinPlayers(snap snapshot.SnapshotV1) error {
	for _, id := range snap.Players {
		if resp := m.joinParty(JoinRequest{PartyID: model.PartyID(id)}); resp.Err != "" {
			return fmt.Errorf("rejoin %d: %s", id, resp.Err)
		}
	}
	return nil
}

// Replay steps a restored market through logged ticks. Entries before the
// current tick are skipped and ticks with no entry are stepped empty, so
// balancing and price decay keep their schedule. A non-zero toTick stops
// after that tick. It returns how many entries were applied.
//
// Open sessions are not in snapshots, so a replay that starts from a
// snapshot taken mid-trade diverges; the logged session count catches it.
func (m *Market) Replay(entries []TickLogEntry, toTick uint64) (int, error) {
	applied := 0
	for _, e := range entries {
		if e.Tick < m.tick.Load() {
			continue
		}
		if toTick != 0 && e.Tick > toTick {
			break
		}
		for m.tick.Load() < e.Tick {
			m.step(nil, nil, nil)
		}
		for _, op := range e.Admin {
			if err := m.ApplyAdmin(op); err != nil {
				return applied, fmt.Errorf("tick %d: %s: %w", e.Tick, op.Op, err)
			}
		}
		joins := make([]JoinRequest, 0, len(e.Joins))
		for _, j := range e.Joins {
			joins = append(joins, JoinRequest{PartyID: j.PartyID, Name: j.Name})
		}
		// One instant per envelope keeps the per-act cap out of the way;
		// the log only holds instants that passed it.
		actions := make([]ActionEnvelope, 0, len(e.Actions))
		for _, a := range e.Actions {
			actions = append(actions, ActionEnvelope{
				PartyID: a.PartyID,
				Act:     protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Instants: []protocol.InstantReq{a.Act}},
			})
		}
		m.step(joins, e.Leaves, actions)
		applied++
		if got := m.openSessions(); got != e.Sessions {
			return applied, fmt.Errorf("tick %d: %d open sessions, log says %d", e.Tick, got, e.Sessions)
		}
	}
	for toTick != 0 && m.tick.Load() <= toTick {
		m.step(nil, nil, nil)
	}
	return applied, nil
}
