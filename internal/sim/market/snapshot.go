package market

import (
	"fmt"
	"sort"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
)

// ExportSnapshot captures the market between ticks. Open sessions are not
// part of it: on restore every item is back in its owner's inventory.
func (m *Market) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, MarketID: m.cfg.ID, Tick: nowTick},
		TickRate:      m.cfg.Tuning.Market.TickRateHz,
		TuningDigest:  snapshot.Digest(m.cfg.Tuning),
		CatalogDigest: m.world.Catalog().DefsDigest,
	}
	m.world.ExportState(&snap)
	m.reg.Export(&snap, m.world)
	for id := range m.players {
		if c, ok := m.world.Creature(id); ok && c.Connected() {
			snap.Players = append(snap.Players, int64(id))
		}
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i] < snap.Players[j] })
	return snap
}

// FinalSnapshot exports the state after the last stepped tick, for use once
// Run has returned. Operator changes made since that step are in the state
// and will not reach the tick log.
func (m *Market) FinalSnapshot() snapshot.SnapshotV1 {
	t := m.tick.Load()
	if t > 0 {
		t--
	}
	m.pendingAdmin = nil
	return m.ExportSnapshot(t)
}

// ImportSnapshot loads snap into a market that has not run yet.
func (m *Market) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if m.reg.Len() > 0 || len(m.players) > 0 {
		return fmt.Errorf("import into a market that is already populated")
	}
	if snap.TuningDigest != "" && snap.TuningDigest != snapshot.Digest(m.cfg.Tuning) {
		m.logf("snapshot tick %d was taken under different tuning", snap.Header.Tick)
	}
	if snap.CatalogDigest != "" && snap.CatalogDigest != m.world.Catalog().DefsDigest {
		m.logf("snapshot tick %d was taken with a different item catalog", snap.Header.Tick)
	}
	if err := m.world.ImportState(snap); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	err := m.reg.Restore(snap, func(id model.PartyID) (host.Creature, bool) {
		c, ok := m.world.Creature(id)
		if !ok {
			return nil, false
		}
		return c, true
	}, m.world.SetMoney)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	m.tick.Store(snap.Header.Tick + 1)
	return nil
}
