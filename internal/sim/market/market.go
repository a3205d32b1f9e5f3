// Package market is the tick-serialized runtime of one marketplace. A single
// goroutine owns every session, party and vendor; transports and the admin
// API reach it only through channels.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/registry"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
)

type Config struct {
	ID     string
	Tuning tuning.Tuning
}

type JoinRequest struct {
	PartyID model.PartyID
	Name    string
	Out     chan []byte
	Resp    chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     string
}

type ActionEnvelope struct {
	PartyID model.PartyID
	Act     protocol.ActMsg
}

type RecordedAction struct {
	PartyID model.PartyID       `json:"party_id"`
	Act     protocol.InstantReq `json:"act"`
}

type JoinRecord struct {
	PartyID model.PartyID `json:"party_id"`
	Name    string        `json:"name,omitempty"`
}

// TickLogEntry is one stepped tick that did work. Admin holds the operator
// changes made since the previous step; they apply before the tick's joins.
type TickLogEntry struct {
	Tick     uint64           `json:"tick"`
	Admin    []AdminOp        `json:"admin,omitempty"`
	Joins    []JoinRecord     `json:"joins,omitempty"`
	Leaves   []model.PartyID  `json:"leaves,omitempty"`
	Actions  []RecordedAction `json:"actions,omitempty"`
	Sessions int              `json:"sessions"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type adminReq struct {
	fn   func(m *Market) error
	resp chan error
}

type Market struct {
	cfg    Config
	world  *memhost.World
	reg    *registry.Registry
	env    *trade.Env
	logger *log.Logger

	players  map[model.PartyID]*trade.Player
	sessions map[model.PartyID]*trade.Session
	clients  map[model.PartyID]chan []byte

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan model.PartyID
	admin chan adminReq
	stop  chan struct{}

	tick         atomic.Uint64
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1

	pendingAdmin []AdminOp
	snapWaiters  []chan snapshot.SnapshotV1
}

// New wires the market around an existing host world and registry. The
// registry's handlers are installed on env.Handlers.
func New(cfg Config, world *memhost.World, reg *registry.Registry, env *trade.Env, logger *log.Logger) *Market {
	if env.Handlers == nil {
		env.Handlers = trade.NewFactory()
	}
	reg.RegisterHandlers(env.Handlers)
	if env.Audit == nil {
		env.Audit = reg
	}
	return &Market{
		cfg:      cfg,
		world:    world,
		reg:      reg,
		env:      env,
		logger:   logger,
		players:  map[model.PartyID]*trade.Player{},
		sessions: map[model.PartyID]*trade.Session{},
		clients:  map[model.PartyID]chan []byte{},
		inbox:    make(chan ActionEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan model.PartyID, 64),
		admin:    make(chan adminReq, 64),
		stop:     make(chan struct{}),
	}
}

func (m *Market) SetTickLogger(l TickLogger)                    { m.tickLogger = l }
func (m *Market) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { m.snapshotSink = ch }

func (m *Market) Inbox() chan<- ActionEnvelope { return m.inbox }
func (m *Market) Join() chan<- JoinRequest     { return m.join }
func (m *Market) Leave() chan<- model.PartyID  { return m.leave }

func (m *Market) CurrentTick() uint64 { return m.tick.Load() }
func (m *Market) ID() string          { return m.cfg.ID }

// World, Registry and Env are for use inside Do and by tests.
func (m *Market) World() *memhost.World        { return m.world }
func (m *Market) Registry() *registry.Registry { return m.reg }
func (m *Market) Env() *trade.Env              { return m.env }

func (m *Market) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

func (m *Market) Run(ctx context.Context) error {
	hz := m.cfg.Tuning.Market.TickRateHz
	if hz <= 0 {
		hz = 5
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []model.PartyID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return nil
		case req := <-m.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-m.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-m.inbox:
			pendingActions = append(pendingActions, env)
		case req := <-m.admin:
			req.resp <- req.fn(m)
		case <-ticker.C:
			m.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (m *Market) Stop() { close(m.stop) }

// Do runs fn on the market goroutine between ticks.
func (m *Market) Do(ctx context.Context, fn func(m *Market) error) error {
	req := adminReq{fn: fn, resp: make(chan error, 1)}
	select {
	case m.admin <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestSnapshot asks for a snapshot at the end of the next step and waits
// for it.
func (m *Market) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	ch := make(chan snapshot.SnapshotV1, 1)
	err := m.Do(ctx, func(m *Market) error {
		m.snapWaiters = append(m.snapWaiters, ch)
		return nil
	})
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

// Party resolves a hired vendor or a joined player.
func (m *Market) Party(id model.PartyID) (trade.Party, bool) {
	if e, ok := m.reg.Get(id); ok {
		return e.Vendor, true
	}
	if p, ok := m.players[id]; ok {
		return p, true
	}
	return nil, false
}

// Session returns the open session id is part of.
func (m *Market) Session(id model.PartyID) (*trade.Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Market) joinParty(req JoinRequest) JoinResponse {
	if _, vendor := m.reg.Get(req.PartyID); vendor {
		return JoinResponse{Err: fmt.Sprintf("party %d is a vendor", req.PartyID)}
	}
	c, ok := m.world.Creature(req.PartyID)
	if !ok {
		name := req.Name
		if name == "" {
			name = fmt.Sprintf("party-%d", req.PartyID)
		}
		c = m.world.AddCreature(memhost.CreatureSpec{ID: req.PartyID, Name: name, Interactive: true})
	}
	c.SetConnected(true)
	if _, ok := m.players[req.PartyID]; !ok {
		m.players[req.PartyID] = trade.NewPlayer(c)
	}
	if req.Out != nil {
		m.clients[req.PartyID] = req.Out
	}
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PartyID:         int64(req.PartyID),
		Name:            c.Name(),
		Tick:            m.tick.Load(),
	}}
}

func (m *Market) leaveParty(id model.PartyID) bool {
	p, ok := m.players[id]
	if !ok {
		return false
	}
	if c, ok := m.world.Creature(id); ok {
		c.SetConnected(false)
	}
	if s, ok := m.sessions[id]; ok {
		s.Cancel(nil, fmt.Sprintf("%s withdrew from the trade.", p.Name()))
		m.forget(s)
	}
	delete(m.clients, id)
	return true
}

// forget drops a closed session from the party index.
func (m *Market) forget(s *trade.Session) {
	if s.Open() {
		return
	}
	for _, p := range []trade.Party{s.A(), s.B()} {
		if m.sessions[p.ID()] == s {
			delete(m.sessions, p.ID())
		}
	}
}

// flush delivers buffered events to connected clients. Vendors have no
// client; their events are discarded.
func (m *Market) flush(nowTick uint64) {
	for id, p := range m.players {
		c, ok := p.Creature.(*memhost.Creature)
		if !ok {
			continue
		}
		events := c.DrainEvents()
		out := m.clients[id]
		if out == nil || len(events) == 0 {
			continue
		}
		b, err := json.Marshal(protocol.EventsMsg{
			Type:            protocol.TypeEvents,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			PartyID:         int64(id),
			Events:          events,
		})
		if err != nil {
			continue
		}
		sendLatest(out, b)
	}
	for _, e := range m.reg.Vendors() {
		if c, ok := e.Vendor.Creature.(*memhost.Creature); ok {
			c.DrainEvents()
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
