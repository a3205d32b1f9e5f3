package memhost

import (
	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
)

type CreatureSpec struct {
	ID          model.PartyID
	Name        string
	Interactive bool
	// MaxCarryGrams of 0 means unlimited.
	MaxCarryGrams int
	// MaxSlots of 0 means unlimited.
	MaxSlots int
}

type Creature struct {
	w *World

	id            model.PartyID
	name          string
	interactive   bool
	maxCarryGrams int
	maxSlots      int

	connected bool
	dead      bool
	trading   bool

	Messages []string
	Events   []protocol.Event

	// Sink, when set, receives every event as it is emitted.
	Sink func(protocol.Event)
}

var _ host.Creature = (*Creature)(nil)

func (w *World) AddCreature(spec CreatureSpec) *Creature {
	c := &Creature{
		w:             w,
		id:            spec.ID,
		name:          spec.Name,
		interactive:   spec.Interactive,
		maxCarryGrams: spec.MaxCarryGrams,
		maxSlots:      spec.MaxSlots,
		connected:     true,
	}
	w.creatures[spec.ID] = c
	return c
}

func (w *World) Creature(id model.PartyID) (*Creature, bool) {
	c, ok := w.creatures[id]
	return c, ok
}

func (c *Creature) ID() model.PartyID { return c.id }
func (c *Creature) Name() string      { return c.name }
func (c *Creature) Connected() bool   { return c.connected }
func (c *Creature) Dead() bool        { return c.dead }
func (c *Creature) Interactive() bool { return c.interactive }
func (c *Creature) Trading() bool     { return c.trading }
func (c *Creature) StartTrading()     { c.trading = true }
func (c *Creature) EndTrading()       { c.trading = false }

func (c *Creature) SetConnected(v bool) { c.connected = v }
func (c *Creature) SetDead(v bool)      { c.dead = v }

func (c *Creature) CanCarry(grams int) bool {
	if c.maxCarryGrams <= 0 || grams <= 0 {
		return true
	}
	return c.w.carriedGrams(c.id)+grams <= c.maxCarryGrams
}

func (c *Creature) FreeSlots() int {
	if c.maxSlots <= 0 {
		return 1 << 30
	}
	free := c.maxSlots - len(c.w.inv[c.id])
	if free < 0 {
		return 0
	}
	return free
}

func (c *Creature) Notify(text string) {
	c.Messages = append(c.Messages, text)
	c.AddEvent(protocol.Event{"type": protocol.EventMessage, "text": text})
}

func (c *Creature) AddEvent(e protocol.Event) {
	c.Events = append(c.Events, e)
	if c.Sink != nil {
		c.Sink(e)
	}
}

// DrainEvents returns and clears the buffered events.
func (c *Creature) DrainEvents() []protocol.Event {
	out := c.Events
	c.Events = nil
	return out
}

// LastMessage returns the newest notification or "".
func (c *Creature) LastMessage() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1]
}
