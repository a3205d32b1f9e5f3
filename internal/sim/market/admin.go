package market

import (
	"fmt"

	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/registry"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/workbook"
)

// These run on the market goroutine, from Do or from tests between steps.
// Each successful change is queued as an AdminOp for the next tick log entry
// so a replay can reproduce it.

type AdminOpKind string

const (
	OpHire         AdminOpKind = "HIRE"
	OpDismiss      AdminOpKind = "DISMISS"
	OpGive         AdminOpKind = "GIVE"
	OpFinishJob    AdminOpKind = "FINISH_JOB"
	OpAssignForge  AdminOpKind = "ASSIGN_FORGE"
	OpReleaseForge AdminOpKind = "RELEASE_FORGE"
	OpSetSkillCap  AdminOpKind = "SET_SKILL_CAP"
)

type AdminOp struct {
	Op       AdminOpKind      `json:"op"`
	Hire     *HireRequest     `json:"hire,omitempty"`
	Party    model.PartyID    `json:"party,omitempty"`
	Template model.TemplateID `json:"template,omitempty"`
	Item     model.ItemID     `json:"item,omitempty"`
	QL       float64          `json:"ql,omitempty"`
}

type HireRequest struct {
	ID         model.PartyID    `json:"id"`
	Name       string           `json:"name"`
	Kind       trade.VendorKind `json:"kind"`
	Controller model.PartyID    `json:"controller,omitempty"`
	SkillCap   float64          `json:"skill_cap,omitempty"`
	Skills     []model.SkillID  `json:"skills,omitempty"`
	MaxSlots   int              `json:"max_slots,omitempty"`
}

func (m *Market) record(op AdminOp) { m.pendingAdmin = append(m.pendingAdmin, op) }

func (m *Market) Hire(req HireRequest) (*registry.Entry, error) {
	if _, ok := m.players[req.ID]; ok {
		return nil, fmt.Errorf("party %d is a player", req.ID)
	}
	c, ok := m.world.Creature(req.ID)
	if !ok {
		c = m.world.AddCreature(memhost.CreatureSpec{ID: req.ID, Name: req.Name, MaxSlots: req.MaxSlots})
	}
	e, err := m.reg.Hire(registry.HireSpec{
		Creature:   c,
		Kind:       req.Kind,
		Controller: req.Controller,
		SkillCap:   req.SkillCap,
		Skills:     req.Skills,
	})
	if err != nil {
		return nil, err
	}
	r := req
	r.Skills = append([]model.SkillID(nil), req.Skills...)
	m.record(AdminOp{Op: OpHire, Hire: &r})
	return e, nil
}

// Dismiss cancels the vendor's open trade before tearing it down.
func (m *Market) Dismiss(id model.PartyID) error {
	if _, ok := m.reg.Get(id); !ok {
		return fmt.Errorf("%w: %d", registry.ErrNotHired, id)
	}
	if s, ok := m.sessions[id]; ok {
		s.Cancel(nil, "The vendor has been dismissed.")
		m.forget(s)
	}
	// The vendor is gone even when ledger cleanup reports an error.
	err := m.reg.Dismiss(id)
	m.record(AdminOp{Op: OpDismiss, Party: id})
	return err
}

// Give creates an item in a party's inventory.
func (m *Market) Give(party model.PartyID, tpl model.TemplateID, ql float64) (*model.Item, error) {
	if _, ok := m.world.Creature(party); !ok {
		return nil, fmt.Errorf("party %d: unknown", party)
	}
	it, err := m.world.Give(party, tpl, ql)
	if err != nil {
		return nil, err
	}
	m.record(AdminOp{Op: OpGive, Party: party, Template: tpl, QL: ql})
	return it, nil
}

// FinishJob reports crafting progress on a job item.
func (m *Market) FinishJob(vendor model.PartyID, item model.ItemID, ql float64) (workbook.Job, error) {
	ws, ok := m.reg.Workshop(vendor)
	if !ok {
		return workbook.Job{}, fmt.Errorf("%w: %d", registry.ErrNotCrafter, vendor)
	}
	job, err := ws.FinishJob(m.world, item, ql)
	if err != nil {
		return job, err
	}
	m.record(AdminOp{Op: OpFinishJob, Party: vendor, Item: item, QL: ql})
	return job, nil
}

func (m *Market) AssignForge(vendor model.PartyID, forge model.ItemID) error {
	if err := m.reg.AssignForge(vendor, forge); err != nil {
		return err
	}
	m.record(AdminOp{Op: OpAssignForge, Party: vendor, Item: forge})
	return nil
}

func (m *Market) ReleaseForge(vendor model.PartyID) error {
	if err := m.reg.ReleaseForge(vendor); err != nil {
		return err
	}
	m.record(AdminOp{Op: OpReleaseForge, Party: vendor})
	return nil
}

func (m *Market) SetSkillCap(vendor model.PartyID, skillCap float64) error {
	ws, ok := m.reg.Workshop(vendor)
	if !ok {
		return fmt.Errorf("%w: %d", registry.ErrNotCrafter, vendor)
	}
	if err := ws.Book.SetSkillCap(skillCap); err != nil {
		return err
	}
	m.record(AdminOp{Op: OpSetSkillCap, Party: vendor, QL: skillCap})
	return nil
}

// ApplyAdmin re-runs a recorded operator change.
func (m *Market) ApplyAdmin(op AdminOp) error {
	switch op.Op {
	case OpHire:
		if op.Hire == nil {
			return fmt.Errorf("%s: missing hire request", op.Op)
		}
		_, err := m.Hire(*op.Hire)
		return err
	case OpDismiss:
		return m.Dismiss(op.Party)
	case OpGive:
		_, err := m.Give(op.Party, op.Template, op.QL)
		return err
	case OpFinishJob:
		_, err := m.FinishJob(op.Party, op.Item, op.QL)
		return err
	case OpAssignForge:
		return m.AssignForge(op.Party, op.Item)
	case OpReleaseForge:
		return m.ReleaseForge(op.Party)
	case OpSetSkillCap:
		return m.SetSkillCap(op.Party, op.QL)
	default:
		return fmt.Errorf("unknown admin op %q", op.Op)
	}
}

type VendorStatus struct {
	ID       model.PartyID    `json:"id"`
	Name     string           `json:"name"`
	Kind     trade.VendorKind `json:"kind"`
	Money    int64            `json:"money"`
	Trading  bool             `json:"trading"`
	SkillCap float64          `json:"skill_cap,omitempty"`
	Forge    model.ItemID     `json:"forge,omitempty"`
	Skills   []model.SkillID  `json:"skills,omitempty"`
	Jobs     []workbook.Job   `json:"jobs,omitempty"`
	Pages    int              `json:"pages,omitempty"`
	Format   string           `json:"format,omitempty"`
}

func (m *Market) Status(id model.PartyID) (VendorStatus, bool) {
	e, ok := m.reg.Get(id)
	if !ok {
		return VendorStatus{}, false
	}
	st := VendorStatus{
		ID:      id,
		Name:    e.Vendor.Name(),
		Kind:    e.Vendor.Kind,
		Money:   m.world.Money(id),
		Trading: e.Vendor.Trading(),
	}
	if ws := e.Workshop; ws != nil {
		h := ws.Book.Header()
		st.SkillCap, st.Forge, st.Skills = h.SkillCap, h.Forge, h.Skills
		st.Jobs = ws.Book.Jobs()
		_, pages := ws.Book.Pages()
		st.Pages = len(pages)
		st.Format = ws.Book.Codec().Name()
	}
	return st, true
}

func (m *Market) Statuses() []VendorStatus {
	var out []VendorStatus
	for _, e := range m.reg.Vendors() {
		if st, ok := m.Status(e.Vendor.ID()); ok {
			out = append(out, st)
		}
	}
	return out
}
