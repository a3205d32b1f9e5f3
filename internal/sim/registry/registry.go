// Package registry owns every hired vendor of a market together with its
// workbook, supply/demand book, forge and audit logger. It is created by the
// process root and handed to the components that need it.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/crafter"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

var (
	ErrNotHired    = errors.New("vendor not hired")
	ErrHired       = errors.New("vendor already hired")
	ErrForgeTaken  = errors.New("forge assigned to another vendor")
	ErrNotCrafter  = errors.New("vendor is not a crafter")
	ErrUnknownKind = errors.New("unknown vendor kind")
)

// VendorLogger is a per-vendor audit trail.
type VendorLogger interface {
	trade.AuditLogger
	Close() error
}

type Deps struct {
	Items    host.Items
	Pages    workbook.PageStore
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Prices   *pricing.Table
	Alerts   crafter.AlertSink

	// NewVendorLogger opens the audit trail of a hired vendor. Nil disables
	// per-vendor trails.
	NewVendorLogger func(vendor model.PartyID) VendorLogger
	Logger          *log.Logger
}

// Entry is one hired vendor.
type Entry struct {
	Vendor     *trade.Vendor
	Controller model.PartyID

	Workshop *crafter.Workshop
	Market   *pricing.Market
	Audit    VendorLogger
}

// HireSpec describes a vendor being hired.
type HireSpec struct {
	Creature   host.Creature
	Kind       trade.VendorKind
	Controller model.PartyID

	// Crafter only.
	SkillCap float64
	Skills   []model.SkillID
}

type Registry struct {
	deps    Deps
	vendors map[model.PartyID]*Entry
	forges  map[model.ItemID]model.PartyID
}

func New(deps Deps) *Registry {
	return &Registry{
		deps:    deps,
		vendors: map[model.PartyID]*Entry{},
		forges:  map[model.ItemID]model.PartyID{},
	}
}

func (r *Registry) logf(format string, args ...any) {
	if r.deps.Logger != nil {
		r.deps.Logger.Printf(format, args...)
	}
}

// Hire sets up everything the vendor needs. A crafter's workbook is created,
// or loaded when one is already stored for this vendor.
func (r *Registry) Hire(spec HireSpec) (*Entry, error) {
	id := spec.Creature.ID()
	if _, ok := r.vendors[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrHired, id)
	}
	e := &Entry{
		Vendor:     trade.NewVendor(spec.Creature, spec.Kind),
		Controller: spec.Controller,
	}
	switch spec.Kind {
	case trade.VendorCrafter:
		ws, err := r.openWorkshop(id, spec)
		if err != nil {
			return nil, err
		}
		e.Workshop = ws
		if f := ws.Book.Header().Forge; f != model.NoForge {
			if owner, taken := r.forges[f]; taken && owner != id {
				r.logf("vendor %d: forge %d already belongs to %d, dropping it", id, f, owner)
				if err := ws.Book.SetForge(model.NoForge); err != nil {
					return nil, err
				}
			} else {
				r.forges[f] = id
			}
		}
	case trade.VendorTrader:
		e.Market = pricing.NewMarket()
	case trade.VendorMerchant:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	if r.deps.NewVendorLogger != nil {
		e.Audit = r.deps.NewVendorLogger(id)
	}
	r.vendors[id] = e
	r.logf("hired %s vendor %d (%s)", spec.Kind, id, spec.Creature.Name())
	return e, nil
}

func (r *Registry) openWorkshop(id model.PartyID, spec HireSpec) (*crafter.Workshop, error) {
	cfg := r.deps.Tuning.Crafter
	skillCap := spec.SkillCap
	if skillCap <= 0 {
		skillCap = cfg.DefaultSkillCap
	}
	book, err := workbook.Open(workbook.Options{
		Vendor:      id,
		Ledger:      r.deps.Tuning.Ledger,
		MaxSkillCap: cfg.MaxSkillCap,
		Init:        workbook.Header{SkillCap: skillCap, Forge: model.NoForge, Skills: spec.Skills},
		Store:       r.deps.Pages,
		Items:       r.deps.Items,
		Logger:      r.deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("vendor %d workbook: %w", id, err)
	}
	return &crafter.Workshop{
		Vendor:  id,
		Book:    book,
		Prices:  r.deps.Prices,
		Cfg:     cfg,
		Catalog: r.deps.Catalogs,
		Alerts:  r.deps.Alerts,
		Logger:  r.deps.Logger,
	}, nil
}

// Dismiss tears the vendor down: its stored ledger is deleted, its forge
// freed and its audit trail closed. The caller cancels any open session
// first.
func (r *Registry) Dismiss(id model.PartyID) error {
	e, ok := r.vendors[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotHired, id)
	}
	var errs []error
	if e.Workshop != nil {
		if err := e.Workshop.Book.Delete(); err != nil {
			errs = append(errs, fmt.Errorf("delete ledger: %w", err))
		}
	}
	for f, owner := range r.forges {
		if owner == id {
			delete(r.forges, f)
		}
	}
	if e.Audit != nil {
		if err := e.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit: %w", err))
		}
	}
	delete(r.vendors, id)
	r.logf("dismissed vendor %d", id)
	return errors.Join(errs...)
}

func (r *Registry) Get(id model.PartyID) (*Entry, bool) {
	e, ok := r.vendors[id]
	return e, ok
}

// Vendors returns every hired vendor ordered by id.
func (r *Registry) Vendors() []*Entry {
	out := make([]*Entry, 0, len(r.vendors))
	for _, e := range r.vendors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Vendor.ID() < out[j].Vendor.ID() })
	return out
}

func (r *Registry) Len() int { return len(r.vendors) }

// Workshop is the lookup the crafter handler factory uses.
func (r *Registry) Workshop(id model.PartyID) (*crafter.Workshop, bool) {
	e, ok := r.vendors[id]
	if !ok || e.Workshop == nil {
		return nil, false
	}
	return e.Workshop, true
}

// Market is the lookup the shop handler factory uses.
func (r *Registry) Market(id model.PartyID) *pricing.Market {
	if e, ok := r.vendors[id]; ok {
		return e.Market
	}
	return nil
}

// AssignForge gives forge to a crafter. A forge serves one crafter at a time.
func (r *Registry) AssignForge(vendor model.PartyID, forge model.ItemID) error {
	e, ok := r.vendors[vendor]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotHired, vendor)
	}
	if e.Workshop == nil {
		return fmt.Errorf("%w: %d", ErrNotCrafter, vendor)
	}
	if owner, taken := r.forges[forge]; taken && owner != vendor {
		return fmt.Errorf("%w: forge %d, vendor %d", ErrForgeTaken, forge, owner)
	}
	prev := e.Workshop.Book.Header().Forge
	if err := e.Workshop.Book.SetForge(forge); err != nil {
		return err
	}
	if prev != model.NoForge {
		delete(r.forges, prev)
	}
	r.forges[forge] = vendor
	return nil
}

// ReleaseForge unassigns whatever forge the crafter holds.
func (r *Registry) ReleaseForge(vendor model.PartyID) error {
	e, ok := r.vendors[vendor]
	if !ok || e.Workshop == nil {
		return fmt.Errorf("%w: %d", ErrNotCrafter, vendor)
	}
	prev := e.Workshop.Book.Header().Forge
	if prev == model.NoForge {
		return nil
	}
	if err := e.Workshop.Book.SetForge(model.NoForge); err != nil {
		return err
	}
	delete(r.forges, prev)
	return nil
}

// ForgeOwner reports which crafter a forge is assigned to.
func (r *Registry) ForgeOwner(forge model.ItemID) (model.PartyID, bool) {
	v, ok := r.forges[forge]
	return v, ok
}

// WriteAudit routes a trade audit entry to its vendor's trail.
func (r *Registry) WriteAudit(e trade.AuditEntry) error {
	v, ok := r.vendors[e.Vendor]
	if !ok || v.Audit == nil {
		return nil
	}
	return v.Audit.WriteAudit(e)
}

// RegisterHandlers installs the crafter and shop negotiation handlers on f.
func (r *Registry) RegisterHandlers(f *trade.Factory) {
	crafter.Register(f, r.Workshop)
	f.Register(trade.VendorTrader, trade.NewShopConstructor(r.Market, r.deps.Tuning.Pricing))
}

// Close closes every audit trail.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.vendors {
		if e.Audit != nil {
			errs = append(errs, e.Audit.Close())
		}
	}
	return errors.Join(errs...)
}

// Export writes vendors and market books into snap.
func (r *Registry) Export(snap *snapshot.SnapshotV1, shops host.Shops) {
	snap.Vendors = snap.Vendors[:0]
	snap.Markets = snap.Markets[:0]
	for _, e := range r.Vendors() {
		id := e.Vendor.ID()
		v := snapshot.VendorV1{
			ID:         int64(id),
			Kind:       string(e.Vendor.Kind),
			Controller: int64(e.Controller),
			Forge:      int64(model.NoForge),
		}
		if shops != nil {
			v.Money = shops.Money(id)
		}
		if e.Workshop != nil {
			v.Forge = int64(e.Workshop.Book.Header().Forge)
			header, pages := e.Workshop.Book.Pages()
			v.Ledger = &snapshot.LedgerV1{Header: header, Pages: pages}
		}
		snap.Vendors = append(snap.Vendors, v)
		if e.Market != nil {
			mv := snapshot.MarketV1{Vendor: int64(id)}
			for _, row := range e.Market.Rows() {
				mv.Counts = append(mv.Counts, snapshot.TemplateCountV1{Template: string(row.Template), Bought: row.Bought, Sold: row.Sold})
			}
			snap.Markets = append(snap.Markets, mv)
		}
	}
}

// Restore re-hires the vendors of snap. creature resolves each vendor id to
// its restored host creature; crafter workbooks are loaded from the page
// store.
func (r *Registry) Restore(snap snapshot.SnapshotV1, creature func(model.PartyID) (host.Creature, bool), setMoney func(model.PartyID, int64)) error {
	for _, v := range snap.Vendors {
		id := model.PartyID(v.ID)
		c, ok := creature(id)
		if !ok {
			return fmt.Errorf("vendor %d: %w", id, host.ErrNoSuchParty)
		}
		if _, err := r.Hire(HireSpec{Creature: c, Kind: trade.VendorKind(v.Kind), Controller: model.PartyID(v.Controller)}); err != nil {
			return err
		}
		if setMoney != nil {
			setMoney(id, v.Money)
		}
	}
	for _, mv := range snap.Markets {
		m := r.Market(model.PartyID(mv.Vendor))
		if m == nil {
			r.logf("snapshot market for %d has no trader, skipped", mv.Vendor)
			continue
		}
		for _, c := range mv.Counts {
			m.Set(model.TemplateID(c.Template), c.Bought, c.Sold)
		}
	}
	return nil
}

// SeedPages writes the ledger copies carried by snap into store, for
// restoring a snapshot away from its page store.
func SeedPages(store workbook.PageStore, snap snapshot.SnapshotV1) error {
	for _, v := range snap.Vendors {
		if v.Ledger == nil {
			continue
		}
		if err := store.SavePages(model.PartyID(v.ID), v.Ledger.Header, v.Ledger.Pages); err != nil {
			return fmt.Errorf("vendor %d: %w", v.ID, err)
		}
	}
	return nil
}
