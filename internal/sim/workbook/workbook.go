// Package workbook is the persisted work-order ledger of a crafter vendor.
// The ledger lives in a header page plus a bounded number of overflow pages
// and is rewritten wholesale on every change.
package workbook

import (
	"errors"
	"fmt"
	"log"

	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/tuning"
)

var (
	ErrLedgerFull    = errors.New("the work ledger is full")
	ErrDuplicateItem = errors.New("item already in the work ledger")
	ErrNoSuchJob     = errors.New("no such job")
	ErrHeaderTooLong = errors.New("ledger header exceeds the page size")
)

// PageStore persists the rendered pages of each vendor's ledger.
type PageStore interface {
	LoadPages(vendor model.PartyID) (header string, pages []string, found bool, err error)
	SavePages(vendor model.PartyID, header string, pages []string) error
	DeletePages(vendor model.PartyID) error
}

type Options struct {
	Vendor model.PartyID
	Ledger tuning.Ledger
	// MaxSkillCap is the server-wide ceiling for job targets.
	MaxSkillCap float64
	// Init is the header of a ledger that does not exist yet.
	Init Header

	Store PageStore
	// Items is used to mail back items referenced by damaged records.
	Items  host.Items
	Logger *log.Logger
}

type WorkBook struct {
	vendor model.PartyID
	cfg    tuning.Ledger
	maxQL  float64
	codec  Codec
	store  PageStore
	items  host.Items
	logger *log.Logger

	header Header
	jobs   []Job
}

// Open loads the vendor's ledger, or creates it from opts.Init. Damaged
// records are dropped and logged, items they still name are mailed back to
// the customer, and a healed ledger is written back immediately.
func Open(opts Options) (*WorkBook, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("workbook: nil page store")
	}
	cfg := opts.Ledger
	if cfg.PageChars <= 0 {
		cfg.PageChars = 500
	}
	if cfg.MaxOverflowPages <= 0 {
		cfg.MaxOverflowPages = 9
	}
	maxQL := opts.MaxSkillCap
	if maxQL <= 0 || maxQL > 100 {
		maxQL = 100
	}
	b := &WorkBook{
		vendor: opts.Vendor,
		cfg:    cfg,
		maxQL:  maxQL,
		codec:  CodecFor(cfg.Format),
		store:  opts.Store,
		items:  opts.Items,
		logger: opts.Logger,
	}

	header, pages, found, err := opts.Store.LoadPages(opts.Vendor)
	if err != nil {
		return nil, fmt.Errorf("workbook %d: load: %w", opts.Vendor, err)
	}
	if !found {
		h := opts.Init.clone()
		if h.Forge == 0 {
			h.Forge = model.NoForge
		}
		h.SkillCap = b.clampQL(h.SkillCap)
		if err := b.commit(h, nil); err != nil {
			return nil, err
		}
		return b, nil
	}
	if err := b.load(header, pages); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *WorkBook) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf("workbook %d: "+format, append([]any{b.vendor}, args...)...)
	}
}

func (b *WorkBook) load(header string, pages []string) error {
	stored := Detect(header)
	h, lines, herr := stored.Parse(header, pages)
	dirty := stored.Name() != b.codec.Name()
	if herr != nil {
		b.logf("header damaged, keeping readable fields: %v", herr)
		dirty = true
		if h.Forge == 0 {
			h.Forge = model.NoForge
		}
	}
	if h.SkillCap > b.maxQL {
		h.SkillCap = b.maxQL
		dirty = true
	}

	seen := map[model.ItemID]bool{}
	var jobs []Job
	for _, ln := range lines {
		if ln.Err != nil {
			dirty = true
			b.logf("dropping damaged record %q: %v", ln.Raw, ln.Err)
			if ln.Ref {
				b.mailBack(ln.Customer, ln.Item)
			}
			continue
		}
		j := ln.Job
		if seen[j.Item] {
			dirty = true
			b.logf("dropping duplicate record for item %d", j.Item)
			continue
		}
		seen[j.Item] = true
		if j.Donation {
			j.TargetQL = h.SkillCap
		} else if j.TargetQL > b.maxQL {
			j.TargetQL = b.maxQL
			dirty = true
		}
		jobs = append(jobs, j)
	}

	b.header, b.jobs = h, jobs
	if !dirty {
		return nil
	}
	if err := b.commit(h, jobs); err != nil {
		// A ledger that only loads past the page budget stays in memory as
		// read; later changes that shrink it will persist.
		if errors.Is(err, ErrLedgerFull) {
			b.logf("healed ledger does not fit the page budget: %v", err)
			return nil
		}
		return fmt.Errorf("workbook %d: re-persist: %w", b.vendor, err)
	}
	b.logf("ledger healed and re-persisted")
	return nil
}

func (b *WorkBook) mailBack(customer model.PartyID, id model.ItemID) {
	if b.items == nil {
		b.logf("cannot mail item %d back to %d: no item provider", id, customer)
		return
	}
	it, ok := b.items.Item(id)
	if !ok {
		b.logf("cannot mail item %d back to %d: item gone", id, customer)
		return
	}
	if err := b.items.MailTo(customer, it); err != nil {
		b.logf("mail item %d to %d: %v", id, customer, err)
		return
	}
	b.logf("mailed item %d back to %d", id, customer)
}

func (b *WorkBook) clampQL(q float64) float64 {
	if q < 0 {
		return 0
	}
	if q > b.maxQL {
		return b.maxQL
	}
	return q
}

func (b *WorkBook) render(h Header, jobs []Job) (string, []string, error) {
	header, pages := b.codec.Render(h, jobs, b.cfg.PageChars)
	if len(header) > b.cfg.PageChars {
		return "", nil, ErrHeaderTooLong
	}
	if len(pages) > b.cfg.MaxOverflowPages {
		return "", nil, fmt.Errorf("%w: needs %d pages, %d allowed", ErrLedgerFull, len(pages), b.cfg.MaxOverflowPages)
	}
	return header, pages, nil
}

// commit renders and saves; the in-memory ledger only changes on success.
func (b *WorkBook) commit(h Header, jobs []Job) error {
	header, pages, err := b.render(h, jobs)
	if err != nil {
		return err
	}
	if err := b.store.SavePages(b.vendor, header, pages); err != nil {
		return fmt.Errorf("workbook %d: save: %w", b.vendor, err)
	}
	b.header, b.jobs = h, jobs
	return nil
}

func (b *WorkBook) withJobs(extra ...Job) []Job {
	out := make([]Job, 0, len(b.jobs)+len(extra))
	out = append(out, b.jobs...)
	return append(out, extra...)
}

func (b *WorkBook) index(item model.ItemID) int {
	for i, j := range b.jobs {
		if j.Item == item {
			return i
		}
	}
	return -1
}

func (b *WorkBook) normalize(j Job) Job {
	if j.Donation {
		j.Customer = model.NoParty
		j.Price = 0
		j.Mail = false
		j.TargetQL = b.header.SkillCap
		return j
	}
	j.TargetQL = b.clampQL(j.TargetQL)
	return j
}

// AddJob appends a customer job. Its target is clamped to the server cap.
func (b *WorkBook) AddJob(j Job) error {
	j.Donation = false
	return b.add(j)
}

func (b *WorkBook) AddDonation(item model.ItemID) error {
	return b.add(Job{Item: item, Donation: true})
}

func (b *WorkBook) add(j Job) error {
	if b.index(j.Item) >= 0 {
		return fmt.Errorf("%w: %d", ErrDuplicateItem, j.Item)
	}
	return b.commit(b.header, b.withJobs(b.normalize(j)))
}

// RemoveJob drops the record of item.
func (b *WorkBook) RemoveJob(item model.ItemID) (Job, error) {
	i := b.index(item)
	if i < 0 {
		return Job{}, fmt.Errorf("%w: item %d", ErrNoSuchJob, item)
	}
	removed := b.jobs[i]
	jobs := make([]Job, 0, len(b.jobs)-1)
	jobs = append(jobs, b.jobs[:i]...)
	jobs = append(jobs, b.jobs[i+1:]...)
	if err := b.commit(b.header, jobs); err != nil {
		return Job{}, err
	}
	return removed, nil
}

func (b *WorkBook) SetDone(item model.ItemID) error {
	i := b.index(item)
	if i < 0 {
		return fmt.Errorf("%w: item %d", ErrNoSuchJob, item)
	}
	if b.jobs[i].Done {
		return nil
	}
	jobs := b.withJobs()
	jobs[i].Done = true
	return b.commit(b.header, jobs)
}

func (b *WorkBook) SetForge(forge model.ItemID) error {
	h := b.header.clone()
	h.Forge = forge
	return b.commit(h, b.jobs)
}

// SetSkillCap changes the vendor cap. Donation targets follow it.
func (b *WorkBook) SetSkillCap(skillCap float64) error {
	h := b.header.clone()
	h.SkillCap = b.clampQL(skillCap)
	jobs := b.withJobs()
	for i := range jobs {
		if jobs[i].Donation {
			jobs[i].TargetQL = h.SkillCap
		}
	}
	return b.commit(h, jobs)
}

// HasEnoughSpaceFor reports whether the pending jobs would still fit the
// page budget if they were all added.
func (b *WorkBook) HasEnoughSpaceFor(pending ...Job) bool {
	extra := make([]Job, len(pending))
	for i, j := range pending {
		extra[i] = b.normalize(j)
	}
	_, _, err := b.render(b.header, b.withJobs(extra...))
	return err == nil
}

// Delete removes the persisted ledger, for a dismissed vendor.
func (b *WorkBook) Delete() error {
	b.jobs = nil
	return b.store.DeletePages(b.vendor)
}

func (b *WorkBook) Vendor() model.PartyID { return b.vendor }
func (b *WorkBook) Header() Header        { return b.header.clone() }
func (b *WorkBook) Codec() Codec          { return b.codec }
func (b *WorkBook) Len() int              { return len(b.jobs) }

func (b *WorkBook) Jobs() []Job { return b.withJobs() }

func (b *WorkBook) JobsFor(customer model.PartyID) []Job {
	var out []Job
	for _, j := range b.jobs {
		if !j.Donation && j.Customer == customer {
			out = append(out, j)
		}
	}
	return out
}

func (b *WorkBook) Find(item model.ItemID) (Job, bool) {
	if i := b.index(item); i >= 0 {
		return b.jobs[i], true
	}
	return Job{}, false
}

// Next is the oldest unfinished customer job, else the oldest unfinished
// donation.
func (b *WorkBook) Next() (Job, bool) {
	var donation *Job
	for i := range b.jobs {
		j := &b.jobs[i]
		if j.Done {
			continue
		}
		if !j.Donation {
			return *j, true
		}
		if donation == nil {
			donation = j
		}
	}
	if donation != nil {
		return *donation, true
	}
	return Job{}, false
}

// Pages renders the current ledger as stored.
func (b *WorkBook) Pages() (header string, pages []string) {
	return b.codec.Render(b.header, b.jobs, b.cfg.PageChars)
}
