// Package crafter is the vendor that takes items in and improves them for a
// fee. Its negotiation runs as a trade.Handler; accepted work goes into the
// vendor's workbook.
package crafter

import (
	"fmt"
	"log"
	"strings"

	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

const (
	SeverityInfo = "INFO"
	SeverityHigh = "HIGH"
)

// Alert is a message for the administrator channel.
type Alert struct {
	Severity string        `json:"severity"`
	Vendor   model.PartyID `json:"vendor"`
	Customer model.PartyID `json:"customer,omitempty"`
	Item     model.ItemID  `json:"item,omitempty"`
	Refund   int64         `json:"refund,omitempty"`
	Message  string        `json:"message"`
}

type AlertSink interface {
	Alert(a Alert) error
}

// Workshop is everything one crafter vendor works with.
type Workshop struct {
	Vendor  model.PartyID
	Book    *workbook.WorkBook
	Prices  *pricing.Table
	Cfg     tuning.Crafter
	Catalog *catalogs.Catalogs

	Alerts AlertSink
	Logger *log.Logger
}

func (w *Workshop) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf("crafter %d: "+format, append([]any{w.Vendor}, args...)...)
	}
}

func (w *Workshop) alert(a Alert) {
	a.Vendor = w.Vendor
	w.logf("ALERT %s: %s (customer %d item %d refund %d)", a.Severity, a.Message, a.Customer, a.Item, a.Refund)
	if w.Alerts == nil {
		return
	}
	if err := w.Alerts.Alert(a); err != nil {
		w.logf("alert write: %v", err)
	}
}

// SkillOf is the skill a template is improved with, 0 when none.
func (w *Workshop) SkillOf(tpl model.TemplateID) model.SkillID {
	if w.Catalog == nil {
		return 0
	}
	if d, ok := w.Catalog.Items.Def(tpl); ok {
		return d.Skill
	}
	return 0
}

func (w *Workshop) SkillName(id model.SkillID) string {
	if w.Catalog == nil {
		return fmt.Sprintf("skill %d", id)
	}
	return w.Catalog.Skills.Name(id)
}

func (w *Workshop) restricted(material string) bool {
	for _, m := range w.Cfg.RestrictedMaterials {
		if strings.EqualFold(m, material) {
			return true
		}
	}
	return false
}

func (w *Workshop) blocked(tpl model.TemplateID) bool {
	for _, b := range w.Cfg.BlockedTemplates {
		if b == tpl {
			return true
		}
	}
	return false
}

// FinishJob records that item reached ql. A job that reached its target is
// marked done; when the customer asked for mail it is sent and the job is
// closed. Finished donations leave the ledger and stay with the vendor.
func (w *Workshop) FinishJob(items host.Items, item model.ItemID, ql float64) (workbook.Job, error) {
	j, ok := w.Book.Find(item)
	if !ok {
		return workbook.Job{}, fmt.Errorf("%w: item %d", workbook.ErrNoSuchJob, item)
	}
	it, ok := items.Item(item)
	if !ok {
		return j, fmt.Errorf("item %d: %w", item, host.ErrNoSuchItem)
	}
	if ql > it.Quality {
		it.Quality = ql
	}
	if it.Quality < j.TargetQL {
		return j, nil
	}
	if j.Donation {
		if _, err := w.Book.RemoveJob(item); err != nil {
			return j, err
		}
		j.Done = true
		w.logf("donation %d finished at %.2fql", item, it.Quality)
		return j, nil
	}
	if err := w.Book.SetDone(item); err != nil {
		return j, err
	}
	j.Done = true
	if !j.Mail {
		return j, nil
	}
	if err := items.MailTo(j.Customer, it); err != nil {
		w.logf("mail finished item %d to %d: %v", item, j.Customer, err)
		return j, nil
	}
	if _, err := w.Book.RemoveJob(item); err != nil {
		return j, err
	}
	w.logf("finished item %d mailed to %d", item, j.Customer)
	return j, nil
}

// NewConstructor builds crafter handlers for the trade factory.
func NewConstructor(lookup func(model.PartyID) (*Workshop, bool)) trade.Constructor {
	return func(env *trade.Env, vendor *trade.Vendor, customer trade.Party) (trade.Handler, error) {
		w, ok := lookup(vendor.ID())
		if !ok || w.Book == nil {
			return nil, fmt.Errorf("vendor %d has no workshop", vendor.ID())
		}
		return newHandler(env, w, vendor, customer), nil
	}
}

// Register installs the crafter handler on f.
func Register(f *trade.Factory, lookup func(model.PartyID) (*Workshop, bool)) {
	f.Register(trade.VendorCrafter, NewConstructor(lookup))
}
