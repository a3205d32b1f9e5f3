package crafter

import (
	"fmt"
	"sort"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/workbook"
)

type quote struct {
	skill  model.SkillID
	target float64
	price  int64
	tool   bool
}

// Handler negotiates one customer session for a crafter. Customer is side A,
// the crafter side B. Menu tokens are shown in the crafter's offer window;
// picking one means moving it to the customer's request window.
type Handler struct {
	env      *trade.Env
	w        *Workshop
	vendor   *trade.Vendor
	customer trade.Party

	tokens   map[model.ItemID]*model.Item
	selected map[model.SkillID]*model.Item
	mail     bool
	donate   bool
	tools    bool

	// job items of this customer shown for pick-up or cancellation
	pickups map[model.ItemID]bool
	pending map[model.ItemID]bool

	accepted map[model.ItemID]quote
	price    int64
	noted    map[string]bool
	demand   string
	fullAt   int // pending job count last reported as over capacity
}

func newHandler(env *trade.Env, w *Workshop, vendor *trade.Vendor, customer trade.Party) *Handler {
	return &Handler{
		env:      env,
		w:        w,
		vendor:   vendor,
		customer: customer,
		tokens:   map[model.ItemID]*model.Item{},
		selected: map[model.SkillID]*model.Item{},
		pickups:  map[model.ItemID]bool{},
		pending:  map[model.ItemID]bool{},
		accepted: map[model.ItemID]quote{},
		noted:    map[string]bool{},
	}
}

// Price is the amount the customer currently owes, before change.
func (h *Handler) Price() int64 { return h.price }

// Quote returns the accepted terms for an item in the crafter's request window.
func (h *Handler) Quote(item model.ItemID) (target float64, price int64, ok bool) {
	q, ok := h.accepted[item]
	return q.target, q.price, ok
}

func (h *Handler) Start(s *trade.Session) {
	menu := s.OfferOf(h.vendor)
	hdr := h.w.Book.Header()
	step := h.w.Cfg.OptionStep
	if step <= 0 {
		step = 10
	}
	for _, skill := range hdr.Skills {
		var levels []float64
		for q := step; q < hdr.SkillCap; q += step {
			levels = append(levels, q)
		}
		if hdr.SkillCap > 0 {
			levels = append(levels, hdr.SkillCap)
		}
		for _, q := range levels {
			h.addToken(menu, model.Option{Kind: model.OptionImprove, Skill: skill, TargetQL: q})
		}
	}
	h.addToken(menu, model.Option{Kind: model.OptionMail})
	h.addToken(menu, model.Option{Kind: model.OptionDonate})
	h.addToken(menu, model.Option{Kind: model.OptionGiveTools})

	pickup := s.RequestOf(h.customer)
	for _, j := range h.w.Book.JobsFor(h.customer.ID()) {
		it, ok := h.env.Items.Item(j.Item)
		if !ok {
			h.w.logf("job item %d of %d vanished, dropping job", j.Item, j.Customer)
			if _, err := h.w.Book.RemoveJob(j.Item); err != nil {
				h.w.logf("drop job %d: %v", j.Item, err)
			}
			continue
		}
		if it.Holder() != nil {
			continue
		}
		if j.Done {
			h.pickups[it.ID] = true
			pickup.AddItem(it)
		} else {
			h.pending[it.ID] = true
			menu.AddItem(it)
		}
	}
	if len(h.pickups) > 0 {
		h.customer.Notify(fmt.Sprintf("%s says: Your finished items are ready for you.", h.vendor.Name()))
	}
}

func (h *Handler) addToken(w *trade.Window, opt model.Option) {
	it, err := h.env.Items.CreateItem(model.OptionTemplate, 0, h.vendor.ID())
	if err != nil {
		h.w.logf("create menu token: %v", err)
		return
	}
	o := opt
	it.Option = &o
	it.Name = o.Label(h.w.SkillName(o.Skill))
	it.WeightGrams = 0
	h.tokens[it.ID] = it
	w.AddItem(it)
}

func (h *Handler) isToken(it *model.Item) bool {
	_, ok := h.tokens[it.ID]
	return ok
}

// note tells the customer something once per key for the whole session.
func (h *Handler) note(key, text string) {
	if h.noted[key] {
		return
	}
	h.noted[key] = true
	h.say(text)
}

func (h *Handler) say(text string) {
	h.customer.Notify(fmt.Sprintf("%s says: %s", h.vendor.Name(), text))
}

func (h *Handler) Balance(s *trade.Session) {
	h.readOptions(s)
	h.screen(s)
	h.settlePrice(s)
}

// readOptions derives the chosen menu options from the tokens in the
// customer's request window. Per skill only the highest target stays.
func (h *Handler) readOptions(s *trade.Session) {
	menu := s.OfferOf(h.vendor)
	chosen := s.RequestOf(h.customer)

	h.selected = map[model.SkillID]*model.Item{}
	h.mail, h.donate, h.tools = false, false, false
	var improves []*model.Item
	for _, it := range chosen.Items() {
		if !h.isToken(it) {
			continue
		}
		switch it.Option.Kind {
		case model.OptionImprove:
			improves = append(improves, it)
		case model.OptionMail:
			h.mail = true
		case model.OptionDonate:
			h.donate = true
		case model.OptionGiveTools:
			h.tools = true
		}
	}

	sort.SliceStable(improves, func(i, j int) bool {
		return improves[i].Option.TargetQL > improves[j].Option.TargetQL
	})
	for _, it := range improves {
		if h.donate {
			menu.AddItem(it)
			h.note("donate-improve", "Donated items are not improved to order.")
			continue
		}
		if _, taken := h.selected[it.Option.Skill]; taken {
			menu.AddItem(it)
			continue
		}
		h.selected[it.Option.Skill] = it
	}
	if h.donate && h.mail {
		for _, it := range chosen.Items() {
			if h.isToken(it) && it.Option.Kind == model.OptionMail {
				menu.AddItem(it)
			}
		}
		h.mail = false
	}
}

// screen sorts every customer item into accepted (crafter's request window)
// or bounced (customer's offer window), with one reason per item.
func (h *Handler) screen(s *trade.Session) {
	offer := s.OfferOf(h.customer)
	take := s.GivingOf(h.customer)

	h.accepted = map[model.ItemID]quote{}
	var candidates []*model.Item
	candidates = append(candidates, offer.Items()...)
	candidates = append(candidates, take.Items()...)
	for _, it := range candidates {
		if it.Coin {
			continue
		}
		q, reason := h.judge(it)
		if reason != "" {
			if take.Contains(it) {
				offer.AddItem(it)
			}
			h.note(fmt.Sprintf("%d:%s", it.ID, reason), reason)
			continue
		}
		h.accepted[it.ID] = q
		if !take.Contains(it) {
			take.AddItem(it)
		}
	}
}

// judge returns the terms for it or a reason to refuse it.
func (h *Handler) judge(it *model.Item) (quote, string) {
	if h.tools && it.Flags.Tool {
		return quote{tool: true}, ""
	}
	cfg := h.w.Cfg
	switch {
	case len(it.Contents()) > 0:
		return quote{}, fmt.Sprintf("Please empty the %s first.", it.Name)
	case h.w.restricted(it.Material):
		return quote{}, fmt.Sprintf("I do not work with %s.", it.Material)
	case h.w.blocked(it.Template):
		return quote{}, fmt.Sprintf("I do not take %s.", it.Name)
	case it.Flags.Newbie && !cfg.AcceptNewbieItems:
		return quote{}, fmt.Sprintf("The %s is protected and can not be left with me.", it.Name)
	case !it.Flags.Repairable:
		return quote{}, fmt.Sprintf("The %s can not be improved.", it.Name)
	}

	skill := h.w.SkillOf(it.Template)
	hdr := h.w.Book.Header()
	if skill == 0 || !hdr.Services(skill) {
		return quote{}, fmt.Sprintf("I can not improve the %s.", it.Name)
	}
	if h.donate {
		if it.Quality >= hdr.SkillCap {
			return quote{}, fmt.Sprintf("The %s is already at or above %.0fql.", it.Name, hdr.SkillCap)
		}
		if cfg.DonationCeiling > 0 && it.Quality >= cfg.DonationCeiling {
			return quote{}, fmt.Sprintf("I only take donations below %.0fql.", cfg.DonationCeiling)
		}
		return quote{skill: skill, target: hdr.SkillCap}, ""
	}
	opt, ok := h.selected[skill]
	if !ok {
		return quote{}, fmt.Sprintf("Pick how far the %s should be improved.", it.Name)
	}
	target := opt.Option.TargetQL
	if it.Quality >= target {
		return quote{}, fmt.Sprintf("The %s is already at or above %.0fql.", it.Name, target)
	}
	return quote{skill: skill, target: target, price: h.w.Prices.Quote(skill, it, target)}, ""
}

func (h *Handler) jobCount() int {
	n := 0
	for _, q := range h.accepted {
		if !q.tool {
			n++
		}
	}
	return n
}

// pendingJobs are the ledger records the accepted items would become.
func (h *Handler) pendingJobs() []workbook.Job {
	ids := make([]model.ItemID, 0, len(h.accepted))
	for id, q := range h.accepted {
		if !q.tool {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]workbook.Job, 0, len(ids))
	for _, id := range ids {
		q := h.accepted[id]
		if h.donate {
			out = append(out, workbook.Job{Item: id, Donation: true})
			continue
		}
		out = append(out, workbook.Job{
			Customer: h.customer.ID(),
			Item:     id,
			TargetQL: q.target,
			Mail:     h.mail,
			Price:    q.price,
		})
	}
	return out
}

// settlePrice compares the quote against the coins offered, asks for the
// rest or mints change, and marks the crafter satisfied when balanced.
func (h *Handler) settlePrice(s *trade.Session) {
	offer := s.OfferOf(h.customer)
	take := s.GivingOf(h.customer)

	h.price = 0
	if !h.donate {
		for _, q := range h.accepted {
			h.price += q.price
		}
		if h.mail && h.jobCount() > 0 {
			h.price += h.w.Prices.MailFee()
		}
	}

	if h.price == 0 {
		for _, it := range take.Items() {
			if it.Coin {
				offer.AddItem(it)
			}
		}
	} else {
		for _, it := range offer.Items() {
			if it.Coin {
				take.AddItem(it)
			}
		}
	}

	paid := take.CoinValue()
	if owed := h.price - paid; owed > 0 {
		s.SetChange(h.customer, 0)
		msg := fmt.Sprintf("%s says: That will be %d coins. I still need %d.", h.vendor.Name(), h.price, owed)
		if msg != h.demand {
			h.demand = msg
			h.customer.Notify(msg)
		}
		return
	}
	h.demand = ""
	s.SetChange(h.customer, paid-h.price)

	if jobs := h.pendingJobs(); !h.w.Book.HasEnoughSpaceFor(jobs...) {
		// again whenever the batch changes size while it does not fit
		if len(jobs) != h.fullAt {
			h.fullAt = len(jobs)
			h.say("My work ledger is full. I can not take that many items right now.")
		}
		return
	}
	h.fullAt = 0
	if !s.Satisfied(h.vendor) {
		_ = s.SetSatisfied(h.vendor, true, s.Rev())
	}
}

func (h *Handler) AdmitSettlement(s *trade.Session) error {
	if !h.w.Book.HasEnoughSpaceFor(h.pendingJobs()...) {
		return fmt.Errorf("%s's work ledger is full.", h.vendor.Name())
	}
	return nil
}

// BeforeTransfer consumes menu tokens; they never leave the crafter.
func (h *Handler) BeforeTransfer(s *trade.Session, w *trade.Window, it *model.Item) bool {
	if !h.isToken(it) {
		return false
	}
	delete(h.tokens, it.ID)
	h.env.Items.DestroyItem(it.ID)
	return true
}

func (h *Handler) AfterSettlement(s *trade.Session, res *trade.Result) {
	for _, it := range res.ReceivedBy(h.customer.ID()) {
		switch {
		case h.pickups[it.ID]:
			if _, err := h.w.Book.RemoveJob(it.ID); err != nil {
				h.w.logf("close picked-up job %d: %v", it.ID, err)
			}
		case h.pending[it.ID]:
			if _, err := h.w.Book.RemoveJob(it.ID); err != nil {
				h.w.logf("cancel job %d: %v", it.ID, err)
			}
			h.customer.Notify(fmt.Sprintf("The work on the %s was cancelled. There is no refund.", it.Name))
		}
	}

	pending := map[model.ItemID]workbook.Job{}
	for _, j := range h.pendingJobs() {
		pending[j.Item] = j
	}
	for _, it := range res.ReceivedBy(h.vendor.ID()) {
		if it.Coin {
			continue
		}
		q, ok := h.accepted[it.ID]
		if !ok {
			continue
		}
		if q.tool {
			h.w.logf("received tool %d from %d", it.ID, h.customer.ID())
			continue
		}
		j := pending[it.ID]
		var err error
		if j.Donation {
			err = h.w.Book.AddDonation(it.ID)
		} else {
			err = h.w.Book.AddJob(j)
		}
		if err != nil {
			h.giveBack(it, j.Price, err)
			continue
		}
		h.w.logf("accepted item %d from %d: target %.0fql price %d donation=%v", it.ID, h.customer.ID(), j.TargetQL, j.Price, j.Donation)
	}
}

// giveBack returns an item the ledger could not take after payment, with
// its price, by mail.
func (h *Handler) giveBack(it *model.Item, refund int64, cause error) {
	customer := h.customer.ID()
	if err := h.env.Items.MailTo(customer, it); err != nil {
		h.w.logf("mail back item %d to %d: %v", it.ID, customer, err)
	}
	var mailed int64
	for _, c := range h.env.Items.CoinsFor(refund) {
		if err := h.env.Items.MailTo(customer, c); err != nil {
			h.w.logf("mail refund coin to %d: %v", customer, err)
			h.env.Items.ReturnCoin(c)
			continue
		}
		mailed += c.CoinValue
	}
	if mailed > 0 && h.env.Shops != nil {
		h.env.Shops.AdjustMoney(h.vendor.ID(), -mailed)
	}
	h.customer.Notify(fmt.Sprintf("%s could not record the work on the %s. It has been mailed back to you with %d coins.", h.vendor.Name(), it.Name, mailed))
	h.w.alert(Alert{
		Severity: SeverityHigh,
		Customer: customer,
		Item:     it.ID,
		Refund:   mailed,
		Message:  fmt.Sprintf("ledger rejected accepted item after settlement: %v", cause),
	})
}

func (h *Handler) End(s *trade.Session) {
	for id, it := range h.tokens {
		if it.Holder() != nil {
			continue
		}
		h.env.Items.DestroyItem(id)
		delete(h.tokens, id)
	}
}
