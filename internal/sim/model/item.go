package model

type ItemID int64
type PartyID int64
type TemplateID string
type SkillID int

const (
	// EscrowOwner marks coins minted by the system that no party owns yet.
	EscrowOwner PartyID = -10
	// NoForge is the persisted forge reference when none is assigned.
	NoForge ItemID = -10
	NoParty PartyID = 0
)

type ItemFlags struct {
	NoTrade    bool
	Repairable bool
	Newbie     bool
	Royal      bool
	Tool       bool
}

// Deed transfers control of a subordinate entity (a hired vendor) when traded.
type Deed struct {
	Subject PartyID
}

// Holder is the trade window that currently claims an item.
type Holder interface {
	HolderID() string
}

// Item is the authoritative host record of a single item. The trade core only
// holds transient membership through the holder back-reference.
type Item struct {
	ID          ItemID
	Template    TemplateID
	Name        string
	Material    string
	Quality     float64
	Damage      float64
	WeightGrams int
	Coin        bool
	CoinValue   int64
	Owner       PartyID
	Flags       ItemFlags
	Deed        *Deed
	Option      *Option

	parent   *Item
	contents []*Item
	holder   Holder
}

func (it *Item) Holder() Holder     { return it.holder }
func (it *Item) SetHolder(h Holder) { it.holder = h }
func (it *Item) Parent() *Item      { return it.parent }

func (it *Item) Contents() []*Item {
	out := make([]*Item, len(it.contents))
	copy(out, it.contents)
	return out
}

func (it *Item) Hollow() bool { return len(it.contents) > 0 }

// Insert places child inside it, detaching it from any previous parent.
func (it *Item) Insert(child *Item) {
	if child == nil || child == it {
		return
	}
	child.DetachFromParent()
	child.parent = it
	it.contents = append(it.contents, child)
}

// DetachFromParent reports whether the item had a parent to leave.
func (it *Item) DetachFromParent() bool {
	p := it.parent
	if p == nil {
		return false
	}
	for i, c := range p.contents {
		if c == it {
			p.contents = append(p.contents[:i], p.contents[i+1:]...)
			break
		}
	}
	it.parent = nil
	return true
}

// Walk visits the item and every nested item depth first.
func (it *Item) Walk(fn func(*Item)) {
	fn(it)
	for _, c := range it.contents {
		c.Walk(fn)
	}
}

func (it *Item) TotalWeight() int {
	total := 0
	it.Walk(func(x *Item) { total += x.WeightGrams })
	return total
}

func (it *Item) CountNested() int {
	n := 0
	it.Walk(func(*Item) { n++ })
	return n
}

func (it *Item) SetOwnerDeep(owner PartyID) {
	it.Walk(func(x *Item) { x.Owner = owner })
}
