package trade

import (
	"fmt"

	"barterforge.ai/internal/sim/model"
)

// Handler negotiates on behalf of the vendor side of a session. The session
// calls it at fixed points; it never runs on its own.
type Handler interface {
	// Start runs once after both parties entered the session.
	Start(s *Session)
	// Balance re-evaluates the windows after a change. It may move items,
	// mint change and mark the vendor satisfied.
	Balance(s *Session)
	// BeforeTransfer runs for each request-window item during settlement,
	// before ownership changes. Returning true consumes the item; it is not
	// transferred.
	BeforeTransfer(s *Session, w *Window, it *model.Item) (consumed bool)
	// AdmitSettlement is the last gate before any item moves. A non-nil
	// error aborts settlement; its text is shown to both parties.
	AdmitSettlement(s *Session) error
	AfterSettlement(s *Session, res *Result)
	// End runs when the session is torn down, settled or not.
	End(s *Session)
}

// Constructor builds the handler for a session between vendor and customer.
type Constructor func(env *Env, vendor *Vendor, customer Party) (Handler, error)

// Factory picks a handler by vendor kind.
type Factory struct {
	byKind map[VendorKind]Constructor
}

func NewFactory() *Factory {
	return &Factory{byKind: map[VendorKind]Constructor{}}
}

func (f *Factory) Register(kind VendorKind, c Constructor) {
	f.byKind[kind] = c
}

// For returns the handler for a session where b is the vendor side, if any.
// Sessions without a registered vendor get DefaultHandler.
func (f *Factory) For(env *Env, a, b Party) (Handler, error) {
	if f == nil {
		return DefaultHandler{}, nil
	}
	v, ok := AsVendor(b)
	if !ok {
		return DefaultHandler{}, nil
	}
	if _, aVendor := AsVendor(a); aVendor {
		return DefaultHandler{}, nil
	}
	c, ok := f.byKind[v.Kind]
	if !ok {
		return DefaultHandler{}, nil
	}
	h, err := c(env, v, a)
	if err != nil {
		return nil, fmt.Errorf("%s handler: %w", v.Kind, err)
	}
	return h, nil
}

// DefaultHandler leaves negotiation entirely to the two parties.
type DefaultHandler struct{}

func (DefaultHandler) Start(*Session)                                     {}
func (DefaultHandler) Balance(*Session)                                   {}
func (DefaultHandler) BeforeTransfer(*Session, *Window, *model.Item) bool { return false }
func (DefaultHandler) AdmitSettlement(*Session) error                     { return nil }
func (DefaultHandler) AfterSettlement(*Session, *Result)                  {}
func (DefaultHandler) End(*Session)                                       {}
