package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/host"
	"barterforge.ai/internal/sim/market"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/registry"
	"barterforge.ai/internal/sim/workbook"
)

type routerConfig struct {
	Market      *market.Market
	WSHandler   http.HandlerFunc
	EnableAdmin bool
	AdminToken  string
	// WriteSnapshot persists an on-demand snapshot and returns its path.
	WriteSnapshot func(snapshot.SnapshotV1) (string, error)
}

func newRouter(cfg routerConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	if cfg.WSHandler != nil {
		r.Get("/v1/ws", cfg.WSHandler)
	}
	if !cfg.EnableAdmin {
		return r
	}

	a := &adminAPI{m: cfg.Market, writeSnapshot: cfg.WriteSnapshot}
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(adminAuth(cfg.AdminToken))
		r.Get("/state", a.state)
		r.Post("/snapshot", a.snapshot)
		r.Post("/give", a.give)
		r.Route("/vendors", func(r chi.Router) {
			r.Get("/", a.listVendors)
			r.Post("/", a.hire)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.vendor)
				r.Delete("/", a.dismiss)
				r.Put("/forge", a.assignForge)
				r.Delete("/forge", a.releaseForge)
				r.Put("/skill_cap", a.setSkillCap)
				r.Post("/jobs/{item}/finish", a.finishJob)
			})
		})
	})
	return r
}

// adminAuth accepts a bearer token when one is configured, otherwise only
// loopback callers.
func adminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					http.Error(rw, "unauthorized", http.StatusUnauthorized)
					return
				}
			} else if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}

const adminTimeout = 5 * time.Second

type adminAPI struct {
	m             *market.Market
	writeSnapshot func(snapshot.SnapshotV1) (string, error)
}

// do runs fn on the market goroutine with a bounded wait.
func (a *adminAPI) do(r *http.Request, fn func(m *market.Market) error) error {
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	return a.m.Do(ctx, fn)
}

func (a *adminAPI) state(rw http.ResponseWriter, r *http.Request) {
	var resp struct {
		MarketID string                `json:"market_id"`
		Tick     uint64                `json:"tick"`
		Vendors  []market.VendorStatus `json:"vendors"`
	}
	err := a.do(r, func(m *market.Market) error {
		resp.MarketID = m.ID()
		resp.Tick = m.CurrentTick()
		resp.Vendors = m.Statuses()
		return nil
	})
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *adminAPI) snapshot(rw http.ResponseWriter, r *http.Request) {
	if a.writeSnapshot == nil {
		http.Error(rw, "snapshots disabled", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	snap, err := a.m.RequestSnapshot(ctx)
	if err != nil {
		writeError(rw, err)
		return
	}
	path, err := a.writeSnapshot(snap)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "tick": snap.Header.Tick, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path})
}

func (a *adminAPI) listVendors(rw http.ResponseWriter, r *http.Request) {
	var out []market.VendorStatus
	if err := a.do(r, func(m *market.Market) error {
		out = m.Statuses()
		return nil
	}); err != nil {
		writeError(rw, err)
		return
	}
	if out == nil {
		out = []market.VendorStatus{}
	}
	writeJSON(rw, http.StatusOK, out)
}

func (a *adminAPI) hire(rw http.ResponseWriter, r *http.Request) {
	var req market.HireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID <= 0 {
		http.Error(rw, "id must be positive", http.StatusBadRequest)
		return
	}
	var st market.VendorStatus
	err := a.do(r, func(m *market.Market) error {
		if _, err := m.Hire(req); err != nil {
			return err
		}
		st, _ = m.Status(req.ID)
		return nil
	})
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, st)
}

func (a *adminAPI) vendor(rw http.ResponseWriter, r *http.Request) {
	id, ok := partyParam(rw, r, "id")
	if !ok {
		return
	}
	var st market.VendorStatus
	err := a.do(r, func(m *market.Market) error {
		var found bool
		if st, found = m.Status(id); !found {
			return registry.ErrNotHired
		}
		return nil
	})
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, st)
}

func (a *adminAPI) dismiss(rw http.ResponseWriter, r *http.Request) {
	id, ok := partyParam(rw, r, "id")
	if !ok {
		return
	}
	if err := a.do(r, func(m *market.Market) error { return m.Dismiss(id) }); err != nil {
		writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) assignForge(rw http.ResponseWriter, r *http.Request) {
	id, ok := partyParam(rw, r, "id")
	if !ok {
		return
	}
	var body struct {
		Forge model.ItemID `json:"forge"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Forge <= 0 {
		http.Error(rw, "forge must be a positive item id", http.StatusBadRequest)
		return
	}
	a.vendorUpdate(rw, r, id, func(m *market.Market) error {
		return m.AssignForge(id, body.Forge)
	})
}

func (a *adminAPI) releaseForge(rw http.ResponseWriter, r *http.Request) {
	id, ok := partyParam(rw, r, "id")
	if !ok {
		return
	}
	a.vendorUpdate(rw, r, id, func(m *market.Market) error {
		return m.ReleaseForge(id)
	})
}

func (a *adminAPI) setSkillCap(rw http.ResponseWriter, r *http.Request) {
	id, ok := partyParam(rw, r, "id")
	if !ok {
		return
	}
	var body struct {
		SkillCap float64 `json:"skill_cap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SkillCap <= 0 {
		http.Error(rw, "skill_cap must be positive", http.StatusBadRequest)
		return
	}
	a.vendorUpdate(rw, r, id, func(m *market.Market) error {
		return m.SetSkillCap(id, body.SkillCap)
	})
}

func (a *adminAPI) finishJob(rw http.ResponseWriter, r *http.Request) {
	id, ok := partyParam(rw, r, "id")
	if !ok {
		return
	}
	item, err := strconv.ParseInt(chi.URLParam(r, "item"), 10, 64)
	if err != nil || item <= 0 {
		http.Error(rw, "bad item id", http.StatusBadRequest)
		return
	}
	var body struct {
		QL float64 `json:"ql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(rw, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	var job workbook.Job
	if err := a.do(r, func(m *market.Market) error {
		var err error
		job, err = m.FinishJob(id, model.ItemID(item), body.QL)
		return err
	}); err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, job)
}

func (a *adminAPI) give(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		Party    model.PartyID    `json:"party"`
		Template model.TemplateID `json:"template"`
		QL       float64          `json:"ql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(rw, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	var it *model.Item
	if err := a.do(r, func(m *market.Market) error {
		var err error
		it, err = m.Give(body.Party, body.Template, body.QL)
		return err
	}); err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, map[string]any{"id": it.ID, "template": it.Template, "ql": it.Quality})
}

func (a *adminAPI) vendorUpdate(rw http.ResponseWriter, r *http.Request, id model.PartyID, fn func(m *market.Market) error) {
	var st market.VendorStatus
	err := a.do(r, func(m *market.Market) error {
		if err := fn(m); err != nil {
			return err
		}
		st, _ = m.Status(id)
		return nil
	})
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, st)
}

func partyParam(rw http.ResponseWriter, r *http.Request, name string) (model.PartyID, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		http.Error(rw, "bad party id", http.StatusBadRequest)
		return 0, false
	}
	return model.PartyID(v), true
}

func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrNotHired), errors.Is(err, workbook.ErrNoSuchJob), errors.Is(err, host.ErrNoSuchItem):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrHired), errors.Is(err, registry.ErrForgeTaken), errors.Is(err, workbook.ErrLedgerFull):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNotCrafter), errors.Is(err, registry.ErrUnknownKind), errors.Is(err, host.ErrInventoryCap):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	addr := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		addr = h
	}
	addr = strings.TrimPrefix(addr, "[")
	addr = strings.TrimSuffix(addr, "]")
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
