package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"barterforge.ai/internal/config"
	persistlog "barterforge.ai/internal/persistence/log"
	"barterforge.ai/internal/persistence/pagedb"
	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/market"
	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/registry"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		addr     = flag.String("addr", cfg.Server.Addr, "http listen address")
		marketID = flag.String("market", cfg.Market.ID, "market id")
		configs  = flag.String("configs", cfg.Market.ConfigDir, "config directory")
		dataDir  = flag.String("data", cfg.Storage.DataDir, "runtime data directory")
		tunePath = flag.String("tuning", cfg.Market.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", cfg.Market.LoadLatest, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()
	cfg.Server.Addr = *addr
	cfg.Market.ID = *marketID
	cfg.Market.ConfigDir = *configs
	cfg.Market.TuningPath = *tunePath
	cfg.Storage.DataDir = *dataDir

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(cfg.Market.ConfigDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, warnings, err := tuning.Load(cfg.Market.Tuning())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", cfg.Market.Tuning())
		tune = tuning.Defaults()
	}
	for _, w := range warnings {
		logger.Printf("tuning: %s", w)
	}

	marketDir := cfg.Storage.MarketDir(cfg.Market.ID)
	if err := os.MkdirAll(marketDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	pages, err := pagedb.Open(cfg.Storage.PagesPath(cfg.Market.ID))
	if err != nil {
		logger.Fatalf("open page store: %v", err)
	}
	defer pages.Close()
	if err := checkMarketID(pages, cfg.Market.ID); err != nil {
		logger.Fatalf("page store: %v", err)
	}

	alerts := persistlog.NewAlertLogger(marketDir)
	defer alerts.Close()

	world := memhost.New(cats.Items)
	reg := registry.New(registry.Deps{
		Items:    world,
		Pages:    pages,
		Tuning:   tune,
		Catalogs: cats,
		Prices:   pricing.NewTable(tune.Pricing),
		Alerts:   alerts,
		NewVendorLogger: func(id model.PartyID) registry.VendorLogger {
			return persistlog.NewTradeLogger(marketDir, id)
		},
		Logger: log.New(os.Stdout, "[registry] ", log.LstdFlags|log.Lmicroseconds),
	})
	defer reg.Close()

	env := &trade.Env{
		Items:       world,
		Controllers: world,
		Treasury:    world,
		Shops:       world,
		Revenue:     tune.Revenue,
		Logger:      log.New(os.Stdout, "[trade] ", log.LstdFlags|log.Lmicroseconds),
	}
	m := market.New(market.Config{ID: cfg.Market.ID, Tuning: tune}, world, reg, env,
		log.New(os.Stdout, "[market] ", log.LstdFlags|log.Lmicroseconds))

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		if snapshotToLoad, err = snapshot.Latest(marketDir); err != nil {
			logger.Fatalf("find snapshot: %v", err)
		}
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.MarketID != "" && snap.Header.MarketID != cfg.Market.ID {
			logger.Fatalf("snapshot market id mismatch: flag=%s snap=%s", cfg.Market.ID, snap.Header.MarketID)
		}
		if err := m.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d vendors=%d", filepath.Base(snapshotToLoad), m.CurrentTick(), reg.Len())
	}

	tickLog := persistlog.NewTickLogger(marketDir)
	defer tickLog.Close()
	m.SetTickLogger(tickLog)

	writeSnap := func(snap snapshot.SnapshotV1) (string, error) {
		path := snapshot.Path(marketDir, snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return "", err
		}
		if err := pages.SetMeta("last_snapshot", filepath.Base(path)); err != nil {
			logger.Printf("record snapshot: %v", err)
		}
		return path, nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	m.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := writeSnap(snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	marketDone := make(chan struct{})
	go func() {
		defer close(marketDone)
		if err := m.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("market stopped: %v", err)
		}
	}()

	if !cfg.Server.EnableAdminHTTP {
		logger.Printf("admin endpoints disabled (BF_ENABLE_ADMIN_HTTP=false)")
	}
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: newRouter(routerConfig{
			Market:        m,
			WSHandler:     ws.NewServer(m, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler(),
			EnableAdmin:   cfg.Server.EnableAdminHTTP,
			AdminToken:    cfg.Server.AdminToken,
			WriteSnapshot: writeSnap,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("market %s listening on %s", cfg.Market.ID, cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The market goroutine is gone; the final snapshot can read it directly.
	<-marketDone
	if path, err := writeSnap(m.FinalSnapshot()); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot %s", filepath.Base(path))
	}
}

// checkMarketID binds a page store to one market on first use.
func checkMarketID(pages *pagedb.Store, id string) error {
	got, err := pages.Meta("market_id")
	if err != nil {
		return err
	}
	if got == "" {
		return pages.SetMeta("market_id", id)
	}
	if got != id {
		return fmt.Errorf("belongs to market %q, not %q", got, id)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
