package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	persistlog "barterforge.ai/internal/persistence/log"
	"barterforge.ai/internal/persistence/snapshot"
	"barterforge.ai/internal/sim/catalogs"
	"barterforge.ai/internal/sim/market"
	"barterforge.ai/internal/sim/memhost"
	"barterforge.ai/internal/sim/pricing"
	"barterforge.ai/internal/sim/registry"
	"barterforge.ai/internal/sim/trade"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		dataDir   = flag.String("data", "", "market data dir holding ticks/ (default: derived from -snapshot)")
		configDir = flag.String("configs", "./configs", "config directory")
		tunePath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		toTick    = flag.Uint64("to_tick", 0, "stop after tick (inclusive, optional)")
		expect    = flag.String("expect", "", "snapshot whose state the replay must reproduce (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d market=%s tick=%d items=%d creatures=%d vendors=%d players=%d\n",
		snap.Header.Version, snap.Header.MarketID, snap.Header.Tick,
		len(snap.Items), len(snap.Creatures), len(snap.Vendors), len(snap.Players))

	dir := *dataDir
	if dir == "" {
		dir = filepath.Dir(filepath.Dir(*snapPath))
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tunePath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tu, _, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	var want *snapshot.SnapshotV1
	stop := *toTick
	if *expect != "" {
		w, err := snapshot.ReadSnapshot(*expect)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read expected snapshot:", err)
			os.Exit(1)
		}
		want = &w
		if stop == 0 {
			stop = w.Header.Tick
		}
	}

	entries, err := persistlog.ReadTicks(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read tick log:", err)
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "[replay] ", 0)
	got, applied, err := replay(snap, entries, stop, cats, tu, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	digest := snapshot.StateDigest(got)
	fmt.Printf("replay ok: entries=%d from tick=%d to tick=%d digest=%s\n", applied, snap.Header.Tick, got.Header.Tick, digest)

	if want != nil {
		if got.Header.Tick != want.Header.Tick {
			fmt.Fprintf(os.Stderr, "stopped at tick %d, expected snapshot is tick %d\n", got.Header.Tick, want.Header.Tick)
			os.Exit(1)
		}
		if wd := snapshot.StateDigest(*want); wd != digest {
			fmt.Fprintf(os.Stderr, "state mismatch at tick %d: got=%s want=%s\n", got.Header.Tick, digest, wd)
			os.Exit(1)
		}
		fmt.Println("matches", filepath.Base(*expect))
	}
}

// replay rebuilds the market of snap in memory, steps it through entries and
// returns its final state. Ledgers come from the pages carried by snap.
func replay(snap snapshot.SnapshotV1, entries []market.TickLogEntry, toTick uint64, cats *catalogs.Catalogs, tu tuning.Tuning, logger *log.Logger) (snapshot.SnapshotV1, int, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	pages := workbook.NewMemoryStore()
	if err := registry.SeedPages(pages, snap); err != nil {
		return snapshot.SnapshotV1{}, 0, fmt.Errorf("seed ledgers: %w", err)
	}
	world := memhost.New(cats.Items)
	reg := registry.New(registry.Deps{
		Items:    world,
		Pages:    pages,
		Tuning:   tu,
		Catalogs: cats,
		Prices:   pricing.NewTable(tu.Pricing),
		Logger:   logger,
	})
	defer reg.Close()
	env := &trade.Env{Items: world, Controllers: world, Treasury: world, Shops: world, Revenue: tu.Revenue}
	m := market.New(market.Config{ID: snap.Header.MarketID, Tuning: tu}, world, reg, env, logger)

	if err := m.ImportSnapshot(snap); err != nil {
		return snapshot.SnapshotV1{}, 0, fmt.Errorf("import: %w", err)
	}
	if err := m.RejoinPlayers(snap); err != nil {
		return snapshot.SnapshotV1{}, 0, err
	}
	applied, err := m.Replay(entries, toTick)
	if err != nil {
		return snapshot.SnapshotV1{}, applied, err
	}
	return m.FinalSnapshot(), applied, nil
}
