package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "barterforge.ai/internal/persistence/log"
	"barterforge.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "ledger":
			ledgerCmd(os.Args[2:])
			return
		case "repair":
			repairCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	ledgersCmd(os.Args[1:])
}

// inspectCmd prints a snapshot header, or a summary of its contents.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	marketID := fs.String("market", "market_1", "market id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	full := fs.Bool("full", false, "decode the whole snapshot, not just the header")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		var err error
		if path, err = snapshot.Latest(marketDir(*dataDir, *marketID)); err != nil || path == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot")
			os.Exit(2)
		}
	}
	if !*full {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type vendorSummary struct {
	ID    int64  `json:"id"`
	Kind  string `json:"kind"`
	Money int64  `json:"money"`
	Forge int64  `json:"forge,omitempty"`
	Items int    `json:"items"`
}

type snapshotSummary struct {
	Header    snapshot.Header `json:"header"`
	Items     int             `json:"items"`
	Creatures int             `json:"creatures"`
	Markets   int             `json:"markets"`
	Outbox    int             `json:"outbox"`
	Players   int             `json:"players"`
	Digest    string          `json:"state_digest"`
	Vendors   []vendorSummary `json:"vendors"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	held := map[int64]int{}
	for _, it := range snap.Items {
		held[it.Owner]++
	}
	s := snapshotSummary{
		Header:    snap.Header,
		Items:     len(snap.Items),
		Creatures: len(snap.Creatures),
		Markets:   len(snap.Markets),
		Outbox:    len(snap.Outbox),
		Players:   len(snap.Players),
		Digest:    snapshot.StateDigest(snap),
	}
	for _, v := range snap.Vendors {
		vs := vendorSummary{ID: v.ID, Kind: v.Kind, Money: v.Money, Items: held[v.ID]}
		if v.Forge > 0 {
			vs.Forge = v.Forge
		}
		s.Vendors = append(s.Vendors, vs)
	}
	sort.Slice(s.Vendors, func(i, j int) bool { return s.Vendors[i].ID < s.Vendors[j].ID })
	return s
}

// auditCmd prints a vendor's trade trail, or the alert stream with -alerts.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	marketID := fs.String("market", "market_1", "market id")
	vendor := fs.Int64("vendor", 0, "vendor id")
	alerts := fs.Bool("alerts", false, "read administrator alerts instead of a trade trail")
	_ = fs.Parse(args)

	dir := filepath.Join(marketDir(*dataDir, *marketID), "audit", fmt.Sprintf("vendor-%d", *vendor))
	if *alerts {
		dir = filepath.Join(marketDir(*dataDir, *marketID), "alerts")
	} else if *vendor <= 0 {
		fmt.Fprintln(os.Stderr, "missing -vendor")
		os.Exit(2)
	}
	lines, err := readTrail(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, l := range lines {
		printJSON(l)
	}
}

// ticksCmd prints the tick log, optionally only entries with operator changes.
func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	marketID := fs.String("market", "market_1", "market id")
	from := fs.Uint64("from", 0, "first tick to print")
	adminOnly := fs.Bool("admin", false, "only entries carrying operator changes")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadTicks(marketDir(*dataDir, *marketID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.Tick < *from || (*adminOnly && len(e.Admin) == 0) {
			continue
		}
		printJSON(e)
	}
}

// readTrail reads every hourly file under dir in name order.
func readTrail(dir string) ([]map[string]any, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var out []map[string]any
	for _, name := range names {
		lines, err := persistlog.ReadJSONL(name)
		if err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		out = append(out, lines...)
	}
	return out, nil
}

func marketDir(dataDir, marketID string) string {
	return filepath.Join(dataDir, "markets", marketID)
}
