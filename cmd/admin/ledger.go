package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"barterforge.ai/internal/persistence/pagedb"
	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/tuning"
	"barterforge.ai/internal/sim/workbook"
)

func openPages(fs *flag.FlagSet, dataDir, marketID, dbPath string) *pagedb.Store {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(marketDir(dataDir, marketID), "pages.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", fs.Name(), err)
		os.Exit(2)
	}
	st, err := pagedb.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return st
}

func ledgersCmd(args []string) {
	fs := flag.NewFlagSet("ledgers", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	marketID := fs.String("market", "market_1", "market id")
	dbPath := fs.String("db", "", "page store path (optional)")
	_ = fs.Parse(args)

	st := openPages(fs, *dataDir, *marketID, *dbPath)
	defer st.Close()
	rows, err := st.Ledgers()
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type recordReport struct {
	Raw   string `json:"raw"`
	Error string `json:"error"`
	// Customer and Item are set when the damaged record still names them.
	Customer model.PartyID `json:"customer,omitempty"`
	Item     model.ItemID  `json:"item,omitempty"`
}

type ledgerReport struct {
	Vendor    model.PartyID   `json:"vendor"`
	Format    string          `json:"format"`
	Header    workbook.Header `json:"header"`
	HeaderErr string          `json:"header_error,omitempty"`
	Pages     int             `json:"pages"`
	Jobs      []workbook.Job  `json:"jobs"`
	Damaged   []recordReport  `json:"damaged,omitempty"`
}

// describeLedger decodes stored pages without changing them.
func describeLedger(st workbook.PageStore, vendor model.PartyID) (ledgerReport, error) {
	header, pages, found, err := st.LoadPages(vendor)
	if err != nil {
		return ledgerReport{}, err
	}
	if !found {
		return ledgerReport{}, fmt.Errorf("vendor %d: no ledger", vendor)
	}
	codec := workbook.Detect(header)
	h, lines, herr := codec.Parse(header, pages)
	rep := ledgerReport{Vendor: vendor, Format: codec.Name(), Header: h, Pages: len(pages), Jobs: []workbook.Job{}}
	if herr != nil {
		rep.HeaderErr = herr.Error()
	}
	for _, ln := range lines {
		if ln.Err != nil {
			r := recordReport{Raw: ln.Raw, Error: ln.Err.Error()}
			if ln.Ref {
				r.Customer, r.Item = ln.Customer, ln.Item
			}
			rep.Damaged = append(rep.Damaged, r)
			continue
		}
		rep.Jobs = append(rep.Jobs, ln.Job)
	}
	return rep, nil
}

// repairLedger opens the ledger the way the server does, which drops damaged
// records and rewrites it in the configured format. Items named by damaged
// records can not be mailed back offline; they are only logged.
func repairLedger(st workbook.PageStore, vendor model.PartyID, tu tuning.Tuning, logger *log.Logger) (ledgerReport, error) {
	if _, _, found, err := st.LoadPages(vendor); err != nil {
		return ledgerReport{}, err
	} else if !found {
		return ledgerReport{}, fmt.Errorf("vendor %d: no ledger", vendor)
	}
	if _, err := workbook.Open(workbook.Options{
		Vendor:      vendor,
		Ledger:      tu.Ledger,
		MaxSkillCap: tu.Crafter.MaxSkillCap,
		Store:       st,
		Logger:      logger,
	}); err != nil {
		return ledgerReport{}, err
	}
	return describeLedger(st, vendor)
}

func ledgerCmd(args []string) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	marketID := fs.String("market", "market_1", "market id")
	dbPath := fs.String("db", "", "page store path (optional)")
	vendor := fs.Int64("vendor", 0, "vendor id")
	raw := fs.Bool("raw", false, "print the stored pages instead of decoding them")
	_ = fs.Parse(args)
	if *vendor <= 0 {
		fmt.Fprintln(os.Stderr, "missing -vendor")
		os.Exit(2)
	}

	st := openPages(fs, *dataDir, *marketID, *dbPath)
	defer st.Close()
	if *raw {
		header, pages, found, err := st.LoadPages(model.PartyID(*vendor))
		if err != nil || !found {
			fmt.Fprintln(os.Stderr, "load:", err, "found:", found)
			os.Exit(1)
		}
		fmt.Println(header)
		for i, p := range pages {
			fmt.Printf("--- page %d (%d chars)\n%s\n", i+1, len(p), p)
		}
		return
	}
	rep, err := describeLedger(st, model.PartyID(*vendor))
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	printJSON(rep)
}

func repairCmd(args []string) {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	marketID := fs.String("market", "market_1", "market id")
	dbPath := fs.String("db", "", "page store path (optional)")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning.yaml for page size and format")
	format := fs.String("format", "", "rewrite in this format (legacy or framed); default from tuning")
	vendor := fs.Int64("vendor", 0, "vendor id")
	_ = fs.Parse(args)
	if *vendor <= 0 {
		fmt.Fprintln(os.Stderr, "missing -vendor")
		os.Exit(2)
	}

	tu, warnings, err := tuning.Load(*tuningPath)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "tuning:", w)
	}
	switch *format {
	case "":
	case tuning.FormatLegacy, tuning.FormatFramed:
		tu.Ledger.Format = *format
	default:
		fmt.Fprintf(os.Stderr, "unknown -format %q\n", *format)
		os.Exit(2)
	}

	st := openPages(fs, *dataDir, *marketID, *dbPath)
	defer st.Close()
	rep, err := repairLedger(st, model.PartyID(*vendor), tu, log.New(os.Stderr, "[repair] ", log.LstdFlags))
	if err != nil {
		fmt.Fprintln(os.Stderr, "repair:", err)
		os.Exit(1)
	}
	printJSON(rep)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
