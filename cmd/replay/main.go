// Command replay settles a saved match offline. It reads a YAML or JSON file
// holding settings and events (an exported snapshot works as-is) and prints
// the ledger, balances and statistics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"mahjong-ledger/internal/scoring"
	"mahjong-ledger/pkg/logger"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
)

type matchFile struct {
	Settings *scoring.Config  `yaml:"settings"`
	Events   []scoring.Record `yaml:"events"`
	Archives []struct {
		Settings scoring.Config   `yaml:"settings"`
		Events   []scoring.Record `yaml:"events"`
	} `yaml:"archives"`
}

type report struct {
	Label  string                 `json:"label"`
	Result *scoring.Result        `json:"result"`
	Totals []scoring.PlayerTotals `json:"totals,omitempty"`
}

func main() {
	var (
		path    string
		asJSON  bool
		verbose bool
	)
	flag.StringVar(&path, "file", "", "match file (yaml or json)")
	flag.BoolVar(&asJSON, "json", false, "print the result as JSON")
	flag.BoolVar(&verbose, "v", false, "log the replay trace")
	flag.Parse()

	mode := "release"
	if verbose {
		mode = "debug"
	}
	logger.InitLogger(mode, "")
	defer logger.Log.Sync()

	if path == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Log.Fatal("read match file", zap.String("path", path), zap.Error(err))
	}
	rep, err := replay(data)
	if err != nil {
		logger.Log.Fatal("replay failed", zap.String("path", path), zap.Error(err))
	}
	for _, line := range rep.Result.Trace {
		logger.Log.Debug(line)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			logger.Log.Fatal("encode result", zap.Error(err))
		}
		return
	}
	if err := render(os.Stdout, rep); err != nil {
		logger.Log.Fatal("render result", zap.Error(err))
	}
}

// replay parses data and settles it. JSON input is accepted since it is valid YAML.
func replay(data []byte) (*report, error) {
	var mf matchFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse match file: %w", err)
	}
	cfg := scoring.DefaultConfig()
	if mf.Settings != nil {
		cfg = *mf.Settings
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := scoring.SettleRecords(cfg, mf.Events)
	rep := &report{Label: res.State.Label(), Result: res}
	if len(mf.Archives) > 0 {
		archived := make([]scoring.MatchTotals, len(mf.Archives))
		for i, a := range mf.Archives {
			archived[i] = scoring.SettleRecords(a.Settings, a.Events).Totals()
		}
		live := res.Totals()
		rep.Totals = scoring.Aggregate(archived, &live)
	}
	return rep, nil
}

func render(w io.Writer, rep *report) error {
	res := rep.Result
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tHAND\tSTATUS\tDESCRIPTION\tDELTA\tBALANCES")
	for _, row := range res.Ledger {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\t%v\n", row.Seq, row.Label, row.Status, row.Description, row.Delta, row.Balances)
	}
	fmt.Fprintf(tw, "\nnext hand: %s\trake collected: %d\n\n", rep.Label, res.RakeCollected)

	fmt.Fprintln(tw, "PLAYER\tTOTAL\tSELF-DRAW\tWIN\tDEAL-IN\tFALSE WIN\tFALSE SELF-DRAW")
	for i, b := range res.Summary {
		s := res.Stats[i]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", b.Name, b.Total,
			s.SelfDraws, s.DiscardWins, s.DealIns, s.FalseWins, s.FalseSelfDraws)
	}

	if len(rep.Totals) > 0 {
		fmt.Fprintln(tw, "\nPLAYER\tMATCHES\tOVERALL")
		for _, t := range rep.Totals {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", t.Name, t.Matches, t.Total)
		}
	}
	return tw.Flush()
}
