// Command replaycheck replays every archived match and reports rows whose
// stored outcome the rules no longer reproduce.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/benbeisheim/unionchess-backend/internal/rules"
	"github.com/benbeisheim/unionchess-backend/internal/store"
)

func main() {
	dir := flag.String("dir", "archive", "archive directory")
	parallel := flag.Int64("parallel", 4, "parquet read parallelism")
	verbose := flag.Bool("v", false, "print every match")
	flag.Parse()

	files, err := store.Files(*dir)
	if err != nil {
		fatal(err)
	}

	var checked, failed int
	for _, path := range files {
		rows, err := store.ReadFile(path, *parallel)
		if err != nil {
			fatal(fmt.Errorf("%s: %w", path, err))
		}
		for _, row := range rows {
			checked++
			if err := check(row); err != nil {
				failed++
				fmt.Printf("FAIL %s: %v\n", row.Key, err)
				continue
			}
			if *verbose {
				fmt.Printf("ok   %s %s %s (%d actions)\n", row.Key, row.Status, row.Reason, row.ActionCount)
			}
		}
	}
	fmt.Printf("%d matches checked in %d files, %d failed\n", checked, len(files), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

var errMismatch = errors.New("archived outcome not reproduced")

func check(row store.ArchivedMatch) error {
	rec, err := row.Record()
	if err != nil {
		return err
	}
	actions := make([]rules.Action, len(rec.Actions))
	for i, sa := range rec.Actions {
		actions[i] = sa.Action
	}
	replay, err := rules.ReplayActions(rules.InitialPosition(), actions, rec.Settings.Options)
	if err != nil {
		return err
	}

	if got := rules.Encode(replay.Position()); got != row.FinalNotation {
		return fmt.Errorf("%w: final position %q, archived %q", errMismatch, got, row.FinalNotation)
	}
	got, want := replay.Result(), row.Result()
	switch {
	case got.Decided() && got != want:
		return fmt.Errorf("%w: result %s/%s, archived %s/%s", errMismatch, got.Status, got.Reason, want.Status, want.Reason)
	case !got.Decided() && want.Reason != rules.ReasonTimeout:
		return fmt.Errorf("%w: history is undecided but archived as %s/%s", errMismatch, want.Status, want.Reason)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
