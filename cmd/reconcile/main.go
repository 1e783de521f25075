// Command reconcile compares every stored unread counter with the live
// unread notifications and optionally rewrites the drifted ones.
//
// The server must be stopped: badger allows a single writer process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"chat-core/domain"
	"chat-core/repositories"
	"chat-core/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"WARN"`
	MaxTxnRetries  int    `envconfig:"MAX_TXN_RETRIES" default:"50"`
	// RECONCILE_COLOURS colours drifted rows
	Colours bool `envconfig:"RECONCILE_COLOURS" default:"true"`
}

func main() {
	repair := flag.Bool("repair", false, "rewrite drifted counters and notify their owners")
	onlyDrift := flag.Bool("drift-only", false, "hide users whose counter is correct")
	flag.Parse()

	if err := run(*repair, *onlyDrift); err != nil {
		fmt.Fprintf(os.Stderr, "Reconcile failed: %v\n", err)
		os.Exit(1)
	}
}

func run(repair, onlyDrift bool) error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() { _ = db.Close() }()

	store := repositories.NewStore(db, log, config.MaxTxnRetries)
	// Nobody is connected while the server is down, events go nowhere
	counter := services.NewNotificationCounter(store, discardEmitter{}, log)
	results, err := counter.ReconcileAll(context.Background(), repair)
	if err != nil {
		return err
	}
	render(os.Stdout, results, repair, onlyDrift, config.Colours)
	return nil
}

func render(w io.Writer, results []domain.Reconciliation, repair, onlyDrift, colours bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"User", "Stored", "Live", "Drift", "Status"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	drifted := 0
	for _, r := range results {
		drift := r.Drift()
		if drift != 0 {
			drifted++
		} else if onlyDrift {
			continue
		}
		table.Append([]string{string(r.UserID), strconv.FormatInt(r.Stored, 10), strconv.FormatInt(r.Live, 10),
			strconv.FormatInt(drift, 10), status(r, colours)})
	}
	table.Render()

	summary := fmt.Sprintf("%d users checked, %d drifted", len(results), drifted)
	if repair {
		summary += ", repaired"
	}
	if colours && drifted > 0 {
		summary = color.New(color.FgYellow).Render(summary)
	}
	_, _ = fmt.Fprintln(w, summary)
}

func status(r domain.Reconciliation, colours bool) string {
	label := "ok"
	style := color.New(color.FgGreen)
	switch {
	case r.Repaired:
		label, style = "repaired", color.New(color.FgCyan)
	case r.Drift() != 0:
		label, style = "drift", color.New(color.FgRed, color.OpBold)
	}
	if !colours {
		return label
	}
	return style.Render(label)
}
