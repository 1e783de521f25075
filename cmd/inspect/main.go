// Command inspect dumps the badger keyspace of a chat-core store, as a
// table or through the JSON inspector.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"chat-core/internal"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	DebugPort      int    `envconfig:"DEBUG_PORT" default:"8081"`
}

func main() {
	prefix := flag.String("prefix", "chat:", "key prefix to scan (chat:, msg:, notif:, unread:, status:, user:)")
	limit := flag.Int("limit", internal.DefaultInspectLimit, "maximum rows")
	serve := flag.Bool("serve", false, "serve the JSON inspector instead of printing")
	flag.Parse()

	if err := run(*prefix, *limit, *serve); err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		os.Exit(1)
	}
}

func run(prefix string, limit int, serve bool) error {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	db, err := openReadOnly(config.BadgerFilepath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if serve {
		log := logs.GetLoggerFromString("INFO")
		stats := func() map[string]any {
			return map[string]any{"mode": "read-only viewer", "time": time.Now().Format(time.RFC822)}
		}
		internal.StartDebugServer(db, config.DebugPort, "/inspect", stats, log)
		waitForInterrupt(log)
		return nil
	}

	rows, err := internal.Scan(db, prefix, limit, internal.DefaultMapper)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Namespace", "Owner", "Entity", "Timestamp", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	for _, row := range rows {
		table.Append([]string{row.Key, row.Namespace, row.Owner, row.Entity, row.Timestamp, row.Detail})
	}
	table.Render()
	return nil
}

// openReadOnly bypasses the directory lock so a running server can be inspected.
func openReadOnly(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "truncate") {
		return nil, fmt.Errorf("value log needs a truncate, stop the server and retry: %w", err)
	}
	return db, err
}

func waitForInterrupt(log *slog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	<-signals
	log.Info("Inspector stopped")
}
