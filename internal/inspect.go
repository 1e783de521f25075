package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const DefaultInspectLimit = 200

// InspectRow is one badger entry as shown by the inspectors.
type InspectRow struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace"`
	Owner     string `json:"owner"`
	Entity    string `json:"entity"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type inspectPage struct {
	Prefix string         `json:"prefix"`
	Items  []InspectRow   `json:"items"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// DefaultMapper splits keys of the form namespace:owner[:entity] and reads
// the createdAt nanoseconds of JSON records when present.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.SplitN(key, ":", 3)
	row := InspectRow{
		Key:       key,
		Namespace: parts[0],
		Timestamp: "--:--:--",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	if len(parts) > 1 {
		row.Owner = parts[1]
	}
	if len(parts) > 2 {
		row.Entity = strings.TrimLeft(parts[2], "0")
	}
	var record struct {
		CreatedAt int64 `json:"createdAt"`
	}
	if json.Unmarshal(val, &record) == nil && record.CreatedAt != 0 {
		row.Timestamp = time.Unix(0, record.CreatedAt).UTC().Format("15:04:05")
	}
	return row
}

// Scan walks every key under prefix, at most limit rows.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// InspectHandler serves GET ?prefix=&limit= as JSON rows.
func InspectHandler(db *badger.DB, mapper RowMapper, stats StatsProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = DefaultInspectLimit
		}
		page := inspectPage{Prefix: prefix}
		if page.Items, err = Scan(db, prefix, limit, mapper); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if stats != nil {
			page.Stats = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	})
}

// StartDebugServer exposes the inspector on its own port, apart from the API.
func StartDebugServer(db *badger.DB, port int, endpoint string, stats StatsProvider, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(endpoint, InspectHandler(db, DefaultMapper, stats))
	address := fmt.Sprintf("localhost:%d", port)
	go func() {
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Warn("Debug server stopped", "address", address, "error", err)
		}
	}()
	log.Info("Badger inspector available", "url", "http://"+address+endpoint)
}
