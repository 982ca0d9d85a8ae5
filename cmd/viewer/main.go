package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// Read-only terminal view over the live store. BypassLockGuard allows
// opening while the server process holds the lock.
func main() {
	_ = godotenv.Load()

	defaultPath := os.Getenv("BADGER_FILEPATH")
	dbPath := flag.String("db", defaultPath, "Path to badger DB")
	incident := flag.Int64("incident", 0, "Show messages of this incident instead of the incident list")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *incident > 0 {
		renderMessages(db, *incident)
		return
	}
	renderIncidents(db)
}

type diskIncident struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Location     string    `json:"location"`
	ReporterName string    `json:"reporter_name"`
	Resolved     bool      `json:"resolved"`
	CreatedAt    time.Time `json:"created_at"`
}

type diskMessage struct {
	Seq        uint64    `json:"seq"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"`
	Lang       string    `json:"lang"`
	At         time.Time `json:"at"`
}

func renderIncidents(db *badger.DB) {
	table := newTable([]string{"ID", "Type", "Severity", "Location", "Reporter", "Status", "Created"})

	err := scan(db, "incident:", func(key string, val []byte) {
		var inc diskIncident
		if err := json.Unmarshal(val, &inc); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return
		}
		status := color.Green.Sprint("OPEN")
		if inc.Resolved {
			status = color.Gray.Sprint("RESOLVED")
		}
		table.Append([]string{
			fmt.Sprintf("%d", inc.ID),
			inc.Type,
			severityColor(inc.Severity),
			inc.Location,
			inc.ReporterName,
			status,
			inc.CreatedAt.Format("02 Jan 15:04"),
		})
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func renderMessages(db *badger.DB, incident int64) {
	color.Cyan.Printf("Messages for incident %d\n\n", incident)
	table := newTable([]string{"Seq", "At", "Author", "Kind", "Lang", "Body"})

	prefix := fmt.Sprintf("msg:%d:", incident)
	err := scan(db, prefix, func(key string, val []byte) {
		var msg diskMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return
		}
		author := msg.AuthorName
		if msg.Kind == "system" {
			author = color.Yellow.Sprint("system")
		}
		table.Append([]string{
			fmt.Sprintf("%d", msg.Seq),
			msg.At.Format("15:04:05"),
			author,
			msg.Kind,
			msg.Lang,
			msg.Body,
		})
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func scan(db *badger.DB, prefix string, fn func(key string, val []byte)) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			if err := item.Value(func(v []byte) error {
				fn(string(item.Key()), v)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return color.Red.Sprint(severity)
	case "high":
		return color.Magenta.Sprint(severity)
	case "medium":
		return color.Yellow.Sprint(severity)
	default:
		return severity
	}
}
