package internal

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Minimal HTML inspector over the raw key space. Development tool only;
// it never runs unless debug logging is enabled.
const inspectTemplate = `<!DOCTYPE html>
<html>
<head>
<title>roadlink inspector</title>
<style>
body { font-family: monospace; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 4px 12px; border-bottom: 1px solid #ddd; }
form { margin-bottom: 1em; }
</style>
</head>
<body>
<h2>Store inspector</h2>
<form method="get">
<input type="text" name="prefix" value="{{.Prefix}}"/>
<button type="submit">Scan</button>
</form>
<p>{{range $k, $v := .Stats}}{{$k}}={{$v}} {{end}}</p>
<table>
<tr><th>Key</th><th>Type</th><th>Entity</th><th>Detail</th></tr>
{{range .Items}}
<tr><td>{{.Key}}</td><td>{{.Type}}</td><td>{{.EntityID}}</td><td>{{.Detail}}</td></tr>
{{end}}
</table>
</body>
</html>`

type InspectRow struct {
	Key      string
	Type     string
	EntityID string
	Detail   string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

func StartDebugServer(db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.New("inspect").Parse(inspectTemplate))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "incident:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// DefaultMapper understands the platform key scheme: msg:{incident}:{seq},
// incident:{id}, user:{email}, seq:{incident}, stats:*.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:      key,
		Type:     "RAW",
		EntityID: "--------",
		Detail:   "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch parts[0] {
	case "msg":
		row.Type = "MESSAGE"
		if len(parts) >= 3 {
			row.EntityID = parts[1] + "/" + strings.TrimLeft(parts[2], "0")
		}
		row.Detail = truncate(string(val), 120)
	case "incident":
		row.Type = "INCIDENT"
		if len(parts) >= 2 {
			row.EntityID = strings.TrimLeft(parts[1], "0")
		}
		row.Detail = truncate(string(val), 120)
	case "user":
		row.Type = "USER"
		if len(parts) >= 2 {
			row.EntityID = parts[1]
		}
	case "seq", "stats":
		row.Type = "COUNTER"
		row.EntityID = strings.Join(parts[1:], ":")
	}
	return row
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
