package api

import (
	"html/template"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/yairfalse/kartta/internal/inventory"
	"github.com/yairfalse/kartta/pkg/resource"
)

type tableRow struct {
	Region     string
	Service    string
	ID         string
	Name       string
	Status     string
	Labels     string
	Attributes string
}

type tablePage struct {
	Timestamp string
	Complete  bool
	Rows      []tableRow
	Failures  []resource.Failure
}

func newTablePage(v inventory.View) tablePage {
	page := tablePage{
		Complete: v.Complete,
		Rows:     make([]tableRow, 0, len(v.Records)),
		Failures: v.Failures,
	}
	if !v.Timestamp.IsZero() {
		page.Timestamp = v.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, r := range v.Records {
		page.Rows = append(page.Rows, tableRow{
			Region:     r.Region,
			Service:    string(r.Kind),
			ID:         r.ID,
			Name:       r.Name,
			Status:     r.Status,
			Labels:     joinPairs(r.Labels),
			Attributes: joinPairs(r.Attrs),
		})
	}
	return page
}

// joinPairs renders a map as sorted key=value lines.
func joinPairs(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(m)) {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	return b.String()
}

const pageStyle = `
body { font-family: Arial, sans-serif; background:#f4f6f8; padding:20px; }
table { border-collapse: collapse; width: 100%; background:#fff; box-shadow:0 2px 5px rgba(0,0,0,0.1); }
th, td { border: 1px solid #ccc; padding: 8px; text-align: left; vertical-align: top; }
th { background:#009688; color:#fff; }
tr:nth-child(even) { background:#f9f9f9; }
pre { white-space: pre-wrap; word-wrap: break-word; font-size: 12px; margin: 0; }
.btn { display:inline-block; margin:15px; padding:12px 25px; text-decoration:none; color:#fff; border-radius:5px; font-weight:bold; background:#FF9900; }
.partial { color:#b00020; }
`

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Kartta</title>
<style>` + pageStyle + `</style>
</head>
<body style="text-align:center">
<h2>Kartta cloud inventory</h2>
<a href="/all-table" class="btn">Scan all resources</a>
<a href="/resources" class="btn">JSON inventory</a>
<a href="/healthz" class="btn">Health</a>
<a href="/metrics" class="btn">Metrics</a>
{{if .Regions}}<h3>Regions</h3>
<p>{{range .Regions}}<a href="/all-table?region={{.}}">{{.}}</a> {{end}}</p>
{{end}}{{if .Kinds}}<h3>Services</h3>
<p>{{range .Kinds}}<a href="/all-table?service={{.}}">{{.}}</a> {{end}}</p>
{{end}}</body>
</html>
`))

var tableTmpl = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Kartta resources</title>
<style>` + pageStyle + `</style>
</head>
<body>
<h2>Resources</h2>
<p>Snapshot {{if .Timestamp}}{{.Timestamp}}{{else}}none{{end}}, {{len .Rows}} records{{if not .Complete}}, <span class="partial">partial</span>{{end}}</p>
<table>
<thead>
<tr><th>Region</th><th>Service</th><th>ID</th><th>Name</th><th>Status</th><th>Labels</th><th>Attributes</th></tr>
</thead>
<tbody>
{{range .Rows}}<tr><td>{{.Region}}</td><td>{{.Service}}</td><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Status}}</td><td><pre>{{.Labels}}</pre></td><td><pre>{{.Attributes}}</pre></td></tr>
{{end}}</tbody>
</table>
{{if .Failures}}
<h3 class="partial">Failed targets</h3>
<table>
<thead><tr><th>Region</th><th>Service</th><th>Error</th><th>Message</th></tr></thead>
<tbody>
{{range .Failures}}<tr><td>{{.Target.Region}}</td><td>{{.Target.Kind}}</td><td>{{.Kind}}</td><td>{{.Message}}</td></tr>
{{end}}</tbody>
</table>
{{end}}
</body>
</html>
`))
