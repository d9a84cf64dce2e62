package status

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"log"
	"net/http"
	"strings"

	"github.com/PowerDNS/simpleblob"
	"github.com/c2h5oh/datasize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"

	"github.com/allocview/allocview/config"
)

func StartHTTPServer(c config.Config) {
	if c.HTTP.Address == "" {
		logrus.Info("HTTP stats server disabled")
		return
	}
	logrus.WithField("address", c.HTTP.Address).Info("HTTP stats server enabled")
	http.Handle("/metrics", promhttp.Handler())
	http.Handle("/healthz", healthz.Handler())
	http.HandleFunc("/api/traces", handleTraceList)
	http.HandleFunc("/api/traces/", handleTraceGet)
	http.Handle("/", &Page{
		c: c,
	})
	go func() {
		err := http.ListenAndServe(c.HTTP.Address, nil)
		logrus.Fatalf("HTTP server error: %v", err)
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Warn("JSON response write failed")
	}
}

// handleTraceList serves summaries of all decoded traces.
func handleTraceList(w http.ResponseWriter, r *http.Request) {
	summaries := Summarize(gi.Traces())
	if summaries == nil {
		summaries = []TraceSummary{}
	}
	writeJSON(w, summaries)
}

// handleTraceGet serves one decoded trace in full, including its init
// block and all diffs.
func handleTraceGet(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/traces/")
	wt := gi.Watcher()
	if wt == nil {
		http.Error(w, "watcher not running", http.StatusServiceUnavailable)
		return
	}
	t, ok := wt.Get(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, t)
}

type Page struct {
	c config.Config
}

const statusTemplateString = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<title>AllocView Status</title>
	<style>
		body          { font-family: sans-serif; }
		table, td, th { border: 1px solid #ccc; border-collapse: collapse; }
		td, th        { padding: 5px; text-align: left; }
		td.num        { text-align: right; }
		a             { text-decoration: none; color: #3c6ac5; }
	</style>
</head>
<body>
	<h1>AllocView Status</h1>
	<p>
		<a href="/metrics">Prometheus metrics</a> |
		<a href="/healthz">Health</a> |
		<a href="/api/traces">Traces API</a>
	</p>

	<h2>Traces</h2>
	<p>{{ .NumTraces }} loaded ({{ .TotalAllocs }} allocations), {{ .Decoding }} decoding</p>
	<table>
		<tr>
			<th>Name</th><th>Size</th><th>Allocations</th><th>Collected</th>
			<th>Diffs</th><th>Word size</th><th>Loaded at</th><th>Load time</th>
		</tr>
		{{ range .Traces }}
		<tr>
			<td><a href="/api/traces/{{ .Name }}">{{ .Name }}</a></td>
			<td class="num">{{ .Size }}</td>
			<td class="num">{{ .Allocs }}</td>
			<td class="num">{{ .Dead }}</td>
			<td class="num">{{ .Diffs }}</td>
			<td class="num">{{ .WordSize }}</td>
			<td>{{ .LoadedAt.Format "2006-01-02 15:04:05" }}</td>
			<td class="num">{{ .LoadTime }}</td>
		</tr>
		{{ end }}
	</table>

	<h2>Storage</h2>
	{{ if .BlobsErr }}
	<p>Error listing storage: {{ .BlobsErr }}</p>
	{{ else }}
	<p>{{ len .Blobs }} blobs, {{ .BlobsSize }} total</p>
	<table>
		<tr><th>Name</th><th>Size</th></tr>
		{{ range .Blobs }}
		<tr><td>{{ .Name }}</td><td class="num">{{ .Size }}</td></tr>
		{{ end }}
	</table>
	{{ end }}

	<h2>Config</h2>
	<pre>{{ .Config.String }}</pre>

</body>
</html>`

var statusTemplate *htmltemplate.Template

func init() {
	var err error
	statusTemplate, err = htmltemplate.New("status").Parse(statusTemplateString)
	if err != nil {
		log.Fatalf("BUG: Error in status HTML template: %v", err)
	}
}

type blobRow struct {
	Name string
	Size datasize.ByteSize
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	traces := Summarize(gi.Traces())
	var decoding int
	if wt := gi.Watcher(); wt != nil {
		decoding = wt.Decoding()
	}

	var blobs []blobRow
	var blobsErr error
	var blobsSize datasize.ByteSize
	if bl, err := gi.ListBlobs(r.Context()); err != nil {
		blobsErr = err
	} else {
		blobs = lo.Map(bl, func(b simpleblob.Blob, _ int) blobRow {
			return blobRow{Name: b.Name, Size: datasize.ByteSize(b.Size)}
		})
		blobsSize = datasize.ByteSize(lo.SumBy(blobs, func(b blobRow) uint64 {
			return uint64(b.Size)
		}))
	}

	data := struct {
		Config      config.Config
		Traces      []TraceSummary
		NumTraces   int
		TotalAllocs int
		Decoding    int
		Blobs       []blobRow
		BlobsSize   datasize.ByteSize
		BlobsErr    error
	}{
		Config:    p.c,
		Traces:    traces,
		NumTraces: len(traces),
		TotalAllocs: lo.SumBy(traces, func(t TraceSummary) int {
			return t.Allocs
		}),
		Decoding:  decoding,
		Blobs:     blobs,
		BlobsSize: blobsSize,
		BlobsErr:  blobsErr,
	}

	err := statusTemplate.Execute(w, data)
	if err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(fmt.Sprintf("Template execution error: %v", err)))
	}
}
