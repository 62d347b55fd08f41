package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/userauth"
	"github.com/MrEthical07/userauth/metrics/export/internaldefs"
)

// ContentType is the text exposition format version served by Handler.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() userauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics on demand. It holds no state of its own, so
// every scrape reads a fresh snapshot.
type Exporter struct {
	source metricsSource
}

// NewExporter returns an exporter for engine. A nil engine renders nothing.
func NewExporter(engine *userauth.Engine) *Exporter {
	if engine == nil {
		return &Exporter{}
	}
	return &Exporter{source: engine}
}

func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition text.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_, _ = p.WriteTo(w)
	})
}

// Render returns the exposition text, or "" when metrics are disabled.
func (p *Exporter) Render() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the exposition text to w.
func (p *Exporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	ew := &expositionWriter{w: bufio.NewWriterSize(w, 4096)}
	for _, def := range internaldefs.CounterDefs {
		ew.counter(def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		if h, ok := snapshot.Histograms[def.ID]; ok {
			ew.histogram(def.Name, def.Help, h)
		}
	}
	ew.counter(internaldefs.AuditDroppedName, "Audit events dropped on a full dispatcher buffer.", dropped)

	if ew.err == nil {
		ew.err = ew.w.Flush()
	}
	return ew.n, ew.err
}

// expositionWriter keeps the first write error and stops writing after it.
type expositionWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (e *expositionWriter) write(parts ...string) {
	for _, s := range parts {
		if e.err != nil {
			return
		}
		n, err := e.w.WriteString(s)
		e.n += int64(n)
		e.err = err
	}
}

func (e *expositionWriter) header(name, help, kind string) {
	e.write("# HELP ", name, " ", escapeHelp(help), "\n# TYPE ", name, " ", kind, "\n")
}

func (e *expositionWriter) counter(name, help string, value uint64) {
	e.header(name, help, "counter")
	e.write(name, " ", strconv.FormatUint(value, 10), "\n")
}

func (e *expositionWriter) histogram(name, help string, h userauth.HistogramSnapshot) {
	e.header(name, help, "histogram")
	cumulative := internaldefs.CumulativeBuckets(h.Buckets)
	for i, le := range internaldefs.HistogramBounds {
		e.write(name, `_bucket{le="`, le, `"} `, strconv.FormatUint(cumulative[i], 10), "\n")
	}
	e.write(name, "_sum ", strconv.FormatFloat(h.Sum.Seconds(), 'g', -1, 64), "\n")
	e.write(name, "_count ", strconv.FormatUint(cumulative[len(cumulative)-1], 10), "\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}
