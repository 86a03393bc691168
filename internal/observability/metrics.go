package observability

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics and renders them in the
// Prometheus text exposition format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// seriesKey identifies one labelled series of a metric family.
func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

// NewCounter registers a counter series. Registering the same name and
// labels twice returns the existing series.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// NewGauge registers a gauge series.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// NewHistogram registers a histogram series. Nil buckets use DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	if h, ok := r.histos[key]; ok {
		return h
	}
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[key] = h
	return h
}

// DefaultBuckets returns histogram buckets sized for workflow steps, which
// range from a cached vector search to a multi-minute PDF ingest.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter. Negative values are ignored.
func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
}

// ObserveDuration records the time elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus scraping.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes every series in text format. HELP and TYPE lines
// are emitted once per metric family and series are sorted for stable output.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	header := func(name, help, kind string) {
		if seen[name] {
			return
		}
		seen[name] = true
		io.WriteString(w, "# HELP "+name+" "+help+"\n")
		io.WriteString(w, "# TYPE "+name+" "+kind+"\n")
	}

	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		c.mu.Lock()
		header(c.name, c.help, "counter")
		io.WriteString(w, key+" "+formatFloat(c.value)+"\n")
		c.mu.Unlock()
	}

	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		g.mu.Lock()
		header(g.name, g.help, "gauge")
		io.WriteString(w, key+" "+formatFloat(g.value)+"\n")
		g.mu.Unlock()
	}

	for _, key := range sortedKeys(r.histos) {
		h := r.histos[key]
		h.mu.Lock()
		header(h.name, h.help, "histogram")
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func writeHistogram(w io.Writer, h *Histogram) {
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+formatUint(cumulative)+"\n")
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+formatUint(h.count)+"\n")
	io.WriteString(w, h.name+"_sum"+formatLabels(h.labels)+" "+formatFloat(h.sum)+"\n")
	io.WriteString(w, h.name+"_count"+formatLabels(h.labels)+" "+formatUint(h.count)+"\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatLabels renders labels sorted by key so series keys are stable.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range sortedKeys(labels) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeLabel(labels[k]))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// RAGMetrics groups the service metrics for workflow steps, model calls,
// the event surface and the vector index.
type RAGMetrics struct {
	Registry *MetricsRegistry

	ChunksIngestedTotal *Counter
	QueriesTotal        *Counter
	ActiveWorkers       *Gauge
}

// NewRAGMetrics creates a registry with the fixed service metrics.
func NewRAGMetrics() *RAGMetrics {
	r := NewMetricsRegistry()
	return &RAGMetrics{
		Registry:            r,
		ChunksIngestedTotal: r.NewCounter("pdfrag_chunks_ingested_total", "Chunks upserted into the vector store", nil),
		QueriesTotal:        r.NewCounter("pdfrag_queries_total", "Questions answered", nil),
		ActiveWorkers:       r.NewGauge("pdfrag_active_workers", "Running Temporal workers", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *RAGMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordStep records one run of a workflow step such as "load-and-chunk".
func (m *RAGMetrics) RecordStep(step string, duration time.Duration, err error) {
	labels := map[string]string{"step": step}
	m.Registry.NewCounter("pdfrag_step_runs_total", "Workflow step executions", labels).Inc()
	m.Registry.NewHistogram("pdfrag_step_duration_seconds", "Workflow step duration", labels, nil).Observe(duration.Seconds())
	if err != nil {
		m.Registry.NewCounter("pdfrag_step_errors_total", "Failed workflow step executions", labels).Inc()
	}
}

// RecordLLMRequest records one completion or embedding call.
func (m *RAGMetrics) RecordLLMRequest(provider, op string, duration time.Duration, tokens int, err error) {
	labels := map[string]string{"provider": provider, "op": op}
	m.Registry.NewCounter("pdfrag_llm_requests_total", "Model API requests", labels).Inc()
	m.Registry.NewHistogram("pdfrag_llm_request_duration_seconds", "Model API request duration", labels, nil).Observe(duration.Seconds())
	if tokens > 0 {
		m.Registry.NewCounter("pdfrag_llm_tokens_total", "Tokens consumed", labels).Add(float64(tokens))
	}
	if err != nil {
		m.Registry.NewCounter("pdfrag_llm_errors_total", "Failed model API requests", labels).Inc()
	}
}

// RecordVectorOp records one vector-store call that began at start.
func (m *RAGMetrics) RecordVectorOp(provider, op string, start time.Time, err error) {
	labels := map[string]string{"provider": provider, "op": op}
	m.Registry.NewCounter("pdfrag_vector_requests_total", "Vector store requests", labels).Inc()
	m.Registry.NewHistogram("pdfrag_vector_request_duration_seconds", "Vector store request duration", labels, nil).ObserveDuration(start)
	if err != nil {
		m.Registry.NewCounter("pdfrag_vector_errors_total", "Failed vector store requests", labels).Inc()
	}
}

// RecordEventSent records an event accepted by the dispatcher.
func (m *RAGMetrics) RecordEventSent(name string) {
	m.Registry.NewCounter("pdfrag_events_sent_total", "Events dispatched to workflows", map[string]string{"event": name}).Inc()
}

// RecordChunksIngested adds n upserted chunks.
func (m *RAGMetrics) RecordChunksIngested(n int) {
	m.ChunksIngestedTotal.Add(float64(n))
}

// RecordQuery counts an answered question.
func (m *RAGMetrics) RecordQuery() {
	m.QueriesTotal.Inc()
}

var (
	globalMetrics     *RAGMetrics
	globalMetricsOnce sync.Once
)

// Metrics returns the process-wide metrics instance.
func Metrics() *RAGMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewRAGMetrics()
	})
	return globalMetrics
}
