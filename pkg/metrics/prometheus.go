package metrics

// Gin request metrics in the shape of github.com/zsais/go-gin-prometheus, labelled by
// route template and served from a dedicated listener.

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	httpSubsystem = "http"
	MetricsPath   = "/metrics"
	unmatchedPath = "unmatched"
)

var httpLabels = []string{"code", "method", "route"}

var (
	reqCnt = &Metric{
		Name:        "req_total",
		Description: "How many HTTP requests processed, partitioned by status code, method and route.",
		Type:        "counter_vec",
		Args:        httpLabels,
	}
	reqDur = &Metric{
		Name:        "req_dur_ms",
		Description: "The HTTP request latencies in milliseconds.",
		Type:        "histogram_vec",
		Args:        httpLabels,
	}
	reqSz = &Metric{
		Name:        "req_sz_bytes",
		Description: "The HTTP request sizes in bytes.",
		Type:        "summary_vec",
		Args:        httpLabels,
	}
	resSz = &Metric{
		Name:        "resp_sz_bytes",
		Description: "The HTTP response sizes in bytes.",
		Type:        "summary_vec",
		Args:        httpLabels,
	}
)

// HTTP holds the request collectors and the optional metrics listener.
type HTTP struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	gatherer prometheus.Gatherer
	log      *zap.SugaredLogger
	server   *http.Server
}

// NewHTTP registers the request collectors on reg. gatherer is what the metrics
// listener exposes.
func NewHTTP(reg prometheus.Registerer, gatherer prometheus.Gatherer, log *zap.SugaredLogger) (*HTTP, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &HTTP{gatherer: gatherer, log: log}
	cnt, err := register(reg, reqCnt, httpSubsystem)
	if err != nil {
		return nil, err
	}
	dur, err := register(reg, reqDur, httpSubsystem)
	if err != nil {
		return nil, err
	}
	rq, err := register(reg, reqSz, httpSubsystem)
	if err != nil {
		return nil, err
	}
	rs, err := register(reg, resSz, httpSubsystem)
	if err != nil {
		return nil, err
	}
	h.reqCnt = cnt.(*prometheus.CounterVec)
	h.reqDur = dur.(*prometheus.HistogramVec)
	h.reqSz = rq.(*prometheus.SummaryVec)
	h.resSz = rs.(*prometheus.SummaryVec)
	return h, nil
}

// route keeps label cardinality bounded: "/api/v1/plans/:id" rather than every id.
func route(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return unmatchedPath
}

// Middleware observes every request that reaches the engine.
func (h *HTTP) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		size := computeApproximateRequestSize(c.Request)

		c.Next()

		labels := []string{strconv.Itoa(c.Writer.Status()), c.Request.Method, route(c)}
		h.reqCnt.WithLabelValues(labels...).Inc()
		h.reqDur.WithLabelValues(labels...).Observe(MillisecondsSince(start))
		h.reqSz.WithLabelValues(labels...).Observe(float64(size))
		h.resSz.WithLabelValues(labels...).Observe(float64(c.Writer.Size()))
	}
}

// Handler serves the gathered metrics. It is mounted on its own listener so scrapes stay
// out of the API access log.
func (h *HTTP) Handler() http.Handler {
	r := gin.New()
	r.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	return r
}

// Start binds addr and serves metrics in the background.
func (h *HTTP) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.server = &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Errorw("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	return nil
}

// Stop shuts the metrics listener down, if one was started.
func (h *HTTP) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
