package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roboricindustries/raycon-changefeed/pkg/changefeed"
)

// Prom counts change notification outcomes on a private registry.
type Prom struct {
	reg           *prometheus.Registry
	published     *prometheus.CounterVec
	publishFailed *prometheus.CounterVec
	resolveFailed *prometheus.CounterVec
	received      *prometheus.CounterVec
}

var _ changefeed.Observer = (*Prom)(nil)

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	labels := []string{"entity", "channel"}
	p := &Prom{
		reg: reg,
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changefeed_published_total", Help: "Change messages accepted by the publisher",
		}, labels),
		publishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changefeed_publish_failed_total", Help: "Change messages the publisher rejected",
		}, labels),
		resolveFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changefeed_resolve_failed_total", Help: "Targets skipped because resolution failed",
		}, labels),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changefeed_received_total", Help: "Change messages consumed",
		}, []string{"entity", "operation"}),
	}
	reg.MustRegister(p.published, p.publishFailed, p.resolveFailed, p.received)
	return p
}

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

func (p *Prom) Published(entity, channel string) {
	p.published.WithLabelValues(entity, channel).Inc()
}

func (p *Prom) PublishFailed(entity, channel string) {
	p.publishFailed.WithLabelValues(entity, channel).Inc()
}

func (p *Prom) ResolveFailed(entity, channel string) {
	p.resolveFailed.WithLabelValues(entity, channel).Inc()
}

func (p *Prom) Received(entity, operation string) {
	p.received.WithLabelValues(entity, operation).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (p *Prom) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
