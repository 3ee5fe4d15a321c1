// Package poller drives fetch, parse, and reconcile on a fixed interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/birdsync/birdsync/pkg/metrics"
	"github.com/birdsync/birdsync/pkg/reconcile"
	"github.com/birdsync/birdsync/pkg/route"
	"github.com/birdsync/birdsync/pkg/util"
)

// DefaultInterval is the pause between the end of one cycle and the start of
// the next.
const DefaultInterval = 30 * time.Second

// Source produces the raw routing table dump; *birdc.Client implements it.
type Source interface {
	ShowRoute(ctx context.Context) (string, error)
}

// Poller runs one cycle at a time; cycles never overlap.
type Poller struct {
	source     Source
	parser     *route.Parser
	reconciler *reconcile.Reconciler
	hostID     string
	interval   time.Duration
	metrics    *metrics.Metrics
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the sleep between cycles.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMetrics records cycle outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// New creates a Poller for hostID.
func New(source Source, reconciler *reconcile.Reconciler, hostID string, opts ...Option) *Poller {
	p := &Poller{
		source:     source,
		parser:     route.NewParser(hostID),
		reconciler: reconciler,
		hostID:     hostID,
		interval:   DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run runs a cycle immediately and then after every interval until ctx is
// done. Cycle failures are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	log := util.WithOperation("poll").WithField("host", p.hostID)
	log.Infof("polling every %s", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("poller stopped")
			return nil
		case <-timer.C:
		}

		if _, err := p.RunOnce(ctx); err != nil {
			log.Errorf("cycle failed: %v", err)
		}
		timer.Reset(p.interval)
	}
}

// RunOnce performs a single fetch, parse, and reconcile cycle.
func (p *Poller) RunOnce(ctx context.Context) (*reconcile.Result, error) {
	start := time.Now()
	res, err := p.cycle(ctx)
	if p.metrics != nil {
		p.metrics.Duration.Observe(time.Since(start).Seconds())
		p.observe(res, err)
	}
	return res, err
}

func (p *Poller) cycle(ctx context.Context) (*reconcile.Result, error) {
	raw, err := p.source.ShowRoute(ctx)
	if err != nil {
		if !errors.Is(err, util.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", util.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	records := p.parser.Parse(raw)
	return p.reconciler.Reconcile(ctx, p.hostID, records)
}

func (p *Poller) observe(res *reconcile.Result, err error) {
	switch {
	case errors.Is(err, util.ErrSourceUnavailable):
		p.metrics.Cycles.WithLabelValues(metrics.ResultSourceError).Inc()
	case err != nil:
		p.metrics.Cycles.WithLabelValues(metrics.ResultStoreError).Inc()
	default:
		p.metrics.Cycles.WithLabelValues(metrics.ResultOK).Inc()
		p.metrics.Routes.Set(float64(len(res.Written)))
		p.metrics.Stale.Add(float64(len(res.Stale)))
		p.metrics.Anomalies.Add(float64(res.AnomalyCount()))
	}
}
