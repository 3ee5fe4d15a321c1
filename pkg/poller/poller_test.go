package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/birdsync/birdsync/pkg/metrics"
	"github.com/birdsync/birdsync/pkg/reconcile"
	"github.com/birdsync/birdsync/pkg/store"
	"github.com/birdsync/birdsync/pkg/util"
)

const dump = `BIRD 2.0.8 ready.
Table master4:
10.0.0.0/24          unicast [direct1 10:00:00] * (240)
	via 192.168.1.1 on eth0
203.0.113.0/24       blackhole [static1 10:00:01] * (200)
`

// scriptedSource replays outputs in order and cancels once they run out.
type scriptedSource struct {
	outputs []string
	errs    []error
	calls   int
	cancel  context.CancelFunc
}

func (s *scriptedSource) ShowRoute(context.Context) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outputs) {
		if s.cancel != nil {
			s.cancel()
		}
		return "", errors.New("script exhausted")
	}
	return s.outputs[i], s.errs[i]
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	src := &scriptedSource{outputs: []string{dump}, errs: []error{nil}}
	p := New(src, reconcile.New(mem), "edge1")

	res, err := p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(res.Written) != 2 {
		t.Errorf("Written = %v", res.Written)
	}
	keys, _ := mem.Keys(ctx, "route:edge1:")
	if len(keys) != 2 {
		t.Errorf("keys = %v", keys)
	}
}

func TestRunOnce_SourceUnavailable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.Set(ctx, "route:edge1:10.0.0.0/24", map[string]string{"destination": "10.0.0.0/24"}, time.Minute)

	src := &scriptedSource{outputs: []string{""}, errs: []error{errors.New("exit status 1")}}
	p := New(src, reconcile.New(mem), "edge1")

	_, err := p.RunOnce(ctx)
	if !errors.Is(err, util.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	// previous generation is left to age out on its own
	if ok, _ := mem.Exists(ctx, "route:edge1:10.0.0.0/24"); !ok {
		t.Error("failed cycle touched the store")
	}
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := store.NewMemory()
	src := &scriptedSource{
		outputs: []string{"", dump, dump},
		errs:    []error{&util.SourceError{Command: "birdc show route", Err: errors.New("exit status 1")}, nil, nil},
		cancel:  cancel,
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := New(src, reconcile.New(mem), "edge1", WithInterval(time.Millisecond), WithMetrics(m))

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if src.calls != 4 {
		t.Errorf("source called %d times, want 4", src.calls)
	}
	if got := promtest.ToFloat64(m.Cycles.WithLabelValues(metrics.ResultOK)); got != 2 {
		t.Errorf("ok cycles = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.Cycles.WithLabelValues(metrics.ResultSourceError)); got != 2 {
		t.Errorf("source error cycles = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.Routes); got != 2 {
		t.Errorf("routes gauge = %v, want 2", got)
	}
	keys, _ := mem.Keys(context.Background(), "route:edge1:")
	if len(keys) != 2 {
		t.Errorf("keys = %v", keys)
	}
}

func TestRun_StopsBeforeFirstCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{}
	p := New(src, reconcile.New(store.NewMemory()), "edge1")
	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if src.calls > 1 {
		t.Errorf("source called %d times after cancellation", src.calls)
	}
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("READONLY You can't write against a read only replica")
}

func TestRunOnce_StoreErrorMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	src := &scriptedSource{outputs: []string{dump}, errs: []error{nil}}
	p := New(src, reconcile.New(brokenStore{store.NewMemory()}), "edge1", WithMetrics(m))

	if _, err := p.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := promtest.ToFloat64(m.Cycles.WithLabelValues(metrics.ResultStoreError)); got != 1 {
		t.Errorf("store error cycles = %v, want 1", got)
	}
}
