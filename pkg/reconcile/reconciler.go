// Package reconcile keeps a host's route keys in the shared store equal to
// the latest parsed routing table.
//
// Each cycle replaces the whole generation: every existing key of the host is
// deleted and every parsed route rewritten with a fresh TTL, inside one store
// batch. The batch is a MULTI/EXEC transaction on Redis, so readers see the
// previous generation or the new one, never an empty host in between.
package reconcile

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/birdsync/birdsync/pkg/route"
	"github.com/birdsync/birdsync/pkg/store"
	"github.com/birdsync/birdsync/pkg/util"
)

// DefaultTTL is how long a route survives without being refreshed.
const DefaultTTL = 60 * time.Second

// Reconciler mirrors parsed generations into a Store.
type Reconciler struct {
	store store.Store
	ttl   time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTTL sets the liveness window attached to every written route.
func WithTTL(ttl time.Duration) Option {
	return func(r *Reconciler) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// New creates a Reconciler writing to s.
func New(s store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: s, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the liveness window in use.
func (r *Reconciler) TTL() time.Duration {
	return r.ttl
}

// Result summarizes one reconciliation cycle.
type Result struct {
	Host string
	// Written lists the keys of the new generation in dump order.
	Written []string
	// Deleted counts keys removed before the rewrite.
	Deleted int
	// Stale lists keys that existed before but are absent from the generation.
	Stale []string
	// Replaced lists keys that held a non-hash value before the rewrite.
	Replaced []string
	// Anomalies holds read-back mismatches. They do not fail the cycle.
	Anomalies *multierror.Error
}

// AnomalyCount returns the number of read-back mismatches.
func (res *Result) AnomalyCount() int {
	if res.Anomalies == nil {
		return 0
	}
	return len(res.Anomalies.Errors)
}

// Reconcile makes the keys of hostID match records exactly. An error means
// the store could not be read or the batch failed; in that case the store
// still holds the previous generation, ageing out on its own TTL.
func (r *Reconciler) Reconcile(ctx context.Context, hostID string, records []route.Record) (*Result, error) {
	log := util.WithHost(hostID)
	res := &Result{Host: hostID}

	existing, err := r.store.Keys(ctx, route.HostPrefix(hostID))
	if err != nil {
		return nil, fmt.Errorf("listing keys of %s: %w", hostID, err)
	}

	generation := collapse(hostID, records)
	wanted := make(map[string]bool, len(generation))
	for _, rec := range generation {
		wanted[rec.Key()] = true
	}

	for _, key := range existing {
		if !wanted[key] {
			res.Stale = append(res.Stale, key)
			continue
		}
		typ, err := r.store.Type(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading type of %s: %w", key, err)
		}
		if typ != store.TypeHash && typ != store.TypeNone {
			log.WithField("key", key).Warnf("replacing %s value with route hash", typ)
			res.Replaced = append(res.Replaced, key)
		}
	}

	b := r.store.Batch()
	if len(existing) > 0 {
		b.Delete(existing...)
		res.Deleted = len(existing)
	}
	for _, rec := range generation {
		b.Set(rec.Key(), rec.Fields(), r.ttl)
		res.Written = append(res.Written, rec.Key())
	}
	if err := b.Exec(ctx); err != nil {
		return nil, fmt.Errorf("writing generation of %s: %w", hostID, err)
	}

	for _, rec := range generation {
		if err := r.verify(ctx, rec); err != nil {
			log.WithField("key", rec.Key()).Warn(err)
			res.Anomalies = multierror.Append(res.Anomalies, err)
		}
	}

	log.Infof("reconciled %d routes (%d stale, %d anomalies)", len(res.Written), len(res.Stale), res.AnomalyCount())
	return res, nil
}

// verify reads a written key back and compares it with the record.
func (r *Reconciler) verify(ctx context.Context, rec route.Record) error {
	key := rec.Key()
	typ, err := r.store.Type(ctx, key)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", key, err)
	}
	if typ != store.TypeHash {
		return util.NewAnomalyError(key, "stored type %q, want %q", typ, store.TypeHash)
	}
	got, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", key, err)
	}
	if !maps.Equal(got, rec.Fields()) {
		return util.NewAnomalyError(key, "stored fields %v, want %v", got, rec.Fields())
	}
	return nil
}

// collapse stamps every record with hostID and keeps one record per
// destination: the first primary one, otherwise the last seen. Order follows
// the first appearance of each destination.
func collapse(hostID string, records []route.Record) []route.Record {
	index := make(map[string]int, len(records))
	out := make([]route.Record, 0, len(records))
	for _, rec := range records {
		if rec.Destination == "" {
			continue
		}
		rec.HostID = hostID
		i, seen := index[rec.Destination]
		if !seen {
			index[rec.Destination] = len(out)
			out = append(out, rec)
			continue
		}
		if out[i].Status != route.StatusPrimary {
			out[i] = rec
		}
	}
	return out
}
