// Package editor adds and removes operator-declared static routes, keeping
// bird.conf and the shared store in step and reloading BIRD afterwards.
//
// File replacement and reload are separate phases. A failed reload leaves the
// new file in place; the returned Outcome says which phases completed.
package editor

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/birdsync/birdsync/pkg/birdconf"
	"github.com/birdsync/birdsync/pkg/reconcile"
	"github.com/birdsync/birdsync/pkg/route"
	"github.com/birdsync/birdsync/pkg/store"
	"github.com/birdsync/birdsync/pkg/util"
)

// StaticProtocol is the protocol name stored for operator routes.
const StaticProtocol = "static"

// Editor applies static route changes for one host.
type Editor struct {
	store  store.Store
	conf   birdconf.ConfigWriter
	hostID string
	ttl    time.Duration
	marker string
}

// Option configures an Editor.
type Option func(*Editor)

// WithTTL sets the liveness window of written routes.
func WithTTL(ttl time.Duration) Option {
	return func(e *Editor) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithMarker selects the static block by its opening text.
func WithMarker(marker string) Option {
	return func(e *Editor) {
		if marker != "" {
			e.marker = marker
		}
	}
}

// New creates an Editor.
func New(s store.Store, conf birdconf.ConfigWriter, hostID string, opts ...Option) *Editor {
	e := &Editor{
		store:  s,
		conf:   conf,
		hostID: hostID,
		ttl:    reconcile.DefaultTTL,
		marker: birdconf.DefaultStaticMarker,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome reports which phases of an edit completed.
type Outcome struct {
	Destination   string
	StoreWritten  bool
	StoreRemoved  bool
	ConfigUpdated bool
	Reloaded      bool
	ReloadOutput  string
	Anomalies     *multierror.Error
}

// Add declares destination via nextHop: store record first, then the config
// line, then a reload. The static block is located before anything is
// written, so a missing block changes nothing.
func (e *Editor) Add(ctx context.Context, destination, nextHop string) (*Outcome, error) {
	log := util.WithRoute(e.hostID, destination).WithField("operation", "add")
	out := &Outcome{Destination: destination}

	if err := validateAdd(destination, nextHop); err != nil {
		return out, err
	}

	data, err := e.conf.Read()
	if err != nil {
		return out, err
	}
	edited, err := birdconf.InsertRoute(data, e.marker, destination, nextHop)
	if err != nil {
		return out, err
	}
	if dup, _ := birdconf.HasRoute(data, e.marker, destination); dup {
		log.Warn("destination is already declared in the static block; BIRD will reject the duplicate on reload")
	}

	rec := route.Record{
		Destination: destination,
		Type:        "unicast",
		Protocol:    StaticProtocol,
		NextHop:     route.Some(nextHop),
		HostID:      e.hostID,
	}
	if err := e.store.Set(ctx, rec.Key(), rec.Fields(), e.ttl); err != nil {
		return out, fmt.Errorf("writing %s: %w", rec.Key(), err)
	}
	out.StoreWritten = true
	log.Info("route stored")

	if err := e.conf.Replace(edited); err != nil {
		return out, fmt.Errorf("replacing configuration: %w", err)
	}
	out.ConfigUpdated = true
	log.Info("configuration updated")

	return out, e.reload(ctx, out)
}

// Delete removes destination from the store and from the static block.
// A destination missing from the store returns util.ErrRouteNotFound and a
// missing static block util.ErrConfigBlockNotFound, both with no side
// effects. A route missing from the block returns util.ErrRouteNotInConfig
// after the store record has been removed.
func (e *Editor) Delete(ctx context.Context, destination string) (*Outcome, error) {
	log := util.WithRoute(e.hostID, destination).WithField("operation", "delete")
	out := &Outcome{Destination: destination}
	key := route.Key(e.hostID, destination)

	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return out, fmt.Errorf("checking %s: %w", key, err)
	}
	if !exists {
		return out, fmt.Errorf("%w: %s", util.ErrRouteNotFound, key)
	}

	data, err := e.conf.Read()
	if err != nil {
		return out, err
	}
	if _, err := birdconf.FindStaticBlock(birdconf.SplitLines(data), e.marker); err != nil {
		return out, err
	}

	if fields, err := e.store.Get(ctx, key); err == nil && fields != nil {
		log.Debugf("removing %v", fields)
	}
	if err := e.store.Delete(ctx, key); err != nil {
		return out, fmt.Errorf("deleting %s: %w", key, err)
	}
	out.StoreRemoved = true

	if still, err := e.store.Exists(ctx, key); err != nil || still {
		anomaly := util.NewAnomalyError(key, "still present after delete")
		if err != nil {
			anomaly = util.NewAnomalyError(key, "verifying delete: %v", err)
		}
		log.Warn(anomaly)
		out.Anomalies = multierror.Append(out.Anomalies, anomaly)
	} else {
		log.Info("route removed from store")
	}

	edited, err := birdconf.RemoveRoute(data, e.marker, destination)
	if err != nil {
		if errors.Is(err, util.ErrRouteNotInConfig) {
			log.Warn("route was in the store but not in the configuration")
		}
		return out, err
	}
	if err := e.conf.Replace(edited); err != nil {
		return out, fmt.Errorf("replacing configuration: %w", err)
	}
	out.ConfigUpdated = true
	log.Info("configuration updated")

	return out, e.reload(ctx, out)
}

func (e *Editor) reload(ctx context.Context, out *Outcome) error {
	output, err := e.conf.Reload(ctx)
	out.ReloadOutput = output
	if err != nil {
		rerr := &util.ReloadError{Output: output, ConfigReplaced: out.ConfigUpdated, Err: err}
		util.WithRoute(e.hostID, out.Destination).Error(rerr)
		return rerr
	}
	out.Reloaded = true
	return nil
}

func validateAdd(destination, nextHop string) error {
	var vb util.ValidationBuilder
	if destination == "" {
		vb.AddErrorf("destination is required")
	} else if _, err := netip.ParsePrefix(destination); err != nil {
		vb.AddErrorf("destination %q is not a CIDR prefix", destination)
	}
	if nextHop == "" {
		vb.AddErrorf("next hop is required")
	} else if _, err := netip.ParseAddr(nextHop); err != nil {
		vb.AddErrorf("next hop %q is not an IP address", nextHop)
	}
	return vb.Build()
}
