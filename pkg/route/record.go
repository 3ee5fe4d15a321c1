// Package route models routing table entries reported by BIRD and parses the
// text dump produced by "birdc show route".
package route

import (
	"fmt"
	"strconv"
)

// KeyPrefix is the namespace of every route key in the shared store.
const KeyPrefix = "route:"

// Status is the selection state BIRD marks a route with.
type Status string

const (
	StatusNone      Status = ""
	StatusPrimary   Status = "primary"
	StatusAlternate Status = "alternate"
	StatusFiltered  Status = "filtered"
)

// ParseStatus maps a wire value back to a Status. Unknown values map to StatusNone.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPrimary, StatusAlternate, StatusFiltered:
		return Status(s)
	}
	return StatusNone
}

// Opt is an optional value. The zero value is unset, which is distinct from
// a set value that happens to be the zero value of T.
type Opt[T comparable] struct {
	value T
	set   bool
}

// Some returns a set Opt holding v.
func Some[T comparable](v T) Opt[T] {
	return Opt[T]{value: v, set: true}
}

// None returns an unset Opt.
func None[T comparable]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is set.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether the value was observed.
func (o Opt[T]) IsSet() bool {
	return o.set
}

// Equal reports whether both options are unset or both hold the same value.
func (o Opt[T]) Equal(other Opt[T]) bool {
	return o == other
}

func (o Opt[T]) String() string {
	if !o.set {
		return "<unset>"
	}
	return fmt.Sprint(o.value)
}

// Record is one routing table entry observed on one host.
// Records are built by the parser and not modified afterwards.
type Record struct {
	Destination string
	Type        string
	Protocol    string
	Status      Status
	Metric      Opt[int]
	NextHop     Opt[string]
	Interface   Opt[string]
	HostID      string
}

// Wire field names of a stored route hash.
const (
	FieldDestination = "destination"
	FieldType        = "type"
	FieldProtocol    = "protocol"
	FieldStatus      = "status"
	FieldMetric      = "metric"
	FieldNextHop     = "next_hop"
	FieldInterface   = "interface"
	FieldHost        = "host"
)

// Key returns the store key of the record: route:<host>:<destination>.
func (r Record) Key() string {
	return Key(r.HostID, r.Destination)
}

// Key formats the store key for a destination reported by host.
func Key(hostID, destination string) string {
	return HostPrefix(hostID) + destination
}

// HostPrefix returns the key prefix shared by every route of host.
func HostPrefix(hostID string) string {
	return KeyPrefix + hostID + ":"
}

// DestinationFromKey extracts the destination from a key of host.
// The second return value is false when key does not belong to host.
func DestinationFromKey(hostID, key string) (string, bool) {
	prefix := HostPrefix(hostID)
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

// Equal compares every field, so a changed metric or next hop is a difference
// even though the key is unchanged.
func (r Record) Equal(other Record) bool {
	return r == other
}

// Fields encodes the record as a flat string map for the store.
// Unset optional fields are written as empty strings.
func (r Record) Fields() map[string]string {
	metric := ""
	if m, ok := r.Metric.Get(); ok {
		metric = strconv.Itoa(m)
	}
	nextHop, _ := r.NextHop.Get()
	iface, _ := r.Interface.Get()
	return map[string]string{
		FieldDestination: r.Destination,
		FieldType:        r.Type,
		FieldProtocol:    r.Protocol,
		FieldStatus:      string(r.Status),
		FieldMetric:      metric,
		FieldNextHop:     nextHop,
		FieldInterface:   iface,
		FieldHost:        r.HostID,
	}
}

// FromFields decodes a stored hash. Empty optional fields decode as unset,
// since the wire form cannot tell them apart.
func FromFields(fields map[string]string) Record {
	r := Record{
		Destination: fields[FieldDestination],
		Type:        fields[FieldType],
		Protocol:    fields[FieldProtocol],
		Status:      ParseStatus(fields[FieldStatus]),
		HostID:      fields[FieldHost],
	}
	if m, err := strconv.Atoi(fields[FieldMetric]); err == nil && m >= 0 {
		r.Metric = Some(m)
	}
	if v := fields[FieldNextHop]; v != "" {
		r.NextHop = Some(v)
	}
	if v := fields[FieldInterface]; v != "" {
		r.Interface = Some(v)
	}
	return r
}
