// Package geo is the geo-IP lookup collaborator (§6: Geo.Lookup(ip) ->
// GeoRecord | NotFound). spec.md §1 explicitly places geo-IP lookup out of
// the core's scope and treats it as an opaque query by address; no example
// repository in the retrieval pack carries a geo-IP library (MaxMind or
// otherwise) to ground a real implementation on, so this is a small
// stdlib-only boundary with a static-table implementation suitable for
// tests and self-hosted deployments that don't need real geolocation.
package geo

import (
	"errors"
	"net"

	"github.com/opsu/bancho/internal/session"
)

// ErrNotFound is returned when no record exists for the queried address.
var ErrNotFound = errors.New("geo: address not found")

// Lookup resolves a client IP to a best-effort geo record. Implementations
// must treat failure as non-fatal to login (§4.G step 6, §7).
type Lookup interface {
	Lookup(ip string) (session.GeoRecord, error)
}

// StaticLookup is a Lookup backed by an in-memory CIDR table, useful for
// self-hosted deployments and tests. A production deployment would instead
// wrap a real geo-IP database behind the same interface.
type StaticLookup struct {
	entries []entry
}

type entry struct {
	network *net.IPNet
	record  session.GeoRecord
}

// NewStaticLookup returns an empty table; use Add to populate it.
func NewStaticLookup() *StaticLookup {
	return &StaticLookup{}
}

// Add associates every address in cidr with record.
func (l *StaticLookup) Add(cidr string, record session.GeoRecord) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return err
	}
	l.entries = append(l.entries, entry{network: network, record: record})
	return nil
}

// Lookup returns the first matching entry's record, or ErrNotFound.
func (l *StaticLookup) Lookup(ip string) (session.GeoRecord, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return session.GeoRecord{}, ErrNotFound
	}
	for _, e := range l.entries {
		if e.network.Contains(addr) {
			return e.record, nil
		}
	}
	return session.GeoRecord{}, ErrNotFound
}
