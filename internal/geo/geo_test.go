package geo

import (
	"errors"
	"testing"

	"github.com/opsu/bancho/internal/session"
)

func sampleRecord() session.GeoRecord {
	return session.GeoRecord{CountryCode: 14, Longitude: 2.35, Latitude: 48.85}
}

func TestStaticLookup(t *testing.T) {
	l := NewStaticLookup()
	if err := l.Add("203.0.113.0/24", sampleRecord()); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := l.Lookup("203.0.113.42")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.CountryCode != sampleRecord().CountryCode {
		t.Errorf("CountryCode = %d, want %d", got.CountryCode, sampleRecord().CountryCode)
	}
}

func TestStaticLookupNotFound(t *testing.T) {
	l := NewStaticLookup()
	if _, err := l.Lookup("198.51.100.1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(unknown) = %v, want ErrNotFound", err)
	}
}

func TestStaticLookupRejectsGarbage(t *testing.T) {
	l := NewStaticLookup()
	if _, err := l.Lookup("not-an-ip"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(garbage) = %v, want ErrNotFound", err)
	}
}
