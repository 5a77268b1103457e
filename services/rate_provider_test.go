package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const keyRateXML = `<?xml version="1.0" encoding="utf-8"?>
<KeyRate xmlns="">
  <KR><DT>2026-09-12T00:00:00+03:00</DT><Rate>17,00</Rate></KR>
  <KR><DT>2026-10-15T00:00:00+03:00</DT><Rate>16.50</Rate></KR>
  <KR><DT>2026-08-01T00:00:00+03:00</DT><Rate>18.00</Rate></KR>
</KeyRate>`

func TestParseKeyRatePicksLatest(t *testing.T) {
	rate, err := parseKeyRate([]byte(keyRateXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 16.5 {
		t.Fatalf("expected latest rate 16.5, got %v", rate)
	}
}

func TestParseKeyRateErrors(t *testing.T) {
	if _, err := parseKeyRate([]byte("<KeyRate></KeyRate>")); !errors.Is(err, ErrNoRate) {
		t.Fatalf("expected ErrNoRate, got %v", err)
	}
	if _, err := parseKeyRate([]byte("<KeyRate><KR><Rate>abc</Rate></KR></KeyRate>")); !errors.Is(err, ErrNoRate) {
		t.Fatalf("unparsable rate must be skipped, got %v", err)
	}
	if _, err := parseKeyRate([]byte("not xml <<")); err == nil {
		t.Fatal("expected error for broken XML")
	}
}

func TestRateProviderRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(keyRateXML))
	}))
	defer server.Close()

	p := NewRateProvider(server.URL, 12, time.Second)
	if rate, live := p.Current(); rate != 12 || live {
		t.Fatalf("before refresh expected default rate, got %v (live=%v)", rate, live)
	}

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rate, live := p.Current(); rate != 16.5 || !live {
		t.Fatalf("expected live rate 16.5, got %v (live=%v)", rate, live)
	}
}

func TestRateProviderKeepsCacheOnFailure(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(keyRateXML))
	}))
	defer server.Close()

	p := NewRateProvider(server.URL, 12, time.Second)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	fail.Store(true)
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected error for bad gateway")
	}
	if rate, live := p.Current(); rate != 16.5 || !live {
		t.Fatalf("failed refresh must keep the cached rate, got %v (live=%v)", rate, live)
	}
}

func TestRateProviderWithoutURL(t *testing.T) {
	p := NewRateProvider("", 9.5, time.Second)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("disabled provider must not fail: %v", err)
	}
	if rate, live := p.Current(); rate != 9.5 || live {
		t.Fatalf("expected default rate, got %v (live=%v)", rate, live)
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewSchedulerService(NewRateProvider("", 12, time.Second), "not a schedule", time.Second)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected error for invalid schedule")
	}

	ok := NewSchedulerService(NewRateProvider("", 12, time.Second), "@every 1h", time.Second)
	if err := ok.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ok.Stop().Done()
}
