package resultcache

import (
	"bytes"
	"testing"
	"time"
)

func TestSetGetReturnsCopies(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if !s.Set("k1", []byte("abc"), 0) {
		t.Fatalf("expected Set to succeed")
	}
	v, ok := s.Get("k1")
	if !ok || string(v) != "abc" {
		t.Fatalf("Get mismatch: ok=%v v=%q", ok, v)
	}
	// mutating the returned copy must not affect the store
	v[0] = 'X'
	v2, ok := s.Get("k1")
	if !ok || string(v2) != "abc" {
		t.Fatalf("Get after mutating copy: ok=%v v=%q", ok, v2)
	}
}

func TestGetDel(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k2", []byte("42"), 0)
	v, ok := s.GetDel("k2")
	if !ok || string(v) != "42" {
		t.Fatalf("GetDel mismatch: ok=%v v=%q", ok, v)
	}
	if _, ok := s.Get("k2"); ok {
		t.Fatalf("expected key deleted after GetDel")
	}
	m := s.Metrics()
	if m.Keys != 0 || m.Bytes != 0 {
		t.Fatalf("metrics after GetDel: %+v", m)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := New(Options{SweepInterval: 20 * time.Millisecond})
	defer s.Close()

	s.Set("k3", []byte("v"), 40*time.Millisecond)
	if !s.Exists("k3") {
		t.Fatalf("expected key present before TTL")
	}
	if _, ok := s.TTL("k3"); !ok {
		t.Fatalf("expected TTL reported")
	}
	time.Sleep(120 * time.Millisecond)
	if _, ok := s.Get("k3"); ok {
		t.Fatalf("expected key expired")
	}
	m := s.Metrics()
	if m.Expired == 0 {
		t.Fatalf("expected Expired > 0, got %+v", m)
	}
	if m.Keys != 0 {
		t.Fatalf("expected swept key accounted, got %+v", m)
	}
}

func TestMaxBytesRejectsNewKey(t *testing.T) {
	s := New(Options{MaxBytes: 64})
	defer s.Close()

	if !s.Set("a", bytes.Repeat([]byte{'x'}, 50), 0) {
		t.Fatalf("expected initial Set to succeed")
	}
	if s.Set("b", bytes.Repeat([]byte{'y'}, 20), 0) {
		t.Fatalf("expected Set rejected when exceeding MaxBytes")
	}
	if s.Exists("b") {
		t.Fatalf("key b must not exist after rejected Set")
	}
	m := s.Metrics()
	if m.Bytes != 50 || m.Keys != 1 {
		t.Fatalf("metrics mismatch: %+v", m)
	}
}

func TestMaxBytesAllowsShrinkingReplace(t *testing.T) {
	s := New(Options{MaxBytes: 50})
	defer s.Close()

	if !s.Set("a", bytes.Repeat([]byte{'x'}, 40), 0) {
		t.Fatalf("expected initial Set to succeed")
	}
	if s.Set("a", bytes.Repeat([]byte{'z'}, 60), 0) {
		t.Fatalf("expected growing replace rejected")
	}
	if !s.Set("a", bytes.Repeat([]byte{'z'}, 10), 0) {
		t.Fatalf("expected shrinking replace to succeed")
	}
	m := s.Metrics()
	if m.Bytes != 10 || m.Keys != 1 {
		t.Fatalf("metrics mismatch: %+v", m)
	}
}

func TestHitMissMetrics(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k", []byte("v"), 0)
	s.Get("k")
	s.Get("absent")
	m := s.Metrics()
	if m.Hits != 1 || m.Misses != 1 {
		t.Fatalf("hit/miss mismatch: %+v", m)
	}
}
