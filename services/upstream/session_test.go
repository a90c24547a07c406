package upstream

import (
	"net/http"
	"testing"
)

func TestSessionMergeIsNameWise(t *testing.T) {
	s := NewSessionStore()
	s.Merge([]*http.Cookie{
		{Name: "account", Value: "abc"},
		{Name: "token", Value: "t1"},
	})
	s.Merge([]*http.Cookie{
		{Name: "token", Value: "t2"},
	})

	got := s.String()
	want := "account=abc; token=t2"
	if got != want {
		t.Errorf("session = %q, want %q", got, want)
	}
}

func TestSessionMergeIsIdempotent(t *testing.T) {
	s := NewSessionStore()
	s.MergeString("a=1; b=2")
	once := s.String()
	s.MergeString("a=1; b=2")
	twice := s.String()
	if once != twice {
		t.Errorf("merge not idempotent: %q vs %q", once, twice)
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
}

func TestSessionMergeStringSkipsMalformedPairs(t *testing.T) {
	s := NewSessionStore()
	s.MergeString("good=1; =bad; novalue; also=2")
	if got := s.String(); got != "good=1; also=2" {
		t.Errorf("session = %q", got)
	}
}

func TestSessionEmptyRendersEmpty(t *testing.T) {
	s := NewSessionStore()
	if got := s.String(); got != "" {
		t.Errorf("empty session rendered %q", got)
	}
}
