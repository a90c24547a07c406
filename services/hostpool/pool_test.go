package hostpool

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestNewNormalizesHosts(t *testing.T) {
	p := New([]string{
		"  https://moviebox.ng/ ",
		"h5.aoneroom.com",
		"",
		"http://moviebox.ph//",
	})
	want := []string{"https://moviebox.ng", "https://h5.aoneroom.com", "http://moviebox.ph"}
	if !reflect.DeepEqual(p.Hosts(), want) {
		t.Errorf("hosts = %v, want %v", p.Hosts(), want)
	}
	if p.Primary() != "https://moviebox.ng" {
		t.Errorf("primary = %q", p.Primary())
	}
	if p.Size() != 3 {
		t.Errorf("size = %d, want 3", p.Size())
	}
}

func TestHostsReturnsCopy(t *testing.T) {
	p := New([]string{"https://a.test", "https://b.test"})
	hosts := p.Hosts()
	hosts[0] = "https://mutated.test"
	if p.Primary() != "https://a.test" {
		t.Error("mutating the returned slice changed the pool")
	}
}

func TestProbeAllReportsPerHost(t *testing.T) {
	httpc := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			switch req.URL.Host {
			case "up.test":
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: make(http.Header)}, nil
			case "erroring.test":
				return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(bytes.NewReader(nil)), Header: make(http.Header)}, nil
			default:
				return nil, errors.New("connection refused")
			}
		}),
	}

	p := New([]string{"https://up.test", "https://erroring.test", "https://down.test"})
	results := p.ProbeAll(context.Background(), httpc, map[string]string{"User-Agent": "probe"}, 2*time.Second)

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	// Results come back in pool order regardless of probe completion order.
	if results[0].Host != "https://up.test" || !results[0].Reachable || results[0].Status != http.StatusOK {
		t.Errorf("up.test result = %+v", results[0])
	}
	if results[1].Reachable || results[1].Status != http.StatusBadGateway {
		t.Errorf("erroring.test result = %+v", results[1])
	}
	if results[2].Reachable || results[2].Error == "" {
		t.Errorf("down.test result = %+v", results[2])
	}
}
