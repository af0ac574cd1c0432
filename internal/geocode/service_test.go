package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSearchSendsNZQuery(t *testing.T) {
	payload := []nominatimResult{
		{
			DisplayName: "12, Queen Street, Auckland Central, Auckland, 1010, New Zealand",
			Lat:         "-36.8485",
			Lon:         "174.7633",
			Address: Address{
				HouseNumber: "12",
				Road:        "Queen Street",
				Suburb:      "Auckland Central",
				City:        "Auckland",
				Postcode:    "1010",
				Country:     "New Zealand",
			},
		},
		{DisplayName: "broken", Lat: "not-a-number", Lon: "1"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		expected := map[string]string{
			"q":              "queen st",
			"countrycodes":   "nz",
			"format":         "json",
			"addressdetails": "1",
			"limit":          "8",
		}
		for key, want := range expected {
			if got := query.Get(key); got != want {
				t.Errorf("expected %s=%q, got %q", key, want, got)
			}
		}
		if ua := r.Header.Get("User-Agent"); ua != "SocialDog-NZ/1.0" {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	svc := NewService(server.Client(), WithBaseURL(server.URL), WithRateLimit(1000))

	suggestions, err := svc.Search(context.Background(), "  queen st ")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("expected unparsable coordinates to be skipped, got %d suggestions", len(suggestions))
	}
	got := suggestions[0]
	if got.Label != "12 Queen Street, Auckland Central, Auckland, 1010" {
		t.Fatalf("unexpected label %q", got.Label)
	}
	if got.Latitude != -36.8485 || got.Longitude != 174.7633 || got.City != "Auckland" {
		t.Fatalf("unexpected suggestion %+v", got)
	}
}

func TestSearchRejectsShortQueries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	svc := NewService(server.Client(), WithBaseURL(server.URL))

	for _, q := range []string{"", " ", "a", " ā "} {
		if _, err := svc.Search(context.Background(), q); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("Search(%q): expected ErrInvalidQuery, got %v", q, err)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("expected no upstream requests for short queries")
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewService(server.Client(), WithBaseURL(server.URL), WithRateLimit(1000))

	if _, err := svc.Search(context.Background(), "queen"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestSearchHonoursCancelledContextWhileThrottled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	svc := NewService(server.Client(), WithBaseURL(server.URL), WithRateLimit(0.001))

	if _, err := svc.Search(context.Background(), "queen"); err != nil {
		t.Fatalf("first Search returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Search(ctx, "queen"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while throttled, got %v", err)
	}
}

func TestFormatDisplayName(t *testing.T) {
	cases := []struct {
		name    string
		address Address
		want    string
	}{
		{"full", Address{HouseNumber: "5", Road: "Cuba Street", Suburb: "Te Aro", City: "Wellington", Postcode: "6011"}, "5 Cuba Street, Te Aro, Wellington, 6011"},
		{"number without road", Address{HouseNumber: "5", City: "Wellington"}, "Wellington"},
		{"road only", Address{Road: "Cuba Street", City: "Wellington"}, "Cuba Street, Wellington"},
		{"empty", Address{Country: "New Zealand"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatDisplayName(tc.address); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
