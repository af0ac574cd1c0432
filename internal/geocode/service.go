package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

var (
	// ErrInvalidQuery is returned when the search text is too short.
	ErrInvalidQuery = errors.New("query must be at least 2 characters")
	// ErrUpstream is returned when the geocoder answers with a non-200 status.
	ErrUpstream = errors.New("address search failed")
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "SocialDog-NZ/1.0"
	// MinQueryLength is the shortest query sent upstream.
	MinQueryLength = 2
	resultLimit    = 8
)

// Address is the structured address Nominatim returns with addressdetails=1.
type Address struct {
	HouseNumber string `json:"house_number,omitempty"`
	Road        string `json:"road,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	City        string `json:"city,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Suggestion is one address match offered to the location autocomplete.
type Suggestion struct {
	Label       string  `json:"label"`
	DisplayName string  `json:"displayName"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	City        string  `json:"city,omitempty"`
	Address     Address `json:"address"`
}

// Service searches New Zealand addresses against a Nominatim instance.
// Requests are throttled to respect the public instance's usage policy.
type Service struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

// Option configures the Service during construction.
type Option func(*Service)

// WithBaseURL overrides the Nominatim base URL.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit caps upstream requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithUserAgent overrides the User-Agent sent upstream.
func WithUserAgent(userAgent string) Option {
	return func(s *Service) {
		if userAgent != "" {
			s.userAgent = userAgent
		}
	}
}

// NewService constructs a Service.
func NewService(client *http.Client, opts ...Option) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	svc := &Service{
		client:    client,
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type nominatimResult struct {
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Address     Address `json:"address"`
}

// Search returns up to eight address suggestions for query.
func (s *Service) Search(ctx context.Context, query string) ([]Suggestion, error) {
	cleaned := strings.TrimSpace(query)
	if utf8.RuneCountInString(cleaned) < MinQueryLength {
		return nil, ErrInvalidQuery
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for geocoder slot: %w", err)
	}

	endpoint, err := url.Parse(s.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("build geocoder url: %w", err)
	}
	values := url.Values{}
	values.Set("q", cleaned)
	values.Set("countrycodes", "nz")
	values.Set("format", "json")
	values.Set("addressdetails", "1")
	values.Set("limit", strconv.Itoa(resultLimit))
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create geocoder request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geocoder returned status %d", ErrUpstream, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(results))
	for _, result := range results {
		lat, latErr := strconv.ParseFloat(result.Lat, 64)
		lon, lonErr := strconv.ParseFloat(result.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		label := FormatDisplayName(result.Address)
		if label == "" {
			label = result.DisplayName
		}
		suggestions = append(suggestions, Suggestion{
			Label:       label,
			DisplayName: result.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
			City:        result.Address.City,
			Address:     result.Address,
		})
	}
	return suggestions, nil
}

// FormatDisplayName renders an address as "number road, suburb, city, postcode",
// leaving out the parts that are missing.
func FormatDisplayName(address Address) string {
	parts := make([]string, 0, 4)
	switch {
	case address.HouseNumber != "" && address.Road != "":
		parts = append(parts, address.HouseNumber+" "+address.Road)
	case address.Road != "":
		parts = append(parts, address.Road)
	}
	if address.Suburb != "" {
		parts = append(parts, address.Suburb)
	}
	if address.City != "" {
		parts = append(parts, address.City)
	}
	if address.Postcode != "" {
		parts = append(parts, address.Postcode)
	}
	return strings.Join(parts, ", ")
}
