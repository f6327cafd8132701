// Package catalog adapts the remote catalog and category services into
// plain Go values.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/catalog-browser/pkg/client"
)

// DefaultBaseURL serves both the catalog and the category endpoints.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

// Entry is one catalog item. URL is an opaque reference handle.
type Entry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Key identifies an entry; names compare case-insensitively.
func (e Entry) Key() string {
	return strings.ToLower(e.Name)
}

// Category is a named subset of the catalog.
type Category struct {
	Name string `json:"name"`
}

// Getter is the transport Service needs. *client.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Service talks to the catalog service (limited listing) and the
// category service (category list and per-category membership).
type Service struct {
	getter       Getter
	catalogBase  string
	categoryBase string
}

// Option configures a Service.
type Option func(*Service)

// WithCatalogBaseURL overrides the catalog service base URL.
func WithCatalogBaseURL(base string) Option {
	return func(s *Service) {
		if base != "" {
			s.catalogBase = strings.TrimRight(base, "/")
		}
	}
}

// WithCategoryBaseURL overrides the category service base URL.
func WithCategoryBaseURL(base string) Option {
	return func(s *Service) {
		if base != "" {
			s.categoryBase = strings.TrimRight(base, "/")
		}
	}
}

// NewService creates a Service using getter for transport.
func NewService(getter Getter, opts ...Option) *Service {
	s := &Service{
		getter:       getter,
		catalogBase:  DefaultBaseURL,
		categoryBase: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type listResponse struct {
	Results []namedResource `json:"results"`
}

type categoryResponse struct {
	Pokemon []struct {
		Pokemon namedResource `json:"pokemon"`
	} `json:"pokemon"`
}

// ListEntries returns the first limit entries of the unfiltered catalog.
func (s *Service) ListEntries(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive (got %d)", limit)
	}

	var body listResponse
	u := s.catalogBase + "/pokemon?limit=" + strconv.Itoa(limit)
	if err := s.getter.GetJSON(ctx, u, &body); err != nil {
		return nil, fmt.Errorf("list entries (limit %d): %w", limit, err)
	}

	entries := make([]Entry, 0, len(body.Results))
	for _, r := range body.Results {
		entries = append(entries, Entry{Name: r.Name, URL: r.URL})
	}
	return entries, nil
}

// ListCategories returns every category in server order.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var body listResponse
	if err := s.getter.GetJSON(ctx, s.categoryBase+"/type", &body); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories := make([]Category, 0, len(body.Results))
	for _, r := range body.Results {
		categories = append(categories, Category{Name: r.Name})
	}
	return categories, nil
}

// ListEntriesByCategory returns every entry in the named category. The
// nested membership records are lifted to plain entries.
func (s *Service) ListEntriesByCategory(ctx context.Context, name string) ([]Entry, error) {
	if name == "" {
		return nil, fmt.Errorf("category name is required")
	}

	var body categoryResponse
	u := s.categoryBase + "/type/" + url.PathEscape(name)
	if err := s.getter.GetJSON(ctx, u, &body); err != nil {
		return nil, fmt.Errorf("list entries for category %q: %w", name, err)
	}

	entries := make([]Entry, 0, len(body.Pokemon))
	for _, p := range body.Pokemon {
		entries = append(entries, Entry{Name: p.Pokemon.Name, URL: p.Pokemon.URL})
	}
	return entries, nil
}

var _ Getter = (*client.Client)(nil)
