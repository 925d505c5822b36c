/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package images persists the card catalog and the card-back image.
//
// Writes never fail from the caller's point of view. When the backend runs
// out of room the store walks a fallback ladder, each rung dropping more
// data, until something fits:
//
//  1. the full list
//  2. plain locators plus inline images under the small-entry limit
//  3. the previous rung truncated to the maximum entry count
//  4. the built-in default catalog
package images

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/Seednode/memorybox/internal/storage"
)

const (
	CatalogKey = "memory-game-images"
	FrontKey   = "memory-game-front-image"

	DefaultSmallEntryLimit = 50 * 1000
	DefaultMaxEntries      = 12

	// MinCatalog is the smallest catalog Load will hand out.
	MinCatalog = 2
)

// DefaultCatalog returns the built-in placeholder images, rooted at prefix.
func DefaultCatalog(prefix string) []string {
	names := []string{"burger", "pizza", "fries", "soda", "ice-cream", "sandwich", "coffee", "donut"}

	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + "/assets/img/" + n + ".svg"
	}
	return out
}

func DefaultFront(prefix string) string {
	return prefix + "/assets/img/card-back.svg"
}

// Fallback reports which rung of the ladder a write landed on.
type Fallback int

const (
	Full Fallback = iota
	Filtered
	Truncated
	Defaults
	// Unsaved means not even the defaults fit; the previous value is kept.
	Unsaved
)

func (f Fallback) String() string {
	switch f {
	case Full:
		return "full"
	case Filtered:
		return "filtered"
	case Truncated:
		return "truncated"
	case Defaults:
		return "defaults"
	default:
		return "unsaved"
	}
}

// Warning is a user-facing description of a degraded write, or "" if the
// write went through in full.
func (f Fallback) Warning() string {
	switch f {
	case Full:
		return ""
	case Filtered:
		return "Storage is full: large uploaded images were dropped."
	case Truncated:
		return "Storage is full: the image list was shortened."
	case Defaults:
		return "Storage is full: the default images were restored."
	default:
		return "Storage is full: nothing could be saved."
	}
}

type Result struct {
	Images   []string `json:"images"`
	Fallback Fallback `json:"-"`
}

// Compressor shrinks an image locator. Implementations return the input
// unchanged when they have nothing to do.
type Compressor interface {
	Compress(locator string) (string, error)
}

type Option func(*Store)

func WithDefaults(catalog []string, front string) Option {
	return func(s *Store) {
		s.defaults = slices.Clone(catalog)
		s.front = front
	}
}

func WithCompressor(c Compressor) Option {
	return func(s *Store) { s.compressor = c }
}

func WithSmallEntryLimit(n int) Option {
	return func(s *Store) { s.smallLimit = n }
}

func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Store) { s.logf = logf }
}

// Store is the catalog and card-back image over a storage backend.
type Store struct {
	backend    storage.Backend
	defaults   []string
	front      string
	compressor Compressor
	smallLimit int
	maxEntries int
	logf       func(format string, args ...any)
}

func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		defaults:   DefaultCatalog(""),
		front:      DefaultFront(""),
		smallLimit: DefaultSmallEntryLimit,
		maxEntries: DefaultMaxEntries,
		logf:       func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Defaults() []string {
	return slices.Clone(s.defaults)
}

// Load returns the persisted catalog. Missing, malformed or too-short data
// is replaced by the defaults, which are written back.
func (s *Store) Load(ctx context.Context) []string {
	list, err := s.read(ctx)
	if err == nil && len(list) >= MinCatalog {
		return list
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logf("STORE: No catalog found, writing defaults")
	case err != nil:
		s.logf("STORE: Unreadable catalog, writing defaults: %v", err)
	default:
		s.logf("STORE: Catalog has %d images, writing defaults", len(list))
	}

	if err := s.write(ctx, s.defaults); err != nil {
		s.logf("STORE: Failed to write default catalog: %v", err)
	}

	return s.Defaults()
}

func (s *Store) read(ctx context.Context) ([]string, error) {
	raw, err := s.backend.Get(ctx, CatalogKey)
	if err != nil {
		return nil, err
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) write(ctx context.Context, list []string) error {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, CatalogKey, string(data))
}

// Save replaces the catalog with list, degrading along the fallback ladder
// if the backend refuses it.
func (s *Store) Save(ctx context.Context, list []string) Result {
	list = slices.Clone(list)

	err := s.write(ctx, list)
	if err == nil {
		return Result{Images: list, Fallback: Full}
	}
	s.logf("STORE: Saving %d images failed: %v", len(list), err)

	filtered := make([]string, 0, len(list))
	for _, l := range list {
		if !isInline(l) || len(l) < s.smallLimit {
			filtered = append(filtered, l)
		}
	}
	if err := s.write(ctx, filtered); err == nil {
		s.logf("STORE: Saved %d of %d images after dropping large entries", len(filtered), len(list))
		return Result{Images: filtered, Fallback: Filtered}
	}

	truncated := filtered
	if len(truncated) > s.maxEntries {
		truncated = truncated[:s.maxEntries]
	}
	if err := s.write(ctx, truncated); err == nil {
		s.logf("STORE: Saved %d of %d images after truncating", len(truncated), len(list))
		return Result{Images: truncated, Fallback: Truncated}
	}

	if err := s.write(ctx, s.defaults); err == nil {
		s.logf("STORE: Restored default catalog")
		return Result{Images: s.Defaults(), Fallback: Defaults}
	}

	s.logf("STORE: Could not save any catalog, keeping the previous one")
	prev, err := s.read(ctx)
	if err != nil {
		prev = s.Defaults()
	}
	return Result{Images: prev, Fallback: Unsaved}
}

// Add appends locator unless it is already in the catalog.
func (s *Store) Add(ctx context.Context, locator string) Result {
	locator = s.compress(locator)

	list := s.Load(ctx)
	if slices.Contains(list, locator) {
		return Result{Images: list, Fallback: Full}
	}

	return s.Save(ctx, append(list, locator))
}

// Remove drops every occurrence of locator.
func (s *Store) Remove(ctx context.Context, locator string) Result {
	list := s.Load(ctx)

	return s.Save(ctx, slices.DeleteFunc(list, func(l string) bool {
		return l == locator
	}))
}

// FrontImage returns the card-back image, or the default when unset.
func (s *Store) FrontImage(ctx context.Context) string {
	v, err := s.backend.Get(ctx, FrontKey)
	if err != nil || v == "" {
		return s.front
	}
	return v
}

// SetFrontImage stores the card-back image, trying a compressed copy and
// then the default if the backend is full.
func (s *Store) SetFrontImage(ctx context.Context, locator string) Result {
	err := s.backend.Set(ctx, FrontKey, locator)
	if err == nil {
		return Result{Images: []string{locator}, Fallback: Full}
	}
	s.logf("STORE: Saving card-back image failed: %v", err)

	if small := s.compress(locator); small != locator {
		if err := s.backend.Set(ctx, FrontKey, small); err == nil {
			return Result{Images: []string{small}, Fallback: Filtered}
		}
	}

	if err := s.backend.Set(ctx, FrontKey, s.front); err == nil {
		return Result{Images: []string{s.front}, Fallback: Defaults}
	}

	return Result{Images: []string{s.FrontImage(ctx)}, Fallback: Unsaved}
}

func (s *Store) compress(locator string) string {
	if s.compressor == nil {
		return locator
	}

	out, err := s.compressor.Compress(locator)
	if err != nil {
		s.logf("STORE: Compression skipped: %v", err)
		return locator
	}
	return out
}

func isInline(locator string) bool {
	return strings.HasPrefix(locator, "data:")
}
