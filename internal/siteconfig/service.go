// Package siteconfig stores the marketing site content document. The
// document is an opaque versioned JSON blob edited from the admin panel and
// read on every public page load, so reads go through Redis.
package siteconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKey = "siteconfig:doc"
	cacheTTL = 5 * time.Minute
)

// ErrEmptyDocument is returned when an update carries no JSON body.
var ErrEmptyDocument = errors.New("empty config document")

// Document is the versioned site content blob.
type Document struct {
	Version int64           `json:"version"`
	Body    json.RawMessage `json:"body"`
}

// Repo is the persistent store behind the cache.
type Repo interface {
	Get(ctx context.Context) (*Document, error)
	// Upsert replaces the document body and returns the new version.
	Upsert(ctx context.Context, body json.RawMessage) (*Document, error)
}

// Service serves the document Redis-first with a Postgres fallback. A cache
// outage only costs latency, never correctness.
type Service struct {
	repo  Repo
	cache *redis.Client
	log   *slog.Logger
}

func NewService(repo Repo, cache *redis.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, cache: cache, log: log}
}

// Get returns the current document, from cache when possible.
func (s *Service) Get(ctx context.Context) (*Document, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var doc Document
			if json.Unmarshal(raw, &doc) == nil {
				return &doc, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn("siteconfig cache read failed", "error", err)
		}
	}
	doc, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load site config: %w", err)
	}
	s.fill(ctx, doc)
	return doc, nil
}

// Update replaces the document, bumps the version and refreshes the cache.
func (s *Service) Update(ctx context.Context, body json.RawMessage) (*Document, error) {
	if len(body) == 0 || string(body) == "null" {
		return nil, ErrEmptyDocument
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("config document is not valid JSON")
	}
	doc, err := s.repo.Upsert(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("save site config: %w", err)
	}
	s.fill(ctx, doc)
	return doc, nil
}

func (s *Service) fill(ctx context.Context, doc *Document) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, cacheTTL).Err(); err != nil {
		s.log.Warn("siteconfig cache write failed", "error", err)
	}
}
