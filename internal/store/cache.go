package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"unclutter/internal/model"
)

// Storage keys.
const (
	KeyAnalysis  = "analysis_result"
	KeyWhitelist = "whitelist"
)

// Cache stores typed values as JSON on top of a KV. Its read-modify-write
// operations are serialized within the process.
type Cache struct {
	kv KV
	mu sync.Mutex
}

func NewCache(kv KV) *Cache {
	return &Cache{kv: kv}
}

// LoadAnalysis returns the stored result; ok is false when none is stored.
func (c *Cache) LoadAnalysis(ctx context.Context) (model.AnalysisResult, bool, error) {
	var r model.AnalysisResult
	ok, err := c.load(ctx, KeyAnalysis, &r)
	return r, ok, err
}

// SaveAnalysis replaces the stored result.
func (c *Cache) SaveAnalysis(ctx context.Context, r model.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, KeyAnalysis, r)
}

// UpdateAnalysis applies fn to the stored result and saves it. Nothing
// happens when no result is stored or fn fails.
func (c *Cache) UpdateAnalysis(ctx context.Context, fn func(*model.AnalysisResult) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var r model.AnalysisResult
	ok, err := c.load(ctx, KeyAnalysis, &r)
	if err != nil || !ok {
		return err
	}
	if err := fn(&r); err != nil {
		return err
	}
	return c.save(ctx, KeyAnalysis, r)
}

// ClearAnalysis drops the stored result.
func (c *Cache) ClearAnalysis(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Remove(ctx, KeyAnalysis)
}

// Whitelist returns the whitelisted addresses in sorted order.
func (c *Cache) Whitelist(ctx context.Context) ([]string, error) {
	var list []string
	if _, err := c.load(ctx, KeyWhitelist, &list); err != nil {
		return nil, err
	}
	sort.Strings(list)
	return list, nil
}

// Whitelisted reports whether email is on the whitelist.
func (c *Cache) Whitelisted(ctx context.Context, email string) (bool, error) {
	list, err := c.Whitelist(ctx)
	if err != nil {
		return false, err
	}
	email = normalize(email)
	for _, e := range list {
		if e == email {
			return true, nil
		}
	}
	return false, nil
}

// AddToWhitelist adds email. It reports false when it was already present.
func (c *Cache) AddToWhitelist(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	if email == "" {
		return false, fmt.Errorf("whitelist: empty address")
	}
	return c.editWhitelist(ctx, func(set map[string]bool) bool {
		if set[email] {
			return false
		}
		set[email] = true
		return true
	})
}

// RemoveFromWhitelist removes email. It reports false when it was absent.
func (c *Cache) RemoveFromWhitelist(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	return c.editWhitelist(ctx, func(set map[string]bool) bool {
		if !set[email] {
			return false
		}
		delete(set, email)
		return true
	})
}

func (c *Cache) editWhitelist(ctx context.Context, edit func(map[string]bool) bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var list []string
	if _, err := c.load(ctx, KeyWhitelist, &list); err != nil {
		return false, err
	}
	set := make(map[string]bool, len(list))
	for _, e := range list {
		set[e] = true
	}
	if !edit(set) {
		return false, nil
	}
	list = list[:0]
	for e := range set {
		list = append(list, e)
	}
	sort.Strings(list)
	return true, c.save(ctx, KeyWhitelist, list)
}

func (c *Cache) load(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.kv.Set(ctx, key, raw)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
