package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"mercator-hq/relay/pkg/accounts/pool"
)

// fallbackModels is returned by ModelsCache when the upstream model list
// has never been successfully fetched, so the resolver and /v1/models
// always have something to show.
var fallbackModels = []ModelEntry{
	{ID: "claude-sonnet-4.5", OwnedBy: "kiro", Description: "Claude Sonnet 4.5"},
	{ID: "claude-opus-4.5", OwnedBy: "kiro", Description: "Claude Opus 4.5"},
	{ID: "claude-haiku-4.5", OwnedBy: "kiro", Description: "Claude Haiku 4.5"},
	{ID: "claude-3.7-sonnet", OwnedBy: "kiro", Description: "Claude 3.7 Sonnet"},
}

// ModelEntry is one model advertised by the upstream's ListAvailableModels
// endpoint, shaped for direct use by the /v1/models handler.
type ModelEntry struct {
	ID          string `json:"id"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description"`
}

// ModelsCache polls the upstream's ListAvailableModels endpoint on a
// timer and serves the most recently fetched list from memory, satisfying
// resolver.ModelCache. A fetch failure never clears the existing list —
// the cache only ever improves on or falls back to its built-in seed.
type ModelsCache struct {
	client   *Client
	accounts *pool.Pool

	mu     sync.RWMutex
	models []ModelEntry
	byID   map[string]struct{}

	log *slog.Logger
}

// NewModelsCache constructs a ModelsCache seeded with the built-in
// fallback list, ready to serve immediately before the first refresh
// completes.
func NewModelsCache(client *Client, accounts *pool.Pool, logger *slog.Logger) *ModelsCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ModelsCache{
		client:   client,
		accounts: accounts,
		log:      logger.With("component", "upstream.models"),
	}
	c.setModels(fallbackModels)
	return c
}

func (c *ModelsCache) setModels(models []ModelEntry) {
	byID := make(map[string]struct{}, len(models))
	for _, m := range models {
		byID[m.ID] = struct{}{}
	}
	c.mu.Lock()
	c.models = models
	c.byID = byID
	c.mu.Unlock()
}

// IsValidModel reports whether id is currently in the cached list.
func (c *ModelsCache) IsValidModel(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byID[id]
	return ok
}

// AllModelIDs returns every cached model id.
func (c *ModelsCache) AllModelIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.models))
	for _, m := range c.models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns the cached model list in the shape the /v1/models
// handler serves directly.
func (c *ModelsCache) Entries() []ModelEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelEntry, len(c.models))
	copy(out, c.models)
	return out
}

type listModelsResponse struct {
	Models []struct {
		ModelID     string `json:"modelId"`
		ModelName   string `json:"modelName"`
		Description string `json:"description"`
	} `json:"models"`
}

// Refresh fetches the current model list from an account's Q host and
// replaces the cache on success. A failure is logged and the previous
// (or fallback) list is left in place.
func (c *ModelsCache) Refresh(ctx context.Context) error {
	_, manager, err := c.accounts.GetAccount(ctx)
	if err != nil {
		c.log.Warn("models refresh: no account available", "error", err)
		return err
	}
	token, err := manager.GetAccessToken(ctx)
	if err != nil {
		c.log.Warn("models refresh: get access token", "error", err)
		return err
	}

	url := manager.QHost() + "/ListAvailableModels?origin=AI_EDITOR"
	if arn := manager.ProfileARN(); arn != "" {
		url += "&profileArn=" + arn
	}

	resp, err := c.client.Do(ctx, http.MethodGet, url, nil, http.Header{"Accept": []string{"application/json"}}, token)
	if err != nil {
		c.log.Warn("models refresh: request failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	var parsed listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.Warn("models refresh: decode response", "error", err)
		return fmt.Errorf("upstream: decode ListAvailableModels response: %w", err)
	}
	if len(parsed.Models) == 0 {
		c.log.Warn("models refresh: upstream returned no models, keeping existing list")
		return nil
	}

	models := make([]ModelEntry, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		desc := m.Description
		if desc == "" {
			desc = m.ModelName
		}
		models = append(models, ModelEntry{ID: m.ModelID, OwnedBy: "kiro", Description: desc})
	}
	c.setModels(models)
	c.log.Info("models list refreshed", "count", len(models))
	return nil
}

// Run polls Refresh every interval until ctx is cancelled. It performs one
// immediate refresh before entering the loop.
func (c *ModelsCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("initial models refresh failed, serving fallback list", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
