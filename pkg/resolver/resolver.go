// Package resolver implements the model-name resolution pipeline that maps
// client-supplied model names onto the identifiers the upstream provider
// accepts.
//
// Resolution runs through four layers in order: alias lookup, name
// normalization, a hidden-model table (manual overrides and forced
// upgrades), and a dynamically-populated cache of models the upstream has
// actually advertised. A model that survives all four layers unresolved is
// still forwarded upstream unchanged — the resolver never rejects a model
// name itself; the upstream is the final arbiter of what exists.
package resolver

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Source identifies which resolution layer produced a Resolution.
type Source string

const (
	SourceHidden      Source = "hidden"
	SourceCache       Source = "cache"
	SourcePassthrough Source = "passthrough"
)

// Resolution is the result of resolving a client-supplied model name.
type Resolution struct {
	// InternalID is the identifier to send upstream.
	InternalID string
	// Source records which layer produced InternalID.
	Source Source
	// OriginalRequest is the model name exactly as the client sent it.
	OriginalRequest string
	// Normalized is OriginalRequest (or its alias) after normalize().
	Normalized string
	// Verified is true when the model was confirmed by the hidden table
	// or the dynamic cache, false when it was only passed through.
	Verified bool
}

// ModelCache reports whether a normalized model id is currently known to be
// valid, and enumerates all known ids. It is satisfied by the upstream
// model-list cache maintained from periodic /v1/models refreshes.
type ModelCache interface {
	IsValidModel(id string) bool
	AllModelIDs() []string
}

var (
	standardPattern    = regexp.MustCompile(`^(claude-(?:haiku|sonnet|opus)-\d+)-(\d{1,2})(?:-(1m))?(?:-(?:\d{8}|latest|\d+))?$`)
	noMinorPattern     = regexp.MustCompile(`^(claude-(?:haiku|sonnet|opus)-\d+)(?:-\d{8})?$`)
	legacyPattern      = regexp.MustCompile(`^(claude)-(\d+)-(\d+)-(haiku|sonnet|opus)(?:-(?:\d{8}|latest|\d+))?$`)
	dotWithDatePattern = regexp.MustCompile(`^(claude-(?:\d+\.\d+-)?(?:haiku|sonnet|opus)(?:-\d+\.\d+)?)-\d{8}$`)
	invertedSuffix     = regexp.MustCompile(`^claude-(\d+)\.(\d+)-(haiku|sonnet|opus)-(.+)$`)
	familyPattern      = regexp.MustCompile(`(?i)(haiku|sonnet|opus)`)
)

// Normalize converts a client-dialect model name into upstream format:
// dashes to dots for minor versions, date and "latest" suffixes stripped,
// and the legacy "claude-3-7-sonnet" ordering rewritten to
// "claude-3.7-sonnet". Names that match none of the known shapes are
// returned unchanged.
func Normalize(name string) string {
	if name == "" {
		return name
	}
	lower := strings.ToLower(name)

	if m := standardPattern.FindStringSubmatch(lower); m != nil {
		suffix := ""
		if m[3] != "" {
			suffix = "-" + m[3]
		}
		return m[1] + "." + m[2] + suffix
	}
	if m := noMinorPattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := legacyPattern.FindStringSubmatch(lower); m != nil {
		return m[1] + "-" + m[2] + "." + m[3] + "-" + m[4]
	}
	if m := dotWithDatePattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := invertedSuffix.FindStringSubmatch(lower); m != nil {
		return "claude-" + m[3] + "-" + m[1] + "." + m[2]
	}
	return name
}

// ExtractFamily returns the Claude model family ("haiku", "sonnet",
// "opus") embedded in name, or "" if name does not look like a Claude
// model.
func ExtractFamily(name string) string {
	m := familyPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Resolver resolves client model names to upstream identifiers.
type Resolver struct {
	mu sync.RWMutex

	cache          ModelCache
	hiddenModels   map[string]string // normalized display name -> internal id
	aliases        map[string]string // alias -> real model id
	hiddenFromList map[string]struct{}

	logger *slog.Logger
}

// Config configures a new Resolver.
type Config struct {
	HiddenModels   map[string]string
	Aliases        map[string]string
	HiddenFromList []string
}

// New constructs a Resolver backed by cache.
func New(cache ModelCache, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	hidden := make(map[string]struct{}, len(cfg.HiddenFromList))
	for _, id := range cfg.HiddenFromList {
		hidden[id] = struct{}{}
	}
	hiddenModels := cfg.HiddenModels
	if hiddenModels == nil {
		hiddenModels = map[string]string{}
	}
	aliases := cfg.Aliases
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Resolver{
		cache:          cache,
		hiddenModels:   hiddenModels,
		aliases:        aliases,
		hiddenFromList: hidden,
		logger:         logger.With("component", "resolver"),
	}
}

// Resolve maps a client-supplied model name to an upstream identifier.
// It never fails: an unrecognized model is passed through normalized,
// leaving the upstream to accept or reject it.
func (r *Resolver) Resolve(external string) Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := external
	if alias, ok := r.aliases[external]; ok {
		resolved = alias
		r.logger.Debug("alias resolved", "external", external, "resolved", resolved)
	}

	normalized := Normalize(resolved)
	r.logger.Debug("model normalized", "external", external, "normalized", normalized)

	if internalID, ok := r.hiddenModels[normalized]; ok {
		return Resolution{
			InternalID:      internalID,
			Source:          SourceHidden,
			OriginalRequest: external,
			Normalized:      normalized,
			Verified:        true,
		}
	}

	if r.cache != nil && r.cache.IsValidModel(normalized) {
		return Resolution{
			InternalID:      normalized,
			Source:          SourceCache,
			OriginalRequest: external,
			Normalized:      normalized,
			Verified:        true,
		}
	}

	r.logger.Info("model not recognized locally, passing through", "external", external, "normalized", normalized)
	return Resolution{
		InternalID:      normalized,
		Source:          SourcePassthrough,
		OriginalRequest: external,
		Normalized:      normalized,
		Verified:        false,
	}
}

// AvailableModels returns the sorted union of cached, hidden, and alias
// model ids, minus anything in the hidden-from-list set.
func (r *Resolver) AvailableModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	if r.cache != nil {
		for _, id := range r.cache.AllModelIDs() {
			set[id] = struct{}{}
		}
	}
	for id := range r.hiddenModels {
		set[id] = struct{}{}
	}
	for id := range r.hiddenFromList {
		delete(set, id)
	}
	for alias := range r.aliases {
		set[alias] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ModelsByFamily returns the available models containing family in their
// name (case-insensitive substring match).
func (r *Resolver) ModelsByFamily(family string) []string {
	all := r.AvailableModels()
	family = strings.ToLower(family)
	out := make([]string, 0)
	for _, m := range all {
		if strings.Contains(strings.ToLower(m), family) {
			out = append(out, m)
		}
	}
	return out
}

// SuggestionsFor returns available models from the same family as name, for
// use in "model not found" error messages. It never mixes families: an
// Opus request gets only Opus suggestions. If the family cannot be
// determined, all available models are returned.
func (r *Resolver) SuggestionsFor(name string) []string {
	family := ExtractFamily(name)
	if family == "" {
		return r.AvailableModels()
	}
	return r.ModelsByFamily(family)
}
