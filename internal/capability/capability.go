// Package capability derives feature-availability flags from a user's
// configured integrations. Snapshots are computed on demand and never
// persisted, so a just-added key is reflected on the next profile fetch.
package capability

import "github.com/researchhub/identity/internal/model"

// searchProviders unlock premium search when configured.
var searchProviders = []model.Provider{model.ProviderPerplexity, model.ProviderSerpAPI}

// aiProviders unlock premium AI when configured.
var aiProviders = []model.Provider{model.ProviderOpenAI, model.ProviderAnthropic}

// enrichmentProviders unlock result enrichment when configured.
var enrichmentProviders = []model.Provider{model.ProviderSerpAPI}

// Snapshot is the derived, read-only view of which premium integrations a
// user has enabled. Absent credentials yield false flags and empty lists,
// never errors.
type Snapshot struct {
	HasPremiumSearch    bool     `json:"has_premium_search"`
	HasPremiumAI        bool     `json:"has_premium_ai"`
	HasEnrichment       bool     `json:"has_enrichment"`
	SearchProviders     []string `json:"search_providers"`
	AIModelProviders    []string `json:"ai_model_providers"`
	EnrichmentProviders []string `json:"enrichment_providers"`
	PoweredBy           []string `json:"powered_by"`
}

// Resolve computes the capability snapshot for a set of configured providers.
// Display names in PoweredBy follow the fixed enumeration order so the list
// is stable across requests.
func Resolve(configured map[model.Provider]bool) Snapshot {
	snap := Snapshot{
		SearchProviders:     labels(searchProviders, configured),
		AIModelProviders:    labels(aiProviders, configured),
		EnrichmentProviders: labels(enrichmentProviders, configured),
		PoweredBy:           labels(model.Providers, configured),
	}

	snap.HasPremiumSearch = len(snap.SearchProviders) > 0
	snap.HasPremiumAI = len(snap.AIModelProviders) > 0
	snap.HasEnrichment = len(snap.EnrichmentProviders) > 0

	return snap
}

// labels returns the display names of the configured providers among
// candidates, preserving candidate order.
func labels(candidates []model.Provider, configured map[model.Provider]bool) []string {
	out := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if configured[p] {
			out = append(out, p.Label())
		}
	}
	return out
}
