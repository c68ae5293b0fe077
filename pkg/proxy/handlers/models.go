package handlers

import "net/http"

// ListModels handles GET /v1/models, serving the resolver's current view
// of available models in a flat OpenAI-compatible shape.
func (d *Deps) ListModels(w http.ResponseWriter, r *http.Request) {
	descriptions := make(map[string]string)
	for _, e := range d.Models.Entries() {
		descriptions[e.ID] = e.Description
	}
	ids := d.Resolver.AvailableModels()
	data := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]any{
			"id":          id,
			"owned_by":    "kiro",
			"description": descriptions[id],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}
