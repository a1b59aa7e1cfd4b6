package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/services"
)

// BeeTypeResponse describes one catalog type.
type BeeTypeResponse struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
	Comb    string `json:"comb"`
	Rank    int    `json:"rank"`
}

// CombinationResponse is one row of the combination table.
type CombinationResponse struct {
	Left    string   `json:"left"`
	Right   string   `json:"right"`
	Results []string `json:"results"`
}

// CatalogResponse is the full genetics catalog.
type CatalogResponse struct {
	Types        []BeeTypeResponse     `json:"types"`
	Combinations []CombinationResponse `json:"combinations"`
}

// DiscoveryHandler serves the catalog and a player's discovered combinations.
type DiscoveryHandler struct {
	baseHandler
	discoveryService services.DiscoveryService
	catalog          *genetics.Catalog
}

// NewDiscoveryHandler creates a new discovery handler.
func NewDiscoveryHandler(discoveryService services.DiscoveryService, catalog *genetics.Catalog, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		baseHandler:      baseHandler{logger: logger.Named("discovery-handler")},
		discoveryService: discoveryService,
		catalog:          catalog,
	}
}

// RegisterRoutes registers the discovery handler's routes on the given mux.
func (h *DiscoveryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog", h.Catalog)
	mux.HandleFunc("GET "+realmPrefix+"/discoveries", h.List)
	mux.HandleFunc("GET "+realmPrefix+"/discoveries/map", h.Map)
}

// Catalog handles GET /api/catalog
func (h *DiscoveryHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, BuildCatalogResponse(h.catalog))
}

// List handles GET /api/guilds/{gid}/users/{uid}/discoveries
func (h *DiscoveryHandler) List(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	combos, err := h.discoveryService.List(r.Context(), realm)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, combos)
}

// Map handles GET /api/guilds/{gid}/users/{uid}/discoveries/map
func (h *DiscoveryHandler) Map(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	edges, err := h.discoveryService.Map(r.Context(), realm)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, edges)
}

// BuildCatalogResponse flattens a catalog for display.
func BuildCatalogResponse(c *genetics.Catalog) CatalogResponse {
	resp := CatalogResponse{}
	for _, t := range c.All() {
		resp.Types = append(resp.Types, BeeTypeResponse{
			Name:    t.Name,
			Variant: t.Variant.String(),
			Comb:    t.Comb,
			Rank:    c.Rank(t),
		})
	}
	for _, combo := range c.Combinations() {
		resp.Combinations = append(resp.Combinations, CombinationResponse{
			Left:    combo.Left.String(),
			Right:   combo.Right.String(),
			Results: combo.Results,
		})
	}
	return resp
}
