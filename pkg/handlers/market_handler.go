package handlers

import (
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/services"
)

type sellRequest struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// PriceResponse is the honey paid for one unit of a comb item.
type PriceResponse struct {
	Item  string `json:"item"`
	Price int    `json:"price"`
}

// MarketHandler serves inventory and selling.
type MarketHandler struct {
	baseHandler
	marketService services.MarketService
	catalog       *genetics.Catalog
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(marketService services.MarketService, catalog *genetics.Catalog, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{
		baseHandler:   baseHandler{logger: logger.Named("market-handler")},
		marketService: marketService,
		catalog:       catalog,
	}
}

// RegisterRoutes registers the market handler's routes on the given mux.
func (h *MarketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/market/prices", h.Prices)
	mux.HandleFunc("GET "+realmPrefix+"/inventory", h.Inventory)
	mux.HandleFunc("POST "+realmPrefix+"/market/sell", h.Sell)
}

// Prices handles GET /api/market/prices
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	prices := []PriceResponse{}
	for _, t := range h.catalog.All() {
		item := models.CombItemName(h.catalog.Comb(t))
		if seen[item] {
			continue
		}
		seen[item] = true

		price, err := h.marketService.Price(item)
		if err != nil {
			WriteServiceError(w, err, h.logger)
			return
		}
		prices = append(prices, PriceResponse{Item: item, Price: price})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Item < prices[j].Item })
	h.respond(w, http.StatusOK, prices)
}

// Inventory handles GET /api/guilds/{gid}/users/{uid}/inventory
func (h *MarketHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	items, err := h.marketService.Inventory(r.Context(), realm)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, items)
}

// Sell handles POST /api/guilds/{gid}/users/{uid}/market/sell
func (h *MarketHandler) Sell(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	var req sellRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	sale, err := h.marketService.Sell(r.Context(), realm, req.Item, req.Quantity)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, sale)
}
