package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/services"
)

// realmPrefix scopes player routes to one user in one guild.
const realmPrefix = "/api/guilds/{gid}/users/{uid}"

type catchRequest struct {
	Caste string `json:"caste"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type breedRequest struct {
	BeeA uuid.UUID `json:"bee_a"`
	BeeB uuid.UUID `json:"bee_b"`
}

// BeeHandler serves the bee commands of the chat surface.
type BeeHandler struct {
	baseHandler
	beeService services.BeeService
}

// NewBeeHandler creates a new bee handler.
func NewBeeHandler(beeService services.BeeService, logger *zap.Logger) *BeeHandler {
	return &BeeHandler{
		baseHandler: baseHandler{logger: logger.Named("bee-handler")},
		beeService:  beeService,
	}
}

// RegisterRoutes registers the bee handler's routes on the given mux.
func (h *BeeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+realmPrefix+"/bees", h.List)
	mux.HandleFunc("POST "+realmPrefix+"/bees", h.Catch)
	mux.HandleFunc("GET "+realmPrefix+"/bees/{ref}", h.Get)
	mux.HandleFunc("PATCH "+realmPrefix+"/bees/{bid}", h.Rename)
	mux.HandleFunc("DELETE "+realmPrefix+"/bees/{bid}", h.Release)
	mux.HandleFunc("POST "+realmPrefix+"/breed", h.Breed)
}

// List handles GET /api/guilds/{gid}/users/{uid}/bees
func (h *BeeHandler) List(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	bees, err := h.beeService.List(r.Context(), realm)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, bees)
}

// Catch handles POST /api/guilds/{gid}/users/{uid}/bees
// An empty body catches a drone.
func (h *BeeHandler) Catch(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	var req catchRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req, h.logger) {
		return
	}

	bee, err := h.beeService.Catch(r.Context(), realm, req.Caste)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusCreated, bee)
}

// Get handles GET /api/guilds/{gid}/users/{uid}/bees/{ref}
// ref is a bee ID or a bee name.
func (h *BeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	bee, err := h.beeService.Find(r.Context(), realm, r.PathValue("ref"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, bee)
}

// Rename handles PATCH /api/guilds/{gid}/users/{uid}/bees/{bid}
func (h *BeeHandler) Rename(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}
	beeID, ok := ParseBeeID(w, r, h.logger)
	if !ok {
		return
	}

	var req renameRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	bee, err := h.beeService.Rename(r.Context(), realm, beeID, req.Name)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, bee)
}

// Release handles DELETE /api/guilds/{gid}/users/{uid}/bees/{bid}
func (h *BeeHandler) Release(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}
	beeID, ok := ParseBeeID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.beeService.Release(r.Context(), realm, beeID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Breed handles POST /api/guilds/{gid}/users/{uid}/breed
func (h *BeeHandler) Breed(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	var req breedRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.BeeA == uuid.Nil || req.BeeB == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "bee_a and bee_b are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	queen, err := h.beeService.Breed(r.Context(), realm, req.BeeA, req.BeeB)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusCreated, queen)
}
