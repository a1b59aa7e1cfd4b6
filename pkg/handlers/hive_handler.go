package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/services"
)

// HiveResponse is a hive with its display name, residents and stock.
type HiveResponse struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Index     int           `json:"index"`
	Queen     *models.Bee   `json:"queen,omitempty"`
	Bees      []*models.Bee `json:"bees"`
	Inventory []models.Item `json:"inventory"`
}

type placeRequest struct {
	BeeID uuid.UUID `json:"bee_id"`
}

type clearResponse struct {
	BeeCount int           `json:"bee_count"`
	Items    []models.Item `json:"items"`
}

// HiveHandler serves hive management commands.
type HiveHandler struct {
	baseHandler
	hiveService services.HiveService
}

// NewHiveHandler creates a new hive handler.
func NewHiveHandler(hiveService services.HiveService, logger *zap.Logger) *HiveHandler {
	return &HiveHandler{
		baseHandler: baseHandler{logger: logger.Named("hive-handler")},
		hiveService: hiveService,
	}
}

// RegisterRoutes registers the hive handler's routes on the given mux.
func (h *HiveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+realmPrefix+"/hives", h.List)
	mux.HandleFunc("POST "+realmPrefix+"/hives", h.Create)
	mux.HandleFunc("GET "+realmPrefix+"/hives/{hive}", h.Get)
	mux.HandleFunc("POST "+realmPrefix+"/hives/{hid}/queen", h.Place)
	mux.HandleFunc("POST "+realmPrefix+"/hives/{hid}/clear", h.Clear)
}

// List handles GET /api/guilds/{gid}/users/{uid}/hives
// A new player is given their first hive here.
func (h *HiveHandler) List(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	hives, err := h.hiveService.List(r.Context(), realm)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	out := make([]HiveResponse, 0, len(hives))
	for _, d := range hives {
		out = append(out, toHiveResponse(d))
	}
	h.respond(w, http.StatusOK, out)
}

// Create handles POST /api/guilds/{gid}/users/{uid}/hives
func (h *HiveHandler) Create(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	hive, err := h.hiveService.Create(r.Context(), realm)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusCreated, toHiveResponse(&models.HiveDetails{Hive: hive}))
}

// Get handles GET /api/guilds/{gid}/users/{uid}/hives/{hive}
// hive is a hive ID or a hive name such as "Bravo".
func (h *HiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}

	var (
		d   *models.HiveDetails
		err error
	)
	ref := r.PathValue("hive")
	if id, perr := uuid.Parse(ref); perr == nil {
		d, err = h.hiveService.Get(r.Context(), realm, id)
	} else {
		d, err = h.hiveService.GetByName(r.Context(), realm, ref)
	}
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, toHiveResponse(d))
}

// Place handles POST /api/guilds/{gid}/users/{uid}/hives/{hid}/queen
func (h *HiveHandler) Place(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}
	hiveID, ok := ParseHiveID(w, r, h.logger)
	if !ok {
		return
	}

	var req placeRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	if err := h.hiveService.Place(r.Context(), realm, req.BeeID, hiveID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	d, err := h.hiveService.Get(r.Context(), realm, hiveID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, toHiveResponse(d))
}

// Clear handles POST /api/guilds/{gid}/users/{uid}/hives/{hid}/clear
func (h *HiveHandler) Clear(w http.ResponseWriter, r *http.Request) {
	realm, ok := ParseRealm(w, r, h.logger)
	if !ok {
		return
	}
	hiveID, ok := ParseHiveID(w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.hiveService.Clear(r.Context(), realm, hiveID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.respond(w, http.StatusOK, clearResponse{BeeCount: res.BeeCount, Items: res.Items.Items()})
}

func toHiveResponse(d *models.HiveDetails) HiveResponse {
	bees := d.Bees
	if bees == nil {
		bees = []*models.Bee{}
	}
	return HiveResponse{
		ID:        d.Hive.ID,
		Name:      d.Hive.Name(),
		Index:     d.Hive.Index,
		Queen:     d.Queen(),
		Bees:      bees,
		Inventory: d.Inventory.Items(),
	}
}
