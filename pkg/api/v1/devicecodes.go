package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/duydn-dev/identityserver/pkg/grants"
	"github.com/duydn-dev/identityserver/pkg/logger"
)

// DeviceCodeRoutes defines the routes for browsing and removing pending
// device flow codes.
type DeviceCodeRoutes struct {
	store grants.Store
}

// DeviceCodeRouter creates a new router for the device code API.
func DeviceCodeRouter(store grants.Store) http.Handler {
	routes := DeviceCodeRoutes{store: store}

	r := chi.NewRouter()
	r.Get("/", routes.listDeviceCodes)
	r.Delete("/{userCode}", routes.removeDeviceCode)
	return r
}

type pagedDeviceCodesResponse struct {
	Items []grants.DeviceFlowCode `json:"items"`
	Total int                     `json:"total"`
}

func (d *DeviceCodeRoutes) listDeviceCodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := grants.DeviceCodeFilter{
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("pageSize"), 25),
		UserCode: q.Get("userCode"),
		ClientID: q.Get("clientId"),
	}

	items, total, err := d.store.ListDeviceCodes(r.Context(), filter)
	if err != nil {
		logger.Errorf("Failed to list device codes: %v", err)
		http.Error(w, "Failed to list device codes", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []grants.DeviceFlowCode{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pagedDeviceCodesResponse{Items: items, Total: total}); err != nil {
		http.Error(w, "Failed to encode device codes", http.StatusInternalServerError)
		return
	}
}

func (d *DeviceCodeRoutes) removeDeviceCode(w http.ResponseWriter, r *http.Request) {
	userCode := chi.URLParam(r, "userCode")

	found, err := d.store.RemoveDeviceCode(r.Context(), userCode)
	if err != nil {
		logger.Errorf("Failed to remove device code: %v", err)
		http.Error(w, "Failed to remove device code", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Device code not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
