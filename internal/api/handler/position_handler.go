package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gt06gateway/internal/api/util"
	"gt06gateway/internal/core/service"
)

type PositionHandler struct {
	positionService service.PositionService
}

func NewPositionHandler(positionService service.PositionService) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
	}
}

// GetPositions returns the newest positions of a device first. ?limit= bounds the result.
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			util.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	positions, err := h.positionService.GetDevicePositions(chi.URLParam(r, "imei"), limit)
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, positions)
}

func (h *PositionHandler) GetLatestPosition(w http.ResponseWriter, r *http.Request) {
	position, err := h.positionService.GetLatestPosition(chi.URLParam(r, "imei"))
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, position)
}
