package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gt06gateway/internal/api/util"
	"gt06gateway/internal/core/service"
	"gt06gateway/internal/intake"
)

type DeviceHandler struct {
	deviceService service.DeviceService
}

func NewDeviceHandler(deviceService service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

type sendCommandRequest struct {
	Command string `json:"command"`
}

// GetDevices lists live connections.
func (h *DeviceHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceService.GetDevices(r.Context())
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, devices)
}

func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceService.GetDevice(r.Context(), chi.URLParam(r, "imei"))
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, device)
}

// SendCommand queues a relay command for a connected device.
func (h *DeviceHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmd, err := h.deviceService.SendCommand(r.Context(), chi.URLParam(r, "imei"), req.Command, intake.SourceAPI)
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusAccepted, cmd)
}

// GetKnownDevices lists every device that has logged in, connected or not.
func (h *DeviceHandler) GetKnownDevices(w http.ResponseWriter, r *http.Request) {
	recs, err := h.deviceService.GetKnownDevices()
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, recs)
}

func (h *DeviceHandler) GetKnownDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deviceService.GetKnownDevice(chi.URLParam(r, "imei"))
	if err != nil {
		util.WriteServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, rec)
}
