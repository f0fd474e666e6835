package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/gateway/core"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// ControlHandler implements the gateway's control-plane endpoints: provider
// introspection, live descriptor mutation, and the /test diagnostic call.
type ControlHandler struct {
	core   *core.GatewayCore
	logger *zap.Logger
}

// NewControlHandler builds a ControlHandler bound to gc.
func NewControlHandler(gc *core.GatewayCore, logger *zap.Logger) *ControlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlHandler{core: gc, logger: logger}
}

// providerView is one entry in the /providers list response.
type providerView struct {
	ID            string               `json:"id"`
	Status        types.HealthStatus   `json:"status"`
	EWMALatencyMs float64              `json:"ewma_latency_ms"`
	SuccessRate   float64              `json:"success_rate"`
	InFlight      int                  `json:"in_flight"`
	Limits        types.ProviderLimits `json:"limits"`
}

func (h *ControlHandler) view(id string, descriptor types.ProviderDescriptor) providerView {
	st := h.core.HealthSupervisor().State(id)
	return providerView{
		ID:            id,
		Status:        st.Status,
		EWMALatencyMs: st.EWMALatencyMs,
		SuccessRate:   st.SuccessRate,
		InFlight:      st.InFlight,
		Limits:        descriptor.Limits,
	}
}

// HandleList implements GET /providers.
func (h *ControlHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	descriptors := h.core.Descriptors()

	views := make([]providerView, 0, len(descriptors))
	for id, d := range descriptors {
		views = append(views, h.view(id, d))
	}

	WriteSuccess(w, map[string]any{"providers": views})
}

// providerDetail is the /providers/{id} response: the full runtime state
// alongside the descriptor it was resolved from.
type providerDetail struct {
	Descriptor types.ProviderDescriptor   `json:"descriptor"`
	State      types.ProviderRuntimeState `json:"state"`
}

// HandleGet implements GET /providers/{id}.
func (h *ControlHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := providerIDFromPath(r.URL.Path, "/providers/")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrMalformedRequest, "missing provider id", h.logger)
		return
	}

	descriptors := h.core.Descriptors()
	descriptor, ok := descriptors[id]
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrConfigurationInvalid, "unknown provider: "+id, h.logger)
		return
	}

	WriteSuccess(w, providerDetail{
		Descriptor: descriptor,
		State:      h.core.HealthSupervisor().State(id),
	})
}

// HandleCreate implements POST /providers: add a new descriptor to the live set.
func (h *ControlHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var descriptor types.ProviderDescriptor
	if err := DecodeJSONBody(w, r, &descriptor, h.logger); err != nil {
		return
	}
	if descriptor.ID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrMalformedRequest, "descriptor id is required", h.logger)
		return
	}

	descriptors := h.core.Descriptors()
	if _, exists := descriptors[descriptor.ID]; exists {
		WriteErrorMessage(w, http.StatusConflict, types.ErrConfigurationInvalid, "provider already exists: "+descriptor.ID, h.logger)
		return
	}

	next := appendDescriptor(descriptors, descriptor)
	h.core.ReloadDescriptors(next)
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: descriptor, Timestamp: time.Now()})
}

// HandleUpdate implements PUT /providers/{id}: replace an existing descriptor.
func (h *ControlHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := providerIDFromPath(r.URL.Path, "/providers/")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrMalformedRequest, "missing provider id", h.logger)
		return
	}

	var descriptor types.ProviderDescriptor
	if err := DecodeJSONBody(w, r, &descriptor, h.logger); err != nil {
		return
	}
	descriptor.ID = id

	descriptors := h.core.Descriptors()
	if _, exists := descriptors[id]; !exists {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrConfigurationInvalid, "unknown provider: "+id, h.logger)
		return
	}

	next := appendDescriptor(descriptors, descriptor)
	h.core.ReloadDescriptors(next)
	WriteSuccess(w, descriptor)
}

// HandleDelete implements DELETE /providers/{id}.
func (h *ControlHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := providerIDFromPath(r.URL.Path, "/providers/")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrMalformedRequest, "missing provider id", h.logger)
		return
	}

	descriptors := h.core.Descriptors()
	if _, exists := descriptors[id]; !exists {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrConfigurationInvalid, "unknown provider: "+id, h.logger)
		return
	}
	delete(descriptors, id)

	next := make([]types.ProviderDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		next = append(next, d)
	}
	h.core.ReloadDescriptors(next)
	w.WriteHeader(http.StatusNoContent)
}

func appendDescriptor(existing map[string]types.ProviderDescriptor, updated types.ProviderDescriptor) []types.ProviderDescriptor {
	next := make([]types.ProviderDescriptor, 0, len(existing)+1)
	for id, d := range existing {
		if id == updated.ID {
			continue
		}
		next = append(next, d)
	}
	next = append(next, updated)
	return next
}

func providerIDFromPath(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

// testRequest is the body of a POST /test diagnostic call.
type testRequest struct {
	ProviderID string `json:"provider_id"`
	Message    string `json:"message"`
}

// HandleTest implements POST /test: invokes a single provider directly with a
// canned message, bypassing classification, ranking, and failover.
func (h *ControlHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ProviderID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrMalformedRequest, "provider_id is required", h.logger)
		return
	}
	message := req.Message
	if message == "" {
		message = "ping"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	canonicalReq := &types.CanonicalRequest{
		Messages: []types.Message{types.NewUserMessage(message)},
	}

	resp, err := h.core.InvokeDirect(ctx, req.ProviderID, canonicalReq)
	if err != nil {
		typed, ok := err.(*types.Error)
		if !ok {
			typed = types.NewError(types.ErrInternalError, err.Error())
		}
		WriteError(w, typed, h.logger)
		return
	}

	WriteSuccess(w, resp)
}
