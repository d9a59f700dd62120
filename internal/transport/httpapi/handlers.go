package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
	"github.com/edumarques81/stellar-emp/internal/version"
)

type handler struct {
	deps Deps
}

type directiveRequest struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload"`
}

type directiveResponse struct {
	MessageID   string `json:"messageId"`
	Success     bool   `json:"success"`
	Description string `json:"description,omitempty"`
}

type focusResponse struct {
	Focus                    string `json:"focus"`
	MixingBehavior           string `json:"mixingBehavior"`
	PlayerInFocus            string `json:"playerInFocus"`
	Activity                 string `json:"activity"`
	HaltInitiator            string `json:"haltInitiator"`
	FocusAcquireInProgress   bool   `json:"focusAcquireInProgress"`
	IgnoreExternalPauseCheck bool   `json:"ignoreExternalPauseCheck"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (h *handler) getContext(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.deps.Timeout)
	defer cancel()

	entries, err := h.deps.Context.GetContext(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contextmgr.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		log.Warn().Err(err).Msg("Context request failed")
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": entries})
}

func (h *handler) focus(w http.ResponseWriter, r *http.Request) {
	s := h.deps.Agent.FocusSnapshot()
	writeJSON(w, http.StatusOK, focusResponse{
		Focus:                    s.Focus.String(),
		MixingBehavior:           s.MixingBehavior.String(),
		PlayerInFocus:            s.PlayerInFocus,
		Activity:                 s.Activity.String(),
		HaltInitiator:            s.HaltInitiator.String(),
		FocusAcquireInProgress:   s.FocusAcquireInProgress,
		IgnoreExternalPauseCheck: s.IgnoreExternalPauseCheck,
	})
}

func (h *handler) authorized(w http.ResponseWriter, r *http.Request) {
	players := []adapter.PlayerInfo{}
	if h.deps.Authorized != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.deps.Timeout)
		defer cancel()

		p, err := h.deps.Authorized(ctx)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			log.Warn().Err(err).Msg("Authorized players request failed")
			writeError(w, status, err.Error())
			return
		}
		if p != nil {
			players = p
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

// postDirective submits a directive and waits for its result.
func (h *handler) postDirective(w http.ResponseWriter, r *http.Request) {
	var req directiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid directive body")
		return
	}
	if req.Namespace == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "namespace and name are required")
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	payload := string(req.Payload)
	var s string
	if json.Unmarshal(req.Payload, &s) == nil {
		payload = s
	}
	d := directive.Directive{
		Namespace: req.Namespace,
		Name:      req.Name,
		MessageID: req.MessageID,
		Payload:   payload,
	}

	done := make(chan directiveResponse, 1)
	h.deps.Agent.HandleDirective(d, directive.ResultFunc(func(ok bool, description string) {
		done <- directiveResponse{MessageID: d.MessageID, Success: ok, Description: description}
	}))

	timer := time.NewTimer(h.deps.Timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		status := http.StatusOK
		if !res.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
	case <-timer.C:
		writeJSON(w, http.StatusGatewayTimeout, directiveResponse{MessageID: d.MessageID, Description: "directive result timed out"})
	case <-r.Context().Done():
	}
}

func (h *handler) button(w http.ResponseWriter, r *http.Request) {
	button, err := adapter.ParsePlaybackButton(strings.ToUpper(chi.URLParam(r, "button")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.deps.Agent.OnButtonPressed(button)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) toggle(w http.ResponseWriter, r *http.Request) {
	toggle, err := adapter.ParsePlaybackToggle(strings.ToUpper(chi.URLParam(r, "toggle")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	selected := true
	if v := r.URL.Query().Get("selected"); v != "" {
		selected, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "selected must be a boolean")
			return
		}
	}
	h.deps.Agent.OnTogglePressed(toggle, selected)
	w.WriteHeader(http.StatusAccepted)
}
