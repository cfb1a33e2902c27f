package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"quotagate/pkg/platform/httputil"
)

// Pinger reports backing-store reachability for the health endpoint.
type Pinger interface {
	Health(ctx context.Context) error
}

// Handler holds dependencies for the HTTP endpoints.
type Handler struct {
	counterBackend Pinger // nil when the engine runs without Redis
}

func NewHandler(counterBackend Pinger) *Handler {
	return &Handler{counterBackend: counterBackend}
}

// handleHealth reports liveness. A failing counter backend is surfaced as
// degraded rather than unhealthy: the engine fails open, so the process
// still serves traffic.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.counterBackend != nil {
		if err := h.counterBackend.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{
				"status":        "degraded",
				"counter_store": err.Error(),
			})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatCompletionRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleChatCompletion is a stand-in for the upstream LLM call. The model
// integration is an external collaborator; what matters here is that the
// request reached this point within quota.
func (h *Handler) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "request body must be valid JSON",
		})
		return
	}
	if len(req.Messages) == 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "at least one message is required",
		})
		return
	}

	last := req.Messages[len(req.Messages)-1]
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": chatMessage{Role: "assistant", Content: "echo: " + last.Content},
	})
}
