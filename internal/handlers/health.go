package handlers

import (
	"net/http"

	"github.com/quietleaf/journal/internal/handlers/render"
)

func handleHealth(gateway llmGateway) http.Handler {
	type HealthResponse struct {
		Status string `json:"status"`
		LLM    bool   `json:"llm"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, HealthResponse{
			Status: "ok",
			LLM:    gateway.CheckHealth(r.Context()),
		})
	})
}
