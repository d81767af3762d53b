package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/handlers"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/middleware"
)

// SetupRoutes configures all HTTP routes. Management endpoints are
// registered before the passthrough catch-all so they are never forwarded;
// the dispatcher additionally refuses them outright.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, adminGate func(http.Handler) http.Handler, dispatcher http.Handler) {
	router.Use(middleware.LoggingMiddleware)

	// Health check (no auth required)
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Account management endpoints (admin gated)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(adminGate)
	api.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	api.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	api.HandleFunc("/accounts/batch", h.BatchCreateAccounts).Methods("POST")
	api.HandleFunc("/accounts/refresh", h.RefreshAccounts).Methods("POST")
	api.HandleFunc("/accounts/{email}", h.DeleteAccount).Methods("DELETE")
	api.HandleFunc("/config", h.GetConfig).Methods("GET")
	api.HandleFunc("/config", h.UpdateConfig).Methods("PUT")
	api.HandleFunc("/events", h.Events).Methods("GET")

	// Everything else is relayed upstream. This must be the last route.
	router.PathPrefix("/").Handler(dispatcher)
}
