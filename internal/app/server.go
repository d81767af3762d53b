package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/handlers"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/proxy"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/server"
)

// RunServer builds the HTTP surface and starts the refresh scheduler.
func (app *App) RunServer() (*server.Server, http.Handler, error) {
	h := handlers.New(
		app.Pool,
		app.Storage,
		app.Tokens,
		app.Scheduler,
		app.Notifier,
		app.Upstream,
		app.Config.LoginDelay,
	)

	dispatcher := proxy.New(app.Pool, app.Upstream.Get, app.Config.ProxyTimeout)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Auth.RequireAdmin, dispatcher)

	if err := app.Scheduler.Start(); err != nil {
		return nil, nil, err
	}

	srv := server.New(router, app.Config.Port, app.Config.ProxyTimeout, app.Config.TLSCert, app.Config.TLSKey)
	return srv, router, nil
}

// Shutdown stops the background scheduler. In-flight refresh attempts finish
// on their own; the HTTP server drains separately.
func (app *App) Shutdown(ctx context.Context) error {
	app.Scheduler.Stop()
	return nil
}
