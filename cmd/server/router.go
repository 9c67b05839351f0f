package main

import (
	"net/http"

	"github.com/phrazzld/docsmith/internal/api"
)

// setupRouter creates the HTTP handler tree over the application's queue,
// bus and metrics registry.
func (app *application) setupRouter() http.Handler {
	taskHandler := api.NewTaskHandler(app.manager, app.bus, app.logger)
	return api.NewRouter(taskHandler, app.metrics, app.logger)
}
