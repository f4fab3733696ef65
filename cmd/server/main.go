package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"

	"github.com/dpup/rooftrace/server/internal/cache"
	"github.com/dpup/rooftrace/server/internal/clients/simulation"
	"github.com/dpup/rooftrace/server/internal/config"
	"github.com/dpup/rooftrace/server/internal/metrics"
	"github.com/dpup/rooftrace/server/internal/services"
)

func main() {
	loadEnv()

	// Load configuration using Prefab's config system
	appConfig := loadConfig()

	// Simulation results, keyed by capture session
	cacheInstance := cache.NewCache()

	simulationClient := simulation.NewClient(appConfig.Simulation.BaseURL, appConfig.Simulation.Timeout)
	sessionService := services.NewSessionService(appConfig, simulationClient, cacheInstance)

	log.Printf("Roof outline server starting")
	log.Printf("Simulation backend: %s (timeout %v)", appConfig.Simulation.BaseURL, appConfig.Simulation.Timeout)
	log.Printf("Click debounce window: %v", appConfig.Capture.DebounceWindow)
	log.Printf("CORS origins: %v", appConfig.Server.CorsOrigins)

	ctx := logging.EnsureLogger(context.Background())

	reaper := services.NewSessionReaper(sessionService, appConfig.Sessions.CleanupInterval)
	if err := reaper.Start(ctx); err != nil {
		log.Printf("Failed to start session reaper: %v", err)
	}
	cacheInstance.StartPeriodicCleanup(ctx, appConfig.Sessions.CleanupInterval)

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	api := sessionService.Handler()
	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/api/v1/", api.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/metrics", metrics.Handler().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	reaper.Stop()
}

// loadEnv reads .env when present; a missing file is not an error
func loadEnv() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func loadConfig() *config.Config {
	appConfig, err := config.Load(prefab.Config)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The simulation backend usually runs next to the frontend's .env
	if baseURL := os.Getenv("SIMULATION_BASE_URL"); baseURL != "" {
		appConfig.Simulation.BaseURL = baseURL
	}

	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return appConfig
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>rooftrace</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">rooftrace</span>

Roof outline capture and area service. Trace a roof on the map, get its
surface area, and send the outline to the solar simulation.

<span class="header">Sessions:</span>
  POST   /api/v1/sessions                         - Start a capture session
  GET    /api/v1/sessions/{id}                    - Outline, draw mode and area
  DELETE /api/v1/sessions/{id}                    - Drop the session

<span class="header">Outline:</span>
  PUT    /api/v1/sessions/{id}/draw-mode          - {"active": true|false}
  POST   /api/v1/sessions/{id}/clicks             - Map click (draw mode only)
  POST   /api/v1/sessions/{id}/points             - Add a vertex
  DELETE /api/v1/sessions/{id}/points/last        - Undo last vertex
  DELETE /api/v1/sessions/{id}/points             - Clear outline
  GET    /api/v1/sessions/{id}/outline            - Encoded polyline
  PUT    /api/v1/sessions/{id}/outline            - Import polyline
  GET    /api/v1/sessions/{id}/outline.kml        - KML export

<span class="header">Simulation:</span>
  PUT    /api/v1/sessions/{id}/settings           - Bill, tilt, azimuth, panels
  POST   /api/v1/sessions/{id}/calculate          - Run the simulation
  GET    /api/v1/sessions/{id}/result             - Last result

<span class="header">Utilities:</span>
  POST   /api/v1/area                             - Area of [[lat, lng], ...]
  <a href="/metrics">GET    /metrics</a>                                 - Prometheus metrics
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
