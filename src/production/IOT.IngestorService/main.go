package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	container "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Container"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.IngestorService/client"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.IngestorService/ingestor"
)

func main() {
	ctr, err := container.NewIngestorContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}

	logger := ctr.GetLogger()
	logger.Info("Starting MQTT Ingestor Service")

	cfg := ctr.GetConfig()

	apiClient := client.NewAPIClient(cfg.ApiServiceURL)

	ing := ingestor.New(cfg, apiClient, logger)
	if err := ing.Start(context.Background()); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT ingestor")
	}
	defer ing.Stop()

	go startHealthServer(cfg.HealthPort, ing, apiClient)

	logger.Info("MQTT ingestor running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer(port string, ing *ingestor.Ingestor, apiClient *client.APIClient) {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		mqttStatus := "disconnected"
		if ing.IsConnected() {
			mqttStatus = "connected"
		}

		apiStatus := "disconnected"
		if err := apiClient.Health(ctx); err == nil {
			apiStatus = "connected"
		}

		status := "healthy"
		httpStatus := http.StatusOK
		if mqttStatus != "connected" || apiStatus != "connected" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"mqtt":   mqttStatus,
			"api":    apiStatus,
		})
	})

	http.ListenAndServe(":"+port, nil)
}
