package controllers

import (
	"fmt"
	"net/http"
	"time"

	"feedmirror/internal/services"

	json "github.com/goccy/go-json"
)

type HealthController struct {
	data      services.DataServiceInterface
	startTime time.Time
}

type healthResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Initialized   bool    `json:"initialized"`
	Timestamp     int64   `json:"timestamp"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "ok"
	if hc.data.IsStale() {
		status = "stale"
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        status,
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		Initialized:   hc.data.IsInitialized(),
		Timestamp:     hc.data.Timestamp(),
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(data services.DataServiceInterface) *HealthController {
	return &HealthController{
		data:      data,
		startTime: time.Now(),
	}
}
