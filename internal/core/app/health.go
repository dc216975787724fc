package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	if s.app.Parser != nil {
		status.Components["parser"] = "ok"
	} else {
		status.Status = "degraded"
		status.Components["parser"] = "missing"
	}

	if s.app.Extractor != nil {
		status.Components["record_cache"] = fmt.Sprintf("ok (%d entries)", s.app.Extractor.CacheSize())
	}

	if s.app.Store != nil {
		entries, err := s.app.Store.List(ctx)
		if err != nil {
			status.Status = "degraded"
			status.Components["store"] = "error: " + err.Error()
		} else {
			status.Components["store"] = fmt.Sprintf("ok (%d records)", len(entries))
		}
	} else if s.app.Config.Store.Enabled {
		status.Status = "degraded"
		status.Components["store"] = "missing but enabled in config"
	}

	return status
}
