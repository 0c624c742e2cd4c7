package handlers

import (
	"context"
	"net/http"

	"github.com/radu-gajdos/greenthumb/internal/models"
	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
)

// SecurityMonitorInterface defines the interface for anomaly reporting
type SecurityMonitorInterface interface {
	GetSecurityAlerts(ctx context.Context) ([]models.SecurityAlert, error)
}

// SecurityHandler exposes the anomaly detection rules.
type SecurityHandler struct {
	monitor SecurityMonitorInterface
}

func NewSecurityHandler(monitor SecurityMonitorInterface) *SecurityHandler {
	return &SecurityHandler{monitor: monitor}
}

// GetAlerts returns the current-window rule violations.
func (h *SecurityHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.monitor.GetSecurityAlerts(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}
