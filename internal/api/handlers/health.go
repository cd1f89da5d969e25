package handlers

import (
	"net/http"

	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// QueueInspector reports the task queues known to the broker.
// *asynq.Inspector satisfies it.
type QueueInspector interface {
	Queues() ([]string, error)
}

type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	inspector QueueInspector
}

// NewHealthHandler checks db and, when non-nil, redis and the task queues.
func NewHealthHandler(db *gorm.DB, redis *redis.Client, inspector QueueInspector) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, inspector: inspector}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Queues   []string          `json:"queues,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Services: make(map[string]string)}

	check := func(name string, err error) {
		if err != nil {
			resp.Services[name] = "unhealthy"
			resp.Status = "unhealthy"
			return
		}
		resp.Services[name] = "healthy"
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	check("database", err)

	if h.redis != nil {
		check("redis", h.redis.Ping(r.Context()).Err())
	}

	if h.inspector != nil {
		queues, err := h.inspector.Queues()
		check("queue", err)
		resp.Queues = queues
	}

	statusCode := http.StatusOK
	if resp.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	respond.JSON(w, statusCode, resp)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
