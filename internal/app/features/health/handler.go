package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/workshophub/internal/app/system/timeouts"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// OutboxCounter reports the merge outbox backlog.
type OutboxCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Outbox OutboxCounter // optional
	Log    *zap.Logger
}

// NewHandler constructs a health Handler with the Mongo client and logger.
func NewHandler(client *mongo.Client, outbox OutboxCounter, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Outbox: outbox,
		Log:    logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string        `json:"status"`
	Database string        `json:"database"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Merges   *outboxStatus `json:"merges,omitempty"`
}

// outboxStatus summarizes legacy merges waiting for delivery.
type outboxStatus struct {
	Pending int64 `json:"pending"`
	Dead    int64 `json:"dead"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "merges":{"pending":0,"dead":0} }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	// Outbox backlog is informational; it never fails the check.
	if h.Outbox != nil {
		counts, err := h.Outbox.CountByStatus(ctx)
		if err != nil {
			h.Log.Warn("health-check: merge outbox count failed", zap.Error(err))
		} else {
			resp.Merges = &outboxStatus{
				Pending: counts[models.MergeStatusPending] + counts[models.MergeStatusLeased],
				Dead:    counts[models.MergeStatusDead],
			}
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
