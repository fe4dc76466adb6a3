// internal/app/features/ops/handler.go
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/reconcile"
	"github.com/dalemusser/workshophub/internal/app/system/ratelimit"
	"github.com/dalemusser/workshophub/internal/app/system/timeouts"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Engine is the part of the reconciliation engine the ops endpoints drive.
type Engine interface {
	SyncEventByCode(ctx context.Context, code string, opts reconcile.Options) (reconcile.SyncResult, error)
	SyncMember(ctx context.Context, m *models.Membership) error
	PushMember(ctx context.Context, m *models.Membership) (*models.Person, error)
	LookupInvitation(ctx context.Context, code string) (*models.Invitation, error)
}

// MembershipGetter loads memberships by id.
type MembershipGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error)
}

// Handler serves the operator endpoints that trigger syncs and resolve RSVP codes.
type Handler struct {
	Engine      Engine
	Memberships MembershipGetter
	Limiter     *ratelimit.OpsLimiter
	Log         *zap.Logger
}

// NewHandler creates an ops handler.
func NewHandler(engine Engine, memberships MembershipGetter, limiter *ratelimit.OpsLimiter, logger *zap.Logger) *Handler {
	return &Handler{
		Engine:      engine,
		Memberships: memberships,
		Limiter:     limiter,
		Log:         logger,
	}
}

type syncResponse struct {
	RunID      string `json:"run_id,omitempty"`
	Skipped    bool   `json:"skipped"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Pruned     int    `json:"pruned"`
	Failed     int    `json:"failed"`
	Lectures   int    `json:"lectures"`
	Overbooked bool   `json:"overbooked"`
}

type invitationResponse struct {
	Code         string    `json:"code"`
	MembershipID string    `json:"membership_id"`
	Expires      time.Time `json:"expires"`
	InvitedBy    string    `json:"invited_by"`
}

type errorResponse struct {
	Error    string              `json:"error"`
	Messages []string            `json:"messages,omitempty"`
	Fields   map[string][]string `json:"fields,omitempty"`
}

// ServeSyncEvent handles POST /sync/events/{code}. The run is throttled
// unless ?force=1.
func (h *Handler) ServeSyncEvent(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	force := r.URL.Query().Get("force") == "1"

	if force && h.Limiter != nil && !h.Limiter.AllowForce(code) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many forced syncs for this event, try again later"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "event membership sync")
	defer cancel()

	res, err := h.Engine.SyncEventByCode(ctx, code, reconcile.Options{Force: force})
	if err != nil {
		status := syncErrorStatus(err)
		if status >= 500 {
			h.Log.Error("event sync failed", zap.String("event_code", code), zap.Error(err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		RunID:      res.RunID,
		Skipped:    res.Skipped,
		Created:    res.Created,
		Updated:    res.Updated,
		Pruned:     res.Pruned,
		Failed:     res.Failed,
		Lectures:   res.Lectures,
		Overbooked: res.Overbooked,
	})
}

// ServeSyncMembership handles POST /sync/memberships/{id}.
func (h *Handler) ServeSyncMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "single member sync")
	defer cancel()

	m, ok := h.loadMembership(ctx, w, r)
	if !ok {
		return
	}
	if err := h.Engine.SyncMember(ctx, m); err != nil {
		status := syncErrorStatus(err)
		h.Log.Error("member sync failed", zap.String("membership_id", m.ID.Hex()), zap.Error(err))
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServePushMembership handles POST /push/memberships/{id}. It sends the
// local membership and its person to the legacy system.
func (h *Handler) ServePushMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "member push")
	defer cancel()

	m, ok := h.loadMembership(ctx, w, r)
	if !ok {
		return
	}
	p, err := h.Engine.PushMember(ctx, m)
	if err != nil {
		status := syncErrorStatus(err)
		if errors.Is(err, reconcile.ErrInvalidRecord) {
			status = http.StatusUnprocessableEntity
		} else {
			h.Log.Error("member push failed", zap.String("membership_id", m.ID.Hex()), zap.Error(err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "legacy_id": *p.LegacyID})
}

// loadMembership resolves the {id} URL parameter. It writes the error
// response itself and reports false when the handler should stop.
func (h *Handler) loadMembership(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.Membership, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid membership id"})
		return nil, false
	}
	m, err := h.Memberships.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "membership not found"})
		return nil, false
	}
	if err != nil {
		h.Log.Error("load membership failed", zap.String("membership_id", id.Hex()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load membership"})
		return nil, false
	}
	return m, true
}

// ServeLookupInvitation handles GET /rsvp/{code}.
func (h *Handler) ServeLookupInvitation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "invitation lookup")
	defer cancel()

	inv, err := h.Engine.LookupInvitation(ctx, chi.URLParam(r, "code"))
	if err != nil {
		var set *reconcile.ErrorSet
		if !errors.As(err, &set) {
			h.Log.Error("invitation lookup failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "invitation lookup failed"})
			return
		}
		status := http.StatusUnprocessableEntity
		if set.NotFound {
			status = http.StatusNotFound
		}
		fields := make(map[string][]string, len(set.Fields()))
		for _, f := range set.Fields() {
			fields[f] = set.Field(f)
		}
		writeJSON(w, status, errorResponse{Error: set.Error(), Messages: set.Messages(), Fields: fields})
		return
	}

	writeJSON(w, http.StatusOK, invitationResponse{
		Code:         inv.Code,
		MembershipID: inv.MembershipID.Hex(),
		Expires:      inv.Expires,
		InvitedBy:    inv.InvitedBy,
	})
}

func syncErrorStatus(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, legacy.ErrUnavailable), errors.Is(err, legacy.ErrRejected):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
