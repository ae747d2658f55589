package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Deps) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := d.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ready",
		"version":     d.Version,
		"environment": string(d.Gateway.Environment()),
	})
}

type adminUsersResponse struct {
	Users  []*store.User          `json:"users"`
	Count  int                    `json:"count"`
	ByPlan map[plans.PlanType]int `json:"by_plan"`
}

func (d *Deps) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	users, err := d.Store.ListUsers(r.Context(), limit)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	byPlan, err := d.Store.CountUsersByPlan(r.Context())
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []*store.User{}
	}
	writeJSON(w, http.StatusOK, adminUsersResponse{Users: users, Count: len(users), ByPlan: byPlan})
}
