package api

import (
	"encoding/json"
	"net/http"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/service"
)

// ClaimController 认领状态查询与手动触发
type ClaimController struct {
	*core.BaseComponent
	Engine      *service.ClaimingEngine `infra:"dep:claiming_engine"`
	Partitioner *partition.Partitioner  `infra:"dep:task_partitioner"`
}

func NewClaimController() *ClaimController {
	return &ClaimController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_CLAIM)}
}

// LastRound GET /api/v1/claims/last
func (c *ClaimController) LastRound(w http.ResponseWriter, r *http.Request) {
	report := c.Engine.LastRound()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "no claiming round yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": report})
}

// RunRound POST /api/v1/claims/round runs one round now and returns its snapshot.
func (c *ClaimController) RunRound(w http.ResponseWriter, r *http.Request) {
	c.Engine.RunRound(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": c.Engine.LastRound()})
}

// Partitions GET /api/v1/partitions
func (c *ClaimController) Partitions(w http.ResponseWriter, r *http.Request) {
	parts, err := c.Partitioner.Partitions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data": map[string]any{
			"node_id": c.Partitioner.NodeID(),
			"enabled": c.Partitioner.Enabled(),
			// nil = 全部分区
			"partitions": parts,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
