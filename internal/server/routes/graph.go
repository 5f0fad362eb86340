package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paper-pigeon/backend/internal/graphcache"
	"github.com/paper-pigeon/backend/internal/server/middleware"
	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/leaselock"
)

type rebuildResponse struct {
	Success bool   `json:"success"`
	Nodes   *int   `json:"nodes,omitempty"`
	Links   *int   `json:"links,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func counts(nodes, links int) rebuildResponse {
	return rebuildResponse{Success: true, Nodes: &nodes, Links: &links}
}

// GetGraphDataHandler serves the in-memory graph. It never reads the store.
func GetGraphDataHandler(c echo.Context) error {
	holder := c.(*middleware.AppContext).App.Graph
	return c.JSONBlob(http.StatusOK, holder.JSON())
}

// RebuildCacheHandler recomputes the graph from the source store, persists it
// and starts serving it.
func RebuildCacheHandler(c echo.Context) error {
	holder := c.(*middleware.AppContext).App.Graph

	res, err := holder.Rebuild(c.Request().Context())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, counts(res.Nodes(), res.Links()))
	case errors.Is(err, graphcache.ErrRebuildUnsupported):
		return c.JSON(http.StatusServiceUnavailable, rebuildResponse{
			Reason: "cache writing disabled: artifact store is read-only",
		})
	case errors.Is(err, leaselock.ErrBusy):
		return c.JSON(http.StatusConflict, rebuildResponse{
			Error: "a rebuild is already running",
		})
	default:
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Error: err.Error(),
		})
	}
}

// ReloadCacheHandler swaps in the artifact as it is on disk or in the bucket,
// picking up rebuilds done by the worker or the CLI.
func ReloadCacheHandler(c echo.Context) error {
	holder := c.(*middleware.AppContext).App.Graph

	snap, err := holder.Reload(c.Request().Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, common.ErrArtifactMissing) {
			status = http.StatusNotFound
		}
		return c.JSON(status, rebuildResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, counts(snap.Nodes(), snap.Links()))
}

// PaperLabIDHandler returns the lab a paper belongs to, or null when the
// paper is unknown or has no lab.
func PaperLabIDHandler(c echo.Context) error {
	type paperLabBody struct {
		DocumentID string `json:"document_id" validate:"required"`
	}

	type paperLabResponse struct {
		LabID *string `json:"lab_id"`
	}

	data := new(paperLabBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "document_id is required")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "document_id is required")
	}

	reader := c.(*middleware.AppContext).App.Reader
	papers, err := reader.FetchPapers(c.Request().Context(), []string{data.DocumentID})
	if err != nil {
		return respondError(c, err)
	}

	for _, p := range papers {
		if p.DocumentID == data.DocumentID {
			return c.JSON(http.StatusOK, paperLabResponse{LabID: p.LabID})
		}
	}
	return c.JSON(http.StatusOK, paperLabResponse{})
}
