package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: message})
}

// respondError maps a classified error to its HTTP status. The upstream kind
// and message are passed through so callers can tell failures apart.
func respondError(c echo.Context, err error) error {
	kind := common.KindOf(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case kind == common.KindUpstream:
		status = http.StatusBadGateway
	case kind == common.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	case kind == common.KindBadRequest:
		status = http.StatusBadRequest
	case kind == common.KindArtifactMissing:
		status = http.StatusNotFound
	}

	logger.Error("[HTTP] Request failed", "path", c.Path(), "status", status, "kind", kind, "err", err)
	return c.JSON(status, errorResponse{Error: err.Error(), Kind: string(kind)})
}
