package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paper-pigeon/backend/internal/server/middleware"
)

func PDFTestHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "pdf controller active"})
}

// PDFURLHandler issues a presigned link to {lab_id}/{document_id}.pdf.
func PDFURLHandler(c echo.Context) error {
	type pdfURLBody struct {
		LabID      string `json:"lab_id" validate:"required"`
		DocumentID string `json:"document_id" validate:"required"`
	}

	data := new(pdfURLBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Missing lab_id or document_id")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Missing lab_id or document_id")
	}

	docs := c.(*middleware.AppContext).App.Documents
	url, err := docs.PresignPDF(c.Request().Context(), data.LabID, data.DocumentID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"url": url})
}
