package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paper-pigeon/backend/internal/server/middleware"
)

func RAGTestHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "rag controller active"})
}

// ChatHandler answers a question about one paper from the knowledge base.
func ChatHandler(c echo.Context) error {
	type chatBody struct {
		Query      string `json:"query" validate:"required"`
		DocumentID string `json:"document_id" validate:"required"`
	}

	data := new(chatBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Missing query or document_id")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Missing query or document_id")
	}

	kb := c.(*middleware.AppContext).App.KB
	res, err := kb.Chat(c.Request().Context(), data.Query, data.DocumentID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, res)
}

func RecommendationsTestHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "recommendations controller active"})
}

// RecommendFromResumeHandler recommends researchers whose work matches a resume.
func RecommendFromResumeHandler(c echo.Context) error {
	type resumeBody struct {
		ResumeText string `json:"resume_text" validate:"required"`
	}

	type recommendResponse struct {
		Recommendations []json.RawMessage `json:"recommendations"`
	}

	data := new(resumeBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c, "Missing resume_text")
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c, "Missing resume_text")
	}

	kb := c.(*middleware.AppContext).App.KB
	recs, err := kb.Recommend(c.Request().Context(), data.ResumeText)
	if err != nil {
		return respondError(c, err)
	}
	if recs == nil {
		recs = []json.RawMessage{}
	}

	return c.JSON(http.StatusOK, recommendResponse{Recommendations: recs})
}
