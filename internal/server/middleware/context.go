package middleware

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/paper-pigeon/backend/internal/graphcache"
	"github.com/paper-pigeon/backend/pkg/kb"
	"github.com/paper-pigeon/backend/pkg/store"
)

type AppUser struct {
	Subject     string
	Role        string
	Permissions []string
}

// Presigner issues time-limited download links for paper PDFs.
type Presigner interface {
	PresignPDF(ctx context.Context, labID, documentID string) (string, error)
}

type App struct {
	Graph     *graphcache.Holder
	Reader    store.Reader
	KB        kb.KnowledgeBase
	Documents Presigner

	// KeyFunc verifies admin JWTs. Nil disables JWT auth.
	KeyFunc     jwt.Keyfunc
	AdminAPIKey string
}

// AuthConfigured reports whether admin routes require credentials.
func (a *App) AuthConfigured() bool {
	return a.AdminAPIKey != "" || a.KeyFunc != nil
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
