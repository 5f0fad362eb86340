package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rabbitmq/amqp091-go"

	"github.com/paper-pigeon/backend/internal/bootstrap"
	"github.com/paper-pigeon/backend/internal/graphcache"
	"github.com/paper-pigeon/backend/internal/queue"
	mid "github.com/paper-pigeon/backend/internal/server/middleware"
	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/logger"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New returns an echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Setup(ctx)
	if err != nil {
		logger.Fatal("Failed to set up components", "err", err)
	}
	defer c.Close()

	if err := c.Graph.Load(ctx); err != nil {
		logger.Error("Failed to load graph cache, serving empty graph", "err", err)
	}

	app := &mid.App{
		Graph:       c.Graph,
		Reader:      c.Reader,
		KB:          c.KB,
		Documents:   c.Storage,
		AdminAPIKey: util.GetEnv("ADMIN_API_KEY"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.KeyFunc = k.Keyfunc
	}
	if !app.AuthConfigured() {
		logger.Warn("Admin routes are unauthenticated, set ADMIN_API_KEY or AUTH_URL to protect them")
	}

	if queue.Configured() {
		followRebuilds(ctx, c.Graph)
	}

	e := New(app)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// followRebuilds reloads the graph whenever a worker reports a new artifact.
// The server keeps serving without the broker if it cannot be reached.
func followRebuilds(ctx context.Context, holder *graphcache.Holder) {
	conn, err := amqp091.Dial(queue.URL())
	if err != nil {
		logger.Warn("Failed to connect to RabbitMQ, not following rebuilds", "err", err)
		return
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Warn("Failed to open channel, not following rebuilds", "err", err)
		conn.Close()
		return
	}

	err = queue.SubscribeRebuilt(ctx, ch, func(ctx context.Context, event queue.QueueRebuiltEvent) {
		logger.Info("Graph rebuilt elsewhere, reloading", "rebuild_id", event.RebuildID, "correlation_id", event.CorrelationID)
		if _, err := holder.Reload(ctx); err != nil {
			logger.Error("Failed to reload graph cache", "err", err)
		}
	})
	if err != nil {
		logger.Warn("Failed to subscribe to graph events", "err", err)
		conn.Close()
		return
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
}
