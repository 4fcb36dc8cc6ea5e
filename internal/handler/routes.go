package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/pixelpress/api/internal/middleware"
	ws "github.com/pixelpress/api/internal/websocket"
	"github.com/pixelpress/api/pkg/response"
)

// Routes holds everything mounted on the fiber app
type Routes struct {
	Video *VideoHandler
	Auth  *AuthHandler
	Hub   *ws.Hub
	// APIAuth guards /api; nil leaves the API open.
	APIAuth         fiber.Handler
	RateLimiter     *middleware.RateLimiter
	SubmitPerHour   int
	GeneratePerHour int
}

// Register mounts the routes on app
func (r Routes) Register(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health is public on both paths
	app.Get("/health", r.Video.Health)
	app.Get("/api/health", r.Video.Health)

	if r.Auth != nil {
		app.Get("/auth/verify", r.Auth.Verify)
	}

	var api fiber.Router
	if r.APIAuth != nil {
		api = app.Group("/api", r.APIAuth)
	} else {
		api = app.Group("/api")
	}

	limiter := r.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, nil)
	}

	api.Post("/upload-pdf", limiter.SubmitLimit(r.SubmitPerHour), r.Video.Upload)
	api.Post("/generate/:jobId", limiter.GenerateLimit(r.GeneratePerHour), r.Video.Generate)
	api.Get("/status/:jobId", r.Video.Status)
	api.Get("/download/:jobId", r.Video.Download)

	if r.Hub == nil {
		return
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, c.Params("jobId"))
	}))
}

// ErrorHandler renders unhandled errors in the API error envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
