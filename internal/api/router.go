package api

import (
	"errors"

	"stroycrm/docs"
	"stroycrm/internal/api/handlers"
	"stroycrm/internal/service"
	"stroycrm/pkg/auth"
	"stroycrm/pkg/config"
	"stroycrm/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

func SetupRouter(
	authHandler *handlers.AuthHandler,
	invoiceHandler *handlers.InvoiceHandler,
	recognition handlers.Recognizer,
	jwtManager *auth.JWTManager,
	serverCfg config.ServerConfig,
	appLogger *zap.Logger,
) *fiber.App {
	app := NewApp(serverCfg, recognition.Formats().MaxFileMB, appLogger)

	// Swagger: importing docs registers the document through init()
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"ocrReady": recognition.OCRReady(),
		})
	})

	// Auth routes (public)
	authGroup := app.Group("/user/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))
	RegisterInvoiceRoutes(protected, invoiceHandler)

	return app
}

// NewApp builds the fiber app with the shared middleware and error
// handler, without any routes. maxFileMB is quoted to clients whose upload
// exceeds the body limit.
func NewApp(serverCfg config.ServerConfig, maxFileMB int, appLogger *zap.Logger) *fiber.App {
	bodyLimit := serverCfg.BodyLimitMB << 20
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// fasthttp rejects oversized bodies before any handler runs.
			if errors.Is(err, fiber.ErrRequestEntityTooLarge) {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(service.TooLargeResponse(maxFileMB))
			}
			code := fiber.StatusInternalServerError
			message := "Internal error"
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				message = e.Message
			} else {
				appLogger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   message,
			})
		},
	})

	// Middleware
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	return app
}

// RegisterInvoiceRoutes mounts the recognition and invoice endpoints on r.
func RegisterInvoiceRoutes(r fiber.Router, h *handlers.InvoiceHandler) {
	r.Get("/recognition/formats", h.Formats)

	invoices := r.Group("/invoices")
	invoices.Post("/recognize", h.Recognize)
	invoices.Get("/:id", h.GetInvoice)
	invoices.Put("/:id", h.UpdateInvoice)
	invoices.Delete("/:id", h.DeleteInvoice)

	r.Get("/projects/:projectId/invoices", h.ListProjectInvoices)
}
