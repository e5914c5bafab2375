package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/marketplace/services/catalog/internal/transport/http/handler"
	"github.com/sakashimaa/marketplace/services/catalog/internal/transport/http/middleware"
)

type Handlers struct {
	Product *handler.ProductHandler
}

type AuthConfig struct {
	AccessSecret string
	AdminRole    string
}

func RegisterRoutes(app *fiber.App, h *Handlers, auth AuthConfig) {
	app.Use(middleware.NewMetricsMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", middleware.NewAuthMiddleware(auth.AccessSecret))
	admin := middleware.NewRequireRole(auth.AdminRole)

	product := api.Group("/products")
	product.Post("", h.Product.Create)
	product.Get("", h.Product.List)
	product.Put("/delete", h.Product.Delete)
	product.Get("/pending", admin, h.Product.PendingEdits)
	product.Get("/:id", h.Product.FindByID)
	product.Post("/:id/related", h.Product.AddRelated)
	product.Put("/:id/verify", admin, h.Product.Decide)
	product.Put("/:id", h.Product.StageEdit)
}
