package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/pkg/utils"
	"github.com/sakashimaa/marketplace/services/catalog/internal/service"
	"github.com/sakashimaa/marketplace/services/catalog/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type ProductHandler struct {
	service  service.CatalogService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProductHandler(service service.CatalogService, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: utils.NewValidator(),
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *ProductHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// parse decodes and validates the request body into dst. When it reports false the
// 400 response has already been written.
func (h *ProductHandler) parse(ctx context.Context, c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.String("path", c.Path()), zap.Error(err))

		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(dst); err != nil {
		mylogger.Warn(ctx, h.logger, "request validation failed", zap.String("path", c.Path()), zap.Error(err))

		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	return true, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func local(c *fiber.Ctx, key string) string {
	v, _ := c.Locals(key).(string)
	return v
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	residentID := local(c, middleware.LocalResidentID)
	if residentID == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "merchant account required",
			"code":  "MERCHANT_REQUIRED",
		})
	}

	req := new(CreateProductRequest)
	if ok, err := h.parse(ctx, c, req); !ok {
		return err
	}

	base, err := req.ProductRequest.toInput()
	if err != nil {
		return badRequest(c, err.Error())
	}
	related, err := toInputs(req.Related)
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.service.CreateProduct(ctx, residentID, service.CreateProductInput{Base: base, Related: related})
	if err != nil {
		return h.fail(ctx, c, "create product failed", err, zap.String("resident_id", residentID))
	}

	mylogger.Info(ctx, h.logger, "create product succeeded",
		zap.String("product_id", res.Product.ID),
		zap.Int("warnings", len(res.Warnings)),
	)

	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *ProductHandler) AddRelated(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	baseID := c.Params("id")

	req := new(AddRelatedRequest)
	if ok, err := h.parse(ctx, c, req); !ok {
		return err
	}

	related, err := toInputs(req.Related)
	if err != nil {
		return badRequest(c, err.Error())
	}

	children, err := h.service.AddRelatedProducts(ctx, baseID, related)
	if err != nil {
		return h.fail(ctx, c, "add related products failed", err, zap.String("base_id", baseID))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"related": children})
}

func (h *ProductHandler) StageEdit(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id := c.Params("id")
	actorID := local(c, middleware.LocalUserID)

	req := new(StageEditRequest)
	if ok, err := h.parse(ctx, c, req); !ok {
		return err
	}

	in, err := req.toInput()
	if err != nil {
		return badRequest(c, err.Error())
	}

	edit, err := h.service.StageEdit(ctx, actorID, id, in)
	if err != nil {
		return h.fail(ctx, c, "stage edit failed", err, zap.String("product_id", id))
	}

	mylogger.Info(ctx, h.logger, "stage edit succeeded",
		zap.String("product_id", id),
		zap.String("edit_id", edit.ID.String()),
	)

	return c.Status(fiber.StatusAccepted).JSON(edit)
}

func (h *ProductHandler) Decide(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id := c.Params("id")
	deciderID := local(c, middleware.LocalUserID)

	req := new(DecideRequest)
	if ok, err := h.parse(ctx, c, req); !ok {
		return err
	}

	product, err := h.service.Decide(ctx, id, *req.Approve, deciderID)
	if err != nil {
		return h.fail(ctx, c, "decide failed", err, zap.String("product_id", id), zap.Bool("approve", *req.Approve))
	}

	mylogger.Info(ctx, h.logger, "decide succeeded",
		zap.String("product_id", id),
		zap.String("status", string(product.Status)),
	)

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	req := new(DeleteProductsRequest)
	if ok, err := h.parse(ctx, c, req); !ok {
		return err
	}

	deleted, err := h.service.DeleteProducts(ctx, req.IDs)
	if err != nil {
		return h.fail(ctx, c, "delete products failed", err, zap.Strings("ids", req.IDs))
	}

	ids := make([]string, 0, len(deleted))
	for _, p := range deleted {
		ids = append(ids, p.ID)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"deleted": ids})
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryInt(c *fiber.Ctx, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}

	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	limit, ok := queryInt(c, "limit")
	if !ok {
		mylogger.Warn(ctx, h.logger, "limit is invalid", zap.String("limit", c.Query("limit")))
		return badRequest(c, "limit is invalid")
	}

	page, ok := queryInt(c, "page")
	if !ok {
		mylogger.Warn(ctx, h.logger, "page is invalid", zap.String("page", c.Query("page")))
		return badRequest(c, "page is invalid")
	}

	q := service.ProductQuery{
		ID:          c.Query("id"),
		Statuses:    splitList(c.Query("status")),
		ApartmentID: c.Query("apartment_id"),
		CategoryID:  c.Query("category_id"),
		Type:        c.Query("type"),
		Search:      c.Query("search"),
		OnlyBase:    c.QueryBool("base_only", false),
		Sort:        c.Query("sort"),
		Page:        page,
		Limit:       limit,
		Include:     splitList(c.Query("include")),
	}

	res, err := h.service.Query(ctx, q)
	if err != nil {
		return h.fail(ctx, c, "list products failed", err)
	}

	mylogger.Info(ctx, h.logger, "list products succeeded",
		zap.Int("page", res.Page),
		zap.Int("limit", limit),
		zap.String("search", q.Search),
		zap.Int64("total", res.Total),
	)

	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id := c.Params("id")

	product, err := h.service.GetProduct(ctx, id)
	if err != nil {
		return h.fail(ctx, c, "find by id failed", err, zap.String("product_id", id))
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) PendingEdits(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	edits, err := h.service.ListPendingEdits(ctx)
	if err != nil {
		return h.fail(ctx, c, "list pending edits failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"list": edits, "total": len(edits)})
}
