// internal/handlers/product_handler.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vendora/backend/internal/models"
	"github.com/vendora/backend/internal/store"
	"github.com/vendora/backend/internal/utils"
)

type ProductHandler struct {
	store store.ProductStore
}

func NewProductHandler(st store.ProductStore) *ProductHandler {
	return &ProductHandler{store: st}
}

// List serves GET /products. Only active products are visible publicly.
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context(), true)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	utils.SuccessResponse(c, products)
}

// Get serves GET /products/:id.
func (h *ProductHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}
	utils.SuccessResponse(c, product)
}

type createProductRequest struct {
	Name        string             `json:"name" validate:"required,max=255"`
	Description string             `json:"description"`
	Category    string             `json:"category" validate:"max=100"`
	Price       float64            `json:"price" validate:"required,gt=0"`
	Type        models.ProductType `json:"type" validate:"required,oneof=physical digital subscription"`
	DigitalMeta models.DigitalMeta `json:"digital_meta"`
}

// Create serves POST /admin/products. Operator-only.
func (h *ProductHandler) Create(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	if req.Type == models.ProductTypeDigital && req.DigitalMeta.FileURL == "" {
		utils.BadRequestResponse(c, "Digital products require a file reference", nil)
		return
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Type:        req.Type,
		DigitalMeta: req.DigitalMeta,
		IsActive:    true,
	}
	if err := h.store.CreateProduct(c.Request.Context(), product); err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}
	utils.CreatedResponse(c, product)
}
