package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/internal/app/service"
	apperrors "github.com/nexe/nexe-backend/internal/errors"
	"github.com/nexe/nexe-backend/internal/middleware"
	"github.com/nexe/nexe-backend/internal/storage"
	"github.com/shopspring/decimal"
)

const maxSheetUploadSize = 10 << 20

type ProductController struct {
	productService service.ProductService
	images         storage.ImageStore
	sheetName      string
}

// NewProductController takes an optional image store; without one product
// deletion leaves uploaded images in place.
func NewProductController(productService service.ProductService, images storage.ImageStore, sheetName string) *ProductController {
	return &ProductController{
		productService: productService,
		images:         images,
		sheetName:      sheetName,
	}
}

type CreateProductRequest struct {
	Name             string          `json:"name" binding:"required"`
	ShortDescription string          `json:"short_description"`
	Price            decimal.Decimal `json:"price"`
	ImageRef         string          `json:"image_ref" binding:"required"`
}

// ListProducts returns the catalog
// GET /api/v1/products
func (ctrl *ProductController) ListProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	products, err := ctrl.productService.ListProducts(c.Request.Context())
	if err != nil {
		log.Error("Failed to fetch products", err)
		apperrors.InternalError(c, "Failed to fetch products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct returns one product
// GET /api/v1/products/:id
func (ctrl *ProductController) GetProduct(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id := c.Param("id")

	product, err := ctrl.productService.GetProductByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			apperrors.NotFound(c, apperrors.CatalogProductNotFound, "Product not found")
			return
		}
		log.Error("Failed to fetch product", err, map[string]interface{}{
			"product_id": id,
		})
		apperrors.InternalError(c, "Failed to fetch product")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product": product,
	})
}

// CreateProduct adds a product (admin only)
// POST /api/v1/products
func (ctrl *ProductController) CreateProduct(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid product creation request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request body")
		return
	}

	product, err := ctrl.productService.CreateProduct(c.Request.Context(), service.CreateProductInput{
		Name:             req.Name,
		ShortDescription: req.ShortDescription,
		Price:            req.Price,
		ImageRef:         req.ImageRef,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidProduct) {
			apperrors.BadRequest(c, apperrors.CatalogInvalidProduct, err.Error())
			return
		}
		log.Error("Failed to create product", err)
		info := apperrors.ParseError(err, "create product")
		apperrors.RespondWithError(c, statusFor(info.Code), info.Code, info.Message)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"product": product,
	})
}

// DeleteProduct soft-deletes a product (admin only)
// DELETE /api/v1/products/:id
func (ctrl *ProductController) DeleteProduct(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id := c.Param("id")

	product, err := ctrl.productService.GetProductByID(c.Request.Context(), id)
	if err == nil {
		err = ctrl.productService.DeleteProduct(c.Request.Context(), id)
	}
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			apperrors.NotFound(c, apperrors.CatalogProductNotFound, "Product not found")
			return
		}
		log.Error("Failed to delete product", err, map[string]interface{}{
			"product_id": id,
		})
		apperrors.InternalError(c, "Failed to delete product")
		return
	}

	if ctrl.images != nil {
		if err := ctrl.images.Delete(c.Request.Context(), product.ImageRef); err != nil {
			log.Warn("Failed to delete product image", map[string]interface{}{
				"product_id": id,
				"error":      err.Error(),
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product deleted",
	})
}

// ExportProducts streams the catalog as an XLSX workbook (admin only)
// GET /api/v1/products/export
func (ctrl *ProductController) ExportProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	products, err := ctrl.productService.ListProducts(c.Request.Context())
	if err != nil {
		log.Error("Failed to fetch products for export", err)
		apperrors.InternalError(c, "Failed to export products")
		return
	}

	filename := fmt.Sprintf("catalog-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)

	if err := service.WriteCatalogSheet(c.Writer, ctrl.sheetName, products); err != nil {
		log.Error("Failed to write catalog sheet", err)
	}
}

// ImportProducts creates products from an uploaded XLSX workbook (admin only).
// A sheet with any invalid row imports nothing.
// POST /api/v1/products/import
func (ctrl *ProductController) ImportProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	header, err := c.FormFile("file")
	if err != nil {
		apperrors.RespondWithValidationError(c, map[string]string{"file": "required"})
		return
	}
	if header.Size > maxSheetUploadSize {
		apperrors.BadRequest(c, apperrors.CatalogImportFailed, "Sheet is too large")
		return
	}

	f, err := header.Open()
	if err != nil {
		apperrors.BadRequest(c, apperrors.CatalogImportFailed, "Could not read upload")
		return
	}
	defer f.Close()

	inputs, err := service.ReadCatalogSheet(f, ctrl.sheetName)
	if err != nil {
		apperrors.BadRequest(c, apperrors.CatalogImportFailed, err.Error())
		return
	}

	count, err := ctrl.productService.ImportProducts(c.Request.Context(), inputs)
	if err != nil {
		if errors.Is(err, service.ErrInvalidProduct) {
			apperrors.BadRequest(c, apperrors.CatalogInvalidProduct, err.Error())
			return
		}
		log.Error("Failed to import products", err)
		apperrors.InternalError(c, "Failed to import products")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"imported": count,
	})
}
