package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
)

type CreateProductInput struct {
	Name             string
	ShortDescription string
	Price            decimal.Decimal
	ImageRef         string
}

// Validate applies the catalog form rules: name and image required, description of at
// most 150 characters, price of at least 5 with no more than two decimals.
func (in CreateProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if len([]rune(in.ShortDescription)) > model.MaxShortDescriptionLength {
		return fmt.Errorf("%w: short description exceeds %d characters", ErrInvalidProduct, model.MaxShortDescriptionLength)
	}
	if in.Price.LessThan(model.MinProductPrice) {
		return fmt.Errorf("%w: price must be at least %s", ErrInvalidProduct, model.MinProductPrice)
	}
	if !in.Price.Equal(in.Price.Truncate(2)) {
		return fmt.Errorf("%w: price has more than two decimals", ErrInvalidProduct)
	}
	if strings.TrimSpace(in.ImageRef) == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidProduct)
	}
	return nil
}

// ProductService is the catalog collaborator: read-only to the cart, curated by admins.
type ProductService interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProductByID(ctx context.Context, id string) (*model.Product, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*model.Product, error)
	ImportProducts(ctx context.Context, inputs []CreateProductInput) (int, error)
	DeleteProduct(ctx context.Context, id string) error
}

type productService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

func (s *productService) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.productRepo.FindAll(ctx)
	if err != nil {
		logger.Error("Failed to list products", err)
		return nil, err
	}
	return products, nil
}

func (s *productService) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		logger.Error("Failed to fetch product", err, map[string]interface{}{
			"product_id": id,
		})
		return nil, err
	}
	return product, nil
}

func (s *productService) CreateProduct(ctx context.Context, input CreateProductInput) (*model.Product, error) {
	if err := input.Validate(); err != nil {
		logger.Warn("Rejected product input", map[string]interface{}{
			"name":  input.Name,
			"error": err.Error(),
		})
		return nil, err
	}

	product := newProduct(input)
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	logger.Info("Product created", map[string]interface{}{
		"product_id": product.ID,
		"name":       product.Name,
		"price":      product.Price.String(),
	})
	return product, nil
}

// ImportProducts validates every row before writing any, so a bad sheet imports nothing.
func (s *productService) ImportProducts(ctx context.Context, inputs []CreateProductInput) (int, error) {
	products := make([]model.Product, 0, len(inputs))
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		products = append(products, *newProduct(in))
	}

	if err := s.productRepo.BulkCreate(ctx, products, 500); err != nil {
		return 0, fmt.Errorf("failed to import products: %w", err)
	}

	logger.Info("Products imported", map[string]interface{}{
		"count": len(products),
	})
	return len(products), nil
}

func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	logger.Info("Product deleted", map[string]interface{}{
		"product_id": id,
	})
	return nil
}

func newProduct(in CreateProductInput) *model.Product {
	return &model.Product{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(in.Name),
		ShortDescription: strings.TrimSpace(in.ShortDescription),
		Price:            in.Price,
		ImageRef:         strings.TrimSpace(in.ImageRef),
	}
}
