package errors

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes the storefront distinguishes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgNotNullViolation     = "23502"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// ErrorInfo is a client-safe error code plus message.
type ErrorInfo struct {
	Code    string
	Message string
}

// ParseError turns a storage or transport error into a client-safe ErrorInfo.
// Driver details never leak into the message.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Code:    InternalServerError,
			Message: "An internal error occurred",
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Code:    ResourceNotFound,
			Message: getNotFoundMessage(context),
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return parsePgError(pgErr, context)
	}

	// SQLite and wrapped driver errors only carry text
	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "duplicate key") || strings.Contains(errLower, "unique constraint"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "The record already exists"}
	case strings.Contains(errLower, "foreign key constraint"):
		return ErrorInfo{Code: ResourceNotFound, Message: "A referenced record does not exist"}
	case strings.Contains(errLower, "database is locked"):
		return ErrorInfo{Code: ResourceConflict, Message: "The record is busy, please retry"}
	case strings.Contains(errLower, "connection refused"),
		strings.Contains(errLower, "no such host"),
		strings.Contains(errLower, "timeout"):
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "An upstream service is unavailable, please retry shortly",
		}
	}

	return ErrorInfo{
		Code:    InternalServerError,
		Message: getDefaultErrorMessage(context),
	}
}

func parsePgError(pgErr *pgconn.PgError, context string) ErrorInfo {
	switch pgErr.Code {
	case pgUniqueViolation:
		if strings.Contains(pgErr.ConstraintName, "cart_lines") {
			return ErrorInfo{Code: CartVersionConflict, Message: "The cart changed, please refresh"}
		}
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "The record already exists"}
	case pgForeignKeyViolation:
		if strings.Contains(pgErr.ConstraintName, "product") {
			return ErrorInfo{Code: CatalogProductNotFound, Message: "The product does not exist"}
		}
		return ErrorInfo{Code: ResourceNotFound, Message: "A referenced record does not exist"}
	case pgNotNullViolation:
		field := pgErr.ColumnName
		if field == "" {
			return ErrorInfo{Code: ValidationRequired, Message: "A required field is missing"}
		}
		return ErrorInfo{Code: ValidationRequired, Message: field + " is required"}
	case pgCheckViolation:
		return ErrorInfo{Code: ValidationInvalidInput, Message: "The input is not valid"}
	case pgSerializationFailure, pgDeadlockDetected:
		return ErrorInfo{Code: ResourceConflict, Message: "A concurrent update was detected, please retry"}
	}
	return ErrorInfo{Code: InternalDatabaseError, Message: getDefaultErrorMessage(context)}
}

func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "product"):
		return "Product not found"
	case strings.Contains(contextLower, "cart"):
		return "Cart not found"
	case strings.Contains(contextLower, "checkout"):
		return "Checkout confirmation not found"
	}
	return "The requested record was not found"
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "create"), strings.Contains(contextLower, "import"):
		return "Failed to save, please retry shortly"
	case strings.Contains(contextLower, "update"), strings.Contains(contextLower, "add"):
		return "Failed to update, please retry shortly"
	case strings.Contains(contextLower, "delete"), strings.Contains(contextLower, "remove"), strings.Contains(contextLower, "clear"):
		return "Failed to delete, please retry shortly"
	}
	return "An internal error occurred, please retry shortly"
}

// ParseAndRespond parses err and writes it as the response body.
func ParseAndRespond(c interface{ JSON(int, interface{}) }, statusCode int, err error, context string) {
	errorInfo := ParseError(err, context)
	c.JSON(statusCode, ErrorResponse{
		Error:   errorInfo.Code,
		Message: errorInfo.Message,
	})
}
