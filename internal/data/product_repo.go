package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/assesskit/reportgen/internal/domain/model"
	apperrors "github.com/assesskit/reportgen/internal/errors"
)

// ErrProductNotFound is returned when a product configuration is not found.
// It carries the not_found code so callers can discriminate with
// apperrors.IsNotFound.
var ErrProductNotFound error = apperrors.NotFound("product configuration not found")

// ProductRepo provides read-only access to product configurations.
// Requirements are stored as an ordered jsonb array, so the original list
// position survives round trips and keeps equal-order sorting stable.
type ProductRepo struct {
	DB *sql.DB
}

// NewProductRepo creates a new ProductRepo with the given database connection.
func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{DB: db}
}

// GetByID retrieves a product configuration by product id.
func (r *ProductRepo) GetByID(ctx context.Context, productID string) (*model.ProductConfiguration, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT product_id, display_name, active, requirements, introduction, closing
		FROM product_configurations
		WHERE product_id = $1
	`, productID)

	var (
		cfg             model.ProductConfiguration
		requirementsRaw []byte
		introduction    sql.NullString
		closing         sql.NullString
	)
	err := row.Scan(&cfg.ProductID, &cfg.DisplayName, &cfg.Active, &requirementsRaw, &introduction, &closing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get product configuration: %w", err))
	}

	if len(requirementsRaw) > 0 {
		if uerr := json.Unmarshal(requirementsRaw, &cfg.Requirements); uerr != nil {
			return nil, fmt.Errorf("decode requirements for product %s: %w", productID, uerr)
		}
	}
	cfg.Introduction = cloneNullableString(introduction)
	cfg.Closing = cloneNullableString(closing)

	if verr := cfg.Validate(); verr != nil {
		return nil, fmt.Errorf("invalid configuration for product %s: %w", productID, verr)
	}

	return &cfg, nil
}
