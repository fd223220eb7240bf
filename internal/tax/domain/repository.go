package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, rate *TaxRate) error
	FindByID(ctx context.Context, id snowflake.ID) (*TaxRate, error)
	FindByIDs(ctx context.Context, ids []snowflake.ID) ([]TaxRate, error)
	List(ctx context.Context, filter ListRequest) ([]TaxRate, error)
	Update(ctx context.Context, rate *TaxRate) error
}
