package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
)

type MerchantsRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Merchant, error)
}

type MerchantsRepositoryImpl struct {
	db *sqlx.DB
}

func NewMerchantsRepository(db *sqlx.DB) *MerchantsRepositoryImpl {
	return &MerchantsRepositoryImpl{db: db}
}

var _ MerchantsRepository = (*MerchantsRepositoryImpl)(nil)

func (r *MerchantsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Merchant, error) {
	var m model.Merchant
	err := r.db.GetContext(ctx, &m, `
		SELECT id, name, external_id, api_key, status, rate_limit_rps, created_at, updated_at
		  FROM merchants
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
