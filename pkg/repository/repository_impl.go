package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/storelane/storelane/pkg/db/option"
	"gorm.io/gorm"
)

// ErrTenantMismatch is returned when a write carries a row whose tenant id
// does not match the scope it was issued under.
var ErrTenantMismatch = errors.New("tenant_mismatch")

type scopedStore[T TenantOwned] struct {
	db *gorm.DB
}

func ProvideScoped[T TenantOwned](db *gorm.DB) Scoped[T] {
	return &scopedStore[T]{db: db}
}

func (r *scopedStore[T]) WithTrx(tx *gorm.DB) Scoped[T] {
	return &scopedStore[T]{db: tx}
}

func (r *scopedStore[T]) Find(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, tenantID, query, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *scopedStore[T]) FindOne(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, tenantID, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *scopedStore[T]) Count(ctx context.Context, tenantID snowflake.ID, query *T) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(query).Where("tenant_id = ?", tenantID).Where(query).Count(&count).Error
	return count, err
}

func (r *scopedStore[T]) Create(ctx context.Context, tenantID snowflake.ID, resource *T) error {
	if (*resource).OwnerTenantID() != tenantID {
		return ErrTenantMismatch
	}
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *scopedStore[T]) BatchCreate(ctx context.Context, tenantID snowflake.ID, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	for _, resource := range resources {
		if (*resource).OwnerTenantID() != tenantID {
			return ErrTenantMismatch
		}
	}
	return r.db.WithContext(ctx).Create(resources).Error
}

func (r *scopedStore[T]) buildQuery(ctx context.Context, tenantID snowflake.ID, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Where(filter)

	for _, opt := range opts {
		db = opt.Apply(db)
	}

	return db
}
