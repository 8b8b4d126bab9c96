package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	gosimpleslug "github.com/gosimple/slug"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"github.com/storelane/storelane/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) tenantdomain.Directory {
	return &directory{db: db}
}

func (d *directory) BySlug(ctx context.Context, slug string) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := d.db.WithContext(ctx).Where("slug = ?", slug).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (d *directory) ByID(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

type resolver struct {
	log       *zap.Logger
	directory tenantdomain.Directory
}

type ResolverParam struct {
	fx.In

	Log       *zap.Logger
	Directory tenantdomain.Directory
}

func NewResolver(p ResolverParam) tenantdomain.Resolver {
	return &resolver{
		log:       p.Log.Named("tenant.resolver"),
		directory: p.Directory,
	}
}

// Resolve normalizes the raw slug and looks it up in the directory. The
// returned value lives only for the current request.
func (r *resolver) Resolve(ctx context.Context, rawSlug string) (tenantctx.Tenant, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawSlug))
	if normalized == "" {
		return tenantctx.Tenant{}, tenantdomain.ErrNoSlug
	}
	if !gosimpleslug.IsSlug(normalized) {
		return tenantctx.Tenant{}, tenantdomain.ErrNotFound
	}

	tenant, err := r.directory.BySlug(ctx, normalized)
	if err != nil {
		return tenantctx.Tenant{}, err
	}
	if tenant == nil {
		return tenantctx.Tenant{}, tenantdomain.ErrNotFound
	}
	if !tenant.Active {
		r.log.Debug("inactive tenant requested", zap.String("slug", normalized))
		return tenantctx.Tenant{}, tenantdomain.ErrInactive
	}

	return tenantctx.Tenant{ID: tenant.ID, Slug: tenant.Slug}, nil
}
