package service

import (
	"context"
	"fmt"
	"time"

	"listing-service/internal/models"
	"listing-service/internal/store"
	"listing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const catalogCacheKey = "catalog:packages"

type catalogSnapshot struct {
	Packages []models.PackageOffer  `json:"packages"`
	Options  []models.PackageOption `json:"options"`
}

// Catalog serves read-only package data, cached in Redis as one JSON document
type Catalog struct {
	repo   store.Repository
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalog creates a package catalog reader
func NewCatalog(repo store.Repository, cache Cache, ttl time.Duration) *Catalog {
	return &Catalog{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Packages lists every package and option
func (c *Catalog) Packages(ctx context.Context) ([]models.PackageOffer, []models.PackageOption, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return snap.Packages, snap.Options, nil
}

// Package looks up an active package by id
func (c *Catalog) Package(ctx context.Context, id uuid.UUID) (*models.PackageOffer, error) {
	return c.packageByID(ctx, id, true)
}

// PurchasedPackage looks up a package a payment was already made for.
// Deactivation only stops new sales, so inactive packages are returned too.
func (c *Catalog) PurchasedPackage(ctx context.Context, id uuid.UUID) (*models.PackageOffer, error) {
	return c.packageByID(ctx, id, false)
}

func (c *Catalog) packageByID(ctx context.Context, id uuid.UUID, activeOnly bool) (*models.PackageOffer, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Packages {
		if snap.Packages[i].ID == id && (snap.Packages[i].IsActive || !activeOnly) {
			pkg := snap.Packages[i]
			return &pkg, nil
		}
	}
	return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package not found: %s", id), nil)
}

// PackageByCode looks up an active package by its code
func (c *Catalog) PackageByCode(ctx context.Context, code string) (*models.PackageOffer, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Packages {
		if snap.Packages[i].Code == code && snap.Packages[i].IsActive {
			pkg := snap.Packages[i]
			return &pkg, nil
		}
	}
	return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package not found: %s", code), nil)
}

// Option looks up a duration option by id
func (c *Catalog) Option(ctx context.Context, id uuid.UUID) (*models.PackageOption, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Options {
		if snap.Options[i].ID == id {
			opt := snap.Options[i]
			return &opt, nil
		}
	}
	return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package option not found: %s", id), nil)
}

func (c *Catalog) load(ctx context.Context) (*catalogSnapshot, error) {
	var snap catalogSnapshot
	hit, err := c.cache.GetJSON(ctx, catalogCacheKey, &snap)
	if err != nil {
		c.logger.Warn("Catalog cache read failed, using database", zap.Error(err))
	}
	if hit {
		return &snap, nil
	}

	packages, err := c.repo.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	options, err := c.repo.ListOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list package options: %w", err)
	}
	snap = catalogSnapshot{Packages: packages, Options: options}

	if err := c.cache.SetJSON(ctx, catalogCacheKey, &snap, c.ttl); err != nil {
		c.logger.Warn("Failed to cache catalog", zap.Error(err))
	}
	return &snap, nil
}
