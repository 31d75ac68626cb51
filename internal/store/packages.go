package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"listing-service/internal/models"

	"github.com/google/uuid"
)

const packageColumns = "id, code, name, billing_mode, duration_days, price, is_featured, is_active"

// GetPackage retrieves a package offer by ID
func (s *Store) GetPackage(ctx context.Context, id uuid.UUID) (*models.PackageOffer, error) {
	var pkg models.PackageOffer
	err := s.q.GetContext(ctx, &pkg, "SELECT "+packageColumns+" FROM package_offers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package not found: %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return &pkg, nil
}

// GetPackageByCode retrieves a package offer by its catalog code
func (s *Store) GetPackageByCode(ctx context.Context, code string) (*models.PackageOffer, error) {
	var pkg models.PackageOffer
	err := s.q.GetContext(ctx, &pkg, "SELECT "+packageColumns+" FROM package_offers WHERE code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package not found: %s", code), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package by code: %w", err)
	}
	return &pkg, nil
}

// GetOption retrieves a duration option by ID
func (s *Store) GetOption(ctx context.Context, id uuid.UUID) (*models.PackageOption, error) {
	var opt models.PackageOption
	err := s.q.GetContext(ctx, &opt,
		"SELECT id, package_id, duration_days, price FROM package_options WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDomainError(models.ErrCodePackageNotFound, fmt.Sprintf("package option not found: %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package option: %w", err)
	}
	return &opt, nil
}

// ListPackages retrieves all package offers
func (s *Store) ListPackages(ctx context.Context) ([]models.PackageOffer, error) {
	var pkgs []models.PackageOffer
	err := s.q.SelectContext(ctx, &pkgs, "SELECT "+packageColumns+" FROM package_offers ORDER BY code")
	return pkgs, err
}

// ListOptions retrieves all duration options
func (s *Store) ListOptions(ctx context.Context) ([]models.PackageOption, error) {
	var opts []models.PackageOption
	err := s.q.SelectContext(ctx, &opts,
		"SELECT id, package_id, duration_days, price FROM package_options ORDER BY package_id, duration_days")
	return opts, err
}
