package service

import (
	"fmt"

	"listing-service/internal/models"

	"github.com/google/uuid"
)

// PriceInput is everything the resolver needs. It is never read from storage
// inside ResolvePrice, so the same input always prices the same.
type PriceInput struct {
	Package *models.PackageOffer
	Option  *models.PackageOption
	// StandardPackage supplies the base fee for PER_DAY packages.
	StandardPackage *models.PackageOffer
	FirstPost       bool
	FreeCode        string
}

// PriceQuote is the payable amount plus what it was computed from
type PriceQuote struct {
	Amount       int64
	PackageID    uuid.UUID
	OptionID     *uuid.UUID
	DurationDays int
}

// ResolvePrice prices a package and optional duration option
func ResolvePrice(in PriceInput) (*PriceQuote, error) {
	if in.Package == nil {
		return nil, models.ErrPackageNotFound
	}

	if in.FirstPost && in.FreeCode != "" && in.Package.Code == in.FreeCode {
		return freeQuote(in), nil
	}

	quote := &PriceQuote{PackageID: in.Package.ID}

	switch in.Package.BillingMode {
	case models.BillingModeFixed:
		quote.Amount = in.Package.Price
		quote.DurationDays = in.Package.DurationDays
		if in.Option != nil {
			if in.Option.PackageID != in.Package.ID {
				return nil, models.ErrOptionMismatch
			}
			optionID := in.Option.ID
			quote.OptionID = &optionID
		}

	case models.BillingModePerDay:
		if in.Option == nil {
			return nil, models.ErrOptionRequired
		}
		if in.Option.PackageID != in.Package.ID {
			return nil, models.ErrOptionMismatch
		}
		if in.StandardPackage == nil {
			return nil, models.NewDomainError(models.ErrCodePackageNotFound, "standard package required for base fee", nil)
		}
		optionID := in.Option.ID
		quote.OptionID = &optionID
		quote.Amount = in.Option.Price + in.StandardPackage.Price
		quote.DurationDays = in.Option.DurationDays

	default:
		return nil, models.NewDomainError(models.ErrCodeInternal,
			fmt.Sprintf("unknown billing mode %q on package %s", in.Package.BillingMode, in.Package.Code), nil)
	}

	return quote, nil
}

// freeQuote waives the free tier on a seller's first post whatever the option
func freeQuote(in PriceInput) *PriceQuote {
	quote := &PriceQuote{PackageID: in.Package.ID, DurationDays: in.Package.DurationDays}
	if in.Option != nil && in.Option.PackageID == in.Package.ID {
		optionID := in.Option.ID
		quote.OptionID = &optionID
		quote.DurationDays = in.Option.DurationDays
	}
	return quote
}
