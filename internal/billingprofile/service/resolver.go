package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type ResolverParams struct {
	fx.In

	DB     *gorm.DB
	Repo   domain.Repository
	Estate estatedomain.Service
}

type Resolver struct {
	db     *gorm.DB
	repo   domain.Repository
	estate estatedomain.Service
}

func NewResolver(p ResolverParams) domain.Resolver {
	return &Resolver{db: p.DB, repo: p.Repo, estate: p.Estate}
}

// Resolve prefers the house override over the house type default. Only
// active profiles targeted at houses are returned.
func (r *Resolver) Resolve(ctx context.Context, house estatedomain.House) (*domain.Resolved, error) {
	profileID := house.BillingProfileID
	if profileID == nil && house.HouseTypeID != nil {
		houseType, err := r.estate.GetHouseType(ctx, *house.HouseTypeID)
		switch {
		case errors.Is(err, estatedomain.ErrHouseTypeNotFound):
		case err != nil:
			return nil, fmt.Errorf("fetch house type: %w", err)
		default:
			profileID = houseType.BillingProfileID
		}
	}
	if profileID == nil {
		return nil, domain.ErrNoProfileAssigned
	}

	profile, err := r.repo.FindProfile(ctx, r.db, *profileID)
	if err != nil {
		return nil, fmt.Errorf("fetch billing profile: %w", err)
	}
	if profile == nil || !profile.IsActive {
		return nil, domain.ErrProfileNotFound
	}
	if profile.TargetType != domain.TargetTypeHouse {
		return nil, domain.ErrProfileTargetMismatch
	}

	items, err := r.repo.ListItems(ctx, r.db, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch billing items: %w", err)
	}
	return &domain.Resolved{Profile: *profile, Items: items}, nil
}
