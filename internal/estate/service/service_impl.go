package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/estate/domain"
	"github.com/smallbiznis/estatebill/internal/estate/repository"
	"github.com/smallbiznis/estatebill/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Stores repository.Stores
}

type Service struct {
	log    *zap.Logger
	stores repository.Stores
}

func NewService(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("estate.service"),
		stores: p.Stores,
	}
}

func (s *Service) ListActiveHouses(ctx context.Context) ([]domain.House, error) {
	rows, err := s.stores.Houses.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}),
		option.WithOrder("house_number asc"),
	)
	if err != nil {
		return nil, err
	}
	return deref(rows), nil
}

func (s *Service) GetHouse(ctx context.Context, id snowflake.ID) (*domain.House, error) {
	house, err := s.stores.Houses.FindOne(ctx, &domain.House{ID: id})
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, domain.ErrHouseNotFound
	}
	return house, nil
}

func (s *Service) GetHouseType(ctx context.Context, id snowflake.ID) (*domain.HouseType, error) {
	houseType, err := s.stores.HouseTypes.FindOne(ctx, &domain.HouseType{ID: id})
	if err != nil {
		return nil, err
	}
	if houseType == nil {
		return nil, domain.ErrHouseTypeNotFound
	}
	return houseType, nil
}

func (s *Service) ListActiveLinks(ctx context.Context, houseID snowflake.ID) ([]domain.ResidentHouseLink, error) {
	rows, err := s.stores.Links.Find(ctx, &domain.ResidentHouseLink{HouseID: houseID},
		option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}),
		option.WithOrder("created_at asc, id asc"),
	)
	if err != nil {
		return nil, err
	}
	return deref(rows), nil
}

func (s *Service) GetResident(ctx context.Context, id snowflake.ID) (*domain.Resident, error) {
	resident, err := s.stores.Residents.FindOne(ctx, &domain.Resident{ID: id})
	if err != nil {
		return nil, err
	}
	if resident == nil {
		return nil, domain.ErrResidentNotFound
	}
	return resident, nil
}

func deref[T any](rows []*T) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out
}
