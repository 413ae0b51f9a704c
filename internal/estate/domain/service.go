package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrHouseNotFound     = errors.New("house_not_found")
	ErrHouseTypeNotFound = errors.New("house_type_not_found")
	ErrResidentNotFound  = errors.New("resident_not_found")
)

// Service exposes the estate records billing consumes. Houses and residents
// are maintained elsewhere.
type Service interface {
	ListActiveHouses(ctx context.Context) ([]House, error)
	GetHouse(ctx context.Context, id snowflake.ID) (*House, error)
	GetHouseType(ctx context.Context, id snowflake.ID) (*HouseType, error)
	ListActiveLinks(ctx context.Context, houseID snowflake.ID) ([]ResidentHouseLink, error)
	GetResident(ctx context.Context, id snowflake.ID) (*Resident, error)
}
