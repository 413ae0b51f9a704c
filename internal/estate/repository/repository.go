package repository

import (
	"github.com/smallbiznis/estatebill/internal/estate/domain"
	"github.com/smallbiznis/estatebill/pkg/repository"
	"gorm.io/gorm"
)

type Stores struct {
	Houses     repository.Repository[domain.House]
	HouseTypes repository.Repository[domain.HouseType]
	Links      repository.Repository[domain.ResidentHouseLink]
	Residents  repository.Repository[domain.Resident]
}

func Provide(db *gorm.DB) Stores {
	return Stores{
		Houses:     repository.ProvideStore[domain.House](db),
		HouseTypes: repository.ProvideStore[domain.HouseType](db),
		Links:      repository.ProvideStore[domain.ResidentHouseLink](db),
		Residents:  repository.ProvideStore[domain.Resident](db),
	}
}
