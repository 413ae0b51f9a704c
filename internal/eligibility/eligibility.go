// Package eligibility picks the billable occupant of a house and the
// invoice period for a target month.
package eligibility

import (
	"errors"
	"time"

	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
)

var (
	ErrNoBillableResident = errors.New("no_billable_resident")
	ErrInvalidDueWindow   = errors.New("invalid_due_window")
)

// Period is the UTC billing window for one calendar month. End is the last
// day of the month at midnight.
type Period struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	DueDate time.Time `json:"due_date"`
}

// Key formats the period as YYYYMM.
func (p Period) Key() string {
	return p.Start.Format("200601")
}

var rolePriority = []estatedomain.ResidentRole{
	estatedomain.RoleTenant,
	estatedomain.RoleResidentLandlord,
}

// SelectBillableResident prefers a tenant, then an owner-occupier, then a
// non-resident landlord when billVacant is set. Inactive links never qualify.
func SelectBillableResident(links []estatedomain.ResidentHouseLink, billVacant bool) (estatedomain.ResidentHouseLink, error) {
	roles := rolePriority
	if billVacant {
		roles = append(append([]estatedomain.ResidentRole{}, rolePriority...), estatedomain.RoleNonResidentLandlord)
	}
	for _, role := range roles {
		for _, link := range links {
			if link.IsActive && link.Role == role {
				return link, nil
			}
		}
	}
	return estatedomain.ResidentHouseLink{}, ErrNoBillableResident
}

// PeriodFor returns [first day, last day] of the month holding target and
// a due date dueWindowDays after the period start.
func PeriodFor(target time.Time, dueWindowDays int) (Period, error) {
	if dueWindowDays <= 0 {
		return Period{}, ErrInvalidDueWindow
	}
	target = target.UTC()
	start := time.Date(target.Year(), target.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Period{
		Start:   start,
		End:     end,
		DueDate: start.AddDate(0, 0, dueWindowDays),
	}, nil
}
