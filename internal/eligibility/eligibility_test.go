package eligibility

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func link(residentID int64, role estatedomain.ResidentRole, active bool) estatedomain.ResidentHouseLink {
	return estatedomain.ResidentHouseLink{
		ResidentID: snowflake.ID(residentID),
		Role:       role,
		IsActive:   active,
	}
}

func TestSelectBillableResidentPriority(t *testing.T) {
	links := []estatedomain.ResidentHouseLink{
		link(1, estatedomain.RoleNonResidentLandlord, true),
		link(2, estatedomain.RoleResidentLandlord, true),
		link(3, estatedomain.RoleTenant, true),
	}

	selected, err := SelectBillableResident(links, true)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(3), selected.ResidentID)

	selected, err = SelectBillableResident(links[:2], false)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), selected.ResidentID)
}

func TestSelectBillableResidentVacantPolicy(t *testing.T) {
	links := []estatedomain.ResidentHouseLink{
		link(1, estatedomain.RoleNonResidentLandlord, true),
		link(2, estatedomain.RoleTenant, false),
	}

	_, err := SelectBillableResident(links, false)
	assert.ErrorIs(t, err, ErrNoBillableResident)

	selected, err := SelectBillableResident(links, true)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), selected.ResidentID)
}

func TestSelectBillableResidentNoLinks(t *testing.T) {
	_, err := SelectBillableResident(nil, true)
	assert.ErrorIs(t, err, ErrNoBillableResident)
}

func TestPeriodFor(t *testing.T) {
	period, err := PeriodFor(time.Date(2026, time.February, 17, 13, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), period.Start)
	assert.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), period.End)
	assert.Equal(t, time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), period.DueDate)
	assert.Equal(t, "202602", period.Key())

	period, err = PeriodFor(time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC), 15)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), period.End)
	assert.Equal(t, time.Date(2024, time.December, 16, 0, 0, 0, 0, time.UTC), period.DueDate)
}

func TestPeriodForRejectsNonPositiveWindow(t *testing.T) {
	_, err := PeriodFor(time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidDueWindow)
}
