package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/authorization/authztest"
	billingprofiledomain "github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	billingprofilerepository "github.com/smallbiznis/estatebill/internal/billingprofile/repository"
	billingprofileservice "github.com/smallbiznis/estatebill/internal/billingprofile/service"
	"github.com/smallbiznis/estatebill/internal/clock"
	"github.com/smallbiznis/estatebill/internal/dbtest"
	"github.com/smallbiznis/estatebill/internal/eligibility"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	estaterepository "github.com/smallbiznis/estatebill/internal/estate/repository"
	estateservice "github.com/smallbiznis/estatebill/internal/estate/service"
	"github.com/smallbiznis/estatebill/internal/generation/domain"
	"github.com/smallbiznis/estatebill/internal/generation/repository"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/estatebill/internal/invoice/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var january = time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	authz authorization.Service
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	authz := authztest.NewService(t)
	clk := clock.NewFakeClock(time.Date(2026, time.February, 1, 6, 0, 0, 0, time.UTC))
	estate := estateservice.NewService(estateservice.Params{Log: zap.NewNop(), Stores: estaterepository.Provide(db)})
	resolver := billingprofileservice.NewResolver(billingprofileservice.ResolverParams{
		DB:     db,
		Repo:   billingprofilerepository.Provide(),
		Estate: estate,
	})
	return &fixture{
		db:    db,
		node:  node,
		authz: authz,
		clock: clk,
		svc: NewService(Params{
			DB:          db,
			Log:         zap.NewNop(),
			GenID:       node,
			Repo:        repository.Provide(),
			InvoiceRepo: invoicerepository.Provide(),
			Resolver:    resolver,
			Estate:      estate,
			Authz:       authz,
			Clock:       clk,
		}),
	}
}

func defaultOptions() domain.Options {
	return domain.Options{
		Target:        january,
		TriggerType:   domain.TriggerManual,
		DueWindowDays: 30,
	}
}

func (f *fixture) profile(t *testing.T, target billingprofiledomain.TargetType, levy bool, items map[string]int64) snowflake.ID {
	t.Helper()
	profile := billingprofiledomain.BillingProfile{
		ID:                f.node.Generate(),
		Name:              "Standard Residential",
		TargetType:        target,
		IsDevelopmentLevy: levy,
		EffectiveDate:     time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		IsActive:          true,
	}
	require.NoError(t, f.db.Create(&profile).Error)
	position := 0
	for _, name := range []string{"Security Levy", "Estate Maintenance", "Waste"} {
		amount, ok := items[name]
		if !ok {
			continue
		}
		require.NoError(t, f.db.Create(&billingprofiledomain.BillingItem{
			ID:               f.node.Generate(),
			BillingProfileID: profile.ID,
			Name:             name,
			Amount:           decimal.NewFromInt(amount),
			Frequency:        "monthly",
			IsMandatory:      name != "Waste",
			Position:         position,
		}).Error)
		position++
	}
	return profile.ID
}

func (f *fixture) houseType(t *testing.T, profileID *snowflake.ID) snowflake.ID {
	t.Helper()
	houseType := estatedomain.HouseType{ID: f.node.Generate(), Name: "Terrace", BillingProfileID: profileID}
	require.NoError(t, f.db.Create(&houseType).Error)
	return houseType.ID
}

func (f *fixture) house(t *testing.T, number string, houseTypeID, override *snowflake.ID) estatedomain.House {
	t.Helper()
	house := estatedomain.House{
		ID:               f.node.Generate(),
		HouseNumber:      number,
		HouseTypeID:      houseTypeID,
		BillingProfileID: override,
		IsActive:         true,
	}
	require.NoError(t, f.db.Create(&house).Error)
	return house
}

func (f *fixture) link(t *testing.T, houseID snowflake.ID, role estatedomain.ResidentRole) snowflake.ID {
	t.Helper()
	resident := estatedomain.Resident{ID: f.node.Generate(), FullName: "Ada Obi"}
	require.NoError(t, f.db.Create(&resident).Error)
	require.NoError(t, f.db.Create(&estatedomain.ResidentHouseLink{
		ID:         f.node.Generate(),
		ResidentID: resident.ID,
		HouseID:    houseID,
		Role:       role,
		IsActive:   true,
	}).Error)
	return resident.ID
}

func skipsByHouse(summary *domain.RunSummary) map[string]string {
	out := map[string]string{}
	for _, skip := range summary.Skips() {
		out[skip.HouseNumber] = skip.Reason
	}
	return out
}

func TestRunGeneratesInvoiceFromHouseTypeProfile(t *testing.T) {
	f := newFixture(t)
	profileID := f.profile(t, billingprofiledomain.TargetTypeHouse, false, map[string]int64{
		"Security Levy":      15000,
		"Estate Maintenance": 10000,
	})
	typeID := f.houseType(t, &profileID)
	house := f.house(t, "A12", &typeID, nil)
	tenantID := f.link(t, house.ID, estatedomain.RoleTenant)

	summary, err := f.svc.Run(authztest.System(), defaultOptions())
	require.NoError(t, err)
	require.Len(t, summary.Generated, 1)
	assert.Equal(t, 1, summary.Log.GeneratedCount)
	assert.Zero(t, summary.Log.SkippedCount)
	assert.Zero(t, summary.Log.ErrorCount)
	assert.Equal(t, "202601", summary.Log.TargetPeriod)

	var invoice invoicedomain.Invoice
	require.NoError(t, f.db.Where("house_id = ?", house.ID).First(&invoice).Error)
	assert.Equal(t, "INV-202601-A12", invoice.InvoiceNumber)
	assert.Equal(t, tenantID, invoice.ResidentID)
	assert.True(t, invoice.AmountDue.Equal(decimal.NewFromInt(25000)), invoice.AmountDue.String())
	assert.True(t, invoice.AmountPaid.IsZero())
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, invoice.Status)
	assert.Equal(t, invoicedomain.InvoiceTypeServiceCharge, invoice.InvoiceType)
	assert.True(t, invoice.PeriodStart.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, invoice.PeriodEnd.Equal(time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, invoice.DueDate.Equal(time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)))

	snapshot := invoice.RateSnapshot.Data()
	assert.Equal(t, "Standard Residential", snapshot.ProfileName)
	require.Len(t, snapshot.Items, 2)
	assert.Equal(t, "Security Levy", snapshot.Items[0].Name)

	var items []invoicedomain.InvoiceItem
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Order("position asc").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, "Security Levy", items[0].Description)
	assert.Equal(t, "Estate Maintenance", items[1].Description)

	var logs []domain.GenerationLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, summary.Log.ID, logs[0].ID)
}

func TestRunTwiceReportsDuplicatePeriod(t *testing.T) {
	f := newFixture(t)
	profileID := f.profile(t, billingprofiledomain.TargetTypeHouse, false, map[string]int64{"Security Levy": 15000})
	house := f.house(t, "B3", nil, &profileID)
	f.link(t, house.ID, estatedomain.RoleResidentLandlord)

	first, err := f.svc.Run(authztest.System(), defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Log.GeneratedCount)

	f.clock.Advance(time.Hour)
	second, err := f.svc.Run(authztest.System(), defaultOptions())
	require.NoError(t, err)
	assert.Zero(t, second.Log.GeneratedCount)
	assert.Equal(t, 1, second.Log.SkippedCount)
	assert.Equal(t, map[string]string{"B3": domain.SkipDuplicatePeriod}, skipsByHouse(second))

	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	logs, err := f.svc.ListLogs(context.Background(), domain.ListLogsRequest{TargetPeriod: "202601"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.Log.ID, logs[0].ID)
}

func TestRunRecordsSkipReasons(t *testing.T) {
	f := newFixture(t)
	houseProfile := f.profile(t, billingprofiledomain.TargetTypeHouse, false, map[string]int64{"Security Levy": 15000})
	residentProfile := f.profile(t, billingprofiledomain.TargetTypeResident, false, map[string]int64{"Security Levy": 15000})
	zeroProfile := f.profile(t, billingprofiledomain.TargetTypeHouse, false, map[string]int64{"Waste": 0})
	missing := f.node.Generate()
	emptyType := f.houseType(t, nil)

	unassigned := f.house(t, "C1", &emptyType, nil)
	f.link(t, unassigned.ID, estatedomain.RoleTenant)

	notFound := f.house(t, "C2", nil, &missing)
	f.link(t, notFound.ID, estatedomain.RoleTenant)

	mismatch := f.house(t, "C3", nil, &residentProfile)
	f.link(t, mismatch.ID, estatedomain.RoleTenant)

	vacant := f.house(t, "C4", nil, &houseProfile)
	f.link(t, vacant.ID, estatedomain.RoleNonResidentLandlord)

	zero := f.house(t, "C5", nil, &zeroProfile)
	f.link(t, zero.ID, estatedomain.RoleTenant)

	inactive := f.house(t, "C6", nil, &houseProfile)
	f.link(t, inactive.ID, estatedomain.RoleTenant)
	require.NoError(t, f.db.Model(&estatedomain.House{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	summary, err := f.svc.Run(authztest.System(), defaultOptions())
	require.NoError(t, err)
	assert.Zero(t, summary.Log.GeneratedCount)
	assert.Equal(t, 5, summary.Log.SkippedCount)
	assert.Equal(t, map[string]string{
		"C1": domain.SkipNoProfileAssigned,
		"C2": domain.SkipProfileNotFound,
		"C3": domain.SkipProfileTargetMismatch,
		"C4": domain.SkipNoBillableResident,
		"C5": domain.SkipZeroAmount,
	}, skipsByHouse(summary))

	var stored domain.GenerationLog
	require.NoError(t, f.db.First(&stored, "id = ?", summary.Log.ID).Error)
	assert.Len(t, stored.SkipReasons.Data(), 5)
}

func TestRunBillsVacantHouseWhenEnabled(t *testing.T) {
	f := newFixture(t)
	levy := f.profile(t, billingprofiledomain.TargetTypeHouse, true, map[string]int64{
		"Security Levy": 50000,
		"Waste":         2500,
	})
	house := f.house(t, "D9", nil, &levy)
	landlordID := f.link(t, house.ID, estatedomain.RoleNonResidentLandlord)

	opts := defaultOptions()
	opts.BillVacantHouses = true
	summary, err := f.svc.Run(authztest.System(), opts)
	require.NoError(t, err)
	require.Len(t, summary.Generated, 1)
	assert.Equal(t, landlordID.String(), summary.Generated[0].ResidentID)
	assert.True(t, summary.Generated[0].AmountDue.Equal(decimal.NewFromInt(52500)))

	var invoice invoicedomain.Invoice
	require.NoError(t, f.db.First(&invoice, "house_id = ?", house.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceTypeDevelopmentLevy, invoice.InvoiceType)
}

func TestRunContinuesPastWriteErrors(t *testing.T) {
	f := newFixture(t)
	profileID := f.profile(t, billingprofiledomain.TargetTypeHouse, false, map[string]int64{"Security Levy": 15000})
	broken := f.house(t, "E1", nil, &profileID)
	f.link(t, broken.ID, estatedomain.RoleTenant)
	healthy := f.house(t, "E2", nil, &profileID)
	f.link(t, healthy.ID, estatedomain.RoleTenant)

	// occupies E1's January number under another period
	february := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:            f.node.Generate(),
		ResidentID:    f.node.Generate(),
		HouseID:       broken.ID,
		InvoiceNumber: "INV-202601-E1",
		AmountDue:     decimal.NewFromInt(100),
		AmountPaid:    decimal.Zero,
		Status:        invoicedomain.InvoiceStatusUnpaid,
		InvoiceType:   invoicedomain.InvoiceTypeServiceCharge,
		DueDate:       february,
		PeriodStart:   february,
		PeriodEnd:     february.AddDate(0, 1, -1),
		RateSnapshot:  datatypes.NewJSONType(invoicedomain.RateSnapshot{}),
		CreatedAt:     february,
		UpdatedAt:     february,
	}).Error)

	summary, err := f.svc.Run(authztest.System(), defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Log.GeneratedCount)
	assert.Equal(t, 1, summary.Log.ErrorCount)
	require.Len(t, summary.Errors(), 1)
	assert.Equal(t, "E1", summary.Errors()[0].HouseNumber)
	assert.Equal(t, "E2", summary.Generated[0].HouseNumber)

	var items int64
	require.NoError(t, f.db.Model(&invoicedomain.InvoiceItem{}).Count(&items).Error)
	assert.EqualValues(t, 1, items, "failed invoice must not leave items behind")
}

func TestRunValidatesOptionsAndPermissions(t *testing.T) {
	f := newFixture(t)

	ctx := authztest.As(t, f.authz, "7", authorization.RoleResident)
	_, err := f.svc.Run(ctx, defaultOptions())
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	opts := defaultOptions()
	opts.DueWindowDays = 0
	_, err = f.svc.Run(authztest.System(), opts)
	assert.ErrorIs(t, err, eligibility.ErrInvalidDueWindow)

	opts = defaultOptions()
	opts.TriggerType = "cron"
	_, err = f.svc.Run(authztest.System(), opts)
	assert.ErrorIs(t, err, domain.ErrInvalidTrigger)

	opts = defaultOptions()
	opts.Target = time.Time{}
	_, err = f.svc.Run(authztest.System(), opts)
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
}
