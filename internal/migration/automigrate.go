package migration

import (
	"fmt"

	approvaldomain "github.com/smallbiznis/estatebill/internal/approval/domain"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	billingprofiledomain "github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	generationdomain "github.com/smallbiznis/estatebill/internal/generation/domain"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	waiverdomain "github.com/smallbiznis/estatebill/internal/waiver/domain"
	walletdomain "github.com/smallbiznis/estatebill/internal/wallet/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the billing engine.
func Models() []any {
	return []any{
		&estatedomain.HouseType{},
		&estatedomain.House{},
		&estatedomain.Resident{},
		&estatedomain.ResidentHouseLink{},
		&billingprofiledomain.BillingProfile{},
		&billingprofiledomain.BillingItem{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&waiverdomain.LateFeeWaiver{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&generationdomain.GenerationLog{},
		&approvaldomain.Request{},
		&auditdomain.AuditLog{},
	}
}

// partialIndexes cannot be expressed through struct tags on every dialect.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_house_resident_period
		ON invoices(house_id, resident_id, period_start) WHERE is_correction = false`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_late_fee_waivers_pending
		ON late_fee_waivers(invoice_id) WHERE status = 'pending'`,
}

// generatedUnique stands in for a partial unique index on MySQL: a virtual
// column that is NULL outside the indexed predicate, with a UNIQUE index on it.
type generatedUnique struct {
	table  string
	column string
	ddl    string
	expr   string
	index  string
}

var mysqlGeneratedUniques = []generatedUnique{
	{
		table:  "invoices",
		column: "period_key",
		ddl:    "VARCHAR(96)",
		expr:   "IF(is_correction = 0, CONCAT(house_id, ':', resident_id, ':', DATE_FORMAT(period_start, '%Y-%m-%d')), NULL)",
		index:  "ux_invoices_house_resident_period",
	},
	{
		table:  "late_fee_waivers",
		column: "pending_invoice_id",
		ddl:    "BIGINT",
		expr:   "IF(status = 'pending', invoice_id, NULL)",
		index:  "ux_late_fee_waivers_pending",
	},
}

func (g generatedUnique) columnSQL() string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s AS (%s) VIRTUAL", g.table, g.column, g.ddl, g.expr)
}

func (g generatedUnique) indexSQL() string {
	return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s(%s)", g.index, g.table, g.column)
}

// AutoMigrate builds the schema from the models for sqlite and mysql
// deployments and tests, then adds the uniqueness rules struct tags cannot
// carry.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if db.Dialector.Name() == "mysql" {
		return migrateMySQLUniques(db)
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func migrateMySQLUniques(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, g := range mysqlGeneratedUniques {
		if !migrator.HasColumn(g.table, g.column) {
			if err := db.Exec(g.columnSQL()).Error; err != nil {
				return fmt.Errorf("add %s.%s: %w", g.table, g.column, err)
			}
		}
		if !migrator.HasIndex(g.table, g.index) {
			if err := db.Exec(g.indexSQL()).Error; err != nil {
				return fmt.Errorf("create index %s: %w", g.index, err)
			}
		}
	}
	return nil
}
