package service_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	auditrepository "github.com/smallbiznis/vetbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/vetbill/internal/audit/service"
	clientdomain "github.com/smallbiznis/vetbill/internal/client/domain"
	clientrepository "github.com/smallbiznis/vetbill/internal/client/repository"
	clientservice "github.com/smallbiznis/vetbill/internal/client/service"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/config"
	fiscaldomain "github.com/smallbiznis/vetbill/internal/fiscal/domain"
	fiscalservice "github.com/smallbiznis/vetbill/internal/fiscal/service"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	inventoryrepository "github.com/smallbiznis/vetbill/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/vetbill/internal/inventory/service"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/vetbill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/vetbill/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/vetbill/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/vetbill/internal/ledger/service"
	"github.com/smallbiznis/vetbill/internal/lock"
	"github.com/smallbiznis/vetbill/internal/migration"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	repo      invoicedomain.Repository
	svc       invoicedomain.Service
	clients   clientdomain.Service
	inventory inventorydomain.Service
	ledger    ledgerdomain.Service
	audit     auditdomain.Service
	clientID  string
}

type harnessOption func(*invoiceservice.ServiceParam)

func withRepo(wrap func(invoicedomain.Repository) invoicedomain.Repository) harnessOption {
	return func(p *invoiceservice.ServiceParam) { p.Repo = wrap(p.Repo) }
}

func withInventory(wrap func(invoicedomain.InventoryLedger) invoicedomain.InventoryLedger) harnessOption {
	return func(p *invoiceservice.ServiceParam) { p.Inventory = wrap(p.Inventory) }
}

func withIssuer(issuer invoicedomain.ReceiptIssuer) harnessOption {
	return func(p *invoiceservice.ServiceParam) { p.Issuer = issuer }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testStart)
	log := zap.NewNop()
	require.NoError(t, ledgerservice.EnsureChartOfAccounts(ctx, db, node, clk.Now()))

	clients := clientservice.New(clientservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: clientrepository.Provide()})
	inventory := inventoryservice.New(inventoryservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: inventoryrepository.Provide()})
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: clk})
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide()})

	cfg := config.Config{Ekasa: config.EkasaConfig{CashRegisterCode: "88812345678900001", SigningKey: "test-key"}}
	issuer, err := fiscalservice.NewIssuer(cfg, log)
	require.NoError(t, err)

	repo := invoicerepository.Provide()
	params := invoiceservice.ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       repo,
		Clients:    clients,
		Inventory:  inventory,
		Issuer:     issuer,
		Locker:     lock.NewKeyedMutex(5 * time.Second),
		LedgerSvc:  ledger,
		BillingCfg: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		AuditSvc:   audit,
	}
	for _, opt := range opts {
		opt(&params)
	}

	client, err := clients.Create(ctx, clientdomain.CreateClientRequest{Name: "Nina Novak", Email: "nina@example.com"})
	require.NoError(t, err)

	return &harness{
		db:        db,
		clock:     clk,
		repo:      repo,
		svc:       invoiceservice.NewService(params),
		clients:   clients,
		inventory: inventory,
		ledger:    ledger,
		audit:     audit,
		clientID:  client.ID,
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func money(t *testing.T, value string) invoicedomain.Money {
	t.Helper()
	m, err := invoicedomain.ParseMoney(value)
	require.NoError(t, err)
	return m
}

func lineInput(t *testing.T, description, qty, price, vat string) invoicedomain.LineInput {
	t.Helper()
	return invoicedomain.LineInput{
		Description: description,
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   money(t, price),
		VATRate:     decimal.RequireFromString(vat),
	}
}

func itemLine(t *testing.T, itemID, description, qty, price string) invoicedomain.LineInput {
	t.Helper()
	in := lineInput(t, description, qty, price, "0.2")
	in.ItemID = &itemID
	return in
}

// scenarioA creates the two-line draft totalling 108.00.
func (h *harness) scenarioA(t *testing.T) invoicedomain.Invoice {
	t.Helper()
	inv, err := h.svc.CreateDraft(context.Background(), invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			lineInput(t, "Consultation", "2", "25", "0.2"),
			lineInput(t, "Syringe", "100", "0.4", "0.2"),
		},
	})
	require.NoError(t, err)
	return inv
}

func (h *harness) approved(t *testing.T) invoicedomain.Invoice {
	t.Helper()
	inv := h.scenarioA(t)
	result, err := h.svc.Approve(context.Background(), inv.ID.String())
	require.NoError(t, err)
	return result.Invoice
}

func (h *harness) stock(t *testing.T, itemID string) decimal.Decimal {
	t.Helper()
	item, err := h.inventory.GetByID(context.Background(), itemID)
	require.NoError(t, err)
	return item.StockOnHand
}

func (h *harness) balance(t *testing.T, code ledgerdomain.LedgerAccountCode) int64 {
	t.Helper()
	balance, err := h.ledger.AccountBalance(context.Background(), code)
	require.NoError(t, err)
	return balance
}

// conflictingRepo reports a version conflict for the first n updates.
type conflictingRepo struct {
	invoicedomain.Repository
	remaining atomic.Int32
}

func (r *conflictingRepo) Update(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice, expectedVersion int64) error {
	if r.remaining.Add(-1) >= 0 {
		return invoicedomain.ErrVersionConflict
	}
	return r.Repository.Update(ctx, db, invoice, expectedVersion)
}

// failingInventory counts calls and can fail deductions for one item.
type failingInventory struct {
	invoicedomain.InventoryLedger
	failItem string
	calls    atomic.Int32
}

func (f *failingInventory) Deduct(ctx context.Context, itemID string, delta decimal.Decimal) (inventorydomain.Item, error) {
	f.calls.Add(1)
	if itemID == f.failItem && delta.IsNegative() {
		return inventorydomain.Item{}, fmt.Errorf("inventory unavailable")
	}
	return f.InventoryLedger.Deduct(ctx, itemID, delta)
}

type failingIssuer struct{}

func (failingIssuer) Issue(context.Context, fiscaldomain.IssueRequest) (fiscaldomain.Issuance, error) {
	return fiscaldomain.Issuance{}, fmt.Errorf("cash register offline")
}
