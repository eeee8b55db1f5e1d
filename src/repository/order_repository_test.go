package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"strategyvault/src/model"
)

func TestOrderRepositorySearch(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	createdAt := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	orderRows := func(ids ...string) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "maker", "maker_asset", "taker_asset", "strategy_type", "status", "created_at"})
		for i, id := range ids {
			rows.AddRow(id, "maker-1", "WETH", "USDC", "twap", "active", createdAt.Add(time.Duration(i)*time.Hour))
		}
		return rows
	}

	t.Run("filters by maker", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "strategy_orders" WHERE maker = $1 ORDER BY created_at DESC, id DESC`)).
			WithArgs("maker-1").
			WillReturnRows(orderRows("ord-2", "ord-1"))

		results, err := repo.Search(context.Background(), OrderSearchOptions{Maker: "maker-1"})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(results))
		}
		if results[0].ID != "ord-2" || results[1].ID != "ord-1" {
			t.Fatalf("orders not returned in expected order: %+v", results)
		}
	})

	t.Run("filters by strategy and status", func(t *testing.T) {
		strategy := "grid"
		status := "paused"

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "strategy_orders" WHERE maker = $1 AND strategy_type = $2 AND status = $3 ORDER BY created_at DESC, id DESC`)).
			WithArgs("maker-1", strategy, status).
			WillReturnRows(orderRows("ord-3"))

		results, err := repo.Search(context.Background(), OrderSearchOptions{
			Maker:        "maker-1",
			StrategyType: &strategy,
			Status:       &status,
		})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}
		if len(results) != 1 || results[0].ID != "ord-3" {
			t.Fatalf("unexpected results: %+v", results)
		}
	})

	t.Run("applies pagination", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "strategy_orders" WHERE maker = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`)).
			WithArgs("maker-1", 1, 1).
			WillReturnRows(orderRows("ord-1"))

		results, err := repo.Search(context.Background(), OrderSearchOptions{Maker: "maker-1", Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 order for pagination, got %d", len(results))
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryFindActiveIDs(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "strategy_orders" WHERE status = $1 ORDER BY created_at ASC LIMIT $2`)).
		WithArgs(model.OrderStatusActive, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ord-1").AddRow("ord-2"))

	ids, err := repo.FindActiveIDs(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error listing active ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "ord-1" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryFindByIDNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "strategy_orders" WHERE id = $1 ORDER BY "strategy_orders"."id" LIMIT $2`)).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.FindByID(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var sqliteSeq atomic.Int64

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:repository_test_%d?mode=memory&cache=shared", sqliteSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}

	err = db.AutoMigrate(
		&model.StrategyOrder{},
		&model.OrderExecution{},
		&model.GridLevel{},
		&model.ConditionalParams{},
	)
	if err != nil {
		t.Fatalf("failed to migrate sqlite db: %v", err)
	}

	return db
}

func sampleOrder(id string) *model.StrategyOrder {
	return &model.StrategyOrder{
		ID:              id,
		Maker:           "maker-1",
		MakerAsset:      "WETH",
		TakerAsset:      "USDC",
		StrategyType:    model.StrategyTWAP,
		Status:          model.OrderStatusActive,
		TotalAmount:     decimal.NewFromInt(1000),
		RemainingAmount: decimal.NewFromInt(1000),
	}
}

func TestOrderRepositoryCreateDuplicateID(t *testing.T) {
	repo := NewOrderRepository().WithDB(newSQLiteDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, sampleOrder("dup-1"), nil, nil); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := repo.Create(ctx, sampleOrder("dup-1"), nil, nil); !errors.Is(err, model.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestOrderRepositoryCreatePersistsSideRecords(t *testing.T) {
	repo := NewOrderRepository().WithDB(newSQLiteDB(t))
	ctx := context.Background()

	order := sampleOrder("side-1")
	order.StrategyType = model.StrategyConditional

	grid := []model.GridLevel{
		{Level: 0, TargetPrice: decimal.NewFromInt(1000)},
		{Level: 1, TargetPrice: decimal.NewFromInt(1300)},
	}
	cond := &model.ConditionalParams{
		OracleKind:   model.OracleKindStatic,
		TriggerPrice: decimal.NewFromInt(1500),
		TriggerAbove: true,
	}

	if err := repo.Create(ctx, order, grid, cond); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	levels, err := repo.GridByOrderID(ctx, "side-1")
	if err != nil {
		t.Fatalf("failed to load ladder: %v", err)
	}
	if len(levels) != 2 || levels[0].OrderID != "side-1" {
		t.Fatalf("ladder not persisted with the order: %+v", levels)
	}

	found, err := repo.FindByID(ctx, "side-1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Conditional == nil || !found.Conditional.TriggerPrice.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("conditional params not preloaded: %+v", found.Conditional)
	}
}

func TestOrderRepositoryMutate(t *testing.T) {
	repo := NewOrderRepository().WithDB(newSQLiteDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, sampleOrder("mut-1"), nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := repo.Mutate(ctx, "mut-1", func(tx *gorm.DB, order *model.StrategyOrder) error {
		order.Status = model.OrderStatusPaused
		return nil
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	found, err := repo.FindByID(ctx, "mut-1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Status != model.OrderStatusPaused {
		t.Fatalf("mutation not persisted, status %s", found.Status)
	}

	if err := repo.Mutate(ctx, "missing", func(tx *gorm.DB, order *model.StrategyOrder) error {
		return nil
	}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderRepositoryMutateRollsBackOnError(t *testing.T) {
	repo := NewOrderRepository().WithDB(newSQLiteDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, sampleOrder("mut-2"), nil, nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	boom := errors.New("boom")
	err := repo.Mutate(ctx, "mut-2", func(tx *gorm.DB, order *model.StrategyOrder) error {
		order.Status = model.OrderStatusPaused
		if err := AppendExecution(tx, &model.OrderExecution{OrderID: "mut-2"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to surface, got %v", err)
	}

	found, err := repo.FindByID(ctx, "mut-2")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Status != model.OrderStatusActive {
		t.Fatalf("failed mutation must roll back, status %s", found.Status)
	}

	execs, err := repo.ExecutionsByOrderID(ctx, "mut-2")
	if err != nil {
		t.Fatalf("failed to list executions: %v", err)
	}
	if len(execs) != 0 {
		t.Fatalf("writes inside a failed mutation must roll back, got %d rows", len(execs))
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}
