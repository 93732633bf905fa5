package orders

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// One database is shared by every Repo test; each test starts from empty tables.
// TEST_POSTGRES_DSN points the suite at an existing server instead of a container.
var (
	pgOnce sync.Once
	pgPool *pgxpool.Pool
	pgErr  error
)

func startPostgres(ctx context.Context) (pool *pgxpool.Pool, err error) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		defer func() {
			// older docker setups make the provider panic instead of returning an error
			if r := recover(); r != nil {
				err = fmt.Errorf("docker: %v", r)
			}
		}()
		c, err := tcpostgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:16-alpine"),
			tcpostgres.WithDatabase("orders"),
			tcpostgres.WithUsername("orders"),
			tcpostgres.WithPassword("orders"),
			testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			return nil, err
		}
		if dsn, err = c.ConnectionString(ctx, "sslmode=disable"); err != nil {
			return nil, err
		}
	}
	pool, err = postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newRepo(t *testing.T) *Repo {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres suite needs docker")
	}
	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		pgPool, pgErr = startPostgres(ctx)
	})
	if pgErr != nil {
		t.Skipf("postgres unavailable: %v", pgErr)
	}
	_, err := pgPool.Exec(context.Background(), `TRUNCATE orders, product_colors, products, order_counters CASCADE`)
	require.NoError(t, err)
	return &Repo{DB: pgPool}
}

func TestRepo_ScenarioCancelAndRevert(t *testing.T) {
	scenarioCancelAndRevert(t, newFixtureWith(t, newRepo(t)))
}

func TestRepo_ConcurrentNoOversellAndUniqueNumbers(t *testing.T) {
	concurrentNoOversell(t, newFixtureWith(t, newRepo(t)))
}

func TestRepo_ConcurrentCancelRestocksOnce(t *testing.T) {
	concurrentCancelRestocksOnce(t, newFixtureWith(t, newRepo(t)))
}

func TestRepo_OrderNumbersFollowCounter(t *testing.T) {
	f := newFixtureWith(t, newRepo(t))
	p := f.product(t, Product{Name: "Stool", Stock: 10})

	for i := 1; i <= 3; i++ {
		res, err := f.svc.CreateOrder(context.Background(), orderInput(PaymentCOD, ItemInput{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("DSF2610%05d", i), res.OrderNumber)
	}
}

func TestRepo_MovesAreAllOrNothing(t *testing.T) {
	repo := newRepo(t)
	f := newFixtureWith(t, repo)
	ctx := context.Background()
	chair := f.product(t, Product{Name: "Chair", Colors: []Color{{Name: "Black", Stock: 6}, {Name: "White", Stock: 1}}})
	desk := f.product(t, Product{Name: "Desk", Stock: 4})

	_, err := f.svc.CreateOrder(ctx, orderInput(PaymentOnline,
		ItemInput{ProductID: desk.ID, Quantity: 2},
		ItemInput{ProductID: chair.ID, Quantity: 2, Color: "Black"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t, desk.ID))
	assert.Equal(t, 4, f.colorStock(t, chair.ID, "Black"))
	assert.Equal(t, 5, f.stock(t, chair.ID))

	// the desk move succeeds, the white chair move fails: nothing may survive
	o := &Order{UserID: "user-1", Status: StatusPending, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	_, err = repo.InsertOrder(ctx, o, []StockMove{
		{ProductID: desk.ID, Delta: -1, Label: "Desk"},
		{ProductID: chair.ID, Color: "White", Delta: -2, Label: "Chair"},
	})
	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "White", se.Color)
	assert.Equal(t, 1, se.Available)
	assert.Equal(t, 2, f.stock(t, desk.ID))
	assert.Equal(t, 1, f.colorStock(t, chair.ID, "White"))

	_, total, err := repo.ListOrders(ctx, OrderFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRepo_StatusCompareAndSet(t *testing.T) {
	repo := newRepo(t)
	f := newFixtureWith(t, repo)
	ctx := context.Background()
	p := f.product(t, Product{Name: "Lamp", Stock: 3})
	res, err := f.svc.CreateOrder(ctx, orderInput(PaymentCOD, ItemInput{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)

	at := time.Now().UTC()
	_, err = repo.UpdateStatus(ctx, StatusUpdate{OrderID: res.OrderID, From: StatusConfirmed, To: StatusCancelled, At: at,
		Moves: []StockMove{{ProductID: p.ID, Delta: 2}}})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.stock(t, p.ID))

	levels, err := repo.UpdateStatus(ctx, StatusUpdate{OrderID: res.OrderID, From: StatusPending, To: StatusCancelled, At: at,
		Note: "duplicate", Moves: []StockMove{{ProductID: p.ID, Delta: 2}}})
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, 3, levels[0].Stock)

	o, err := repo.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "duplicate", o.Notes)
	assert.Len(t, o.StatusHistory, 2)

	require.NoError(t, repo.SoftDelete(ctx, res.OrderID))
	_, err = repo.UpdateStatus(ctx, StatusUpdate{OrderID: res.OrderID, From: StatusCancelled, To: StatusPending, At: at})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.SoftDelete(ctx, res.OrderID), ErrNotFound)
}

func TestRepo_ProductCatalog(t *testing.T) {
	f := newFixtureWith(t, newRepo(t))
	ctx := context.Background()

	p, err := f.svc.CreateProduct(ctx, ProductInput{SKU: "BED-01", Name: "Bed", Colors: []Color{
		{Name: "Honey", Stock: 3}, {Name: "Walnut", Stock: 4},
	}})
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bed", got.Name)
	require.Len(t, got.Colors, 2)
	assert.Equal(t, "Honey", got.Colors[0].Name)
	assert.Equal(t, StockLow, got.Colors[0].Status)

	_, err = f.svc.CreateProduct(ctx, ProductInput{SKU: "BED-01", Name: "Other bed"})
	assert.ErrorIs(t, err, ErrDuplicateSKU)

	_, err = f.svc.UpdateProduct(ctx, "missing", ProductInput{Name: "x"})
	assert.ErrorIs(t, err, ErrProductNotFound)

	page, err := f.svc.ListProducts(ctx, ProductFilter{Query: "be"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
