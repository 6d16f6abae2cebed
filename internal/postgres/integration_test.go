//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/verve-checkout/internal/domain/cart"
	"github.com/xenking/verve-checkout/internal/domain/order"
	"github.com/xenking/verve-checkout/internal/domain/product"
	"github.com/xenking/verve-checkout/internal/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "verve",
				"POSTGRES_PASSWORD": "verve",
				"POSTGRES_DB":       "verve",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://verve:verve@%s:%s/verve?sslmode=disable", host, port.Port())

	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

func newService() *order.Service {
	return order.NewService(postgres.NewRunner(pool))
}

func seedSimple(t *testing.T, name string, price string, stock int) *product.Product {
	t.Helper()
	p := &product.Product{
		ID:    uuid.New().String(),
		Name:  name,
		Kind:  product.KindSimple,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	require.NoError(t, postgres.NewProductRepository(pool).Create(context.Background(), p))
	return p
}

func seedVariable(t *testing.T, name string, stocks map[string]int) *product.Product {
	t.Helper()
	p := &product.Product{
		ID:   uuid.New().String(),
		Name: name,
		Kind: product.KindVariable,
	}
	for size, stock := range stocks {
		p.Variations = append(p.Variations, product.Variation{
			ID:         uuid.New().String(),
			Attributes: []product.Attribute{{Name: "size", Value: size}},
			Price:      decimal.RequireFromString("35.00"),
			Stock:      stock,
		})
	}
	require.NoError(t, postgres.NewProductRepository(pool).Create(context.Background(), p))
	return p
}

func stockOf(t *testing.T, productID, variationID string) int {
	t.Helper()
	p, err := postgres.NewProductRepository(pool).FindByID(context.Background(), productID)
	require.NoError(t, err)
	if variationID == "" {
		return p.Stock
	}
	v, ok := p.VariationByID(variationID)
	require.True(t, ok)
	return v.Stock
}

func TestPlaceOrder_DeductsAndPersists(t *testing.T) {
	ctx := context.Background()
	p := seedSimple(t, "Kettle", "24.50", 5)
	svc := newService()

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID: uuid.New().String(),
		Items:  []order.ItemRequest{{ProductID: p.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, placed.Status)
	assert.True(t, placed.StockDeducted)
	assert.True(t, decimal.RequireFromString("73.50").Equal(placed.Total))

	assert.Equal(t, 2, stockOf(t, p.ID, ""))

	// Round-trips through the JSONB snapshot.
	got, err := postgres.NewOrderRepository(pool).FindByID(ctx, placed.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Kettle", got.Items[0].Name)
	assert.Equal(t, 3, got.Items[0].Quantity)
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	p := seedSimple(t, "Limited Print", "99.00", 1)
	svc := newService()

	const attempts = 4
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
				UserID: uuid.New().String(),
				Items:  []order.ItemRequest{{ProductID: p.ID, Quantity: 1}},
			})
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		var stockErr *product.InsufficientStockError
		switch {
		case err == nil:
			won++
		case errors.As(err, &stockErr):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one order may take the last unit")
	assert.Equal(t, attempts-1, lost)
	assert.Equal(t, 0, stockOf(t, p.ID, ""))
}

func TestCancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	p := seedVariable(t, "Hoodie", map[string]int{"XL": 4})
	varID := p.Variations[0].ID
	svc := newService()

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID: uuid.New().String(),
		Items:  []order.ItemRequest{{ProductID: p.ID, VariationID: varID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, stockOf(t, p.ID, varID))

	cancelled, err := svc.UpdateStatus(ctx, placed.ID, order.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, cancelled.StockDeducted)
	assert.Equal(t, 4, stockOf(t, p.ID, varID))

	// Terminal: no further transitions, no second restore.
	_, err = svc.UpdateStatus(ctx, placed.ID, order.StatusShipped)
	var illegal *order.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, 4, stockOf(t, p.ID, varID))
}

func TestRollbackStock_Idempotent(t *testing.T) {
	ctx := context.Background()
	p := seedSimple(t, "Carafe", "18.00", 10)
	svc := newService()

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID: uuid.New().String(),
		Items:  []order.ItemRequest{{ProductID: p.ID, Quantity: 6}},
	})
	require.NoError(t, err)
	require.Equal(t, 4, stockOf(t, p.ID, ""))

	first, err := svc.RollbackStock(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, first.Status)
	assert.Equal(t, 10, stockOf(t, p.ID, ""))

	second, err := svc.RollbackStock(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, p.ID, ""), "second rollback must not restore again")
	assert.False(t, second.StockDeducted)
}

func TestCartCheckout_ClearsCartAtomically(t *testing.T) {
	ctx := context.Background()
	p := seedSimple(t, "Sneaker", "74.90", 8)
	userID := uuid.New().String()
	carts := postgres.NewCartRepository(pool)

	_, err := carts.AddItem(ctx, userID, cart.Item{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  2,
	})
	require.NoError(t, err)

	svc := newService()
	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:   userID,
		FromCart: true,
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("149.80").Equal(placed.Total))
	assert.Equal(t, 6, stockOf(t, p.ID, ""))

	after, err := carts.FindByUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, after, "cart row survives checkout")
	assert.Empty(t, after.Items)

	// Checking out the now-empty cart fails without touching stock.
	_, err = svc.PlaceOrder(ctx, order.PlaceOrderRequest{UserID: userID, FromCart: true})
	require.ErrorIs(t, err, order.ErrEmptyCart)
	assert.Equal(t, 6, stockOf(t, p.ID, ""))
}

func TestPlaceOrder_PartialFailureKeepsEverything(t *testing.T) {
	ctx := context.Background()
	a := seedSimple(t, "Mug", "9.00", 10)
	b := seedSimple(t, "Rare Vase", "120.00", 1)
	svc := newService()

	_, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID: uuid.New().String(),
		Items: []order.ItemRequest{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 5},
		},
	})
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Rare Vase", stockErr.ProductName)

	// The first deduction rolled back with the transaction.
	assert.Equal(t, 10, stockOf(t, a.ID, ""))
	assert.Equal(t, 1, stockOf(t, b.ID, ""))
}
