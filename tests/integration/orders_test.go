package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/safar/go-commerce-api/internal/database"
	"github.com/safar/go-commerce-api/internal/models"
	"github.com/safar/go-commerce-api/internal/store"
	"github.com/shopspring/decimal"
)

func TestCreateOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders1")

	product1, err := store.CreateProduct(ctx, db, "TEST-ORD-001", "Product 1", "Test", decimal.NewFromInt(100), 50)
	if err != nil {
		t.Fatalf("Create product 1: %v", err)
	}

	product2, err := store.CreateProduct(ctx, db, "TEST-ORD-002", "Product 2", "Test", decimal.NewFromInt(200), 30)
	if err != nil {
		t.Fatalf("Create product 2: %v", err)
	}

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items: []store.OrderItemRequest{
			{ProductID: product1.ID, Quantity: 5},
			{ProductID: product2.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.Status != models.OrderStatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}

	expectedTotal := decimal.NewFromInt(100).Mul(decimal.NewFromInt(5)).
		Add(decimal.NewFromInt(200).Mul(decimal.NewFromInt(3)))

	if !order.TotalAmount.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, order.TotalAmount)
	}

	if len(order.Items) != 2 {
		t.Fatalf("Expected 2 order items, got %d", len(order.Items))
	}

	product1After, err := store.GetProduct(ctx, db, product1.ID)
	if err != nil {
		t.Fatalf("Get product 1: %v", err)
	}
	if product1After.StockQuantity != 45 {
		t.Errorf("Expected product 1 stock 45, got %d", product1After.StockQuantity)
	}

	product2After, err := store.GetProduct(ctx, db, product2.ID)
	if err != nil {
		t.Fatalf("Get product 2: %v", err)
	}
	if product2After.StockQuantity != 27 {
		t.Errorf("Expected product 2 stock 27, got %d", product2After.StockQuantity)
	}
}

func TestCreateOrderPriceSnapshot(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "snapshot")

	product, err := store.CreateProduct(ctx, db, "TEST-SNAP-001", "Snapshot", "Test", decimal.RequireFromString("10.00"), 5)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if !order.TotalAmount.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("Expected total 30.00, got %s", order.TotalAmount)
	}

	// A later price change must not touch the snapshotted item price.
	_, err = store.UpdateProduct(ctx, db, product.ID, product.Name, product.Description,
		decimal.RequireFromString("99.99"), 2, true)
	if err != nil {
		t.Fatalf("Update product: %v", err)
	}

	reloaded, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !reloaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected snapshotted unit price 10.00, got %s", reloaded.Items[0].UnitPrice)
	}
	if !reloaded.TotalAmount.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("Expected total unchanged at 30.00, got %s", reloaded.TotalAmount)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders2")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-003", "Product 3", "Test", decimal.NewFromInt(100), 2)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 3}},
	})

	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}

	var stockErr *database.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected *StockError, got: %T", err)
	}
	if stockErr.Available != 2 || stockErr.Requested != 3 {
		t.Errorf("Expected available=2 requested=3, got available=%d requested=%d",
			stockErr.Available, stockErr.Requested)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 2 {
		t.Errorf("Stock should remain unchanged at 2, got %d", productAfter.StockQuantity)
	}
}

func TestCreateOrderAtomicity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders3")

	good, err := store.CreateProduct(ctx, db, "TEST-ATM-001", "In Stock", "Test", decimal.NewFromInt(10), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	scarce, err := store.CreateProduct(ctx, db, "TEST-ATM-002", "Scarce", "Test", decimal.NewFromInt(10), 1)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	// The second line fails; the first line's stock must not move.
	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items: []store.OrderItemRequest{
			{ProductID: good.ID, Quantity: 5},
			{ProductID: scarce.ID, Quantity: 2},
		},
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}

	goodAfter, err := store.GetProduct(ctx, db, good.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if goodAfter.StockQuantity != 100 {
		t.Errorf("Expected stock unchanged at 100, got %d", goodAfter.StockQuantity)
	}

	page, err := store.ListOrders(ctx, db, userID, "", 10)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if page.Items != nil {
		if orders, ok := page.Items.([]models.Order); ok && len(orders) != 0 {
			t.Errorf("Expected no persisted orders, got %d", len(orders))
		}
	}
}

func TestCreateOrderValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders4")

	product, err := store.CreateProduct(ctx, db, "TEST-VAL-001", "Product", "Test", decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{UserID: userID})
	if !errors.Is(err, database.ErrEmptyOrder) {
		t.Errorf("Expected empty order error, got: %v", err)
	}

	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 0}},
	})
	if !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity error, got: %v", err)
	}

	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: -1}},
	})
	if !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity error for negative quantity, got: %v", err)
	}
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders5")

	product, err := store.CreateProduct(ctx, db, "TEST-INACT-001", "Retired", "Test", decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	_, err = store.UpdateProduct(ctx, db, product.ID, product.Name, product.Description, product.Price, product.StockQuantity, false)
	if err != nil {
		t.Fatalf("Deactivate product: %v", err)
	}

	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found for inactive product, got: %v", err)
	}
}

func TestConcurrentOrderCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders6")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-004", "Product 4", "Test", decimal.NewFromInt(100), 20)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	concurrency := 15
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				UserID: userID,
				Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 2}},
			})

			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Logf("Unexpected error: %v", err)
		}
	}

	if successCount > 10 {
		t.Errorf("At most 10 orders of 2 units fit in stock 20, got %d successes", successCount)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}

	expectedStock := 20 - (successCount * 2)
	if productAfter.StockQuantity != expectedStock {
		t.Errorf("Expected final stock %d, got %d", expectedStock, productAfter.StockQuantity)
	}
	if productAfter.StockQuantity < 0 {
		t.Errorf("Stock must never go negative, got %d", productAfter.StockQuantity)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders7")

	product, err := store.CreateProduct(ctx, db, "TEST-STAT-001", "Product", "Test", decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: userID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	updated, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusShipped)
	if err != nil {
		t.Fatalf("Update order status: %v", err)
	}
	if updated.Status != models.OrderStatusShipped {
		t.Errorf("Expected status shipped, got %s", updated.Status)
	}
	if !updated.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("Status update must not change the total: %s vs %s", updated.TotalAmount, order.TotalAmount)
	}

	_, err = store.UpdateOrderStatus(ctx, db, order.ID, "refunded")
	if !errors.Is(err, database.ErrInvalidStatus) {
		t.Errorf("Expected invalid status error, got: %v", err)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	userID := registerTestUser(t, db, "orders8")
	otherID := registerTestUser(t, db, "orders9")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-005", "Product 5", "Test", decimal.NewFromInt(100), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	for i := 0; i < 15; i++ {
		owner := userID
		if i%3 == 0 {
			owner = otherID
		}
		_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
			UserID: owner,
			Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	page1, err := store.ListOrders(ctx, db, userID, "", 5)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}
	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	orders1 := page1.Items.([]models.Order)
	for _, o := range orders1 {
		if o.UserID != userID {
			t.Errorf("User listing must only contain own orders, got order of user %d", o.UserID)
		}
	}

	page2, err := store.ListOrders(ctx, db, userID, page1.NextCursor, 5)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}
	orders2 := page2.Items.([]models.Order)
	if len(orders1)+len(orders2) != 10 {
		t.Errorf("Expected 10 orders for user across pages, got %d", len(orders1)+len(orders2))
	}

	all, err := store.ListAllOrders(ctx, db, "", 50)
	if err != nil {
		t.Fatalf("List all orders: %v", err)
	}
	if got := len(all.Items.([]models.Order)); got != 15 {
		t.Errorf("Expected 15 orders in the manager view, got %d", got)
	}
}
