package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/verve-checkout/internal/domain/product"
)

// PlaceOrderRequest holds the input for placing an order. When FromCart is
// set the user's saved cart is the item source and Items is ignored;
// otherwise Items must be non-empty.
type PlaceOrderRequest struct {
	UserID          string
	FromCart        bool
	Items           []ItemRequest
	ShippingAddress Address
	PaymentMethod   string
}

// Service coordinates order placement and lifecycle transitions. Every
// operation runs as one atomic unit of work: stock deductions, order writes
// and cart clearing all commit together or not at all.
type Service struct {
	db TxRunner
}

// NewService creates an order Service over the given transaction runner.
func NewService(db TxRunner) *Service {
	return &Service{db: db}
}

// PlaceOrder resolves the item source, deducts stock per item, and creates
// the order with status pending. On any failure the whole transaction
// aborts: no stock is lost and the cart is untouched.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	var placed *Order
	err := s.db.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var (
			items  []Item
			cartID string
			err    error
		)
		if req.FromCart {
			items, cartID, err = resolveFromCart(ctx, uow, req.UserID)
		} else {
			items, err = resolveDirect(ctx, uow, req.Items)
		}
		if err != nil {
			return err
		}

		ledger := uow.Products()
		total := decimal.Zero
		for _, it := range items {
			if err := ledger.Deduct(ctx, it.ProductID, it.VariationID, it.Quantity); err != nil {
				return err
			}
			total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		now := time.Now().UTC()
		o := &Order{
			ID:              uuid.New().String(),
			UserID:          req.UserID,
			Items:           items,
			Total:           total.Round(2),
			Status:          StatusPending,
			StockDeducted:   true,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentMethod,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := uow.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if req.FromCart {
			if err := uow.Carts().Clear(ctx, cartID); err != nil {
				return errors.Wrap(err, "clear cart")
			}
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// RollbackStock restores every item's stock for a failed order and marks it
// failed. It is idempotent: when StockDeducted is already false the order is
// returned unchanged.
func (s *Service) RollbackStock(ctx context.Context, orderID string) (*Order, error) {
	var out *Order
	err := s.db.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.StockDeducted {
			out = o
			return nil
		}

		if err := restoreItems(ctx, uow.Products(), o.Items); err != nil {
			return err
		}

		o.Status = StatusFailed
		o.StockDeducted = false
		o.UpdatedAt = time.Now().UTC()
		if err := uow.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus applies a status transition after validating it against the
// status graph. Cancelling an order whose deductions are still applied
// restores every item's stock atomically with the status write, so a cancel
// can never double-restore.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	var out *Order
	err := s.db.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		o, err := uow.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, next) {
			return &IllegalTransitionError{From: o.Status, To: next}
		}

		if next == StatusCancelled && o.StockDeducted {
			if err := restoreItems(ctx, uow.Products(), o.Items); err != nil {
				return err
			}
			o.StockDeducted = false
		}

		o.Status = next
		o.UpdatedAt = time.Now().UTC()
		if err := uow.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func restoreItems(ctx context.Context, ledger product.Ledger, items []Item) error {
	for _, it := range items {
		if err := ledger.Restore(ctx, it.ProductID, it.VariationID, it.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock for %s", it.Name)
		}
	}
	return nil
}
