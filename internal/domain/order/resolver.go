package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/verve-checkout/internal/domain/product"
)

// ItemRequest is one caller-supplied checkout line for direct (cart-less)
// placement.
type ItemRequest struct {
	ProductID   string
	VariationID string
	Quantity    int
}

// resolveFromCart builds order items from the user's saved cart. It runs
// inside the same unit of work as the deduction so the stock it observes
// cannot be consumed by a concurrent checkout between check and commit.
//
// Name and unit price are re-read from the live product, not trusted from
// the cart's add-time snapshot; stock sufficiency is re-validated here and
// enforced again by the conditional decrement in the ledger.
func resolveFromCart(ctx context.Context, uow UnitOfWork, userID string) (items []Item, cartID string, err error) {
	c, err := uow.Carts().FindByUser(ctx, userID)
	if err != nil {
		return nil, "", errors.Wrap(err, "load cart")
	}
	if c == nil || len(c.Items) == 0 {
		return nil, "", ErrEmptyCart
	}

	ledger := uow.Products()
	items = make([]Item, 0, len(c.Items))
	for _, ci := range c.Items {
		p, err := ledger.FindByID(ctx, ci.ProductID)
		if err != nil {
			return nil, "", errors.Wrapf(err, "resolve %s", ci.Name)
		}

		it := Item{ProductID: ci.ProductID, Quantity: ci.Quantity}
		switch p.Kind {
		case product.KindVariable:
			v, ok := p.VariationByID(ci.VariationID)
			if !ok || v.Stock < ci.Quantity {
				return nil, "", &product.InsufficientStockError{ProductName: p.Name}
			}
			it.VariationID = ci.VariationID
			it.Name = p.VariationName(v)
			it.Price = v.Price
		default:
			if p.Stock < ci.Quantity {
				return nil, "", &product.InsufficientStockError{ProductName: p.Name}
			}
			it.Name = p.Name
			it.Price = p.Price
		}
		items = append(items, it)
	}

	return items, c.ID, nil
}

// resolveDirect builds order items from a caller-supplied list. A zero
// quantity defaults to 1; negative quantities are rejected. Variable
// products require a variation identifier. Stock sufficiency is left to the
// ledger's conditional decrement, which runs in the same transaction.
func resolveDirect(ctx context.Context, uow UnitOfWork, reqs []ItemRequest) ([]Item, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyItems
	}

	ledger := uow.Products()
	items := make([]Item, 0, len(reqs))
	for _, r := range reqs {
		qty := r.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nil, &InvalidQuantityError{ProductID: r.ProductID}
		}

		p, err := ledger.FindByID(ctx, r.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve product %s", r.ProductID)
		}

		it := Item{ProductID: r.ProductID, Quantity: qty}
		switch p.Kind {
		case product.KindVariable:
			if r.VariationID == "" {
				return nil, &MissingVariationError{ProductName: p.Name}
			}
			v, ok := p.VariationByID(r.VariationID)
			if !ok {
				return nil, errors.Wrapf(product.ErrNotFound, "variation %s of %s", r.VariationID, p.Name)
			}
			it.VariationID = r.VariationID
			it.Name = p.VariationName(v)
			it.Price = v.Price
		default:
			it.Name = p.Name
			it.Price = p.Price
		}
		items = append(items, it)
	}

	return items, nil
}
