package order

import (
	"context"
	"errors"

	"storefront-rewards/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderOwnership is returned when an order exists but belongs to
	// a different user than the one acting on it.
	ErrOrderOwnership = errors.New("order does not belong to user")
)

type Service struct {
	orders repository.Repository[Order]
}

type ServiceParams struct {
	fx.In

	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		orders: repository.ProvideStore[Order](p.DB),
	}
}

// Get returns the order with the given ID, or ErrOrderNotFound.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	ord, err := s.orders.FindOne(ctx, &Order{ID: orderID})
	if err != nil {
		return nil, err
	}

	if ord == nil {
		return nil, ErrOrderNotFound
	}

	return ord, nil
}

// GetForUser returns the order only if it belongs to userID.
func (s *Service) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	ord, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if ord.UserID != userID {
		return nil, ErrOrderOwnership
	}

	return ord, nil
}

// Record upserts an order snapshot received from the storefront event stream.
func (s *Service) Record(ctx context.Context, ord *Order) error {
	existing, err := s.orders.FindOne(ctx, &Order{ID: ord.ID})
	if err != nil {
		return err
	}

	if existing == nil {
		return s.orders.Create(ctx, ord)
	}

	return s.orders.Update(ctx, ord.ID, ord)
}
