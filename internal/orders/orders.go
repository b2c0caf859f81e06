// Package orders places and fetches orders and clears the cart once an order is placed
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/cli/client"
	"github.com/shopsync-dev/shopsync/internal/effects"
	"github.com/shopsync-dev/shopsync/internal/session"
)

// SuccessMessage is shown once an order is placed
const SuccessMessage = "Order placed successfully!"

// ErrOrderInProgress is returned when an order is placed while another is pending
var ErrOrderInProgress = errors.New("an order is already being placed")

// Status is the lifecycle of an order request
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

// CreateState tracks the latest order placement
type CreateState struct {
	Status Status
	Order  *client.Order
	Error  string
}

// DetailsState tracks the latest order lookup
type DetailsState struct {
	Status Status
	Order  *client.Order
	Error  string
}

// API is the part of the storefront API orders need
type API interface {
	CreateOrder(ctx context.Context, token string, order client.OrderRequest) (*client.Order, error)
	GetOrder(ctx context.Context, token, id string) (*client.Order, error)
}

// CartPersister removes the persisted cart lines
type CartPersister interface {
	RemoveCartItems(ctx context.Context) error
}

// Service places orders for the signed-in user
type Service struct {
	api       API
	sessions  *session.Store
	carts     *cart.Store
	persister CartPersister
	notifier  effects.Notifier
	logger    zerolog.Logger

	mu      sync.Mutex
	create  CreateState
	details DetailsState
}

// NewService creates an order service
func NewService(api API, sessions *session.Store, carts *cart.Store, persister CartPersister, notifier effects.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		api:       api,
		sessions:  sessions,
		carts:     carts,
		persister: persister,
		notifier:  notifier,
		logger:    logger,
	}
}

// PlaceOrder submits req with the active session's token. On success the
// cart is cleared, the persisted cart lines are removed, and the user is notified,
// in that order.
func (s *Service) PlaceOrder(ctx context.Context, req client.OrderRequest) (*client.Order, error) {
	s.mu.Lock()
	if s.create.Status == StatusLoading {
		s.mu.Unlock()
		return nil, ErrOrderInProgress
	}
	s.create = CreateState{Status: StatusLoading}
	s.mu.Unlock()

	order, err := s.api.CreateOrder(ctx, s.sessions.Token(), req)
	if err != nil {
		msg := client.Message(err)
		s.mu.Lock()
		s.create = CreateState{Status: StatusFailed, Error: msg}
		s.mu.Unlock()

		s.logger.Warn().Err(err).Msg("Failed to place order")
		s.notifier.Error(msg)
		return nil, err
	}

	s.mu.Lock()
	s.create = CreateState{Status: StatusSucceeded, Order: order}
	s.mu.Unlock()

	s.logger.Info().Str("order_id", string(order.ID)).Msg("Order placed")
	s.completeOrder(ctx)
	return order, nil
}

// completeOrder runs once per placed order
func (s *Service) completeOrder(ctx context.Context) {
	s.carts.ClearItems()
	if err := s.persister.RemoveCartItems(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to remove persisted cart items")
	}
	s.notifier.Success(SuccessMessage)
}

// OrderDetails fetches an order. Failures are recorded but not notified.
func (s *Service) OrderDetails(ctx context.Context, id string) (*client.Order, error) {
	s.mu.Lock()
	s.details = DetailsState{Status: StatusLoading}
	s.mu.Unlock()

	order, err := s.api.GetOrder(ctx, s.sessions.Token(), id)
	if err != nil {
		s.mu.Lock()
		s.details = DetailsState{Status: StatusFailed, Error: client.Message(err)}
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}

	s.mu.Lock()
	s.details = DetailsState{Status: StatusSucceeded, Order: order}
	s.mu.Unlock()
	return order, nil
}

// CreateState returns the latest placement state
func (s *Service) CreateState() CreateState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create
}

// DetailsState returns the latest lookup state
func (s *Service) DetailsState() DetailsState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// ResetCreate returns the placement state to idle
func (s *Service) ResetCreate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.create = CreateState{}
}
