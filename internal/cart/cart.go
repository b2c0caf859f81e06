package cart

import (
	"slices"
	"sync"
)

// Item is one line in the cart
type Item struct {
	ProductID    string `json:"product"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	Price        string `json:"price"` // decimal string as served by the API
	CountInStock int    `json:"countInStock"`
	Qty          int    `json:"qty"`
}

// ShippingAddress is where an order ships to
type ShippingAddress struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no address field is set
func (a ShippingAddress) IsZero() bool {
	return a == ShippingAddress{}
}

// State is the cart as other features read it
type State struct {
	Items           []Item
	ShippingAddress ShippingAddress
}

// Change tells listeners which part of the cart a mutation touched
type Change int

const (
	ChangeItems Change = 1 << iota
	ChangeShippingAddress
)

// Listener is called synchronously after every mutation with the new state
type Listener func(change Change, state State)

// Store owns CartState. Mutations are serialized the same way as the session store.
type Store struct {
	writeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners []Listener
}

// NewStore creates a cart store seeded with a hydrated state
func NewStore(initial State) *Store {
	return &Store{state: cloneState(initial)}
}

// State returns a copy of the current cart
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// AddItem adds a line, replacing any existing line for the same product in place
func (s *Store) AddItem(item Item) {
	s.mutate(ChangeItems, func(st *State) {
		idx := slices.IndexFunc(st.Items, func(it Item) bool { return it.ProductID == item.ProductID })
		if idx >= 0 {
			st.Items[idx] = item
			return
		}
		st.Items = append(st.Items, item)
	})
}

// RemoveItem drops the line for productID, if present
func (s *Store) RemoveItem(productID string) {
	s.mutate(ChangeItems, func(st *State) {
		st.Items = slices.DeleteFunc(st.Items, func(it Item) bool { return it.ProductID == productID })
	})
}

// SaveShippingAddress replaces the shipping address
func (s *Store) SaveShippingAddress(addr ShippingAddress) {
	s.mutate(ChangeShippingAddress, func(st *State) {
		st.ShippingAddress = addr
	})
}

// ClearItems empties the cart lines and keeps the shipping address
func (s *Store) ClearItems() {
	s.mutate(ChangeItems, func(st *State) {
		st.Items = []Item{}
	})
}

// Subscribe registers a listener and returns a function that removes it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.listeners[idx] = nil
		s.mu.Unlock()
	}
}

func (s *Store) mutate(change Change, fn func(*State)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	fn(&s.state)
	state := cloneState(s.state)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(change, cloneState(state))
		}
	}
}

func cloneState(st State) State {
	items := slices.Clone(st.Items)
	if items == nil {
		items = []Item{}
	}
	return State{Items: items, ShippingAddress: st.ShippingAddress}
}
