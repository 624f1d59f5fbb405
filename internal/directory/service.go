package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hitechnics/supplydb/internal/platform/store"
)

// Collection is the store path that holds all supplier records.
const Collection = "suppliers"

// Service owns the cached supplier snapshot and turns user actions
// into store mutations. Reads never block on the store: the cache is
// refreshed by the subscription, so a mutation becomes visible only
// once the store echoes it back.
type Service struct {
	logger   *slog.Logger
	store    store.Store
	collator *collate.Collator

	mu        sync.RWMutex
	suppliers map[string]Supplier
	unsub     store.Unsubscribe
}

// NewService subscribes to the supplier collection and blocks until
// the initial snapshot has been applied.
func NewService(ctx context.Context, logger *slog.Logger, st store.Store) (*Service, error) {
	s := &Service{
		logger:    logger,
		store:     st,
		collator:  collate.New(language.English, collate.IgnoreCase),
		suppliers: map[string]Supplier{},
	}
	unsub, err := st.Subscribe(ctx, Collection, s.apply)
	if err != nil {
		return nil, fmt.Errorf("directory: subscribe: %w", err)
	}
	s.unsub = unsub
	return s, nil
}

// Close detaches the store subscription.
func (s *Service) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

// apply replaces the cached snapshot. Records that fail to decode are
// dropped from the view rather than failing the whole snapshot.
func (s *Service) apply(snap store.Snapshot) {
	decoded := make(map[string]Supplier, len(snap))
	for id, raw := range snap {
		var sup Supplier
		if err := json.Unmarshal(raw, &sup); err != nil {
			s.logger.Warn("decode supplier record", "id", id, "error", err)
			continue
		}
		sup.ID = id
		decoded[id] = sup
	}
	s.mu.Lock()
	s.suppliers = decoded
	s.mu.Unlock()
}

// Suppliers returns the cached snapshot ordered by name,
// case-insensitively.
func (s *Service) Suppliers() []Supplier {
	s.mu.RLock()
	list := make([]Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		list = append(list, sup)
	}
	s.mu.RUnlock()

	s.collator.Sort(byName(list))
	return list
}

// Get looks up a supplier in the cached snapshot.
func (s *Service) Get(id string) (Supplier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	return sup, ok
}

// Save validates the draft and persists it: a patch of the form fields
// when editing, otherwise a create with an empty product list. The
// returned id is the edited or newly assigned one.
func (s *Service) Save(ctx context.Context, draft Draft, editID string) (string, error) {
	draft.Name = trimmedName(draft.Name)
	if err := s.validate(draft, editID); err != nil {
		return "", err
	}

	if editID != "" {
		err := s.store.Patch(ctx, Collection+"/"+editID, map[string]any{
			"name":     draft.Name,
			"origin":   draft.Origin,
			"category": draft.Category,
			"desc":     draft.Desc,
		})
		if err != nil {
			return "", fmt.Errorf("directory: update supplier %s: %w", editID, err)
		}
		return editID, nil
	}

	id, err := s.store.Write(ctx, Collection, Supplier{
		Name:     draft.Name,
		Origin:   draft.Origin,
		Category: draft.Category,
		Desc:     draft.Desc,
		Products: []Product{},
	})
	if err != nil {
		return "", fmt.Errorf("directory: create supplier: %w", err)
	}
	return id, nil
}

// Delete removes a supplier record and everything under it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, Collection+"/"+id); err != nil {
		return fmt.Errorf("directory: delete supplier %s: %w", id, err)
	}
	return nil
}

// SetCategory patches just the category field of one supplier.
func (s *Service) SetCategory(ctx context.Context, id, category string) error {
	err := s.store.Patch(ctx, Collection+"/"+id, map[string]any{"category": category})
	if err != nil {
		return fmt.Errorf("directory: set category %s: %w", id, err)
	}
	return nil
}

// AddProduct appends to a supplier's product list and rewrites the
// whole list. Unknown suppliers and drafts with an empty name or
// price are silently ignored, matching the list view's behaviour.
func (s *Service) AddProduct(ctx context.Context, id string, p Product) error {
	sup, ok := s.Get(id)
	if !ok || p.Name == "" || p.Price == "" {
		return nil
	}
	return s.patchProducts(ctx, id, append(sup.Products, p))
}

// RemoveProduct splices out the product at the given position.
func (s *Service) RemoveProduct(ctx context.Context, id string, index int) error {
	sup, ok := s.Get(id)
	if !ok || index < 0 || index >= len(sup.Products) {
		return nil
	}
	updated := make([]Product, 0, len(sup.Products)-1)
	updated = append(updated, sup.Products[:index]...)
	updated = append(updated, sup.Products[index+1:]...)
	return s.patchProducts(ctx, id, updated)
}

// UpdateProduct replaces the product at the given position. The inline
// editor calls this on every keystroke, so intermediate values are
// persisted too.
func (s *Service) UpdateProduct(ctx context.Context, id string, index int, p Product) error {
	sup, ok := s.Get(id)
	if !ok || index < 0 || index >= len(sup.Products) {
		return nil
	}
	updated := make([]Product, len(sup.Products))
	copy(updated, sup.Products)
	updated[index] = p
	return s.patchProducts(ctx, id, updated)
}

func (s *Service) patchProducts(ctx context.Context, id string, products []Product) error {
	err := s.store.Patch(ctx, Collection+"/"+id, map[string]any{"products": products})
	if err != nil {
		return fmt.Errorf("directory: patch products %s: %w", id, err)
	}
	return nil
}

// Watch registers a change feed over the supplier collection. The
// initial snapshot every subscription receives is swallowed so callers
// only hear about changes after registration; a slow consumer drops
// intermediate signals rather than blocking the store.
func (s *Service) Watch(ctx context.Context) (<-chan struct{}, store.Unsubscribe, error) {
	ch := make(chan struct{}, 1)
	first := true
	unsub, err := s.store.Subscribe(ctx, Collection, func(store.Snapshot) {
		if first {
			first = false
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("directory: watch: %w", err)
	}
	return ch, unsub, nil
}

// byName adapts a supplier slice for collator sorting.
type byName []Supplier

func (b byName) Len() int           { return len(b) }
func (b byName) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
func (b byName) Bytes(i int) []byte { return []byte(b[i].Name) }
