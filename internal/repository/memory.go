package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stroller-protocol/custos/internal/models"
)

type memoryWallet struct {
	createdAt int64
	topUps    []string
	watchers  []string
}

type memoryState struct {
	wallets       map[string]*memoryWallet
	topUps        map[string]models.TopUp
	watchers      map[string]models.Watcher
	notifications []models.Notification
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		wallets:       make(map[string]*memoryWallet, len(s.wallets)),
		topUps:        make(map[string]models.TopUp, len(s.topUps)),
		watchers:      make(map[string]models.Watcher, len(s.watchers)),
		notifications: append([]models.Notification(nil), s.notifications...),
	}
	for address, w := range s.wallets {
		c.wallets[address] = &memoryWallet{
			createdAt: w.createdAt,
			topUps:    append([]string(nil), w.topUps...),
			watchers:  append([]string(nil), w.watchers...),
		}
	}
	for id, t := range s.topUps {
		c.topUps[id] = t
	}
	for id, w := range s.watchers {
		c.watchers[id] = w
	}
	return c
}

// MemoryDB keeps everything in process memory. It backs the tests and the
// "memory" storage backend. Writes outside a transaction wait for the open
// transaction, so a rollback restoring its snapshot never drops them. Reads
// are not isolated and may observe uncommitted writes.
type MemoryDB struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memoryState
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{state: &memoryState{
		wallets:  make(map[string]*memoryWallet),
		topUps:   make(map[string]models.TopUp),
		watchers: make(map[string]models.Watcher),
	}}
}

func (db *MemoryDB) Close() error {
	return nil
}

func (db *MemoryDB) WithTx(ctx context.Context, fn func(ctx context.Context, repo models.Repository) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.state.clone()
	db.mu.RUnlock()

	if err := fn(ctx, &memoryTx{db}); err != nil {
		db.mu.Lock()
		db.state = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *MemoryDB) CreateWallet(_ context.Context, address string) (*models.Wallet, error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.createWallet(address)
}

func (db *MemoryDB) AddTopUp(_ context.Context, topUp *models.TopUp) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.addTopUp(topUp)
}

func (db *MemoryDB) DeleteTopUp(_ context.Context, topUpID string) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.deleteTopUp(topUpID)
}

func (db *MemoryDB) AppendTopUpToWallet(_ context.Context, address, topUpID string) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.appendTopUpToWallet(address, topUpID)
}

func (db *MemoryDB) RemoveTopUpFromWallet(_ context.Context, address, topUpID string) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.removeTopUpFromWallet(address, topUpID)
}

func (db *MemoryDB) CreateWatcher(_ context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.createWatcher(channel, subscriberID)
}

func (db *MemoryDB) AppendWatcherToWallet(_ context.Context, address, watcherID string) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.appendWatcherToWallet(address, watcherID)
}

func (db *MemoryDB) RemoveWatcherFromWallet(_ context.Context, address, watcherID string) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.removeWatcherFromWallet(address, watcherID)
}

func (db *MemoryDB) AddNotification(_ context.Context, notification *models.Notification) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return db.addNotification(notification)
}

// memoryTx is the view handed to WithTx. Its writes skip txMu, which the
// enclosing transaction already holds.
type memoryTx struct {
	*MemoryDB
}

func (tx *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, repo models.Repository) error) error {
	return fn(ctx, tx)
}

func (tx *memoryTx) CreateWallet(_ context.Context, address string) (*models.Wallet, error) {
	return tx.createWallet(address)
}

func (tx *memoryTx) AddTopUp(_ context.Context, topUp *models.TopUp) error {
	return tx.addTopUp(topUp)
}

func (tx *memoryTx) DeleteTopUp(_ context.Context, topUpID string) error {
	return tx.deleteTopUp(topUpID)
}

func (tx *memoryTx) AppendTopUpToWallet(_ context.Context, address, topUpID string) error {
	return tx.appendTopUpToWallet(address, topUpID)
}

func (tx *memoryTx) RemoveTopUpFromWallet(_ context.Context, address, topUpID string) error {
	return tx.removeTopUpFromWallet(address, topUpID)
}

func (tx *memoryTx) CreateWatcher(_ context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	return tx.createWatcher(channel, subscriberID)
}

func (tx *memoryTx) AppendWatcherToWallet(_ context.Context, address, watcherID string) error {
	return tx.appendWatcherToWallet(address, watcherID)
}

func (tx *memoryTx) RemoveWatcherFromWallet(_ context.Context, address, watcherID string) error {
	return tx.removeWatcherFromWallet(address, watcherID)
}

func (tx *memoryTx) AddNotification(_ context.Context, notification *models.Notification) error {
	return tx.addNotification(notification)
}

func (db *MemoryDB) WalletExists(_ context.Context, address string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.state.wallets[address]
	return ok, nil
}

func (db *MemoryDB) createWallet(address string) (*models.Wallet, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.state.wallets[address]; ok {
		return nil, models.ErrAlreadyExists
	}
	w := &memoryWallet{createdAt: time.Now().Unix()}
	db.state.wallets[address] = w
	return &models.Wallet{Address: address, CreatedAt: w.createdAt}, nil
}

func (db *MemoryDB) FindWallet(_ context.Context, address string) (*models.Wallet, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return nil, models.ErrNotFound
	}
	wallet := &models.Wallet{Address: address, CreatedAt: w.createdAt}
	for _, id := range w.topUps {
		if t, ok := db.state.topUps[id]; ok {
			wallet.TopUps = append(wallet.TopUps, t)
		}
	}
	for _, id := range w.watchers {
		if watcher, ok := db.state.watchers[id]; ok {
			wallet.Watchers = append(wallet.Watchers, watcher)
		}
	}
	return wallet, nil
}

func (db *MemoryDB) ListWalletAddresses(_ context.Context) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	addresses := make([]string, 0, len(db.state.wallets))
	for address := range db.state.wallets {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses, nil
}

func (db *MemoryDB) addTopUp(topUp *models.TopUp) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if topUp.ID == "" {
		topUp.ID = uuid.NewString()
	}
	if topUp.CreatedAt == 0 {
		topUp.CreatedAt = time.Now().UnixNano()
	}
	if _, ok := db.state.topUps[topUp.ID]; ok {
		return models.ErrAlreadyExists
	}
	stored := *topUp
	stored.WalletAddress = nil
	db.state.topUps[topUp.ID] = stored
	return nil
}

func (db *MemoryDB) FindTopUp(_ context.Context, index string, netID *int64) (*models.TopUp, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var found *models.TopUp
	for _, t := range db.state.topUps {
		if t.Index != index || (netID != nil && t.NetID != *netID) {
			continue
		}
		if found == nil || t.CreatedAt < found.CreatedAt {
			match := t
			found = &match
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	return found, nil
}

func (db *MemoryDB) FindWalletTopUp(_ context.Context, address, index string, netID int64) (*models.TopUp, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return nil, models.ErrNotFound
	}
	for _, id := range w.topUps {
		if t, ok := db.state.topUps[id]; ok && t.Matches(index, netID) {
			return &t, nil
		}
	}
	return nil, models.ErrNotFound
}

func (db *MemoryDB) deleteTopUp(topUpID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.state.topUps[topUpID]; !ok {
		return models.ErrNotFound
	}
	delete(db.state.topUps, topUpID)
	return nil
}

func (db *MemoryDB) appendTopUpToWallet(address, topUpID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return models.ErrNotFound
	}
	t, ok := db.state.topUps[topUpID]
	if !ok {
		return models.ErrNotFound
	}
	for _, id := range w.topUps {
		if other, ok := db.state.topUps[id]; ok && other.Matches(t.Index, t.NetID) {
			return models.ErrAlreadyExists
		}
	}
	w.topUps = append(w.topUps, topUpID)
	owner := address
	t.WalletAddress = &owner
	db.state.topUps[topUpID] = t
	return nil
}

func (db *MemoryDB) removeTopUpFromWallet(address, topUpID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return models.ErrNotFound
	}
	w.topUps = removeID(w.topUps, topUpID)
	if t, ok := db.state.topUps[topUpID]; ok {
		t.WalletAddress = nil
		db.state.topUps[topUpID] = t
	}
	return nil
}

func (db *MemoryDB) WatcherExists(ctx context.Context, channel models.Channel, subscriberID string) (bool, error) {
	_, err := db.FindWatcher(ctx, channel, subscriberID)
	if err == models.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (db *MemoryDB) FindWatcher(_ context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, w := range db.state.watchers {
		if w.Channel == channel && w.SubscriberID == subscriberID {
			match := w
			return &match, nil
		}
	}
	return nil, models.ErrNotFound
}

func (db *MemoryDB) createWatcher(channel models.Channel, subscriberID string) (*models.Watcher, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, w := range db.state.watchers {
		if w.Channel == channel && w.SubscriberID == subscriberID {
			return nil, models.ErrAlreadyExists
		}
	}
	w := models.Watcher{
		ID:           uuid.NewString(),
		Channel:      channel,
		SubscriberID: subscriberID,
		CreatedAt:    time.Now().Unix(),
	}
	db.state.watchers[w.ID] = w
	return &w, nil
}

func (db *MemoryDB) appendWatcherToWallet(address, watcherID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return models.ErrNotFound
	}
	if _, ok := db.state.watchers[watcherID]; !ok {
		return models.ErrNotFound
	}
	for _, id := range w.watchers {
		if id == watcherID {
			return nil
		}
	}
	w.watchers = append(w.watchers, watcherID)
	return nil
}

func (db *MemoryDB) removeWatcherFromWallet(address, watcherID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return models.ErrNotFound
	}
	w.watchers = removeID(w.watchers, watcherID)
	return nil
}

func (db *MemoryDB) IsWatcherOfWallet(_ context.Context, address, watcherID string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	w, ok := db.state.wallets[address]
	if !ok {
		return false, nil
	}
	for _, id := range w.watchers {
		if id == watcherID {
			return true, nil
		}
	}
	return false, nil
}

func (db *MemoryDB) addNotification(notification *models.Notification) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt == 0 {
		notification.CreatedAt = time.Now().Unix()
	}
	db.state.notifications = append(db.state.notifications, *notification)
	return nil
}

// Notifications returns the notification log of a wallet, oldest first.
func (db *MemoryDB) Notifications(address string) []models.Notification {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.Notification
	for _, n := range db.state.notifications {
		if n.WalletAddress == address {
			out = append(out, n)
		}
	}
	return out
}

// CountTopUps returns the number of stored top-up records.
func (db *MemoryDB) CountTopUps() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.state.topUps)
}

// CountWatchers returns the number of stored watcher records.
func (db *MemoryDB) CountWatchers() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.state.watchers)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, other := range ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}
