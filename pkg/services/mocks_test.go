package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/apperrors"
	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/metrics"
	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/names"
	"github.com/ekaya-inc/apiary-engine/pkg/notify"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
)

// memStore is the shared state behind the mock repositories. mockScoper
// snapshots it on InTx and restores it when the callback fails.
type memStore struct {
	mu       sync.Mutex
	bees     map[uuid.UUID]*models.Bee
	beeOrder []uuid.UUID
	hives    map[uuid.UUID]*models.Hive
	hiveInv  map[uuid.UUID]models.Inventory
	userInv  map[models.Realm]models.Inventory
	combos   map[comboKey]*models.DiscoveredCombination

	// locks records row locks in the order they were taken, as
	// "hive:<id>" or "bee:<id>". Rollbacks keep it.
	locks []string
}

type comboKey struct {
	guildID, ownerID int64
	left, right      string
}

func newMemStore() *memStore {
	return &memStore{
		bees:    map[uuid.UUID]*models.Bee{},
		hives:   map[uuid.UUID]*models.Hive{},
		hiveInv: map[uuid.UUID]models.Inventory{},
		userInv: map[models.Realm]models.Inventory{},
		combos:  map[comboKey]*models.DiscoveredCombination{},
	}
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	for id, b := range m.bees {
		c.bees[id] = copyBee(b)
	}
	c.beeOrder = append([]uuid.UUID(nil), m.beeOrder...)
	for id, h := range m.hives {
		hc := *h
		c.hives[id] = &hc
	}
	for id, inv := range m.hiveInv {
		c.hiveInv[id] = copyInventory(inv)
	}
	for r, inv := range m.userInv {
		c.userInv[r] = copyInventory(inv)
	}
	for k, v := range m.combos {
		vc := *v
		c.combos[k] = &vc
	}
	return c
}

func (m *memStore) restore(snap *memStore) {
	m.bees, m.beeOrder = snap.bees, snap.beeOrder
	m.hives, m.hiveInv, m.userInv, m.combos = snap.hives, snap.hiveInv, snap.userInv, snap.combos
}

func copyBee(b *models.Bee) *models.Bee {
	c := *b
	c.ParentIDs = append([]uuid.UUID{}, b.ParentIDs...)
	if b.OwnerID != nil {
		owner := *b.OwnerID
		c.OwnerID = &owner
	}
	if b.HiveID != nil {
		hive := *b.HiveID
		c.HiveID = &hive
	}
	return &c
}

func copyInventory(inv models.Inventory) models.Inventory {
	c := models.Inventory{}
	for k, v := range inv {
		if v > 0 {
			c[k] = v
		}
	}
	return c
}

// mockScoper runs callbacks inline and rolls the store back on failed
// transactions.
type mockScoper struct {
	store        *memStore
	realmCalls   []int64
	unrestricted int
	txCount      int
}

func (s *mockScoper) WithRealm(ctx context.Context, guildID int64, fn func(ctx context.Context) error) error {
	s.realmCalls = append(s.realmCalls, guildID)
	return fn(ctx)
}

func (s *mockScoper) WithoutRealm(ctx context.Context, fn func(ctx context.Context) error) error {
	s.unrestricted++
	return fn(ctx)
}

func (s *mockScoper) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txCount++
	s.store.mu.Lock()
	snap := s.store.clone()
	s.store.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.store.mu.Lock()
		s.store.restore(snap)
		s.store.mu.Unlock()
		return err
	}
	return nil
}

var _ Scoper = (*mockScoper)(nil)

// mockBeeRepository enforces the same uniqueness rules as the database
// indexes: one name per owner and one queen per hive.
type mockBeeRepository struct {
	store          *memStore
	createErr      error
	duplicateNames int // Create fails with ErrDuplicateName this many times
	createBatchErr error
	updateErr      error
	ageErr         error
	listExpiredErr error

	// beforeLock runs ahead of each GetByIDForUpdate, standing in for a
	// writer that committed just before the lock was granted.
	beforeLock func(id uuid.UUID)
}

func (r *mockBeeRepository) checkUnique(bee *models.Bee) error {
	for id, other := range r.store.bees {
		if id == bee.ID {
			continue
		}
		if bee.OwnerID != nil && other.OwnerID != nil && *other.OwnerID == *bee.OwnerID &&
			other.GuildID == bee.GuildID && strings.EqualFold(other.Name, bee.Name) {
			return fmt.Errorf("bee name %q: %w", bee.Name, apperrors.ErrDuplicateName)
		}
		if bee.HiveID != nil && bee.IsQueen() && other.HiveID != nil &&
			*other.HiveID == *bee.HiveID && other.IsQueen() {
			return apperrors.ErrSlotOccupied
		}
	}
	return nil
}

func (r *mockBeeRepository) insert(bee *models.Bee) error {
	if bee.ID == uuid.Nil {
		bee.ID = uuid.New()
	}
	if bee.ParentIDs == nil {
		bee.ParentIDs = []uuid.UUID{}
	}
	if err := r.checkUnique(bee); err != nil {
		return err
	}
	r.store.bees[bee.ID] = copyBee(bee)
	r.store.beeOrder = append(r.store.beeOrder, bee.ID)
	return nil
}

func (r *mockBeeRepository) Create(ctx context.Context, bee *models.Bee) error {
	if r.createErr != nil {
		return r.createErr
	}
	if r.duplicateNames > 0 {
		r.duplicateNames--
		return apperrors.ErrDuplicateName
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.insert(bee)
}

func (r *mockBeeRepository) CreateBatch(ctx context.Context, bees []*models.Bee) error {
	if r.createBatchErr != nil {
		return r.createBatchErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, b := range bees {
		if err := r.insert(b); err != nil {
			return err
		}
	}
	return nil
}

func (r *mockBeeRepository) Update(ctx context.Context, bee *models.Bee) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.bees[bee.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if err := r.checkUnique(bee); err != nil {
		return err
	}
	r.store.bees[bee.ID] = copyBee(bee)
	return nil
}

func (r *mockBeeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bee, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.bees[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyBee(b), nil
}

func (r *mockBeeRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bee, error) {
	if r.beforeLock != nil {
		r.beforeLock(id)
	}
	r.store.mu.Lock()
	r.store.locks = append(r.store.locks, "bee:"+id.String())
	r.store.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *mockBeeRepository) filter(keep func(b *models.Bee) bool) []*models.Bee {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*models.Bee, 0)
	for _, id := range r.store.beeOrder {
		if b := r.store.bees[id]; keep(b) {
			out = append(out, copyBee(b))
		}
	}
	return out
}

func (r *mockBeeRepository) ListByOwner(ctx context.Context, realm models.Realm) ([]*models.Bee, error) {
	return r.filter(func(b *models.Bee) bool { return b.IsOwnedBy(realm) }), nil
}

func (r *mockBeeRepository) ListByHive(ctx context.Context, hiveID uuid.UUID) ([]*models.Bee, error) {
	bees := r.filter(func(b *models.Bee) bool { return b.HiveID != nil && *b.HiveID == hiveID })
	rank := map[string]int{models.CasteQueen: 0, models.CastePrincess: 1, models.CasteDrone: 2}
	sort.SliceStable(bees, func(i, j int) bool { return rank[bees[i].Caste] < rank[bees[j].Caste] })
	return bees, nil
}

func (r *mockBeeRepository) FindByName(ctx context.Context, realm models.Realm, name string) (*models.Bee, error) {
	found := r.filter(func(b *models.Bee) bool { return b.IsOwnedBy(realm) && strings.EqualFold(b.Name, name) })
	if len(found) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return found[0], nil
}

func (r *mockBeeRepository) AgeHousedQueens(ctx context.Context) ([]*models.Bee, error) {
	if r.ageErr != nil {
		return nil, r.ageErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*models.Bee, 0)
	for _, id := range r.store.beeOrder {
		b := r.store.bees[id]
		if b.HiveID != nil && b.OwnerID != nil && b.IsQueen() && b.LivedLifetime < b.Lifetime {
			b.LivedLifetime++
			out = append(out, copyBee(b))
		}
	}
	return out, nil
}

func (r *mockBeeRepository) ListExpiredQueens(ctx context.Context) ([]*models.Bee, error) {
	if r.listExpiredErr != nil {
		return nil, r.listExpiredErr
	}
	return r.filter(func(b *models.Bee) bool {
		return b.HiveID != nil && b.OwnerID != nil && b.IsQueen() && b.IsExpired()
	}), nil
}

func (r *mockBeeRepository) EvictHive(ctx context.Context, hiveID uuid.UUID) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for _, b := range r.store.bees {
		if b.HiveID != nil && *b.HiveID == hiveID {
			b.HiveID = nil
			n++
		}
	}
	return n, nil
}

var _ repositories.BeeRepository = (*mockBeeRepository)(nil)

type mockHiveRepository struct {
	store     *memStore
	createErr error
}

func (r *mockHiveRepository) Create(ctx context.Context, hive *models.Hive) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, h := range r.store.hives {
		if h.GuildID == hive.GuildID && h.OwnerID == hive.OwnerID && h.Index == hive.Index {
			return apperrors.ErrConflict
		}
	}
	if hive.ID == uuid.Nil {
		hive.ID = uuid.New()
	}
	hc := *hive
	r.store.hives[hive.ID] = &hc
	return nil
}

func (r *mockHiveRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hive, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	h, ok := r.store.hives[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	hc := *h
	return &hc, nil
}

func (r *mockHiveRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Hive, error) {
	r.store.mu.Lock()
	r.store.locks = append(r.store.locks, "hive:"+id.String())
	r.store.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *mockHiveRepository) ListByOwner(ctx context.Context, realm models.Realm) ([]*models.Hive, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*models.Hive, 0)
	for _, h := range r.store.hives {
		if h.IsOwnedBy(realm) {
			hc := *h
			out = append(out, &hc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

var _ repositories.HiveRepository = (*mockHiveRepository)(nil)

type mockInventoryRepository struct {
	store        *memStore
	addToHiveErr error
	transferErr  error
}

func (r *mockInventoryRepository) AddToHive(ctx context.Context, deposits []models.HiveDeposit) error {
	if r.addToHiveErr != nil {
		return r.addToHiveErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, d := range deposits {
		inv, ok := r.store.hiveInv[d.HiveID]
		if !ok {
			inv = models.Inventory{}
			r.store.hiveInv[d.HiveID] = inv
		}
		if err := inv.Add(d.Item, d.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (r *mockInventoryRepository) GetHive(ctx context.Context, hiveID uuid.UUID) (models.Inventory, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return copyInventory(r.store.hiveInv[hiveID]), nil
}

func (r *mockInventoryRepository) GetUser(ctx context.Context, realm models.Realm) (models.Inventory, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return copyInventory(r.store.userInv[realm]), nil
}

func (r *mockInventoryRepository) addToUser(realm models.Realm, items models.Inventory) {
	inv, ok := r.store.userInv[realm]
	if !ok {
		inv = models.Inventory{}
		r.store.userInv[realm] = inv
	}
	inv.Merge(items)
}

func (r *mockInventoryRepository) AddToUser(ctx context.Context, realm models.Realm, items models.Inventory) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.addToUser(realm, items)
	return nil
}

func (r *mockInventoryRepository) RemoveFromUser(ctx context.Context, realm models.Realm, item string, quantity int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	inv := r.store.userInv[realm]
	if inv.Get(item) < quantity {
		return apperrors.ErrInsufficientQuantity
	}
	inv[item] -= quantity
	return nil
}

func (r *mockInventoryRepository) TransferHiveToUser(ctx context.Context, hive *models.Hive) (models.Inventory, error) {
	if r.transferErr != nil {
		return nil, r.transferErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	moved := copyInventory(r.store.hiveInv[hive.ID])
	delete(r.store.hiveInv, hive.ID)
	r.addToUser(models.Realm{GuildID: hive.GuildID, UserID: hive.OwnerID}, moved)
	return moved, nil
}

var _ repositories.InventoryRepository = (*mockInventoryRepository)(nil)

type mockCombinationRepository struct {
	store     *memStore
	recordErr error
}

func (r *mockCombinationRepository) Record(ctx context.Context, combo *models.DiscoveredCombination) (bool, error) {
	if r.recordErr != nil {
		return false, r.recordErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := comboKey{combo.GuildID, combo.OwnerID, combo.LeftType, combo.RightType}
	if _, ok := r.store.combos[key]; ok {
		return false, nil
	}
	c := *combo
	r.store.combos[key] = &c
	return true, nil
}

func (r *mockCombinationRepository) ListByOwner(ctx context.Context, realm models.Realm) ([]*models.DiscoveredCombination, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*models.DiscoveredCombination, 0)
	for k, v := range r.store.combos {
		if k.guildID == realm.GuildID && k.ownerID == realm.UserID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LeftType+out[i].RightType < out[j].LeftType+out[j].RightType
	})
	return out, nil
}

var _ repositories.CombinationRepository = (*mockCombinationRepository)(nil)

type mockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *mockNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *mockNotifier) sent() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

// stubDice returns queued ints first, then n, clamped to the requested range.
// Float64 always returns f.
type stubDice struct {
	mu   sync.Mutex
	ints []int
	n    int
	f    float64
}

func (d *stubDice) IntN(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.n
	if len(d.ints) > 0 {
		v, d.ints = d.ints[0], d.ints[1:]
	}
	if v >= n {
		return n - 1
	}
	return v
}

func (d *stubDice) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f
}

// testEnv wires every service over one memStore.
type testEnv struct {
	store     *memStore
	scoper    *mockScoper
	beeRepo   *mockBeeRepository
	hiveRepo  *mockHiveRepository
	invRepo   *mockInventoryRepository
	comboRepo *mockCombinationRepository
	notifier  *mockNotifier
	catalog   *genetics.Catalog
	dice      *stubDice
	metrics   *metrics.Metrics

	bees      BeeService
	hives     HiveService
	tick      TickService
	market    MarketService
	discovery DiscoveryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLogger(t, zap.NewNop())
}

func newTestEnvWithLogger(t *testing.T, logger *zap.Logger) *testEnv {
	t.Helper()

	catalog, err := genetics.NewDefaultCatalog()
	require.NoError(t, err)

	store := newMemStore()
	env := &testEnv{
		store:     store,
		scoper:    &mockScoper{store: store},
		beeRepo:   &mockBeeRepository{store: store},
		hiveRepo:  &mockHiveRepository{store: store},
		invRepo:   &mockInventoryRepository{store: store},
		comboRepo: &mockCombinationRepository{store: store},
		notifier:  &mockNotifier{},
		catalog:   catalog,
		dice:      &stubDice{},
		metrics:   metrics.New(),
	}

	env.bees = NewBeeService(env.scoper, env.beeRepo, env.hiveRepo, env.comboRepo, env.invRepo,
		catalog, names.Default(), env.dice, env.metrics, logger)
	env.hives = NewHiveService(env.scoper, env.hiveRepo, env.beeRepo, env.invRepo, logger)
	env.tick = NewTickService(env.scoper, env.beeRepo, env.hiveRepo, env.invRepo, env.bees,
		catalog, env.dice, env.notifier, env.metrics, logger)
	env.market = NewMarketService(env.scoper, env.invRepo, catalog, logger)
	env.discovery = NewDiscoveryService(env.scoper, env.comboRepo, catalog, logger)
	return env
}

// addBee stores a bee directly, bypassing the services.
func (e *testEnv) addBee(t *testing.T, realm models.Realm, caste, beeType string, stats genetics.Stats) *models.Bee {
	t.Helper()
	owner := realm.UserID
	bee := &models.Bee{
		GuildID:   realm.GuildID,
		OwnerID:   &owner,
		Name:      fmt.Sprintf("%s-%d", caste, len(e.store.bees)),
		Type:      beeType,
		Caste:     caste,
		Speed:     stats.Speed,
		Fertility: stats.Fertility,
		Lifetime:  stats.Lifetime,
	}
	require.NoError(t, e.beeRepo.Create(context.Background(), bee))
	return bee
}

// addHive stores a hive directly at the given slot.
func (e *testEnv) addHive(t *testing.T, realm models.Realm, index int) *models.Hive {
	t.Helper()
	hive := &models.Hive{Index: index, GuildID: realm.GuildID, OwnerID: realm.UserID}
	require.NoError(t, e.hiveRepo.Create(context.Background(), hive))
	return hive
}

// housedQueen stores a queen already placed in hive.
func (e *testEnv) housedQueen(t *testing.T, realm models.Realm, hive *models.Hive, beeType string, stats genetics.Stats) *models.Bee {
	t.Helper()
	queen := e.addBee(t, realm, models.CasteQueen, beeType, stats)
	queen.HiveID = &hive.ID
	require.NoError(t, e.beeRepo.Update(context.Background(), queen))
	return queen
}

// takenLocks returns the row locks taken so far and resets the log.
func (e *testEnv) takenLocks() []string {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	locks := e.store.locks
	e.store.locks = nil
	return locks
}

func (e *testEnv) bee(t *testing.T, id uuid.UUID) *models.Bee {
	t.Helper()
	b, err := e.beeRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (e *testEnv) hiveInventory(id uuid.UUID) models.Inventory {
	inv, _ := e.invRepo.GetHive(context.Background(), id)
	return inv
}
