package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/apiary-engine/pkg/models"
	"github.com/ekaya-inc/apiary-engine/pkg/services"
)

var testRealm = models.Realm{GuildID: 100, UserID: 7}

const testPrefix = "/api/guilds/100/users/7"

// mockBeeService records the last call and returns canned results.
type mockBeeService struct {
	bee   *models.Bee
	bees  []*models.Bee
	err   error
	realm models.Realm
	caste string
	ref   string
	name  string
	ids   []uuid.UUID
}

func (m *mockBeeService) Catch(_ context.Context, realm models.Realm, caste string) (*models.Bee, error) {
	m.realm, m.caste = realm, caste
	return m.bee, m.err
}

func (m *mockBeeService) Get(_ context.Context, realm models.Realm, beeID uuid.UUID) (*models.Bee, error) {
	m.realm, m.ids = realm, []uuid.UUID{beeID}
	return m.bee, m.err
}

func (m *mockBeeService) List(_ context.Context, realm models.Realm) ([]*models.Bee, error) {
	m.realm = realm
	return m.bees, m.err
}

func (m *mockBeeService) Find(_ context.Context, realm models.Realm, idOrName string) (*models.Bee, error) {
	m.realm, m.ref = realm, idOrName
	return m.bee, m.err
}

func (m *mockBeeService) Rename(_ context.Context, realm models.Realm, beeID uuid.UUID, name string) (*models.Bee, error) {
	m.realm, m.ids, m.name = realm, []uuid.UUID{beeID}, name
	return m.bee, m.err
}

func (m *mockBeeService) Release(_ context.Context, realm models.Realm, beeID uuid.UUID) error {
	m.realm, m.ids = realm, []uuid.UUID{beeID}
	return m.err
}

func (m *mockBeeService) Breed(_ context.Context, realm models.Realm, beeA, beeB uuid.UUID) (*models.Bee, error) {
	m.realm, m.ids = realm, []uuid.UUID{beeA, beeB}
	return m.bee, m.err
}

func (m *mockBeeService) Die(_ context.Context, beeID uuid.UUID) ([]*models.Bee, error) {
	m.ids = []uuid.UUID{beeID}
	return m.bees, m.err
}

var _ services.BeeService = (*mockBeeService)(nil)

type mockHiveService struct {
	hive    *models.Hive
	details *models.HiveDetails
	list    []*models.HiveDetails
	cleared *services.ClearResult
	err     error
	getErr  error
	name    string
	beeID   uuid.UUID
	hiveID  uuid.UUID
}

func (m *mockHiveService) EnsureFirstHive(_ context.Context, _ models.Realm) ([]*models.Hive, error) {
	return []*models.Hive{m.hive}, m.err
}

func (m *mockHiveService) Create(_ context.Context, _ models.Realm) (*models.Hive, error) {
	return m.hive, m.err
}

func (m *mockHiveService) List(_ context.Context, _ models.Realm) ([]*models.HiveDetails, error) {
	return m.list, m.err
}

func (m *mockHiveService) Get(_ context.Context, _ models.Realm, hiveID uuid.UUID) (*models.HiveDetails, error) {
	m.hiveID = hiveID
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.details, m.err
}

func (m *mockHiveService) GetByName(_ context.Context, _ models.Realm, name string) (*models.HiveDetails, error) {
	m.name = name
	return m.details, m.err
}

func (m *mockHiveService) Place(_ context.Context, _ models.Realm, beeID, hiveID uuid.UUID) error {
	m.beeID, m.hiveID = beeID, hiveID
	return m.err
}

func (m *mockHiveService) Clear(_ context.Context, _ models.Realm, hiveID uuid.UUID) (*services.ClearResult, error) {
	m.hiveID = hiveID
	return m.cleared, m.err
}

var _ services.HiveService = (*mockHiveService)(nil)

type mockMarketService struct {
	prices map[string]int
	items  []models.Item
	sale   *services.Sale
	err    error
	item   string
	qty    int
}

func (m *mockMarketService) Price(item string) (int, error) {
	if p, ok := m.prices[item]; ok {
		return p, nil
	}
	return 0, m.err
}

func (m *mockMarketService) Sell(_ context.Context, _ models.Realm, item string, quantity int) (*services.Sale, error) {
	m.item, m.qty = item, quantity
	return m.sale, m.err
}

func (m *mockMarketService) Inventory(_ context.Context, _ models.Realm) ([]models.Item, error) {
	return m.items, m.err
}

var _ services.MarketService = (*mockMarketService)(nil)

type mockDiscoveryService struct {
	combos []*models.DiscoveredCombination
	edges  []models.CombinationEdge
	err    error
}

func (m *mockDiscoveryService) List(_ context.Context, _ models.Realm) ([]*models.DiscoveredCombination, error) {
	return m.combos, m.err
}

func (m *mockDiscoveryService) Map(_ context.Context, _ models.Realm) ([]models.CombinationEdge, error) {
	return m.edges, m.err
}

var _ services.DiscoveryService = (*mockDiscoveryService)(nil)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error {
	return m.err
}

// serve routes a request through a mux so path values are populated the
// same way they are in production.
func serve(t *testing.T, register func(*http.ServeMux), method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	register(mux)

	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func testBee(name, caste string) *models.Bee {
	owner := testRealm.UserID
	return &models.Bee{
		ID:        uuid.New(),
		GuildID:   testRealm.GuildID,
		OwnerID:   &owner,
		Name:      name,
		Type:      "forest",
		Caste:     caste,
		Speed:     10,
		Fertility: 1,
		Lifetime:  100,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func testHive(index int) *models.Hive {
	return &models.Hive{
		ID:        uuid.New(),
		Index:     index,
		GuildID:   testRealm.GuildID,
		OwnerID:   testRealm.UserID,
		CreatedAt: time.Now(),
	}
}
