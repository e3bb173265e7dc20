package reservation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"loteo/internal/domain/lot"
	"loteo/internal/domain/lotfeed"
	"loteo/internal/domain/notification"
	"loteo/internal/domain/payment"
	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/logging"
)

type fakeGateway struct {
	mu          sync.Mutex
	created     []payment.CreateRequest
	verdicts    map[string]*payment.CommitResponse
	createErr   error
	commitErr   error
	commitCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verdicts: map[string]*payment.CommitResponse{}}
}

func (g *fakeGateway) Create(_ context.Context, req payment.CreateRequest) (*payment.CreateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	return &payment.CreateResponse{Token: "tok-" + req.BuyOrder, URL: "https://webpay.test/initTransaction"}, nil
}

func (g *fakeGateway) Commit(_ context.Context, token string) (*payment.CommitResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commitCalls++
	if g.commitErr != nil {
		return nil, g.commitErr
	}
	if v, ok := g.verdicts[token]; ok {
		cp := *v
		return &cp, nil
	}
	return &payment.CommitResponse{Status: payment.StatusFailed, ResponseCode: -1}, nil
}

func (g *fakeGateway) authorize(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verdicts[token] = &payment.CommitResponse{
		Status:            payment.StatusAuthorized,
		ResponseCode:      0,
		AuthorizationCode: "1213",
		CardDetail:        payment.CardDetail{CardNumber: "6623"},
	}
}

func (g *fakeGateway) decline(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verdicts[token] = &payment.CommitResponse{Status: payment.StatusFailed, ResponseCode: -1}
}

type recordingFeed struct {
	mu     sync.Mutex
	events []lotfeed.Event
}

func (f *recordingFeed) Publish(ev lotfeed.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *recordingFeed) ofType(typ string) []lotfeed.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []lotfeed.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notification.PaidEvent
}

func (d *recordingDispatcher) Dispatch(ev notification.PaidEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	gw     *fakeGateway
	feed   *recordingFeed
	paid   *recordingDispatcher
	clk    *clock.MockClock
	ctx    context.Context
	t      *testing.T
	lotIDs []int64
}

const testLockDuration = 5 * time.Minute

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:reservation_test_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// one connection: transactions queue up instead of failing with "database is locked"
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&lot.Lot{}, &Reservation{}, &LotLock{}, &payment.Transaction{}); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	if _, err := lot.NewRepository(db).Seed(context.Background(), lot.All()[:60], 0); err != nil {
		t.Fatalf("failed to seed lots: %v", err)
	}
	return db
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{
		db:   db,
		gw:   newFakeGateway(),
		feed: &recordingFeed{},
		paid: &recordingDispatcher{},
		clk:  clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		ctx:  context.Background(),
		t:    t,
	}
	f.svc = NewService(db, f.gw, f.feed, f.paid, f.clk, logging.Discard(), Options{
		LockDuration: testLockDuration,
		DefaultFee:   500000,
		ReturnURL:    "http://localhost:8080/api/v1/payments/webpay/return",
	})
	return f
}

func testBuyer() Buyer {
	return Buyer{
		Name:  "María Soto",
		Email: "Maria.Soto@Example.cl",
		Phone: "+56912345678",
		RUT:   "12.345.678-5",
	}
}

func (f *fixture) reserve(lotID int64, session string) (*ReserveResult, error) {
	return f.svc.Reserve(f.ctx, ReserveInput{LotID: lotID, SessionID: session, Buyer: testBuyer()})
}

func (f *fixture) mustReserve(lotID int64, session string) *ReserveResult {
	f.t.Helper()
	res, err := f.reserve(lotID, session)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) lot(id int64) *lot.Lot {
	f.t.Helper()
	var l lot.Lot
	require.NoError(f.t, f.db.First(&l, "id = ?", id).Error)
	return &l
}

// lock returns nil when the lot has no lock row.
func (f *fixture) lock(lotID int64) *LotLock {
	f.t.Helper()
	var locks []LotLock
	require.NoError(f.t, f.db.Where("lot_id = ?", lotID).Find(&locks).Error)
	if len(locks) == 0 {
		return nil
	}
	return &locks[0]
}

func (f *fixture) reservation(id string) *Reservation {
	f.t.Helper()
	var r Reservation
	require.NoError(f.t, f.db.First(&r, "id = ?", id).Error)
	return &r
}

func (f *fixture) reservationsFor(lotID int64) []Reservation {
	f.t.Helper()
	var out []Reservation
	require.NoError(f.t, f.db.Where("lot_id = ?", lotID).Order("created_at asc").Find(&out).Error)
	return out
}

func (f *fixture) transaction(token string) *payment.Transaction {
	f.t.Helper()
	var tx payment.Transaction
	require.NoError(f.t, f.db.First(&tx, "token = ?", token).Error)
	return &tx
}
