package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmwedding/invitation/internal/changefeed"
	"github.com/pmwedding/invitation/internal/database"
	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/session"
	"github.com/pmwedding/invitation/internal/wedding"
	"github.com/pmwedding/invitation/internal/wishes"
)

var testWeddingDate = time.Date(2026, time.April, 25, 17, 0, 0, 0, time.FixedZone("ICT", 7*60*60))

type testStack struct {
	db            *gorm.DB
	directory     *guests.Directory
	wishes        *wishes.Service
	dispatcher    *changefeed.Dispatcher
	subscriptions *countingSubscriber
	handler       http.Handler
}

// countingSubscriber tracks subscriptions that have not been released yet.
type countingSubscriber struct {
	changefeed.Subscriber
	active atomic.Int64
}

func (s *countingSubscriber) Subscribe(ctx context.Context, table string, types ...changefeed.EventType) (<-chan changefeed.Event, func()) {
	events, release := s.Subscriber.Subscribe(ctx, table, types...)
	s.active.Add(1)
	var once sync.Once
	return events, func() {
		once.Do(func() {
			release()
			s.active.Add(-1)
		})
	}
}

func newTestStack(t *testing.T, configure func(*Dependencies)) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dispatcher := changefeed.NewDispatcher()
	subscriptions := &countingSubscriber{Subscriber: dispatcher}
	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "wedding.db"),
		Plugins: []gorm.Plugin{changefeed.NewGormPlugin(changefeed.GormPluginConfig{
			Publisher: dispatcher,
			Tables:    []string{wishes.TableName},
		})},
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})

	directory, err := guests.NewDirectory(guests.DirectoryConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to construct directory: %v", err)
	}
	wishService, err := wishes.NewService(wishes.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to construct wish service: %v", err)
	}

	deps := Dependencies{
		Directory:         directory,
		Sessions:          session.NewEstablisher(session.EstablisherConfig{Secure: true}),
		Wishes:            wishService,
		Changes:           subscriptions,
		Wedding:           wedding.NewDetails("P&M", "Grand Ballroom, Paradise Hotel", testWeddingDate),
		FeedPollInterval:  time.Hour,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	}
	if configure != nil {
		configure(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &testStack{
		db:            db,
		directory:     directory,
		wishes:        wishService,
		dispatcher:    dispatcher,
		subscriptions: subscriptions,
		handler:       handler,
	}
}

func (s *testStack) seedGuest(t *testing.T, id int64, name, token string) guests.Guest {
	t.Helper()
	guest := guests.Guest{ID: id, Name: name, LinkToken: token, CreatedAt: time.Now().UTC()}
	if err := s.db.Create(&guest).Error; err != nil {
		t.Fatalf("failed to seed guest: %v", err)
	}
	return guest
}

func (s *testStack) countWishes(t *testing.T, guestID int64) int64 {
	t.Helper()
	var count int64
	if err := s.db.WithContext(context.Background()).Model(&wishes.Wish{}).Where("guest_id = ?", guestID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count wishes: %v", err)
	}
	return count
}

func sessionCookies(guest guests.Guest) []*http.Cookie {
	return []*http.Cookie{
		{Name: session.TokenCookieName, Value: guest.LinkToken},
		{Name: session.NameCookieName, Value: session.EncodeName(guest.Name)},
		{Name: session.IDCookieName, Value: strconv.FormatInt(guest.ID, 10)},
	}
}

func assertSessionCleared(t *testing.T, recorder *httptest.ResponseRecorder) {
	t.Helper()
	cleared := recorder.Result().Cookies()
	if len(cleared) != 3 {
		t.Fatalf("expected three cleared cookies, got %d", len(cleared))
	}
	for _, cookie := range cleared {
		if cookie.MaxAge >= 0 {
			t.Fatalf("cookie %s should be expired", cookie.Name)
		}
	}
}

func indexCookies(cookies []*http.Cookie) map[string]*http.Cookie {
	indexed := make(map[string]*http.Cookie, len(cookies))
	for _, cookie := range cookies {
		indexed[cookie.Name] = cookie
	}
	return indexed
}
