package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pmwedding/invitation/internal/feed"
	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/session"
	"github.com/pmwedding/invitation/internal/wishes"
)

type stubWishStore struct {
	stored    wishes.Wish
	submitErr error
	listErr   error
}

func (s stubWishStore) Submit(context.Context, wishes.SubmitRequest) (wishes.Wish, error) {
	return s.stored, s.submitErr
}

func (s stubWishStore) List(context.Context) ([]wishes.Wish, error) {
	return nil, s.listErr
}

func submitWish(handler http.Handler, cookies []*http.Cookie, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/wishes", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error body %q: %v", recorder.Body.String(), err)
	}
	return payload["error"]
}

const congratsPayload = `{"message":"Congrats!","number_of_guests":2,"will_attend":true}`

func TestSubmitWishStoresOneRowAndRejectsSecond(t *testing.T) {
	stack := newTestStack(t, nil)
	guest := stack.seedGuest(t, 7, "Sophal", "abc123")

	first := submitWish(stack.handler, sessionCookies(guest), congratsPayload)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusCreated, first.Code, first.Body.String())
	}
	var created submitWishResponse
	if err := json.Unmarshal(first.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Wish.GuestID != 7 || created.Wish.Name != "Sophal" || created.Wish.Guests != 2 || !created.Wish.Attending {
		t.Fatalf("unexpected created wish: %#v", created.Wish)
	}

	second := submitWish(stack.handler, sessionCookies(guest), `{"message":"Once more","number_of_guests":1,"will_attend":false}`)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, second.Code)
	}
	if code := decodeError(t, second); code != errorWishAlreadySubmitted {
		t.Fatalf("unexpected error code %q", code)
	}
	if count := stack.countWishes(t, 7); count != 1 {
		t.Fatalf("expected exactly one wish for guest 7, found %d", count)
	}
}

func TestSubmitWishReturnsFeedWithUpdatedStats(t *testing.T) {
	stack := newTestStack(t, nil)
	guest := stack.seedGuest(t, 7, "Sophal", "abc123")
	stack.seedGuest(t, 8, "Malis", "def456")
	_, err := stack.wishes.Submit(context.Background(), wishes.SubmitRequest{
		GuestID:        8,
		Name:           "Malis",
		Message:        "Sorry to miss it",
		NumberOfGuests: 3,
		WillAttend:     false,
	})
	if err != nil {
		t.Fatalf("failed to seed wish: %v", err)
	}

	recorder := submitWish(stack.handler, sessionCookies(guest), congratsPayload)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}
	var created submitWishResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	entries := created.Feed.Entries
	if len(entries) != 2 || entries[0].ID != created.Wish.ID || entries[0].GuestID != 7 {
		t.Fatalf("expected the new wish to lead the feed once, got %#v", entries)
	}
	expected := feed.Stats{TotalWishes: 2, AttendingCount: 1, TotalGuests: 2}
	if created.Feed.Stats != expected {
		t.Fatalf("expected stats %#v, got %#v", expected, created.Feed.Stats)
	}
}

func TestSubmitWishFeedKeepsNewWishWhenRefetchFails(t *testing.T) {
	stored := wishes.Wish{ID: 41, GuestID: 7, Name: "Sophal", Message: "Congrats!", NumberOfGuests: 2, WillAttend: true, CreatedAt: time.Now().UTC()}
	stack := newTestStack(t, func(deps *Dependencies) {
		deps.Directory = stubDirectory{guest: guests.Guest{ID: 7, Name: "Sophal"}}
		deps.Wishes = stubWishStore{stored: stored, listErr: errors.New("connection refused")}
	})

	recorder := submitWish(stack.handler, sessionCookies(guests.Guest{ID: 7, Name: "Sophal", LinkToken: "abc123"}), congratsPayload)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}
	var created submitWishResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(created.Feed.Entries) != 1 || created.Feed.Entries[0].ID != 41 {
		t.Fatalf("expected only the new wish, got %#v", created.Feed.Entries)
	}
	if created.Feed.Stats.TotalWishes != 1 || created.Feed.Stats.TotalGuests != 2 {
		t.Fatalf("unexpected stats %#v", created.Feed.Stats)
	}
}

func TestSubmitWishUsesDirectoryIdentityOverIDCookie(t *testing.T) {
	stack := newTestStack(t, nil)
	guest := stack.seedGuest(t, 7, "Sophal", "abc123")

	cookies := []*http.Cookie{
		{Name: session.TokenCookieName, Value: guest.LinkToken},
		{Name: session.NameCookieName, Value: session.EncodeName("Someone Else")},
		{Name: session.IDCookieName, Value: "99"},
	}
	recorder := submitWish(stack.handler, cookies, congratsPayload)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}
	if stack.countWishes(t, 7) != 1 || stack.countWishes(t, 99) != 0 {
		t.Fatalf("expected the wish to be stored for the token's guest")
	}
}

func TestSubmitEmptyWishIsIgnored(t *testing.T) {
	stack := newTestStack(t, nil)
	guest := stack.seedGuest(t, 7, "Sophal", "abc123")

	recorder := submitWish(stack.handler, sessionCookies(guest), `{"message":"   ","number_of_guests":2,"will_attend":true}`)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if count := stack.countWishes(t, 7); count != 0 {
		t.Fatalf("expected no stored wish, found %d", count)
	}
}

func TestSubmitWishValidation(t *testing.T) {
	stack := newTestStack(t, nil)
	guest := stack.seedGuest(t, 7, "Sophal", "abc123")

	partySize := submitWish(stack.handler, sessionCookies(guest), `{"message":"Hi","number_of_guests":9,"will_attend":true}`)
	if partySize.Code != http.StatusBadRequest || decodeError(t, partySize) != errorInvalidPartySize {
		t.Fatalf("expected invalid party size, got %d %s", partySize.Code, partySize.Body.String())
	}

	malformed := submitWish(stack.handler, sessionCookies(guest), `{"message":`)
	if malformed.Code != http.StatusBadRequest || decodeError(t, malformed) != errorInvalidRequest {
		t.Fatalf("expected invalid request, got %d %s", malformed.Code, malformed.Body.String())
	}
}

func TestSubmitWishRequiresSession(t *testing.T) {
	stack := newTestStack(t, nil)

	missing := submitWish(stack.handler, nil, congratsPayload)
	if missing.Code != http.StatusUnauthorized || decodeError(t, missing) != errorNoSession {
		t.Fatalf("expected no_session, got %d %s", missing.Code, missing.Body.String())
	}

	invalid := map[string][]*http.Cookie{
		"revoked token": sessionCookies(guests.Guest{ID: 9, Name: "Ghost", LinkToken: "revoked"}),
		"token only":    {{Name: session.TokenCookieName, Value: "revoked"}},
	}
	for name, cookies := range invalid {
		stale := submitWish(stack.handler, cookies, congratsPayload)
		if stale.Code != http.StatusUnauthorized || decodeError(t, stale) != errorSessionInvalid {
			t.Fatalf("%s: expected session_invalid, got %d %s", name, stale.Code, stale.Body.String())
		}
		assertSessionCleared(t, stale)
	}
	if count := stack.countWishes(t, 9); count != 0 {
		t.Fatalf("expected no stored wish, found %d", count)
	}
}

func TestSubmitWishStoreFailureIsGeneric(t *testing.T) {
	stack := newTestStack(t, func(deps *Dependencies) {
		deps.Directory = stubDirectory{guest: guests.Guest{ID: 7, Name: "Sophal"}}
		deps.Wishes = stubWishStore{submitErr: errors.New("disk I/O error")}
	})

	recorder := submitWish(stack.handler, sessionCookies(guests.Guest{ID: 7, Name: "Sophal", LinkToken: "abc123"}), congratsPayload)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
	if strings.Contains(recorder.Body.String(), "disk I/O") {
		t.Fatalf("store error leaked into response: %s", recorder.Body.String())
	}
	if decodeError(t, recorder) != errorSubmitFailed {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestSubmitWishInFlightIsConflict(t *testing.T) {
	stack := newTestStack(t, func(deps *Dependencies) {
		deps.Directory = stubDirectory{guest: guests.Guest{ID: 7, Name: "Sophal"}}
		deps.Wishes = stubWishStore{submitErr: wishes.ErrSubmissionInFlight}
	})

	recorder := submitWish(stack.handler, sessionCookies(guests.Guest{ID: 7, Name: "Sophal", LinkToken: "abc123"}), congratsPayload)

	if recorder.Code != http.StatusConflict || decodeError(t, recorder) != errorSubmissionInProgress {
		t.Fatalf("expected submission_in_progress conflict, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func listWishes(t *testing.T, handler http.Handler, path string) feed.View {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var view feed.View
	if err := json.Unmarshal(recorder.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	return view
}

func TestSubmitWishForRemovedGuestClearsSession(t *testing.T) {
	stack := newTestStack(t, func(deps *Dependencies) {
		deps.Directory = stubDirectory{guest: guests.Guest{ID: 7, Name: "Sophal"}}
		deps.Wishes = stubWishStore{submitErr: wishes.ErrUnknownGuest}
	})

	recorder := submitWish(stack.handler, sessionCookies(guests.Guest{ID: 7, Name: "Sophal", LinkToken: "abc123"}), congratsPayload)

	if recorder.Code != http.StatusUnauthorized || decodeError(t, recorder) != errorSessionInvalid {
		t.Fatalf("expected session_invalid, got %d %s", recorder.Code, recorder.Body.String())
	}
	assertSessionCleared(t, recorder)
}

func TestSubmittedWishReferencesExistingGuest(t *testing.T) {
	stack := newTestStack(t, nil)

	_, err := stack.wishes.Submit(context.Background(), wishes.SubmitRequest{GuestID: 404, Name: "Nobody", Message: "Hello", NumberOfGuests: 1})
	if !errors.Is(err, wishes.ErrUnknownGuest) {
		t.Fatalf("expected unknown guest error, got %v", err)
	}
	if count := stack.countWishes(t, 404); count != 0 {
		t.Fatalf("expected no stored wish, found %d", count)
	}
}

func TestListWishesFiltersAndSummarises(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.seedGuest(t, 7, "Sophal", "abc123")
	stack.seedGuest(t, 8, "Malis", "def456")
	requests := []wishes.SubmitRequest{
		{GuestID: 7, Name: "Sophal", Message: "Congrats!", NumberOfGuests: 2, WillAttend: true},
		{GuestID: 8, Name: "Malis", Message: "Sorry to miss it", NumberOfGuests: 1, WillAttend: false},
	}
	for _, request := range requests {
		if _, err := stack.wishes.Submit(context.Background(), request); err != nil {
			t.Fatalf("seed submit failed: %v", err)
		}
	}

	all := listWishes(t, stack.handler, "/api/wishes")
	if len(all.Entries) != 2 {
		t.Fatalf("expected two wishes, got %d", len(all.Entries))
	}

	attending := listWishes(t, stack.handler, "/api/wishes?filter=attending")
	if len(attending.Entries) != 1 || attending.Entries[0].GuestID != 7 {
		t.Fatalf("unexpected attending entries: %#v", attending.Entries)
	}
	if attending.Stats.TotalWishes != 2 || attending.Stats.AttendingCount != 1 || attending.Stats.TotalGuests != 2 {
		t.Fatalf("unexpected stats: %#v", attending.Stats)
	}
}

func TestListWishesFailureYieldsEmptyFeed(t *testing.T) {
	stack := newTestStack(t, func(deps *Dependencies) {
		deps.Wishes = stubWishStore{listErr: errors.New("connection refused")}
	})

	view := listWishes(t, stack.handler, "/api/wishes")
	if view.Entries == nil || len(view.Entries) != 0 {
		t.Fatalf("expected an empty feed, got %#v", view.Entries)
	}
}
