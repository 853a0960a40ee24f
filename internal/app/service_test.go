package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"oficio/api/internal/auth"
	"oficio/api/internal/config"
	"oficio/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn        func(context.Context, string) (store.User, error)
	getSnapshotFn        func(context.Context, string) (store.Snapshot, error)
	insertRequestFn      func(context.Context, store.Request) error
	cancelRequestFn      func(context.Context, string, string) (bool, error)
	confirmStartFn       func(context.Context, string) (bool, error)
	markProFinishedFn    func(context.Context, string) (bool, error)
	markClientFinishedFn func(context.Context, string) (bool, error)
	insertOfferFn        func(context.Context, store.Offer) error
	getOfferFn           func(context.Context, string, string) (store.Offer, error)
	getOfferByProFn      func(context.Context, string, string) (store.Offer, error)
	updateOfferFn        func(context.Context, string, int64, string, []store.OfferItem) (bool, error)
	acceptOfferFn        func(context.Context, string, string) (bool, bool, error)
	rejectOfferFn        func(context.Context, string, string, string) (bool, error)
	getConversationFn    func(context.Context, string) (store.Conversation, error)
	getConvByPairFn      func(context.Context, string, string) (store.Conversation, error)
	insertConversationFn func(context.Context, store.Conversation) error
	insertMessageFn      func(context.Context, store.Message) error
	listListingsFn       func(context.Context, string) ([]store.ConversationListing, error)
	insertEventFn        func(context.Context, store.TimelineEvent) error
	insertRatingFn       func(context.Context, store.Rating) (bool, error)
	advanceInteractionFn func(context.Context, string, string, string) error
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: id, Role: "client"}, nil
}
func (f *fakeStore) GetUserByEmail(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) InsertRequest(ctx context.Context, request store.Request) error {
	if f.insertRequestFn != nil {
		return f.insertRequestFn(ctx, request)
	}
	return nil
}
func (f *fakeStore) GetRequest(context.Context, string) (store.Request, error) {
	return store.Request{}, sql.ErrNoRows
}
func (f *fakeStore) GetSnapshot(ctx context.Context, requestID string) (store.Snapshot, error) {
	if f.getSnapshotFn != nil {
		return f.getSnapshotFn(ctx, requestID)
	}
	return store.Snapshot{}, sql.ErrNoRows
}
func (f *fakeStore) ListRequestsByOwner(context.Context, string) ([]store.Request, error) {
	return nil, nil
}
func (f *fakeStore) ListRequestsForPro(context.Context, string) ([]store.Request, error) {
	return nil, nil
}
func (f *fakeStore) CancelRequest(ctx context.Context, requestID, ownerID string) (bool, error) {
	if f.cancelRequestFn != nil {
		return f.cancelRequestFn(ctx, requestID, ownerID)
	}
	return false, nil
}
func (f *fakeStore) ConfirmStart(ctx context.Context, requestID string) (bool, error) {
	if f.confirmStartFn != nil {
		return f.confirmStartFn(ctx, requestID)
	}
	return false, nil
}
func (f *fakeStore) MarkProFinished(ctx context.Context, requestID string) (bool, error) {
	if f.markProFinishedFn != nil {
		return f.markProFinishedFn(ctx, requestID)
	}
	return false, nil
}
func (f *fakeStore) MarkClientFinished(ctx context.Context, requestID string) (bool, error) {
	if f.markClientFinishedFn != nil {
		return f.markClientFinishedFn(ctx, requestID)
	}
	return false, nil
}
func (f *fakeStore) InsertOffer(ctx context.Context, offer store.Offer) error {
	if f.insertOfferFn != nil {
		return f.insertOfferFn(ctx, offer)
	}
	return nil
}
func (f *fakeStore) GetOffer(ctx context.Context, requestID, offerID string) (store.Offer, error) {
	if f.getOfferFn != nil {
		return f.getOfferFn(ctx, requestID, offerID)
	}
	return store.Offer{}, sql.ErrNoRows
}
func (f *fakeStore) GetOfferByPro(ctx context.Context, requestID, proID string) (store.Offer, error) {
	if f.getOfferByProFn != nil {
		return f.getOfferByProFn(ctx, requestID, proID)
	}
	return store.Offer{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateOffer(ctx context.Context, offerID string, amount int64, currency string, items []store.OfferItem) (bool, error) {
	if f.updateOfferFn != nil {
		return f.updateOfferFn(ctx, offerID, amount, currency, items)
	}
	return false, nil
}
func (f *fakeStore) AcceptOffer(ctx context.Context, requestID, proID string) (bool, bool, error) {
	if f.acceptOfferFn != nil {
		return f.acceptOfferFn(ctx, requestID, proID)
	}
	return false, false, nil
}
func (f *fakeStore) RejectOffer(ctx context.Context, requestID, proID, reason string) (bool, error) {
	if f.rejectOfferFn != nil {
		return f.rejectOfferFn(ctx, requestID, proID, reason)
	}
	return false, nil
}
func (f *fakeStore) GetConversation(ctx context.Context, id string) (store.Conversation, error) {
	if f.getConversationFn != nil {
		return f.getConversationFn(ctx, id)
	}
	return store.Conversation{}, sql.ErrNoRows
}
func (f *fakeStore) GetConversationByPair(ctx context.Context, requestID, proID string) (store.Conversation, error) {
	if f.getConvByPairFn != nil {
		return f.getConvByPairFn(ctx, requestID, proID)
	}
	return store.Conversation{}, sql.ErrNoRows
}
func (f *fakeStore) InsertConversation(ctx context.Context, conv store.Conversation) error {
	if f.insertConversationFn != nil {
		return f.insertConversationFn(ctx, conv)
	}
	return nil
}
func (f *fakeStore) InsertMessage(ctx context.Context, message store.Message) error {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, message)
	}
	return nil
}
func (f *fakeStore) ListMessages(context.Context, string) ([]store.Message, error) { return nil, nil }
func (f *fakeStore) ListConversationListings(ctx context.Context, viewerID string) ([]store.ConversationListing, error) {
	if f.listListingsFn != nil {
		return f.listListingsFn(ctx, viewerID)
	}
	return nil, nil
}
func (f *fakeStore) MarkConversationRead(context.Context, string, string) error { return nil }
func (f *fakeStore) InsertTimelineEvent(ctx context.Context, event store.TimelineEvent) error {
	if f.insertEventFn != nil {
		return f.insertEventFn(ctx, event)
	}
	return nil
}
func (f *fakeStore) InsertRating(ctx context.Context, rating store.Rating) (bool, error) {
	if f.insertRatingFn != nil {
		return f.insertRatingFn(ctx, rating)
	}
	return true, nil
}
func (f *fakeStore) AdvanceInteraction(ctx context.Context, requestID, proID, status string) error {
	if f.advanceInteractionFn != nil {
		return f.advanceInteractionFn(ctx, requestID, proID, status)
	}
	return nil
}

type fakeSessions struct {
	refresh map[string]store.User
	revoked map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: map[string]store.User{}, revoked: map[string]bool{}}
}

func (f *fakeSessions) SaveRefreshSessionFor(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.refresh[tokenHash] = user
	return nil
}
func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	user, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, errors.New("token not found or expired")
	}
	return user, nil
}
func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.refresh, tokenHash)
	return nil
}
func (f *fakeSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revoked[jti] = true
	return nil
}
func (f *fakeSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

func testService(data *fakeStore) *Service {
	return newServiceForTest(testConfig(), data, newFakeSessions())
}

func clientSession(userID string) Session {
	return Session{UserID: userID, UserName: userID, Role: "client"}
}

func proSession(userID string) Session {
	return Session{UserID: userID, UserName: userID, Role: "professional"}
}

func openSnapshot(requestID, ownerID string, offers ...store.Offer) store.Snapshot {
	return store.Snapshot{
		Request: store.Request{
			ID:             requestID,
			OwnerID:        ownerID,
			Category:       "Fontanería",
			RawStatus:      "open",
			TrackingStatus: "none",
		},
		Offers: offers,
	}
}

func offerInput(amount int64) OfferInput {
	return OfferInput{
		Amount: amount,
		Items:  []store.OfferItem{{Description: "Mano de obra", Price: amount}},
	}
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Code
}

func TestSessionRoundTrip(t *testing.T) {
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Ana", Role: "client"}, nil
		},
	}
	svc := testService(data)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Role != "client" || session.UserName != "Ana" {
		t.Fatalf("unexpected session: %+v", session)
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != "usr_1" || parsed.Role != "client" {
		t.Fatalf("unexpected parsed session: %+v", parsed)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Ana", Role: "client"}, nil
		},
	}
	svc := testService(data)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.SessionFromToken(ctx, session.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected revoked token to be invalid, got %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected refresh after logout to fail")
	}
}

func TestRefreshRotatesAndReloadsRole(t *testing.T) {
	role := "client"
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Ana", Role: role}, nil
		},
	}
	svc := testService(data)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	role = "professional"
	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.Role != "professional" {
		t.Fatalf("expected refreshed role professional, got %q", rotated.Role)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected old refresh token to be dead after rotation")
	}
}

func TestAcceptOfferCascade(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", RequestID: "req_1", ProID: "usr_a", Amount: 15000, Currency: "EUR", Status: store.OfferPending},
		store.Offer{ID: "off_b", RequestID: "req_1", ProID: "usr_b", Amount: 12000, Currency: "EUR", Status: store.OfferPending},
	)
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferFn: func(_ context.Context, _, offerID string) (store.Offer, error) {
			for _, offer := range snap.Offers {
				if offer.ID == offerID {
					return offer, nil
				}
			}
			return store.Offer{}, sql.ErrNoRows
		},
		acceptOfferFn: func(_ context.Context, _, proID string) (bool, bool, error) {
			for i := range snap.Offers {
				if snap.Offers[i].ProID == proID {
					snap.Offers[i].Status = store.OfferAccepted
				} else if snap.Offers[i].Status == store.OfferPending {
					snap.Offers[i].Status = store.OfferRejected
					snap.Offers[i].RejectionReason = store.CascadeRejectionReason
				}
			}
			snap.AssignedProID = proID
			snap.TrackingStatus = "contracted"
			return true, false, nil
		},
	}
	svc := testService(data)

	payload, err := svc.AcceptOffer(context.Background(), clientSession("usr_client"), "req_1", "off_a")
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	offers := payload["offers"].([]map[string]any)
	if len(offers) != 2 {
		t.Fatalf("owner should see both offers, got %d", len(offers))
	}
	accepted := 0
	for _, offer := range offers {
		switch offer["status"] {
		case store.OfferAccepted:
			accepted++
		case store.OfferRejected:
			if offer["rejectionReason"] != store.CascadeRejectionReason {
				t.Fatalf("cascade reason missing, got %v", offer["rejectionReason"])
			}
		default:
			t.Fatalf("offer left in status %v", offer["status"])
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted offer, got %d", accepted)
	}
	// Contracted but not started: the owner still sees the offer stage.
	if payload["status"] != "PRESUPUESTADA" {
		t.Fatalf("unexpected derived status %v", payload["status"])
	}
}

func TestAcceptOfferConflict(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferPending},
	)
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferFn: func(context.Context, string, string) (store.Offer, error) {
			return snap.Offers[0], nil
		},
		acceptOfferFn: func(context.Context, string, string) (bool, bool, error) {
			return false, false, nil
		},
	}
	svc := testService(data)

	_, err := svc.AcceptOffer(context.Background(), clientSession("usr_client"), "req_1", "off_a")
	if code := domainCode(t, err); code != "OFFER_CONFLICT" {
		t.Fatalf("expected OFFER_CONFLICT, got %s", code)
	}
}

func TestAcceptOfferIdempotent(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferFn: func(context.Context, string, string) (store.Offer, error) {
			return snap.Offers[0], nil
		},
		acceptOfferFn: func(context.Context, string, string) (bool, bool, error) {
			return false, true, nil
		},
	}
	svc := testService(data)

	if _, err := svc.AcceptOffer(context.Background(), clientSession("usr_client"), "req_1", "off_a"); err != nil {
		t.Fatalf("re-accepting the accepted offer should be a no-op, got %v", err)
	}
}

func TestAcceptOfferOnlyOwner(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferPending},
	)
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	svc := testService(data)

	_, err := svc.AcceptOffer(context.Background(), proSession("usr_a"), "req_1", "off_a")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestSubmitOfferValidatesTerms(t *testing.T) {
	fetched := false
	inserted := false
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) {
			fetched = true
			return openSnapshot("req_1", "usr_client"), nil
		},
		insertOfferFn: func(context.Context, store.Offer) error {
			inserted = true
			return nil
		},
	}
	svc := testService(data)

	cases := []struct {
		name  string
		input OfferInput
	}{
		{"no items", OfferInput{Amount: 1000}},
		{"zero amount", OfferInput{Items: []store.OfferItem{{Description: "Mano de obra", Price: 1000}}}},
		{"free line item", OfferInput{Amount: 1000, Items: []store.OfferItem{{Description: "Mano de obra", Price: 0}}}},
		{"blank line item", OfferInput{Amount: 1000, Items: []store.OfferItem{{Description: "  ", Price: 1000}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitOffer(context.Background(), proSession("usr_a"), "req_1", tc.input)
			if code := domainCode(t, err); code != "VALIDATION_ERROR" {
				t.Fatalf("expected VALIDATION_ERROR, got %s", code)
			}
		})
	}
	if fetched || inserted {
		t.Fatal("malformed terms must be rejected before any store call")
	}
}

func TestSubmitOfferOwnRequestForbidden(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client")
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	svc := testService(data)

	_, err := svc.SubmitOffer(context.Background(), clientSession("usr_client"), "req_1", offerInput(100))
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestSubmitOfferClosedRequest(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client")
	snap.RawStatus = "canceled"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	svc := testService(data)

	_, err := svc.SubmitOffer(context.Background(), proSession("usr_a"), "req_1", offerInput(100))
	if code := domainCode(t, err); code != "REQUEST_CLOSED" {
		t.Fatalf("expected REQUEST_CLOSED, got %s", code)
	}
}

func TestSubmitOfferResubmissionAfterRejection(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferRejected, RejectionReason: "too expensive"},
	)
	updated := false
	inserted := false
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferByProFn: func(context.Context, string, string) (store.Offer, error) {
			return snap.Offers[0], nil
		},
		updateOfferFn: func(_ context.Context, offerID string, amount int64, _ string, _ []store.OfferItem) (bool, error) {
			if offerID != "off_a" || amount != 9000 {
				t.Fatalf("unexpected update offerID=%s amount=%d", offerID, amount)
			}
			updated = true
			snap.Offers[0].Status = store.OfferPending
			snap.Offers[0].RejectionReason = ""
			snap.Offers[0].Amount = amount
			return true, nil
		},
		insertOfferFn: func(context.Context, store.Offer) error {
			inserted = true
			return nil
		},
	}
	svc := testService(data)

	if _, err := svc.SubmitOffer(context.Background(), proSession("usr_a"), "req_1", offerInput(9000)); err != nil {
		t.Fatalf("SubmitOffer resubmission: %v", err)
	}
	if !updated {
		t.Fatal("rejected offer should be updated, not replaced")
	}
	if inserted {
		t.Fatal("resubmission must not insert a second offer")
	}
}

func TestSubmitOfferAcceptedIsImmutable(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferByProFn: func(context.Context, string, string) (store.Offer, error) {
			return snap.Offers[0], nil
		},
	}
	svc := testService(data)

	_, err := svc.SubmitOffer(context.Background(), proSession("usr_a"), "req_1", offerInput(100))
	if code := domainCode(t, err); code != "OFFER_ACCEPTED" {
		t.Fatalf("expected OFFER_ACCEPTED, got %s", code)
	}
}

func TestRejectOfferKeepsReason(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferPending},
	)
	var gotReason string
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferFn: func(context.Context, string, string) (store.Offer, error) {
			return snap.Offers[0], nil
		},
		rejectOfferFn: func(_ context.Context, _, _, reason string) (bool, error) {
			gotReason = reason
			snap.Offers[0].Status = store.OfferRejected
			snap.Offers[0].RejectionReason = reason
			return true, nil
		},
	}
	svc := testService(data)

	payload, err := svc.RejectOffer(context.Background(), clientSession("usr_client"), "req_1", "off_a", "  too expensive ")
	if err != nil {
		t.Fatalf("RejectOffer: %v", err)
	}
	if gotReason != "too expensive" {
		t.Fatalf("reason not trimmed: %q", gotReason)
	}
	if payload["status"] != "RECHAZADA" {
		t.Fatalf("expected RECHAZADA after the only offer is rejected, got %v", payload["status"])
	}
}

func TestConfirmStartIdempotent(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	snap.TrackingStatus = "started"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		confirmStartFn: func(context.Context, string) (bool, error) {
			return false, nil
		},
	}
	svc := testService(data)

	payload, err := svc.ConfirmStart(context.Background(), proSession("usr_a"), "req_1")
	if err != nil {
		t.Fatalf("second ConfirmStart should be a no-op, got %v", err)
	}
	if payload["status"] != "EN_EJECUCION" {
		t.Fatalf("expected EN_EJECUCION, got %v", payload["status"])
	}
}

func TestConfirmStartOnlyAssignedPro(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	snap.TrackingStatus = "contracted"
	started := false
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		confirmStartFn: func(context.Context, string) (bool, error) {
			started = true
			snap.TrackingStatus = "started"
			return true, nil
		},
	}
	svc := testService(data)

	// Neither the owner nor a losing professional may start the job.
	_, err := svc.ConfirmStart(context.Background(), clientSession("usr_client"), "req_1")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for the owner, got %s", code)
	}
	_, err = svc.ConfirmStart(context.Background(), proSession("usr_b"), "req_1")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for a non-assigned pro, got %s", code)
	}
	if started {
		t.Fatal("store.ConfirmStart must not run for a forbidden caller")
	}

	payload, err := svc.ConfirmStart(context.Background(), proSession("usr_a"), "req_1")
	if err != nil {
		t.Fatalf("ConfirmStart by the assigned pro: %v", err)
	}
	if !started {
		t.Fatal("store.ConfirmStart should have run")
	}
	if payload["status"] != "EN_EJECUCION" {
		t.Fatalf("expected EN_EJECUCION, got %v", payload["status"])
	}
}

func TestConfirmStartRequiresContract(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		confirmStartFn: func(context.Context, string) (bool, error) {
			return false, nil
		},
	}
	svc := testService(data)

	_, err := svc.ConfirmStart(context.Background(), proSession("usr_a"), "req_1")
	if code := domainCode(t, err); code != "NOT_CONTRACTED" {
		t.Fatalf("expected NOT_CONTRACTED, got %s", code)
	}
}

func TestFinishJobOnlyAssignedPro(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	snap.TrackingStatus = "started"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	svc := testService(data)

	_, err := svc.FinishJob(context.Background(), proSession("usr_b"), "req_1")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestFinishThenConfirmFlow(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	snap.TrackingStatus = "started"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		markProFinishedFn: func(context.Context, string) (bool, error) {
			snap.ProFinished = true
			return true, nil
		},
		markClientFinishedFn: func(context.Context, string) (bool, error) {
			snap.ClientFinished = true
			snap.TrackingStatus = "finished"
			snap.RawStatus = "completed"
			return true, nil
		},
	}
	svc := testService(data)
	ctx := context.Background()

	payload, err := svc.FinishJob(ctx, proSession("usr_a"), "req_1")
	if err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	if payload["status"] != "VALIDANDO" {
		t.Fatalf("pro finish should put the pro view into VALIDANDO, got %v", payload["status"])
	}

	payload, err = svc.ConfirmFinished(ctx, clientSession("usr_client"), "req_1")
	if err != nil {
		t.Fatalf("ConfirmFinished: %v", err)
	}
	if payload["status"] != "TERMINADO" {
		t.Fatalf("expected TERMINADO after both sides finish, got %v", payload["status"])
	}
}

func TestConfirmFinishedNeedsProFirst(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	snap.TrackingStatus = "started"
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	svc := testService(data)

	_, err := svc.ConfirmFinished(context.Background(), clientSession("usr_client"), "req_1")
	if code := domainCode(t, err); code != "PRO_NOT_FINISHED" {
		t.Fatalf("expected PRO_NOT_FINISHED, got %s", code)
	}
}

func TestRateEngagement(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
	)
	snap.AssignedProID = "usr_a"
	snap.ProFinished = true
	snap.ClientFinished = true
	snap.TrackingStatus = "finished"

	t.Run("client rates the professional", func(t *testing.T) {
		var got store.Rating
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
			insertRatingFn: func(_ context.Context, rating store.Rating) (bool, error) {
				got = rating
				return true, nil
			},
		}
		svc := testService(data)

		if _, err := svc.RateEngagement(context.Background(), clientSession("usr_client"), "req_1", RatingInput{Score: 5, Comment: "perfecto"}); err != nil {
			t.Fatalf("RateEngagement: %v", err)
		}
		if got.Direction != store.DirectionClientToPro || got.RevieweeID != "usr_a" {
			t.Fatalf("unexpected rating %+v", got)
		}
	})

	t.Run("duplicate rating is a conflict", func(t *testing.T) {
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
			insertRatingFn: func(context.Context, store.Rating) (bool, error) {
				return false, nil
			},
		}
		svc := testService(data)

		_, err := svc.RateEngagement(context.Background(), clientSession("usr_client"), "req_1", RatingInput{Score: 4})
		if code := domainCode(t, err); code != "ALREADY_RATED" {
			t.Fatalf("expected ALREADY_RATED, got %s", code)
		}
	})

	t.Run("rating before both finish is refused", func(t *testing.T) {
		unfinished := openSnapshot("req_1", "usr_client",
			store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferAccepted},
		)
		unfinished.AssignedProID = "usr_a"
		unfinished.ProFinished = true
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return unfinished, nil },
		}
		svc := testService(data)

		_, err := svc.RateEngagement(context.Background(), clientSession("usr_client"), "req_1", RatingInput{Score: 5})
		if code := domainCode(t, err); code != "NOT_FINISHED" {
			t.Fatalf("expected NOT_FINISHED, got %s", code)
		}
	})

	t.Run("outsiders cannot rate", func(t *testing.T) {
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		}
		svc := testService(data)

		_, err := svc.RateEngagement(context.Background(), proSession("usr_b"), "req_1", RatingInput{Score: 1})
		if code := domainCode(t, err); code != "FORBIDDEN" {
			t.Fatalf("expected FORBIDDEN, got %s", code)
		}
	})
}

func TestCancelRequest(t *testing.T) {
	t.Run("owner cancels an active request", func(t *testing.T) {
		snap := openSnapshot("req_1", "usr_client")
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
			cancelRequestFn: func(context.Context, string, string) (bool, error) {
				snap.RawStatus = "canceled"
				return true, nil
			},
		}
		svc := testService(data)

		payload, err := svc.CancelRequest(context.Background(), clientSession("usr_client"), "req_1")
		if err != nil {
			t.Fatalf("CancelRequest: %v", err)
		}
		if payload["status"] != "ELIMINADA" {
			t.Fatalf("expected ELIMINADA, got %v", payload["status"])
		}
	})

	t.Run("cancel on a closed request is a no-op", func(t *testing.T) {
		snap := openSnapshot("req_1", "usr_client")
		snap.RawStatus = "canceled"
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		}
		svc := testService(data)

		if _, err := svc.CancelRequest(context.Background(), clientSession("usr_client"), "req_1"); err != nil {
			t.Fatalf("expected no-op, got %v", err)
		}
	})

	t.Run("non-owner is refused", func(t *testing.T) {
		snap := openSnapshot("req_1", "usr_client")
		data := &fakeStore{
			getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		}
		svc := testService(data)

		_, err := svc.CancelRequest(context.Background(), proSession("usr_a"), "req_1")
		if code := domainCode(t, err); code != "FORBIDDEN" {
			t.Fatalf("expected FORBIDDEN, got %s", code)
		}
	})
}

func TestSnapshotPayloadHidesCompetingOffers(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferPending},
		store.Offer{ID: "off_b", ProID: "usr_b", Status: store.OfferPending},
	)
	svc := testService(&fakeStore{})

	payload := svc.snapshotPayload(snap, proSession("usr_a"))
	offers := payload["offers"].([]map[string]any)
	if len(offers) != 1 || offers[0]["proId"] != "usr_a" {
		t.Fatalf("professional should only see their own offer, got %v", offers)
	}
	if payload["status"] != "PRESUPUESTADA" {
		t.Fatalf("expected PRESUPUESTADA for the offering pro, got %v", payload["status"])
	}

	payload = svc.snapshotPayload(snap, clientSession("usr_client"))
	if len(payload["offers"].([]map[string]any)) != 2 {
		t.Fatal("owner should see every offer")
	}
}
