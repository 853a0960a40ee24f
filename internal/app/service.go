package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"oficio/api/internal/auth"
	"oficio/api/internal/authpw"
	"oficio/api/internal/config"
	"oficio/api/internal/email"
	"oficio/api/internal/export"
	"oficio/api/internal/identity"
	"oficio/api/internal/media"
	"oficio/api/internal/rbac"
	"oficio/api/internal/search"
	"oficio/api/internal/status"
	"oficio/api/internal/store"
	"oficio/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type CreateRequestInput struct {
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

type OfferInput struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Items    []store.OfferItem `json:"items"`
}

type RatingInput struct {
	Score         int    `json:"score"`
	Comment       string `json:"comment"`
	ArrivedOnTime bool   `json:"arrivedOnTime"`
	WasCourteous  bool   `json:"wasCourteous"`
	WouldRepeat   bool   `json:"wouldRepeat"`
}

// dataStore is the persistence surface the service needs. The Postgres store
// implements all of it; tests swap in a fake.
type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)

	InsertRequest(context.Context, store.Request) error
	GetRequest(context.Context, string) (store.Request, error)
	GetSnapshot(context.Context, string) (store.Snapshot, error)
	ListRequestsByOwner(context.Context, string) ([]store.Request, error)
	ListRequestsForPro(context.Context, string) ([]store.Request, error)
	CancelRequest(context.Context, string, string) (bool, error)
	ConfirmStart(context.Context, string) (bool, error)
	MarkProFinished(context.Context, string) (bool, error)
	MarkClientFinished(context.Context, string) (bool, error)

	InsertOffer(context.Context, store.Offer) error
	GetOffer(context.Context, string, string) (store.Offer, error)
	GetOfferByPro(context.Context, string, string) (store.Offer, error)
	UpdateOffer(context.Context, string, int64, string, []store.OfferItem) (bool, error)
	AcceptOffer(context.Context, string, string) (accepted bool, already bool, err error)
	RejectOffer(context.Context, string, string, string) (bool, error)

	GetConversation(context.Context, string) (store.Conversation, error)
	GetConversationByPair(context.Context, string, string) (store.Conversation, error)
	InsertConversation(context.Context, store.Conversation) error
	InsertMessage(context.Context, store.Message) error
	ListMessages(context.Context, string) ([]store.Message, error)
	ListConversationListings(context.Context, string) ([]store.ConversationListing, error)
	MarkConversationRead(context.Context, string, string) error

	InsertTimelineEvent(context.Context, store.TimelineEvent) error
	InsertRating(context.Context, store.Rating) (bool, error)
	AdvanceInteraction(context.Context, string, string, string) error
}

// sessionStore holds refresh tokens and the access token denylist. Redis is
// preferred; the Postgres store is the fallback backend.
type sessionStore interface {
	SaveRefreshSessionFor(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Deps carries the optional side services. Any nil member disables the
// matching feature instead of failing.
type Deps struct {
	Sessions sessionStore
	Search   *search.Service
	Media    *media.Service
	Email    *email.Service
	Export   *export.Service
	Auth     *authpw.Service
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   *search.Service
	media    *media.Service
	email    *email.Service
	export   *export.Service
	authpw   *authpw.Service
	cache    *snapshotCache
}

func New(cfg config.Config, pg *store.PostgresStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = pg
	}
	return &Service{
		cfg:      cfg,
		store:    pg,
		sessions: sessions,
		search:   deps.Search,
		media:    deps.Media,
		email:    deps.Email,
		export:   deps.Export,
		authpw:   deps.Auth,
		cache:    newSnapshotCache(2 * time.Second),
	}
}

// newServiceForTest wires a service over fakes without the Postgres store.
func newServiceForTest(cfg config.Config, data dataStore, sessions sessionStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    data,
		sessions: sessions,
		cache:    newSnapshotCache(0),
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ---- sessions ----

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Re-read the user so a role or name change lands on the next rotation.
	user, err := s.store.GetUserByID(ctx, cached.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSessionFor(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ---- requests ----

func (s *Service) CreateRequest(ctx context.Context, session Session, input CreateRequestInput) (map[string]any, error) {
	if strings.TrimSpace(input.Category) == "" {
		return nil, errValidation("category is required")
	}

	request := store.Request{
		ID:             util.NewID("req"),
		OwnerID:        session.UserID,
		Category:       strings.TrimSpace(input.Category),
		Subcategory:    strings.TrimSpace(input.Subcategory),
		Location:       strings.TrimSpace(input.Location),
		Description:    strings.TrimSpace(input.Description),
		Images:         input.Images,
		RawStatus:      status.RawOpen,
		TrackingStatus: status.TrackingNone,
	}
	if err := s.store.InsertRequest(ctx, request); err != nil {
		return nil, err
	}

	if err := s.store.InsertTimelineEvent(ctx, store.TimelineEvent{
		ID:        util.NewID("evt"),
		RequestID: request.ID,
		EventType: store.EventJobCreated,
		Title:     "Solicitud creada",
		ActorID:   session.UserID,
	}); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexRequest(search.RequestRecord{
			ID:          request.ID,
			Category:    request.Category,
			Subcategory: request.Subcategory,
			Location:    request.Location,
			Description: request.Description,
			RawStatus:   request.RawStatus,
		})
	}

	return s.requestView(ctx, session, request.ID)
}

func (s *Service) ListRequests(ctx context.Context, session Session) ([]map[string]any, error) {
	var requests []store.Request
	var err error
	if rbac.Normalize(session.Role) == rbac.RoleProfessional {
		requests, err = s.store.ListRequestsForPro(ctx, session.UserID)
	} else {
		requests, err = s.store.ListRequestsByOwner(ctx, session.UserID)
	}
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(requests))
	for _, request := range requests {
		snap, err := s.fetchSnapshot(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, s.snapshotPayload(snap, session))
	}
	return items, nil
}

func (s *Service) GetRequest(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	payload, err := s.requestView(ctx, session, requestID)
	if err != nil {
		return nil, err
	}

	// A professional opening a request they never touched becomes "viewed".
	if rbac.Normalize(session.Role) == rbac.RoleProfessional {
		_ = s.store.AdvanceInteraction(ctx, requestID, session.UserID, store.InteractionViewed)
	}
	return payload, nil
}

func (s *Service) CancelRequest(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !identity.Equals(snap.OwnerID, session.UserID) {
		return nil, errForbidden("only the owner can cancel a request")
	}

	ok, err := s.store.CancelRequest(ctx, requestID, snap.OwnerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if status.Terminal(snap) {
			// Cancel on an already closed request is a no-op, not an error.
			return s.requestView(ctx, session, requestID)
		}
		return nil, errConflict("CANCEL_REFUSED", "request can no longer be canceled")
	}

	if s.search != nil {
		s.search.DeleteRequest(requestID)
	}
	return s.requestView(ctx, session, requestID)
}

// ---- offers ----

// SubmitOffer creates the professional's offer, or resubmits an existing
// pending or rejected one with new terms. Accepted offers are immutable.
func (s *Service) SubmitOffer(ctx context.Context, session Session, requestID string, input OfferInput) (map[string]any, error) {
	if input.Amount <= 0 {
		return nil, errValidation("amount must be positive")
	}
	if len(input.Items) == 0 {
		return nil, errValidation("an offer needs at least one line item")
	}
	for _, item := range input.Items {
		if strings.TrimSpace(item.Description) == "" || item.Price <= 0 {
			return nil, errValidation("every line item needs a description and a positive price")
		}
	}
	currency := strings.TrimSpace(input.Currency)
	if currency == "" {
		currency = "EUR"
	}

	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if identity.Equals(snap.OwnerID, session.UserID) {
		return nil, errForbidden("owners cannot offer on their own request")
	}
	if status.Terminal(snap) {
		return nil, errConflict("REQUEST_CLOSED", "request is closed")
	}
	if identity.Canonical(snap.AssignedProID) != "" && !identity.Equals(snap.AssignedProID, session.UserID) {
		return nil, errConflict("REQUEST_ASSIGNED", "request is assigned to another professional")
	}

	existing, err := s.store.GetOfferByPro(ctx, requestID, session.UserID)
	if err == nil {
		if existing.Status == store.OfferAccepted {
			return nil, errConflict("OFFER_ACCEPTED", "an accepted offer cannot be modified")
		}
		ok, err := s.store.UpdateOffer(ctx, existing.ID, input.Amount, currency, input.Items)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errConflict("OFFER_LOCKED", "offer can no longer be modified")
		}
	} else {
		if err := s.store.InsertOffer(ctx, store.Offer{
			ID:        util.NewID("off"),
			RequestID: requestID,
			ProID:     session.UserID,
			Amount:    input.Amount,
			Currency:  currency,
			Items:     input.Items,
			Status:    store.OfferPending,
		}); err != nil {
			return nil, err
		}
	}

	_ = s.store.AdvanceInteraction(ctx, requestID, session.UserID, store.InteractionOffered)
	return s.requestView(ctx, session, requestID)
}

// AcceptOffer is the one multi-entity transition: the winning offer is
// accepted, every other live offer is rejected with the cascade reason, the
// winner is fixed on the request and tracking advances to contracted.
// Accepting an offer that is already accepted is a no-op.
func (s *Service) AcceptOffer(ctx context.Context, session Session, requestID, offerID string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !identity.Equals(snap.OwnerID, session.UserID) {
		return nil, errForbidden("only the owner can accept an offer")
	}

	offer, err := s.store.GetOffer(ctx, requestID, offerID)
	if err != nil {
		return nil, err
	}

	accepted, already, err := s.store.AcceptOffer(ctx, requestID, offer.ProID)
	if err != nil {
		return nil, err
	}
	if !accepted && !already {
		return nil, errConflict("OFFER_CONFLICT", "another offer was already accepted")
	}

	if accepted {
		s.notifyOfferDecisions(ctx, snap, offer.ProID)
	}
	return s.requestView(ctx, session, requestID)
}

func (s *Service) RejectOffer(ctx context.Context, session Session, requestID, offerID, reason string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !identity.Equals(snap.OwnerID, session.UserID) {
		return nil, errForbidden("only the owner can reject an offer")
	}

	offer, err := s.store.GetOffer(ctx, requestID, offerID)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.RejectOffer(ctx, requestID, offer.ProID, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errConflict("OFFER_NOT_PENDING", "only pending offers can be rejected")
	}

	_ = s.store.AdvanceInteraction(ctx, requestID, offer.ProID, store.InteractionRejected)
	s.notifyOfferRejected(ctx, snap, offer.ProID, reason)
	return s.requestView(ctx, session, requestID)
}

// ---- execution ----

func (s *Service) ConfirmStart(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isAssignedPro(snap, session.UserID) {
		return nil, errForbidden("only the assigned professional can confirm the start")
	}

	ok, err := s.store.ConfirmStart(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if status.NormalizeTracking(snap.TrackingStatus) == status.TrackingStarted {
			// Confirming twice is a no-op.
			return s.requestView(ctx, session, requestID)
		}
		return nil, errConflict("NOT_CONTRACTED", "no contracted professional to start with")
	}
	return s.requestView(ctx, session, requestID)
}

// FinishJob records the professional's side of completion. The engagement
// stays in validation until the client confirms.
func (s *Service) FinishJob(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isAssignedPro(snap, session.UserID) {
		return nil, errForbidden("only the assigned professional can finish the job")
	}
	if status.NormalizeTracking(snap.TrackingStatus) != status.TrackingStarted {
		return nil, errConflict("NOT_STARTED", "job has not been started")
	}

	ok, err := s.store.MarkProFinished(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if ok {
		_ = s.store.InsertTimelineEvent(ctx, store.TimelineEvent{
			ID:        util.NewID("evt"),
			RequestID: requestID,
			EventType: store.EventJobFinished,
			Title:     "Trabajo terminado",
			ActorID:   session.UserID,
		})
		s.notifyJobFinished(ctx, snap)
	}
	return s.requestView(ctx, session, requestID)
}

func (s *Service) ConfirmFinished(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !identity.Equals(snap.OwnerID, session.UserID) {
		return nil, errForbidden("only the owner can confirm completion")
	}
	if !snap.ProFinished {
		return nil, errConflict("PRO_NOT_FINISHED", "the professional has not finished yet")
	}

	ok, err := s.store.MarkClientFinished(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !ok && !snap.ClientFinished {
		return nil, errConflict("CONFIRM_REFUSED", "completion could not be confirmed")
	}
	return s.requestView(ctx, session, requestID)
}

// ---- ratings ----

func (s *Service) RateEngagement(ctx context.Context, session Session, requestID string, input RatingInput) (map[string]any, error) {
	if input.Score < 1 || input.Score > 5 {
		return nil, errValidation("score must be between 1 and 5")
	}

	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !snap.ProFinished || !snap.ClientFinished {
		return nil, errConflict("NOT_FINISHED", "both parties must finish before rating")
	}

	var direction, revieweeID string
	switch {
	case identity.Equals(snap.OwnerID, session.UserID):
		direction = store.DirectionClientToPro
		revieweeID = identity.Canonical(snap.AssignedProID)
	case isAssignedPro(snap, session.UserID):
		direction = store.DirectionProToClient
		revieweeID = snap.OwnerID
	default:
		return nil, errForbidden("only participants can rate")
	}

	inserted, err := s.store.InsertRating(ctx, store.Rating{
		ID:            util.NewID("rat"),
		RequestID:     requestID,
		ReviewerID:    session.UserID,
		RevieweeID:    revieweeID,
		Direction:     direction,
		Score:         input.Score,
		Comment:       strings.TrimSpace(input.Comment),
		ArrivedOnTime: input.ArrivedOnTime,
		WasCourteous:  input.WasCourteous,
		WouldRepeat:   input.WouldRepeat,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, errConflict("ALREADY_RATED", "this side has already rated")
	}
	return s.requestView(ctx, session, requestID)
}

// ---- search ----

func (s *Service) Search(ctx context.Context, q, filterType, category, location string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}, nil
	}
	return s.search.Search(search.Query{
		Text:           q,
		FilterType:     search.ResultType(filterType),
		FilterCategory: category,
		FilterLocation: location,
		Limit:          limit,
		Offset:         offset,
	}), nil
}

// ---- export ----

func (s *Service) ExportReport(ctx context.Context, session Session, requestID string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "export is not configured", nil)
	}

	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(snap, session.UserID) {
		return nil, errForbidden("only participants can export the report")
	}

	report := export.Report{
		RequestID:   snap.ID,
		Category:    snap.Category,
		Subcategory: snap.Subcategory,
		Location:    snap.Location,
		Description: snap.Description,
		ClientName:  s.displayName(ctx, snap.OwnerID),
		ProName:     s.displayName(ctx, identity.Canonical(snap.AssignedProID)),
		Status:      string(status.ForClient(snap)),
		CreatedAt:   snap.CreatedAt,
	}
	for _, offer := range snap.Offers {
		report.Offers = append(report.Offers, export.ReportOffer{
			ProName:  s.displayName(ctx, offer.ProID),
			Amount:   formatAmount(offer.Amount, offer.Currency),
			Status:   offer.Status,
			Reason:   offer.RejectionReason,
			SentAt:   offer.CreatedAt,
			Accepted: offer.Status == store.OfferAccepted,
		})
	}
	for _, event := range VisibleTimeline(snap, session.UserID) {
		report.Timeline = append(report.Timeline, export.ReportEvent{
			Kind:        event.EventType,
			Title:       event.Title,
			Description: event.Description,
			ActorName:   s.displayName(ctx, event.ActorID),
			At:          event.CreatedAt,
		})
	}
	for _, rating := range snap.Ratings {
		report.Ratings = append(report.Ratings, export.ReportRating{
			ReviewerName: s.displayName(ctx, rating.ReviewerID),
			Score:        rating.Score,
			Comment:      rating.Comment,
		})
	}

	return s.export.Export(report, export.FormatPDF)
}

// ---- media ----

func (s *Service) MediaService() *media.Service {
	return s.media
}

// ---- notifications ----

func (s *Service) notifyOfferDecisions(ctx context.Context, snap store.Snapshot, winnerProID string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	requestURL := s.requestURL(snap.ID)
	for _, offer := range snap.Offers {
		user, err := s.store.GetUserByID(ctx, identity.Canonical(offer.ProID))
		if err != nil {
			continue
		}
		if identity.Equals(offer.ProID, winnerProID) {
			_ = s.email.SendOfferAcceptedEmail(user.Email, user.DisplayName, snap.Category, requestURL)
		} else if offer.Status == store.OfferPending {
			_ = s.email.SendOfferRejectedEmail(user.Email, user.DisplayName, snap.Category, store.CascadeRejectionReason, requestURL)
		}
	}
}

func (s *Service) notifyOfferRejected(ctx context.Context, snap store.Snapshot, proID, reason string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	user, err := s.store.GetUserByID(ctx, identity.Canonical(proID))
	if err != nil {
		return
	}
	_ = s.email.SendOfferRejectedEmail(user.Email, user.DisplayName, snap.Category, reason, s.requestURL(snap.ID))
}

func (s *Service) notifyJobFinished(ctx context.Context, snap store.Snapshot) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	owner, err := s.store.GetUserByID(ctx, snap.OwnerID)
	if err != nil {
		return
	}
	_ = s.email.SendJobFinishedEmail(owner.Email, owner.DisplayName, snap.Category, s.requestURL(snap.ID))
}

// SendVerificationEmail delivers the signup verification link. Failures are
// logged by the email layer caller; signup itself already succeeded.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	verifyURL := "/verify?token=" + token
	if origin := s.cfg.CORSOrigin; origin != "" && origin != "*" {
		verifyURL = strings.TrimRight(origin, "/") + verifyURL
	}
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, verifyURL); err != nil {
			log.Printf("email: verification to %s failed: %v", to, err)
		}
	}()
}

func (s *Service) requestURL(requestID string) string {
	origin := s.cfg.CORSOrigin
	if origin == "" || origin == "*" {
		return ""
	}
	return strings.TrimRight(origin, "/") + "/requests/" + requestID
}

// ---- view assembly ----

// fetchSnapshot reads the full snapshot, refreshing the short-lived cache.
func (s *Service) fetchSnapshot(ctx context.Context, requestID string) (store.Snapshot, error) {
	if snap, ok := s.cache.Get(requestID); ok {
		return snap, nil
	}
	issue := s.cache.NextIssue()
	snap, err := s.store.GetSnapshot(ctx, requestID)
	if err != nil {
		return store.Snapshot{}, err
	}
	s.cache.Put(requestID, issue, snap)
	return snap, nil
}

// requestView re-reads the snapshot and renders it for the session. Every
// mutation returns one of these so callers never patch state locally.
func (s *Service) requestView(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	issue := s.cache.NextIssue()
	snap, err := s.store.GetSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(requestID, issue, snap)
	return s.snapshotPayload(snap, session), nil
}

func (s *Service) snapshotPayload(snap store.Snapshot, session Session) map[string]any {
	isOwner := identity.Equals(snap.OwnerID, session.UserID)
	isPro := rbac.Normalize(session.Role) == rbac.RoleProfessional

	var label string
	var palette status.Palette
	if isPro && !isOwner {
		proLabel := status.ForPro(snap, session.UserID, "")
		label = string(proLabel)
		palette = status.ProPalette(proLabel)
	} else {
		clientLabel := status.ForClient(snap)
		label = string(clientLabel)
		palette = status.ClientPalette(clientLabel)
	}

	offers := make([]map[string]any, 0, len(snap.Offers))
	for _, offer := range snap.Offers {
		if !isOwner && !identity.Equals(offer.ProID, session.UserID) {
			// Professionals only see their own offer.
			continue
		}
		offers = append(offers, offerPayload(offer))
	}

	timeline := make([]map[string]any, 0)
	for _, event := range VisibleTimeline(snap, session.UserID) {
		timeline = append(timeline, map[string]any{
			"id":          event.ID,
			"type":        event.EventType,
			"title":       event.Title,
			"description": event.Description,
			"mediaRef":    event.MediaRef,
			"actorId":     event.ActorID,
			"private":     event.Private,
			"createdAt":   event.CreatedAt,
		})
	}

	ratings := make([]map[string]any, 0, len(snap.Ratings))
	for _, rating := range snap.Ratings {
		ratings = append(ratings, map[string]any{
			"direction":     rating.Direction,
			"score":         rating.Score,
			"comment":       rating.Comment,
			"arrivedOnTime": rating.ArrivedOnTime,
			"wasCourteous":  rating.WasCourteous,
			"wouldRepeat":   rating.WouldRepeat,
		})
	}

	return map[string]any{
		"request": map[string]any{
			"id":            snap.ID,
			"ownerId":       snap.OwnerID,
			"category":      snap.Category,
			"subcategory":   snap.Subcategory,
			"location":      snap.Location,
			"description":   snap.Description,
			"images":        snap.Images,
			"assignedProId": identity.Canonical(snap.AssignedProID),
			"createdAt":     snap.CreatedAt,
		},
		"status": label,
		"statusColor": map[string]string{
			"background": palette.Background,
			"foreground": palette.Foreground,
		},
		"offers":   offers,
		"timeline": timeline,
		"ratings":  ratings,
		"terminal": status.Terminal(snap),
	}
}

func offerPayload(offer store.Offer) map[string]any {
	items := make([]map[string]any, 0, len(offer.Items))
	for _, item := range offer.Items {
		items = append(items, map[string]any{
			"description": item.Description,
			"price":       item.Price,
		})
	}
	return map[string]any{
		"id":              offer.ID,
		"proId":           offer.ProID,
		"amount":          offer.Amount,
		"currency":        offer.Currency,
		"items":           items,
		"status":          offer.Status,
		"rejectionReason": offer.RejectionReason,
		"createdAt":       offer.CreatedAt,
	}
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.DisplayName
}

func isAssignedPro(snap store.Snapshot, userID string) bool {
	if identity.Equals(snap.AssignedProID, userID) {
		return true
	}
	for _, offer := range snap.Offers {
		if offer.Status == store.OfferAccepted && identity.Equals(offer.ProID, userID) {
			return true
		}
	}
	return false
}

func isParticipant(snap store.Snapshot, userID string) bool {
	return identity.Equals(snap.OwnerID, userID) || isAssignedPro(snap, userID)
}

// formatAmount renders minor units as "150,00 EUR".
func formatAmount(minor int64, currency string) string {
	cents := minor % 100
	if cents < 0 {
		cents = -cents
	}
	return fmt.Sprintf("%d,%02d %s", minor/100, cents, currency)
}
