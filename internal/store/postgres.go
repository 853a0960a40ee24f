package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified, verification_token, verification_expires_at, created_at
		FROM users WHERE id = $1
	`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified, verification_token, verification_expires_at, created_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, email))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &user.VerificationExpiresAt, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- refresh sessions (Postgres fallback when Redis is unconfigured) ----

// SaveRefreshSessionFor matches the Redis session store surface; Postgres
// only needs the user id, the rest is re-read on refresh.
func (s *PostgresStore) SaveRefreshSessionFor(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	return s.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.role, u.is_email_verified, u.verification_token, u.verification_expires_at, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- requests ----

const requestColumns = `id, owner_id, category, subcategory, location, description, images,
	raw_status, tracking_status, assigned_pro_id, pro_finished, client_finished, pro_rated, client_rated,
	created_at, updated_at`

func (s *PostgresStore) InsertRequest(ctx context.Context, request Request) error {
	images, err := json.Marshal(request.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (id, owner_id, category, subcategory, location, description, images, raw_status, tracking_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, request.ID, request.OwnerID, request.Category, request.Subcategory, request.Location,
		request.Description, images, request.RawStatus, request.TrackingStatus)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=$1`, requestID)
	return scanRequest(row.Scan)
}

func scanRequest(scan func(...any) error) (Request, error) {
	var request Request
	var images []byte
	err := scan(&request.ID, &request.OwnerID, &request.Category, &request.Subcategory, &request.Location,
		&request.Description, &images, &request.RawStatus, &request.TrackingStatus, &request.AssignedProID,
		&request.ProFinished, &request.ClientFinished, &request.ProRated, &request.ClientRated,
		&request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &request.Images); err != nil {
			return Request{}, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	return request, nil
}

func (s *PostgresStore) listRequests(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]Request, 0)
	for rows.Next() {
		item, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRequestsByOwner(ctx context.Context, ownerID string) ([]Request, error) {
	return s.listRequests(ctx, `SELECT `+requestColumns+` FROM requests WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
}

// ListRequestsForPro returns open requests plus any request the
// professional has touched through an offer, a conversation or a persisted
// interaction, so a pro's board keeps showing engagements after they close.
func (s *PostgresStore) ListRequestsForPro(ctx context.Context, proID string) ([]Request, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns+` FROM requests r
		WHERE r.raw_status = 'open'
			OR r.assigned_pro_id = $1
			OR EXISTS (SELECT 1 FROM offers o WHERE o.request_id = r.id AND o.pro_id = $1)
			OR EXISTS (SELECT 1 FROM conversations c WHERE c.request_id = r.id AND c.pro_id = $1)
			OR EXISTS (SELECT 1 FROM request_interactions i WHERE i.request_id = r.id AND i.pro_id = $1)
		ORDER BY r.created_at DESC
	`, proID)
}

// CancelRequest is a status transition, never a delete. It refuses once the
// request has moved past execution.
func (s *PostgresStore) CancelRequest(ctx context.Context, requestID, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET raw_status='canceled', updated_at=NOW()
		WHERE id=$1 AND owner_id=$2 AND raw_status NOT IN ('completed', 'rated', 'canceled')
	`, requestID, ownerID)
	if err != nil {
		return false, fmt.Errorf("cancel request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel request: %w", err)
	}
	return affected > 0, nil
}

// ConfirmStart moves tracking from contracted to started. Zero rows with a
// request already started is the idempotent no-op case; the caller decides.
func (s *PostgresStore) ConfirmStart(ctx context.Context, requestID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET tracking_status='started', raw_status='in_progress', updated_at=NOW()
		WHERE id=$1 AND tracking_status='contracted'
	`, requestID)
	if err != nil {
		return false, fmt.Errorf("confirm start: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm start: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkProFinished(ctx context.Context, requestID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET pro_finished=TRUE, updated_at=NOW()
		WHERE id=$1 AND NOT pro_finished
	`, requestID)
	if err != nil {
		return false, fmt.Errorf("mark pro finished: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark pro finished: %w", err)
	}
	return affected > 0, nil
}

// MarkClientFinished is the terminal confirmation: both parties are done, so
// the coarse phase closes and the raw status converges to completed.
func (s *PostgresStore) MarkClientFinished(ctx context.Context, requestID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET client_finished=TRUE, tracking_status='finished', raw_status='completed', updated_at=NOW()
		WHERE id=$1 AND pro_finished AND NOT client_finished
	`, requestID)
	if err != nil {
		return false, fmt.Errorf("mark client finished: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark client finished: %w", err)
	}
	return affected > 0, nil
}

// ---- offers ----

const offerColumns = `id, request_id, pro_id, amount, currency, items, status, rejection_reason, created_at, updated_at`

func (s *PostgresStore) InsertOffer(ctx context.Context, offer Offer) error {
	items, err := json.Marshal(offer.Items)
	if err != nil {
		return fmt.Errorf("marshal offer items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO offers (id, request_id, pro_id, amount, currency, items, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, offer.ID, offer.RequestID, offer.ProID, offer.Amount, offer.Currency, items, offer.Status)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func scanOffer(scan func(...any) error) (Offer, error) {
	var offer Offer
	var items []byte
	err := scan(&offer.ID, &offer.RequestID, &offer.ProID, &offer.Amount, &offer.Currency,
		&items, &offer.Status, &offer.RejectionReason, &offer.CreatedAt, &offer.UpdatedAt)
	if err != nil {
		return Offer{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &offer.Items); err != nil {
			return Offer{}, fmt.Errorf("unmarshal offer items: %w", err)
		}
	}
	return offer, nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, requestID, offerID string) (Offer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=$1 AND request_id=$2`, offerID, requestID)
	return scanOffer(row.Scan)
}

// GetOfferByPro returns the professional's latest offer on a request.
func (s *PostgresStore) GetOfferByPro(ctx context.Context, requestID, proID string) (Offer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+offerColumns+` FROM offers WHERE request_id=$1 AND pro_id=$2 ORDER BY created_at DESC LIMIT 1
	`, requestID, proID)
	return scanOffer(row.Scan)
}

func (s *PostgresStore) ListOffers(ctx context.Context, requestID string) ([]Offer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE request_id=$1 ORDER BY created_at ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	items := make([]Offer, 0)
	for rows.Next() {
		item, err := scanOffer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return items, nil
}

// UpdateOffer rewrites the terms of a pending or rejected offer. A rejected
// offer returns to pending with its rejection reason cleared (resubmission).
// Accepted offers are immutable; zero rows signals the caller.
func (s *PostgresStore) UpdateOffer(ctx context.Context, offerID string, amount int64, currency string, offerItems []OfferItem) (bool, error) {
	items, err := json.Marshal(offerItems)
	if err != nil {
		return false, fmt.Errorf("marshal offer items: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE offers
		SET amount=$2, currency=$3, items=$4, status='pending', rejection_reason='', updated_at=NOW()
		WHERE id=$1 AND status IN ('pending', 'rejected')
	`, offerID, amount, currency, items)
	if err != nil {
		return false, fmt.Errorf("update offer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update offer: %w", err)
	}
	return affected > 0, nil
}

// AcceptOffer performs the one multi-entity transition of the lifecycle
// atomically: accept the winner's pending offer, cascade-reject every other
// non-accepted offer, fix the winner on the request and advance tracking to
// contracted. The conditional UPDATE keyed on "no offer already accepted"
// makes the second of two racing accepts observe zero rows instead of a
// second winner.
func (s *PostgresStore) AcceptOffer(ctx context.Context, requestID, proID string) (accepted bool, already bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE offers SET status='accepted', rejection_reason='', updated_at=NOW()
		WHERE request_id=$1 AND pro_id=$2 AND status='pending'
			AND NOT EXISTS (SELECT 1 FROM offers WHERE request_id=$1 AND status='accepted')
	`, requestID, proID)
	if err != nil {
		return false, false, fmt.Errorf("accept offer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, false, fmt.Errorf("accept offer: %w", err)
	}
	if affected == 0 {
		// Retrying an accept that already succeeded is a no-op, not a
		// second acceptance. Anything else is a conflict.
		var alreadyAccepted bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM offers WHERE request_id=$1 AND pro_id=$2 AND status='accepted')
		`, requestID, proID).Scan(&alreadyAccepted)
		if err != nil {
			return false, false, fmt.Errorf("check accepted offer: %w", err)
		}
		return false, alreadyAccepted, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE offers SET status='rejected', rejection_reason=$2, updated_at=NOW()
		WHERE request_id=$1 AND status='pending'
	`, requestID, CascadeRejectionReason); err != nil {
		return false, false, fmt.Errorf("cascade reject offers: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE requests SET assigned_pro_id=$2, tracking_status='contracted', updated_at=NOW()
		WHERE id=$1
	`, requestID, proID); err != nil {
		return false, false, fmt.Errorf("assign winner: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO request_interactions (request_id, pro_id, status)
		VALUES ($1, $2, 'won')
		ON CONFLICT (request_id, pro_id) DO UPDATE SET status='won', updated_at=NOW()
	`, requestID, proID); err != nil {
		return false, false, fmt.Errorf("record winner interaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE request_interactions SET status='lost', updated_at=NOW()
		WHERE request_id=$1 AND pro_id <> $2 AND status NOT IN ('lost', 'archived')
	`, requestID, proID); err != nil {
		return false, false, fmt.Errorf("record losing interactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("commit accept tx: %w", err)
	}
	return true, false, nil
}

func (s *PostgresStore) RejectOffer(ctx context.Context, requestID, proID, reason string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE offers SET status='rejected', rejection_reason=$3, updated_at=NOW()
		WHERE request_id=$1 AND pro_id=$2 AND status='pending'
	`, requestID, proID, reason)
	if err != nil {
		return false, fmt.Errorf("reject offer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject offer: %w", err)
	}
	return affected > 0, nil
}

// ---- conversations and messages ----

func (s *PostgresStore) GetConversationByPair(ctx context.Context, requestID, proID string) (Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, client_id, pro_id, initiator_id, source, created_at
		FROM conversations
		WHERE request_id=$1 AND pro_id=$2
		ORDER BY CASE source WHEN 'canonical' THEN 0 ELSE 1 END
		LIMIT 1
	`, requestID, proID).Scan(&conv.ID, &conv.RequestID, &conv.ClientID, &conv.ProID, &conv.InitiatorID, &conv.Source, &conv.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, client_id, pro_id, initiator_id, source, created_at
		FROM conversations WHERE id=$1
	`, conversationID).Scan(&conv.ID, &conv.RequestID, &conv.ClientID, &conv.ProID, &conv.InitiatorID, &conv.Source, &conv.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *PostgresStore) InsertConversation(ctx context.Context, conv Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, request_id, client_id, pro_id, initiator_id, source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conv.ID, conv.RequestID, conv.ClientID, conv.ProID, conv.InitiatorID, conv.Source)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConversationsByRequest(ctx context.Context, requestID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, client_id, pro_id, initiator_id, source, created_at
		FROM conversations WHERE request_id=$1 ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]Conversation, 0)
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.RequestID, &conv.ClientID, &conv.ProID, &conv.InitiatorID, &conv.Source, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return items, nil
}

// ListConversationListings returns every conversation the user participates
// in, flattened with request status and message aggregates for the
// reconciler. Visibility filtering is not done here; the reconciler owns it.
func (s *PostgresStore) ListConversationListings(ctx context.Context, userID string) ([]ConversationListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.request_id, c.client_id, c.pro_id, c.initiator_id, c.source, c.created_at,
			r.owner_id, r.raw_status,
			COUNT(m.id) AS message_count,
			COUNT(m.id) FILTER (WHERE NOT m.read AND m.sender_id <> $1) AS unread_count,
			MAX(m.created_at) AS last_message_at,
			COALESCE((SELECT m2.content FROM messages m2 WHERE m2.conversation_id = c.id ORDER BY m2.created_at DESC LIMIT 1), '') AS last_message
		FROM conversations c
		JOIN requests r ON r.id = c.request_id
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.client_id = $1 OR c.pro_id = $1
		GROUP BY c.id, c.request_id, c.client_id, c.pro_id, c.initiator_id, c.source, c.created_at, r.owner_id, r.raw_status
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversation listings: %w", err)
	}
	defer rows.Close()

	items := make([]ConversationListing, 0)
	for rows.Next() {
		var item ConversationListing
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ClientID, &item.ProID, &item.InitiatorID, &item.Source, &item.CreatedAt,
			&item.RequestOwnerID, &item.RequestRawStatus, &item.MessageCount, &item.UnreadCount, &item.LastMessageAt, &item.LastMessage); err != nil {
			return nil, fmt.Errorf("scan conversation listing: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation listings: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, media_ref)
		VALUES ($1, $2, $3, $4, $5)
	`, message.ID, message.ConversationID, message.SenderID, message.Content, message.MediaRef)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, media_ref, read, created_at
		FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.ConversationID, &message.SenderID, &message.Content, &message.MediaRef, &message.Read, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// MarkConversationRead marks everything the reader did not send.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read=TRUE WHERE conversation_id=$1 AND sender_id <> $2 AND NOT read
	`, conversationID, readerID)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

// ---- timeline ----

func (s *PostgresStore) InsertTimelineEvent(ctx context.Context, event TimelineEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timeline_events (id, request_id, event_type, title, description, media_ref, actor_id, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.RequestID, event.EventType, event.Title, event.Description, event.MediaRef, event.ActorID, event.Private)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTimelineEvents(ctx context.Context, requestID string) ([]TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, event_type, title, description, media_ref, actor_id, is_private, created_at
		FROM timeline_events WHERE request_id=$1 ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	items := make([]TimelineEvent, 0)
	for rows.Next() {
		var event TimelineEvent
		if err := rows.Scan(&event.ID, &event.RequestID, &event.EventType, &event.Title, &event.Description, &event.MediaRef, &event.ActorID, &event.Private, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return items, nil
}

// ---- ratings ----

// InsertRating records one rating per (request, direction); the unique
// constraint turns a duplicate into affected==0. Both flags set flips the
// raw status to rated.
func (s *PostgresStore) InsertRating(ctx context.Context, rating Rating) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin rating tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO ratings (id, request_id, reviewer_id, reviewee_id, direction, score, comment, arrived_on_time, was_courteous, would_repeat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (request_id, direction) DO NOTHING
	`, rating.ID, rating.RequestID, rating.ReviewerID, rating.RevieweeID, rating.Direction,
		rating.Score, rating.Comment, rating.ArrivedOnTime, rating.WasCourteous, rating.WouldRepeat)
	if err != nil {
		return false, fmt.Errorf("insert rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert rating: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	flag := "client_rated"
	if rating.Direction == DirectionProToClient {
		flag = "pro_rated"
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE requests SET `+flag+`=TRUE,
			raw_status = CASE WHEN pro_rated AND client_rated AND `+flag+` THEN 'rated' ELSE raw_status END,
			updated_at=NOW()
		WHERE id=$1
	`, rating.RequestID); err != nil {
		return false, fmt.Errorf("flag rating on request: %w", err)
	}
	// Re-check convergence after the flag write so the other direction's
	// earlier rating is taken into account.
	if _, err := tx.ExecContext(ctx, `
		UPDATE requests SET raw_status='rated', updated_at=NOW()
		WHERE id=$1 AND pro_rated AND client_rated AND raw_status <> 'canceled'
	`, rating.RequestID); err != nil {
		return false, fmt.Errorf("converge rated status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rating tx: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListRatings(ctx context.Context, requestID string) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, reviewer_id, reviewee_id, direction, score, comment, arrived_on_time, was_courteous, would_repeat, created_at
		FROM ratings WHERE request_id=$1 ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	items := make([]Rating, 0)
	for rows.Next() {
		var rating Rating
		if err := rows.Scan(&rating.ID, &rating.RequestID, &rating.ReviewerID, &rating.RevieweeID, &rating.Direction,
			&rating.Score, &rating.Comment, &rating.ArrivedOnTime, &rating.WasCourteous, &rating.WouldRepeat, &rating.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		items = append(items, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return items, nil
}

// ---- interactions ----

func (s *PostgresStore) ListInteractions(ctx context.Context, requestID string) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, pro_id, status, updated_at
		FROM request_interactions WHERE request_id=$1
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	items := make([]Interaction, 0)
	for rows.Next() {
		var item Interaction
		if err := rows.Scan(&item.RequestID, &item.ProID, &item.Status, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return items, nil
}

// AdvanceInteraction upserts the professional's interaction status, but only
// forward: a lower-ranked status never overwrites a higher one.
func (s *PostgresStore) AdvanceInteraction(ctx context.Context, requestID, proID, statusValue string) error {
	nextRank, ok := interactionRank[statusValue]
	if !ok {
		return fmt.Errorf("unknown interaction status %q", statusValue)
	}

	var current string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM request_interactions WHERE request_id=$1 AND pro_id=$2
	`, requestID, proID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read interaction: %w", err)
	}
	if err == nil && interactionRank[current] >= nextRank {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO request_interactions (request_id, pro_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id, pro_id) DO UPDATE SET status=EXCLUDED.status, updated_at=NOW()
	`, requestID, proID, statusValue)
	if err != nil {
		return fmt.Errorf("advance interaction: %w", err)
	}
	return nil
}

// ---- snapshots ----

// GetSnapshot assembles the full ground-truth view of one request. The
// request service always returns snapshots, never deltas, so callers can
// re-derive status from scratch after every write.
func (s *PostgresStore) GetSnapshot(ctx context.Context, requestID string) (Snapshot, error) {
	request, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	offers, err := s.ListOffers(ctx, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	conversations, err := s.ListConversationsByRequest(ctx, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	timeline, err := s.ListTimelineEvents(ctx, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	ratings, err := s.ListRatings(ctx, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	interactions, err := s.ListInteractions(ctx, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Request:       request,
		Offers:        offers,
		Conversations: conversations,
		Timeline:      timeline,
		Ratings:       ratings,
		Interactions:  interactions,
	}, nil
}
