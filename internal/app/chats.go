package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"oficio/api/internal/identity"
	"oficio/api/internal/rbac"
	"oficio/api/internal/status"
	"oficio/api/internal/store"
	"oficio/api/internal/util"
)

type MessageInput struct {
	Content  string `json:"content"`
	MediaRef string `json:"mediaRef"`
}

// ChatItem is one reconciled conversation row.
type ChatItem struct {
	ConversationID string     `json:"conversationId"`
	RequestID      string     `json:"requestId"`
	OtherPartyID   string     `json:"otherPartyId"`
	LastMessage    string     `json:"lastMessage"`
	LastMessageAt  *time.Time `json:"lastMessageAt"`
	UnreadCount    int        `json:"unreadCount"`
	Archived       bool       `json:"archived"`
}

// ChatList partitions the reconciled conversations. Archived rows are kept
// and viewable behind an explicit toggle, never deleted.
type ChatList struct {
	Active   []ChatItem `json:"active"`
	Archived []ChatItem `json:"archived"`
}

// ListConversations reconciles the viewer's raw conversation records into
// the display list.
func (s *Service) ListConversations(ctx context.Context, session Session) (ChatList, error) {
	listings, err := s.store.ListConversationListings(ctx, session.UserID)
	if err != nil {
		return ChatList{}, err
	}
	return ReconcileChats(listings, session.UserID, rbac.Normalize(session.Role)), nil
}

// ReconcileChats is the pure core of the chat list. Rules, in order:
//
//   - a self chat (client and professional resolve to the same identity)
//     is dropped outright
//   - a conversation with no messages is never shown
//   - in professional mode, conversations on the viewer's own requests are
//     excluded; those belong to their client-mode list
//   - duplicate records for one (request, professional) pair collapse to a
//     single row, the canonical source winning over a legacy import
//   - rows on canceled requests are partitioned as archived
//   - each partition orders by last message time, newest first, rows that
//     never had a message last
func ReconcileChats(listings []store.ConversationListing, viewerID string, role rbac.Role) ChatList {
	type key struct {
		requestID string
		proID     string
	}
	chosen := make(map[key]store.ConversationListing)
	order := make([]key, 0, len(listings))

	for _, listing := range listings {
		if identity.Equals(listing.ClientID, listing.ProID) {
			continue
		}
		if listing.MessageCount == 0 {
			continue
		}

		viewerIsOwner := identity.Equals(listing.RequestOwnerID, viewerID) ||
			identity.Equals(listing.ClientID, viewerID)
		if role == rbac.RoleProfessional && viewerIsOwner {
			continue
		}
		if role != rbac.RoleProfessional && !viewerIsOwner {
			continue
		}

		k := key{
			requestID: identity.Canonical(listing.RequestID),
			proID:     identity.Canonical(listing.ProID),
		}
		current, exists := chosen[k]
		if !exists {
			chosen[k] = listing
			order = append(order, k)
			continue
		}
		if betterListing(listing, current) {
			chosen[k] = listing
		}
	}

	var list ChatList
	for _, k := range order {
		listing := chosen[k]
		item := ChatItem{
			ConversationID: listing.ID,
			RequestID:      listing.RequestID,
			OtherPartyID:   otherParty(listing, viewerID),
			LastMessage:    listing.LastMessage,
			LastMessageAt:  listing.LastMessageAt,
			UnreadCount:    listing.UnreadCount,
		}
		if archivedRaw(listing.RequestRawStatus) {
			item.Archived = true
			list.Archived = append(list.Archived, item)
		} else {
			list.Active = append(list.Active, item)
		}
	}

	sortChats(list.Active)
	sortChats(list.Archived)
	return list
}

// betterListing decides which duplicate survives: canonical beats legacy,
// then the row with the newer last message.
func betterListing(candidate, current store.ConversationListing) bool {
	if candidate.Source != current.Source {
		return candidate.Source == store.SourceCanonical
	}
	if candidate.LastMessageAt == nil {
		return false
	}
	if current.LastMessageAt == nil {
		return true
	}
	return candidate.LastMessageAt.After(*current.LastMessageAt)
}

func otherParty(listing store.ConversationListing, viewerID string) string {
	if identity.Equals(listing.ClientID, viewerID) {
		return identity.Canonical(listing.ProID)
	}
	return identity.Canonical(listing.ClientID)
}

// archivedRaw reports whether the request left the active inbox. Only
// cancellation archives a conversation; completed and rated engagements
// stay in the active partition.
func archivedRaw(raw string) bool {
	return status.NormalizeRaw(raw) == status.RawCanceled
}

func sortChats(items []ChatItem) {
	sort.SliceStable(items, func(i, j int) bool {
		left, right := items[i].LastMessageAt, items[j].LastMessageAt
		if left == nil {
			return false
		}
		if right == nil {
			return true
		}
		return left.After(*right)
	})
}

// StartConversation finds or lazily creates the thread between the request
// owner and one professional. At most one conversation exists per pair.
func (s *Service) StartConversation(ctx context.Context, session Session, requestID, otherPartyID string) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var clientID, proID string
	if identity.Equals(snap.OwnerID, session.UserID) {
		clientID = snap.OwnerID
		proID = identity.Canonical(otherPartyID)
		if proID == "" {
			return nil, errValidation("otherPartyId is required")
		}
	} else {
		clientID = snap.OwnerID
		proID = session.UserID
	}
	if identity.Equals(clientID, proID) {
		return nil, errValidation("cannot start a conversation with yourself")
	}

	conv, err := s.store.GetConversationByPair(ctx, requestID, proID)
	if err != nil {
		conv = store.Conversation{
			ID:          util.NewID("cnv"),
			RequestID:   requestID,
			ClientID:    identity.Canonical(clientID),
			ProID:       proID,
			InitiatorID: session.UserID,
			Source:      store.SourceCanonical,
		}
		if err := s.store.InsertConversation(ctx, conv); err != nil {
			return nil, err
		}
		_ = s.store.AdvanceInteraction(ctx, requestID, proID, store.InteractionContacted)
	}

	return conversationPayload(conv), nil
}

func (s *Service) SendMessage(ctx context.Context, session Session, conversationID string, input MessageInput) (map[string]any, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.MediaRef == "" {
		return nil, errValidation("a message needs content or a mediaRef")
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversationMember(conv, session.UserID) {
		return nil, errForbidden("not a participant of this conversation")
	}

	message := store.Message{
		ID:             util.NewID("msg"),
		ConversationID: conversationID,
		SenderID:       session.UserID,
		Content:        content,
		MediaRef:       input.MediaRef,
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}

	_ = s.store.AdvanceInteraction(ctx, conv.RequestID, identity.Canonical(conv.ProID), store.InteractionContacted)
	s.cache.Invalidate(conv.RequestID)

	return map[string]any{
		"id":             message.ID,
		"conversationId": conversationID,
		"senderId":       message.SenderID,
		"content":        message.Content,
		"mediaRef":       message.MediaRef,
	}, nil
}

func (s *Service) ListMessages(ctx context.Context, session Session, conversationID string) ([]map[string]any, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversationMember(conv, session.UserID) {
		return nil, errForbidden("not a participant of this conversation")
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, map[string]any{
			"id":        message.ID,
			"senderId":  message.SenderID,
			"content":   message.Content,
			"mediaRef":  message.MediaRef,
			"read":      message.Read,
			"createdAt": message.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) MarkConversationRead(ctx context.Context, session Session, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversationMember(conv, session.UserID) {
		return errForbidden("not a participant of this conversation")
	}
	return s.store.MarkConversationRead(ctx, conversationID, session.UserID)
}

func conversationMember(conv store.Conversation, userID string) bool {
	return identity.Equals(conv.ClientID, userID) || identity.Equals(conv.ProID, userID)
}

func conversationPayload(conv store.Conversation) map[string]any {
	return map[string]any{
		"id":          conv.ID,
		"requestId":   conv.RequestID,
		"clientId":    identity.Canonical(conv.ClientID),
		"proId":       identity.Canonical(conv.ProID),
		"initiatorId": identity.Canonical(conv.InitiatorID),
		"source":      conv.Source,
	}
}
