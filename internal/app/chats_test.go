package app

import (
	"context"
	"testing"
	"time"

	"oficio/api/internal/rbac"
	"oficio/api/internal/store"
)

func listing(id, requestID, clientID, proID, source string, messages int, lastAt *time.Time) store.ConversationListing {
	return store.ConversationListing{
		Conversation: store.Conversation{
			ID:          id,
			RequestID:   requestID,
			ClientID:    clientID,
			ProID:       proID,
			InitiatorID: proID,
			Source:      source,
		},
		RequestOwnerID:   clientID,
		RequestRawStatus: "open",
		MessageCount:     messages,
		LastMessageAt:    lastAt,
	}
}

func at(minutesAgo int) *time.Time {
	ts := time.Now().Add(-time.Duration(minutesAgo) * time.Minute)
	return &ts
}

func TestReconcileDeduplicatesCanonicalOverLegacy(t *testing.T) {
	legacy := listing("cnv_legacy", "req_1", "usr_c", "usr_p", store.SourceLegacy, 5, at(1))
	canonical := listing("cnv_canon", "req_1", "usr_c", "usr_p", store.SourceCanonical, 3, at(10))

	list := ReconcileChats([]store.ConversationListing{legacy, canonical}, "usr_c", rbac.RoleClient)
	if len(list.Active) != 1 {
		t.Fatalf("expected one deduplicated row, got %d", len(list.Active))
	}
	if list.Active[0].ConversationID != "cnv_canon" {
		t.Fatalf("canonical record should win, got %s", list.Active[0].ConversationID)
	}

	// Order of arrival must not matter.
	list = ReconcileChats([]store.ConversationListing{canonical, legacy}, "usr_c", rbac.RoleClient)
	if len(list.Active) != 1 || list.Active[0].ConversationID != "cnv_canon" {
		t.Fatalf("canonical should win regardless of order, got %+v", list.Active)
	}
}

func TestReconcileOwnershipAsymmetry(t *testing.T) {
	// usr_p posted a request of their own (acting as client) and a pro
	// contacted them there; usr_p also chats as a pro on someone else's job.
	ownJob := listing("cnv_own", "req_own", "usr_p", "usr_other", store.SourceCanonical, 2, at(5))
	proWork := listing("cnv_work", "req_ext", "usr_c", "usr_p", store.SourceCanonical, 4, at(2))

	proList := ReconcileChats([]store.ConversationListing{ownJob, proWork}, "usr_p", rbac.RoleProfessional)
	if len(proList.Active) != 1 || proList.Active[0].ConversationID != "cnv_work" {
		t.Fatalf("professional mode must exclude chats on own requests, got %+v", proList.Active)
	}

	clientList := ReconcileChats([]store.ConversationListing{ownJob, proWork}, "usr_p", rbac.RoleClient)
	if len(clientList.Active) != 1 || clientList.Active[0].ConversationID != "cnv_own" {
		t.Fatalf("client mode shows only own-request chats, got %+v", clientList.Active)
	}
}

func TestReconcileDropsSelfChat(t *testing.T) {
	self := listing("cnv_self", "req_1", "usr_p", "usr_p", store.SourceCanonical, 3, at(1))
	list := ReconcileChats([]store.ConversationListing{self}, "usr_p", rbac.RoleClient)
	if len(list.Active) != 0 || len(list.Archived) != 0 {
		t.Fatalf("self chat must never appear, got %+v", list)
	}
}

func TestReconcileHidesZeroMessageConversations(t *testing.T) {
	empty := listing("cnv_empty", "req_1", "usr_c", "usr_p", store.SourceCanonical, 0, nil)

	// Not even the initiator sees a thread nobody has written to.
	proList := ReconcileChats([]store.ConversationListing{empty}, "usr_p", rbac.RoleProfessional)
	if len(proList.Active) != 0 || len(proList.Archived) != 0 {
		t.Fatalf("empty conversation must never be shown, got %+v", proList)
	}
	clientList := ReconcileChats([]store.ConversationListing{empty}, "usr_c", rbac.RoleClient)
	if len(clientList.Active) != 0 || len(clientList.Archived) != 0 {
		t.Fatalf("empty conversation must never be shown, got %+v", clientList)
	}
}

func TestReconcileArchivesCanceledRequests(t *testing.T) {
	open := listing("cnv_open", "req_1", "usr_c", "usr_a", store.SourceCanonical, 2, at(3))
	done := listing("cnv_done", "req_2", "usr_c", "usr_b", store.SourceCanonical, 7, at(1))
	done.RequestRawStatus = "rated"
	canceled := listing("cnv_gone", "req_3", "usr_c", "usr_d", store.SourceCanonical, 1, at(2))
	canceled.RequestRawStatus = "canceled"
	closed := listing("cnv_closed", "req_4", "usr_c", "usr_e", store.SourceLegacy, 3, at(4))
	closed.RequestRawStatus = "closed"

	list := ReconcileChats([]store.ConversationListing{open, done, canceled, closed}, "usr_c", rbac.RoleClient)

	// A finished engagement stays in the active inbox; only cancellation
	// (including the legacy "closed" spelling) archives the thread.
	if len(list.Active) != 2 {
		t.Fatalf("expected open and rated threads active, got %+v", list.Active)
	}
	for _, item := range list.Active {
		if item.ConversationID != "cnv_open" && item.ConversationID != "cnv_done" {
			t.Fatalf("unexpected active row: %+v", item)
		}
	}
	if len(list.Archived) != 2 {
		t.Fatalf("expected two archived rows, got %+v", list.Archived)
	}
	for _, item := range list.Archived {
		if item.ConversationID != "cnv_gone" && item.ConversationID != "cnv_closed" {
			t.Fatalf("unexpected archived row: %+v", item)
		}
		if !item.Archived {
			t.Fatalf("archived row not flagged: %+v", item)
		}
	}
}

func TestReconcileOrdering(t *testing.T) {
	oldest := listing("cnv_old", "req_1", "usr_c", "usr_a", store.SourceCanonical, 2, at(60))
	newest := listing("cnv_new", "req_2", "usr_c", "usr_b", store.SourceCanonical, 2, at(1))
	undated := listing("cnv_undated", "req_3", "usr_c", "usr_d", store.SourceLegacy, 1, nil)

	list := ReconcileChats([]store.ConversationListing{oldest, undated, newest}, "usr_c", rbac.RoleClient)
	if len(list.Active) != 3 {
		t.Fatalf("expected three rows, got %d", len(list.Active))
	}
	got := []string{list.Active[0].ConversationID, list.Active[1].ConversationID, list.Active[2].ConversationID}
	want := []string{"cnv_new", "cnv_old", "cnv_undated"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
}

func TestStartConversationIsIdempotentPerPair(t *testing.T) {
	snap := openSnapshot("req_1", "usr_c")
	existing := store.Conversation{
		ID: "cnv_1", RequestID: "req_1", ClientID: "usr_c", ProID: "usr_p",
		InitiatorID: "usr_p", Source: store.SourceCanonical,
	}
	inserted := false
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getConvByPairFn: func(context.Context, string, string) (store.Conversation, error) {
			return existing, nil
		},
		insertConversationFn: func(context.Context, store.Conversation) error {
			inserted = true
			return nil
		},
	}
	svc := testService(data)

	payload, err := svc.StartConversation(context.Background(), proSession("usr_p"), "req_1", "")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if inserted {
		t.Fatal("existing pair must be reused, not duplicated")
	}
	if payload["id"] != "cnv_1" {
		t.Fatalf("expected the existing conversation, got %v", payload["id"])
	}
}

func TestStartConversationRejectsSelf(t *testing.T) {
	snap := openSnapshot("req_1", "usr_c")
	data := &fakeStore{
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	svc := testService(data)

	_, err := svc.StartConversation(context.Background(), clientSession("usr_c"), "req_1", "usr_c")
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestSendMessageRequiresMembership(t *testing.T) {
	conv := store.Conversation{ID: "cnv_1", RequestID: "req_1", ClientID: "usr_c", ProID: "usr_p"}
	data := &fakeStore{
		getConversationFn: func(context.Context, string) (store.Conversation, error) { return conv, nil },
	}
	svc := testService(data)

	_, err := svc.SendMessage(context.Background(), proSession("usr_x"), "cnv_1", MessageInput{Content: "hola"})
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}

	if _, err := svc.SendMessage(context.Background(), clientSession("usr_c"), "cnv_1", MessageInput{Content: "hola"}); err != nil {
		t.Fatalf("participant should send, got %v", err)
	}
}
