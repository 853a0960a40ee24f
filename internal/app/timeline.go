package app

import (
	"context"
	"strings"

	"oficio/api/internal/identity"
	"oficio/api/internal/search"
	"oficio/api/internal/status"
	"oficio/api/internal/store"
	"oficio/api/internal/util"
)

type TimelineEventInput struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MediaRef    string `json:"mediaRef"`
	Private     bool   `json:"private"`
}

// AddTimelineEvent appends a milestone to the request's log. The log is
// append-only; there is no edit or delete. Who may add what depends on the
// execution phase:
//
//	none/contracted         photos by either party ("before")
//	started, pro unfinished photos by the client only ("during")
//	pro finished            photos by either party ("after")
//	any phase               notes by either party, public or private
//
// A start date proposal is the winner's move while contracted.
func (s *Service) AddTimelineEvent(ctx context.Context, session Session, requestID string, input TimelineEventInput) (map[string]any, error) {
	snap, err := s.fetchSnapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if status.Terminal(snap) {
		return nil, errConflict("REQUEST_CLOSED", "the timeline of a closed request is immutable")
	}

	isOwner := identity.Equals(snap.OwnerID, session.UserID)
	isWinner := isAssignedPro(snap, session.UserID)
	if !isOwner && !isTimelineContributor(snap, session.UserID) {
		return nil, errForbidden("only participants can add timeline events")
	}

	event := store.TimelineEvent{
		ID:          util.NewID("evt"),
		RequestID:   requestID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		ActorID:     session.UserID,
	}

	switch input.Type {
	case store.EventPhotoUploaded:
		if input.MediaRef == "" {
			return nil, errValidation("a photo event needs a mediaRef")
		}
		if err := photoGate(snap, isOwner); err != nil {
			return nil, err
		}
		event.EventType = store.EventPhotoUploaded
		event.MediaRef = input.MediaRef

	case store.EventNoteAdded:
		if event.Title == "" && event.Description == "" {
			return nil, errValidation("a note needs a title or description")
		}
		event.EventType = store.EventNoteAdded
		event.Private = input.Private

	case store.EventStartDateProposed:
		if !isWinner {
			return nil, errForbidden("only the contracted professional can propose a start date")
		}
		if status.NormalizeTracking(snap.TrackingStatus) != status.TrackingContracted {
			return nil, errConflict("NOT_CONTRACTED", "a start date needs a contracted engagement")
		}
		if event.Description == "" {
			return nil, errValidation("a start date proposal needs a description")
		}
		event.EventType = store.EventStartDateProposed

	default:
		return nil, errValidation("unknown timeline event type")
	}

	if err := s.store.InsertTimelineEvent(ctx, event); err != nil {
		return nil, err
	}

	if s.search != nil && event.EventType == store.EventNoteAdded && !event.Private {
		s.search.IndexNote(search.NoteRecord{
			ID:          event.ID,
			Title:       event.Title,
			Description: event.Description,
			RequestID:   requestID,
			Category:    snap.Category,
		})
	}

	return s.requestView(ctx, session, requestID)
}

// photoGate enforces the asymmetric photo phases. During execution only the
// client documents progress; the professional cannot certify their own
// unfinished work.
func photoGate(snap store.Snapshot, isOwner bool) error {
	tracking := status.NormalizeTracking(snap.TrackingStatus)
	if tracking == status.TrackingStarted && !snap.ProFinished && !isOwner {
		return errForbidden("only the client can add photos while the job is running")
	}
	return nil
}

// VisibleTimeline filters the event log for one viewer. Authors always see
// their own entries. Private entries stay hidden from the counterpart until
// the engagement reaches a terminal state, after which the whole log is the
// shared permanent record. Outsiders see public entries only after the
// engagement is over.
func VisibleTimeline(snap store.Snapshot, viewerID string) []store.TimelineEvent {
	terminal := status.Terminal(snap)
	participant := identity.Equals(snap.OwnerID, viewerID) || isTimelineContributor(snap, viewerID)

	visible := make([]store.TimelineEvent, 0, len(snap.Timeline))
	for _, event := range snap.Timeline {
		switch {
		case identity.Equals(event.ActorID, viewerID):
			visible = append(visible, event)
		case !participant:
			if terminal && !event.Private {
				visible = append(visible, event)
			}
		case event.Private && !terminal:
			// Counterpart waits for the terminal state.
		default:
			visible = append(visible, event)
		}
	}
	return visible
}

// isTimelineContributor reports whether a professional has standing on the
// request: assigned, offering, or in conversation with the owner.
func isTimelineContributor(snap store.Snapshot, userID string) bool {
	if isAssignedPro(snap, userID) {
		return true
	}
	for _, offer := range snap.Offers {
		if identity.Equals(offer.ProID, userID) {
			return true
		}
	}
	for _, conv := range snap.Conversations {
		if identity.Equals(conv.ProID, userID) {
			return true
		}
	}
	return false
}
