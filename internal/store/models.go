package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Request is a posted service job. RawStatus and TrackingStatus arrive from
// legacy imports in whatever casing or localization the old clients used;
// the status package normalizes them before any derivation runs.
// AssignedProID may carry stray quoting for the same reason, so it must only
// be compared through the identity package.
type Request struct {
	ID             string
	OwnerID        string
	Category       string
	Subcategory    string
	Location       string
	Description    string
	Images         []string
	RawStatus      string
	TrackingStatus string
	AssignedProID  string
	ProFinished    bool
	ClientFinished bool
	ProRated       bool
	ClientRated    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Offer struct {
	ID              string
	RequestID       string
	ProID           string
	Amount          int64
	Currency        string
	Items           []OfferItem
	Status          string
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OfferItem is one priced line of an offer. Prices are minor units (cents).
type OfferItem struct {
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferRejected = "rejected"
)

// CascadeRejectionReason is the system-generated reason written onto
// competing offers when one offer is accepted.
const CascadeRejectionReason = "assigned to another professional"

type Conversation struct {
	ID          string
	RequestID   string
	ClientID    string
	ProID       string
	InitiatorID string
	Source      string
	CreatedAt   time.Time
}

// Conversation sources. Legacy rows were imported from records embedded in
// old request documents; when both describe the same (request, professional)
// pair the canonical row wins.
const (
	SourceCanonical = "canonical"
	SourceLegacy    = "legacy"
)

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	MediaRef       string
	Read           bool
	CreatedAt      time.Time
}

// ConversationListing is the flattened row the chat reconciler consumes:
// one conversation with its request status and message aggregates.
type ConversationListing struct {
	Conversation
	RequestOwnerID   string
	RequestRawStatus string
	MessageCount     int
	UnreadCount      int
	LastMessageAt    *time.Time
	LastMessage      string
}

type TimelineEvent struct {
	ID          string
	RequestID   string
	EventType   string
	Title       string
	Description string
	MediaRef    string
	ActorID     string
	Private     bool
	CreatedAt   time.Time
}

const (
	EventJobCreated        = "job_created"
	EventPhotoUploaded     = "photo_uploaded"
	EventNoteAdded         = "note_added"
	EventStartDateProposed = "start_date_proposed"
	EventJobFinished       = "job_finished"
)

// Rating answers are a fixed set per direction, never an open map.
// Client rating a professional answers punctuality/professionalism;
// a professional rating a client answers payment/brief clarity.
type Rating struct {
	ID            string
	RequestID     string
	ReviewerID    string
	RevieweeID    string
	Direction     string
	Score         int
	Comment       string
	ArrivedOnTime bool
	WasCourteous  bool
	WouldRepeat   bool
	CreatedAt     time.Time
}

const (
	DirectionClientToPro = "client_to_pro"
	DirectionProToClient = "pro_to_client"
)

// Interaction is the persisted per-professional relationship to a request,
// the last fallback of the professional-side status derivation.
type Interaction struct {
	RequestID string
	ProID     string
	Status    string
	UpdatedAt time.Time
}

const (
	InteractionNew       = "new"
	InteractionViewed    = "viewed"
	InteractionContacted = "contacted"
	InteractionOffered   = "offered"
	InteractionWon       = "won"
	InteractionLost      = "lost"
	InteractionRejected  = "rejected"
	InteractionArchived  = "archived"
)

// interactionRank orders interaction statuses so advances never move
// backwards: a professional who already offered stays "offered" when they
// merely view the request again.
var interactionRank = map[string]int{
	InteractionNew:       0,
	InteractionViewed:    1,
	InteractionContacted: 2,
	InteractionOffered:   3,
	InteractionRejected:  4,
	InteractionLost:      5,
	InteractionWon:       6,
	InteractionArchived:  7,
}

// Snapshot is the full ground-truth view of one request. Every mutation
// re-reads one of these; derived status is never trusted from a local patch.
type Snapshot struct {
	Request
	Offers        []Offer
	Conversations []Conversation
	Timeline      []TimelineEvent
	Ratings       []Rating
	Interactions  []Interaction
}
