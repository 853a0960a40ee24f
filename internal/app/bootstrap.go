package app

import (
	"context"
	"fmt"
	"log"

	"oficio/api/internal/authpw"
	"oficio/api/internal/store"
	"oficio/api/internal/util"
)

const seedClientEmail = "ana@oficio.dev"

// Bootstrap seeds a demo engagement on an empty database: one client, two
// professionals, a request with two competing offers and an open
// conversation. Running against an already seeded database is a no-op.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.authpw == nil {
		return nil
	}
	if _, err := s.store.GetUserByEmail(ctx, seedClientEmail); err == nil {
		return nil
	}

	clientID, err := s.seedUser(ctx, seedClientEmail, "Ana García", "client")
	if err != nil {
		return err
	}
	proA, err := s.seedUser(ctx, "marta@oficio.dev", "Marta Ruiz", "professional")
	if err != nil {
		return err
	}
	proB, err := s.seedUser(ctx, "luis@oficio.dev", "Luis Ortega", "professional")
	if err != nil {
		return err
	}

	requestID := util.NewID("req")
	if err := s.store.InsertRequest(ctx, store.Request{
		ID:             requestID,
		OwnerID:        clientID,
		Category:       "Fontanería",
		Subcategory:    "Reparación de fugas",
		Location:       "Madrid",
		Description:    "Fuga de agua bajo el fregadero de la cocina.",
		RawStatus:      "open",
		TrackingStatus: "none",
	}); err != nil {
		return fmt.Errorf("seed request: %w", err)
	}
	if err := s.store.InsertTimelineEvent(ctx, store.TimelineEvent{
		ID:        util.NewID("evt"),
		RequestID: requestID,
		EventType: store.EventJobCreated,
		Title:     "Solicitud creada",
		ActorID:   clientID,
	}); err != nil {
		return fmt.Errorf("seed timeline: %w", err)
	}

	for i, pro := range []struct {
		id     string
		amount int64
	}{{proA, 12000}, {proB, 15000}} {
		if err := s.store.InsertOffer(ctx, store.Offer{
			ID:        util.NewID("off"),
			RequestID: requestID,
			ProID:     pro.id,
			Amount:    pro.amount,
			Currency:  "EUR",
			Items: []store.OfferItem{
				{Description: "Mano de obra", Price: pro.amount - 2000},
				{Description: "Materiales", Price: 2000},
			},
			Status: store.OfferPending,
		}); err != nil {
			return fmt.Errorf("seed offer %d: %w", i, err)
		}
		if err := s.store.AdvanceInteraction(ctx, requestID, pro.id, store.InteractionOffered); err != nil {
			return fmt.Errorf("seed interaction %d: %w", i, err)
		}
	}

	conversationID := util.NewID("cnv")
	if err := s.store.InsertConversation(ctx, store.Conversation{
		ID:          conversationID,
		RequestID:   requestID,
		ClientID:    clientID,
		ProID:       proA,
		InitiatorID: proA,
		Source:      store.SourceCanonical,
	}); err != nil {
		return fmt.Errorf("seed conversation: %w", err)
	}
	if err := s.store.InsertMessage(ctx, store.Message{
		ID:             util.NewID("msg"),
		ConversationID: conversationID,
		SenderID:       proA,
		Content:        "Hola Ana, puedo pasarme mañana a revisar la fuga.",
	}); err != nil {
		return fmt.Errorf("seed message: %w", err)
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}

	log.Printf("bootstrap: seeded demo engagement %s", requestID)
	return nil
}

// seedUser signs the account up through the normal path and verifies it
// immediately so demo logins work out of the box. Password: "oficio-demo".
func (s *Service) seedUser(ctx context.Context, email, name, role string) (string, error) {
	resp, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    "oficio-demo",
		DisplayName: name,
		Role:        role,
	})
	if err != nil {
		return "", fmt.Errorf("seed user %s: %w", email, err)
	}
	if err := s.authpw.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		return "", fmt.Errorf("verify seed user %s: %w", email, err)
	}
	return resp.UserID, nil
}
