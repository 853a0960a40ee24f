// Package status derives the display status of a request for each side of
// the marketplace. Both derivations are pure, total and ordered: an explicit
// priority chain of predicates where the first match wins. Screens never
// re-derive status on their own; they call this package.
package status

import (
	"oficio/api/internal/identity"
	"oficio/api/internal/store"
)

// Client is the status of a request as seen by its owner.
type Client string

const (
	ClientNueva        Client = "NUEVA"
	ClientContactada   Client = "CONTACTADA"
	ClientRechazada    Client = "RECHAZADA"
	ClientPresupuesta  Client = "PRESUPUESTADA"
	ClientEnEjecucion  Client = "EN_EJECUCION"
	ClientValidando    Client = "VALIDANDO"
	ClientTerminado    Client = "TERMINADO"
	ClientEliminada    Client = "ELIMINADA"
)

// Pro is the status of a request as seen by one professional.
type Pro string

const (
	ProNueva       Pro = "NUEVA"
	ProVista       Pro = "VISTA"
	ProContactada  Pro = "CONTACTADA"
	ProPresupuesta Pro = "PRESUPUESTADA"
	ProRechazada   Pro = "RECHAZADA"
	ProGanada      Pro = "GANADA"
	ProPerdida     Pro = "PERDIDA"
	ProAceptado    Pro = "ACEPTADO"
	ProEnEjecucion Pro = "EN_EJECUCION"
	ProValidando   Pro = "VALIDANDO"
	ProValoracion  Pro = "VALORACION"
	ProTerminado   Pro = "TERMINADO"
	ProArchivada   Pro = "ARCHIVADA"
	ProCerrada     Pro = "Cerrada"
)

// ForClient derives the owner-side status of a request. It never errors:
// unknown or missing fields fall through to the lowest-priority branch.
func ForClient(snap store.Snapshot) Client {
	raw := NormalizeRaw(snap.RawStatus)
	tracking := NormalizeTracking(snap.TrackingStatus)

	if raw == RawCanceled {
		return ClientEliminada
	}
	if raw == RawRated || raw == RawCompleted ||
		(snap.ProRated && snap.ClientRated) ||
		(snap.ProFinished && snap.ClientFinished) {
		return ClientTerminado
	}
	if snap.ProFinished && !snap.ClientFinished {
		return ClientValidando
	}
	if tracking == TrackingStarted || raw == RawInProgress {
		return ClientEnEjecucion
	}

	anyLive := false
	anyOffer := false
	for _, offer := range snap.Offers {
		anyOffer = true
		if NormalizeOffer(offer.Status) != store.OfferRejected {
			anyLive = true
		}
	}
	if anyLive {
		return ClientPresupuesta
	}
	if anyOffer {
		return ClientRechazada
	}
	if len(snap.Conversations) > 0 {
		return ClientContactada
	}
	return ClientNueva
}

// ForPro derives the status of a request as seen by the professional with
// viewerID. A non-empty override is the escape hatch for a status the
// server already computed; it wins outright when it names a known label.
func ForPro(snap store.Snapshot, viewerID string, override string) Pro {
	if label, ok := knownPro(override); ok {
		return label
	}

	raw := NormalizeRaw(snap.RawStatus)
	tracking := NormalizeTracking(snap.TrackingStatus)

	if raw == RawCanceled {
		return ProCerrada
	}

	if raw == RawRated || raw == RawCompleted {
		if !isWinner(snap, viewerID) {
			return ProPerdida
		}
		if raw == RawRated || (snap.ProRated && snap.ClientRated) {
			return ProTerminado
		}
		if snap.ProFinished && snap.ClientFinished {
			return ProValoracion
		}
		return ProValidando
	}

	if raw == RawInProgress || tracking == TrackingStarted {
		if !isWinner(snap, viewerID) {
			return ProPerdida
		}
		if snap.ProFinished {
			return ProValidando
		}
		if tracking == TrackingStarted {
			return ProEnEjecucion
		}
		return ProAceptado
	}

	if offer, ok := ownOffer(snap, viewerID); ok {
		switch NormalizeOffer(offer.Status) {
		case store.OfferAccepted:
			return ProGanada
		case store.OfferRejected:
			return ProRechazada
		default:
			return ProPresupuesta
		}
	}

	for _, conv := range snap.Conversations {
		if identity.Equals(conv.ProID, viewerID) {
			return ProContactada
		}
	}

	if interaction, ok := ownInteraction(snap, viewerID); ok {
		if label, ok := interactionLabels[interaction.Status]; ok {
			return label
		}
	}

	return ProNueva
}

// interactionLabels maps the persisted per-professional interaction enum to
// display labels one-to-one.
var interactionLabels = map[string]Pro{
	store.InteractionNew:       ProNueva,
	store.InteractionViewed:    ProVista,
	store.InteractionContacted: ProContactada,
	store.InteractionOffered:   ProPresupuesta,
	store.InteractionWon:       ProGanada,
	store.InteractionLost:      ProPerdida,
	store.InteractionRejected:  ProRechazada,
	store.InteractionArchived:  ProArchivada,
}

// isWinner reports whether the viewer is the professional fixed for this
// request: either directly assigned, or holder of the accepted offer.
func isWinner(snap store.Snapshot, viewerID string) bool {
	if identity.Equals(snap.AssignedProID, viewerID) {
		return true
	}
	for _, offer := range snap.Offers {
		if NormalizeOffer(offer.Status) == store.OfferAccepted && identity.Equals(offer.ProID, viewerID) {
			return true
		}
	}
	return false
}

func ownOffer(snap store.Snapshot, viewerID string) (store.Offer, bool) {
	for _, offer := range snap.Offers {
		if identity.Equals(offer.ProID, viewerID) {
			return offer, true
		}
	}
	return store.Offer{}, false
}

func ownInteraction(snap store.Snapshot, viewerID string) (store.Interaction, bool) {
	for _, interaction := range snap.Interactions {
		if identity.Equals(interaction.ProID, viewerID) {
			return interaction, true
		}
	}
	return store.Interaction{}, false
}

var proLabels = map[Pro]struct{}{
	ProNueva: {}, ProVista: {}, ProContactada: {}, ProPresupuesta: {},
	ProRechazada: {}, ProGanada: {}, ProPerdida: {}, ProAceptado: {},
	ProEnEjecucion: {}, ProValidando: {}, ProValoracion: {}, ProTerminado: {},
	ProArchivada: {}, ProCerrada: {},
}

func knownPro(label string) (Pro, bool) {
	if label == "" {
		return "", false
	}
	candidate := Pro(label)
	if _, ok := proLabels[candidate]; ok {
		return candidate, true
	}
	return "", false
}

// Terminal reports whether a request has reached a state where the
// engagement is over: the gate that flips private timeline events into the
// permanent shared record.
func Terminal(snap store.Snapshot) bool {
	switch NormalizeRaw(snap.RawStatus) {
	case RawCompleted, RawCanceled, RawRated:
		return true
	}
	return NormalizeTracking(snap.TrackingStatus) == TrackingFinished
}
