package status

import "strings"

// Canonical raw statuses of a request.
const (
	RawOpen       = "open"
	RawInProgress = "in_progress"
	RawCompleted  = "completed"
	RawCanceled   = "canceled"
	RawRated      = "rated"
)

// Canonical tracking phases.
const (
	TrackingNone       = "none"
	TrackingContracted = "contracted"
	TrackingStarted    = "started"
	TrackingFinished   = "finished"
)

// rawAliases maps every raw-status spelling that has ever been persisted to
// its canonical value. Localized labels, alternate casings and the legacy
// "closed" value all collapse here, before any predicate chain runs.
var rawAliases = map[string]string{
	"open":        RawOpen,
	"abierta":     RawOpen,
	"nueva":       RawOpen,
	"pendiente":   RawOpen,
	"in_progress": RawInProgress,
	"in-progress": RawInProgress,
	"en_proceso":  RawInProgress,
	"en_curso":    RawInProgress,
	"completed":   RawCompleted,
	"complete":    RawCompleted,
	"finalizada":  RawCompleted,
	"terminada":   RawCompleted,
	"done":        RawCompleted,
	"canceled":    RawCanceled,
	"cancelled":   RawCanceled,
	"cancelada":   RawCanceled,
	"eliminada":   RawCanceled,
	"closed":      RawCanceled,
	"cerrada":     RawCanceled,
	"rated":       RawRated,
	"valorada":    RawRated,
}

var trackingAliases = map[string]string{
	"":            TrackingNone,
	"none":        TrackingNone,
	"ninguno":     TrackingNone,
	"contracted":  TrackingContracted,
	"contratada":  TrackingContracted,
	"contratado":  TrackingContracted,
	"started":     TrackingStarted,
	"iniciada":    TrackingStarted,
	"iniciado":    TrackingStarted,
	"en_progreso": TrackingStarted,
	"finished":    TrackingFinished,
	"finalizado":  TrackingFinished,
	"terminado":   TrackingFinished,
}

var offerAliases = map[string]string{
	"pending":    "pending",
	"sent":       "pending",
	"enviada":    "pending",
	"pendiente":  "pending",
	"accepted":   "accepted",
	"aceptada":   "accepted",
	"aceptado":   "accepted",
	"rejected":   "rejected",
	"rechazada":  "rejected",
	"rechazado":  "rejected",
	"descartada": "rejected",
}

// NormalizeRaw returns the canonical raw status for any historical spelling.
// Unknown values normalize to open so derivation lands in the default branch
// instead of failing.
func NormalizeRaw(value string) string {
	key := normalizeKey(value)
	if canonical, ok := rawAliases[key]; ok {
		return canonical
	}
	return RawOpen
}

// NormalizeTracking returns the canonical tracking phase, defaulting to none.
func NormalizeTracking(value string) string {
	key := normalizeKey(value)
	if canonical, ok := trackingAliases[key]; ok {
		return canonical
	}
	return TrackingNone
}

// NormalizeOffer returns the canonical offer status, defaulting to pending.
func NormalizeOffer(value string) string {
	key := normalizeKey(value)
	if canonical, ok := offerAliases[key]; ok {
		return canonical
	}
	return "pending"
}

func normalizeKey(value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.ReplaceAll(key, " ", "_")
	return key
}
