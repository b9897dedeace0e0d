package domain

import "time"

// PhotoStatus enumerates photo lifecycle states.
type PhotoStatus string

const (
	PhotoStatusPending    PhotoStatus = "pending"
	PhotoStatusProcessing PhotoStatus = "processing"
	PhotoStatusCompleted  PhotoStatus = "completed"
	PhotoStatusFailed     PhotoStatus = "failed"
)

// Terminal reports whether the photo has reached a final state.
func (s PhotoStatus) Terminal() bool {
	return s == PhotoStatusCompleted || s == PhotoStatusFailed
}

// MaxErrorLength bounds the stored error text for photos and jobs so a noisy
// provider response cannot blow up a row.
const MaxErrorLength = 500

// TruncateError trims an error message to MaxErrorLength runes.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorLength {
		return msg
	}
	return string(runes[:MaxErrorLength])
}

// Photo is a single image within a job. ProcessedKey is set if and only if
// the photo completed successfully; a re-upload creates a new photo rather
// than mutating an old one.
type Photo struct {
	ID           string
	JobID        string
	ListingID    string
	RawKey       string
	ProcessedKey string
	ThumbnailKey string
	Variant      string
	Status       PhotoStatus
	ErrorMessage string
	Width        int
	Height       int
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}
