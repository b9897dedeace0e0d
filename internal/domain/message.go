package domain

// PhotoRef identifies one photo inside an enhancement message.
type PhotoRef struct {
	PhotoID string `json:"photo_id"`
	RawKey  string `json:"raw_key"`
}

// EnhancementMessage is the unit of work placed on the queue when a job is
// submitted. Delivery is at-least-once; handlers must tolerate redelivery.
type EnhancementMessage struct {
	JobID     string     `json:"job_id"`
	ListingID string     `json:"listing_id,omitempty"`
	UserID    string     `json:"user_id"`
	Variant   string     `json:"variant"`
	Photos    []PhotoRef `json:"photos"`
}
