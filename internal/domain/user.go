package domain

// UserProfile identifies the authenticated catalog user
type UserProfile struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Notification is an airing notification from the catalog
type Notification struct {
	ID        int    `json:"id"`
	MediaID   int    `json:"media_id"`
	Title     string `json:"title"`
	Episode   string `json:"episode"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// CharacterInfo is a character attached to a media item
type CharacterInfo struct {
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Image  string `json:"image,omitempty"`
	Gender string `json:"gender,omitempty"`
}

// Review is a user review of a media item
type Review struct {
	Summary string `json:"summary"`
	Body    string `json:"body,omitempty"`
	Score   int    `json:"score,omitempty"`
	Author  string `json:"author,omitempty"`
}

// AiringScheduleItem is one entry in a media airing schedule
type AiringScheduleItem struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airing_at"`
}
