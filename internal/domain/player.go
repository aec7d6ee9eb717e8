package domain

// PlayerParams describe one playback request
type PlayerParams struct {
	URL string `json:"url"`
	// Episode is the episode identifier being played
	Episode string            `json:"episode"`
	Title   string            `json:"title,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Subtitles are sidecar files or URLs to load alongside the stream
	Subtitles []string `json:"subtitles,omitempty"`
	// StartTime is an "HH:MM:SS" resume position
	StartTime string `json:"start_time,omitempty"`
}

// PlayerResult is what a finished playback reports back for history tracking
type PlayerResult struct {
	Episode string `json:"episode"`
	// StopTime and TotalTime use "HH:MM:SS" form; empty when unknown
	StopTime  string `json:"stop_time,omitempty"`
	TotalTime string `json:"total_time,omitempty"`
}
