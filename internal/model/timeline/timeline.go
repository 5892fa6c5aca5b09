package timeline

import "time"

// Snapshot is the stored summary of one captured screenshot. Capture and
// vision summarization happen outside this service; we only persist the
// result.
type Snapshot struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	ScreenshotPath  string    `json:"screenshot_path"`
	Caption         string    `json:"caption"`
	FullDescription string    `json:"full_description"`
	Changes         []string  `json:"changes"`
	Facts           []string  `json:"facts"`
	CreatedAt       time.Time `json:"created_at"`
}

// Entry is one line of the running activity timeline.
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}
