package device

import "time"

const (
	topicMotion             = "motion"
	topicLocationRequest    = "location/request"
	topicLocationFix        = "location/fix"
	topicPrompt             = "prompt"
	topicPromptResponse     = "prompt/response"
	topicNotify             = "notify"
	topicHaptic             = "haptic"
	topicPermissionRequest  = "permission/request"
	topicPermissionResponse = "permission/response"
	topicComposerOpen       = "composer/open"
	topicComposerResult     = "composer/result"
)

// PromptAnswer is the user's reaction to an actionable notification.
type PromptAnswer string

const (
	PromptConfirmed PromptAnswer = "YES"
	PromptDeclined  PromptAnswer = "NO"
	PromptExpired   PromptAnswer = "EXPIRED"
)

// ComposerResult is how a pre-filled SMS composer session ended.
type ComposerResult string

const (
	ComposerSent      ComposerResult = "sent"
	ComposerCancelled ComposerResult = "cancelled"
)

// Prompt is an actionable notification with YES/NO actions.
type Prompt struct {
	Title   string
	Body    string
	Timeout time.Duration
}

type envelope struct {
	ID string `json:"id"`
}

type motionMessage struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"ts"`
}

type locationRequest struct {
	ID           string `json:"id"`
	HighAccuracy bool   `json:"high_accuracy"`
}

type locationFix struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Error      string    `json:"error,omitempty"`
}

type promptMessage struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Actions   []string  `json:"actions"`
	ExpiresAt time.Time `json:"expires_at"`
}

type promptResponse struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

type notifyMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type hapticMessage struct {
	PatternMS []int `json:"pattern_ms"`
}

type permissionRequest struct {
	ID         string `json:"id"`
	Capability string `json:"capability"`
}

type permissionResponse struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
}

type composerOpen struct {
	ID         string   `json:"id"`
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
}

type composerResult struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}
