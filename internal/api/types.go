package api

import "time"

// Profile is the stored account record for a SnatchShot user.
type Profile struct {
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	StylePreferences []string  `json:"stylePreferences,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Keypoint is a single detected body landmark in a captured frame.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// PoseAnalysis carries the client-side capture data submitted for styling
// analysis.
type PoseAnalysis struct {
	SessionID  string     `json:"sessionId"`
	CapturedAt time.Time  `json:"capturedAt"`
	Keypoints  []Keypoint `json:"keypoints"`
	Notes      string     `json:"notes,omitempty"`
}

// Recommendation is a styling suggestion produced by the backend for a
// submitted pose.
type Recommendation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PoseHint    string    `json:"poseHint,omitempty"`
	OutfitNotes string    `json:"outfitNotes,omitempty"`
	Score       float64   `json:"score"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Feedback is the user's reaction to a recommendation.
type Feedback struct {
	RecommendationID string `json:"recommendationId"`
	Rating           int    `json:"rating"`
	Comment          string `json:"comment,omitempty"`
}

// IdentityExchangeRequest posts a third-party identity assertion to the
// backend for verification.
type IdentityExchangeRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"idToken"`
	Nonce    string `json:"nonce,omitempty"`
}

// SessionResponse is the backend-issued session after a successful identity
// exchange.
type SessionResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
