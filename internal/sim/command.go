package sim

import (
	"time"

	"github.com/golang/geo/r3"
)

// CommandType enumerates the requests the host can stage for the core.
type CommandType string

const (
	CommandSetQuality CommandType = "SetQuality"
	CommandToggleHUD  CommandType = "ToggleHUD"
	CommandMoveAnchor CommandType = "MoveAnchor"
)

// QualityCommand carries a manual tier request. AutoAdjust, when set, also
// toggles automatic adjustment.
type QualityCommand struct {
	Tier       string `json:"tier"`
	AutoAdjust *bool  `json:"autoAdjust,omitempty"`
}

// HUDCommand toggles the performance HUD.
type HUDCommand struct {
	Visible bool `json:"visible"`
}

// AnchorCommand moves the tracked anchor.
type AnchorCommand struct {
	Position r3.Vector `json:"position"`
}

// Command represents a request captured for processing on the next step.
type Command struct {
	Type     CommandType     `json:"type"`
	Source   string          `json:"source"`
	IssuedAt time.Time       `json:"issuedAt"`
	Quality  *QualityCommand `json:"quality,omitempty"`
	HUD      *HUDCommand     `json:"hud,omitempty"`
	Anchor   *AnchorCommand  `json:"anchor,omitempty"`
}
