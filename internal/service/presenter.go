package service

import "quizduel/internal/model"

// Presenter is the presentation adapter the matchmaker drives. The core
// calls these hooks and never reads UI state back (implemented by the ws
// hub; the interface lives here to avoid an import cycle).
type Presenter interface {
	SearchStarted(participantID string)
	// SearchEnded restores the idle view; fired by every reset.
	SearchEnded(participantID string)
	MatchStarted(participantID string, match *model.Match)
	MatchEnded(participantID string, match *model.Match)
	Error(participantID string, message string)
}
