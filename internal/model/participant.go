package model

import "time"

// Participant is the local user's identity snapshot, supplied by the
// profile layer. The matchmaker copies it into a PlayerSlot verbatim.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
	Grade string `json:"grade"`
}

// Slot builds a fresh seat for this participant with presence asserted.
func (p Participant) Slot(now time.Time) *PlayerSlot {
	return &PlayerSlot{
		ID:        p.ID,
		Name:      p.Name,
		Photo:     p.Photo,
		Grade:     p.Grade,
		Score:     0,
		Connected: true,
		LastPing:  now.UnixMilli(),
	}
}
