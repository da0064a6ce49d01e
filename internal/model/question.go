package model

// Question is an immutable snapshot copied onto the match record at
// creation time. The question bank itself is read-only content.
type Question struct {
	ID      string   `json:"id" bson:"_id,omitempty"`
	Subject string   `json:"subject" bson:"subject"`
	Type    string   `json:"type" bson:"type"`
	Grade   string   `json:"grade" bson:"grade"`
	Text    string   `json:"text" bson:"text"`
	Options []string `json:"options,omitempty" bson:"options,omitempty"`
	Answer  string   `json:"answer" bson:"answer"`
}
