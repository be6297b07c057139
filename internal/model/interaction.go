package model

import (
	"strings"
	"time"
)

// Message is one turn of an interaction transcript.
type Message struct {
	Speaker     string `json:"speaker"`
	SpeakerName string `json:"speakerName"`
	Message     string `json:"message"`
	Context     string `json:"context"`
}

// Interaction is an immutable record of a simulated multi-party scenario.
type Interaction struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Scenario     string    `json:"scenario"`
	Theme        string    `json:"theme,omitempty"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Clone returns a deep copy.
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	out := *i
	out.Participants = cloneStrings(i.Participants)
	out.Messages = make([]Message, len(i.Messages))
	copy(out.Messages, i.Messages)
	return &out
}

// Transcript renders the messages as "Name: text" lines.
func (i *Interaction) Transcript() string {
	var b strings.Builder
	for _, m := range i.Messages {
		b.WriteString(m.SpeakerName)
		b.WriteString(": ")
		b.WriteString(m.Message)
		b.WriteString("\n")
	}
	return b.String()
}
