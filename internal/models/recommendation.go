package models

import "fmt"

// Recommendation is a stock suggestion pitched to the caller. It is not persisted on
// its own; its spoken Pitch is what lands in the transcript.
type Recommendation struct {
	Ticker    string `json:"ticker"`
	Action    Action `json:"action"`
	Quantity  int    `json:"quantity"`
	Rationale string `json:"rationale"`
}

// Empty reports whether there is nothing to pitch.
func (r Recommendation) Empty() bool {
	return r.Ticker == "" || r.Quantity <= 0
}

// Pitch renders the recommendation the way it is spoken. The phrasing
// "recommending N shares of TICKER" is what agreement resolution looks for later.
func (r Recommendation) Pitch() string {
	verb := "picking up"
	if r.Action == ActionSell {
		verb = "selling"
	}
	pitch := fmt.Sprintf("I'm recommending %s %d shares of %s.", verb, r.Quantity, r.Ticker)
	if r.Rationale != "" {
		pitch += " " + r.Rationale
	}
	return pitch + " Want me to make it happen?"
}
