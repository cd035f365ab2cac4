package convert

import "time"

type Phase string

const (
	PhaseRaster  Phase = "raster"
	PhasePreview Phase = "preview"
	PhaseFull    Phase = "full"
	PhaseDone    Phase = "done"
	PhaseError   Phase = "error"
	// PhaseFinished closes a whole conversion run.
	PhaseFinished Phase = "finished"
)

// Event is a progress update for one document of a conversion.
type Event struct {
	Session  string        `json:"session"`
	Document string        `json:"document,omitempty"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Phase    Phase         `json:"phase"`
	Fraction float64       `json:"fraction"`
	Status   string        `json:"status,omitempty"`
	Pages    int           `json:"pages,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Preview  string        `json:"preview,omitempty"`
	Error    string        `json:"error,omitempty"`
	Code     string        `json:"code,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// Observer receives events in order from the converting goroutine.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) {
	if f != nil {
		f(e)
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
