package phase

import "github.com/sirupsen/logrus"

// Observer receives reports about states the orchestrator recovered from.
type Observer interface {
	// Inconsistency is called when expected context is missing, e.g. a
	// scripted win with no opponent to defeat.
	Inconsistency(kind string, fields map[string]any)
	// ProgrammingError is called when a transition was requested while its
	// chain was still in flight.
	ProgrammingError(err error)
}

// LogObserver reports through a logger.
type LogObserver struct {
	Log logrus.FieldLogger
}

func (o LogObserver) Inconsistency(kind string, fields map[string]any) {
	if o.Log == nil {
		return
	}
	o.Log.WithFields(logrus.Fields(fields)).WithField("inconsistency", kind).Error("inconsistent session state")
}

func (o LogObserver) ProgrammingError(err error) {
	if o.Log == nil {
		return
	}
	o.Log.WithError(err).Error("transition requested while its chain is in flight")
}

// Observers fans a report out to several observers.
type Observers []Observer

func (os Observers) Inconsistency(kind string, fields map[string]any) {
	for _, o := range os {
		if o != nil {
			o.Inconsistency(kind, fields)
		}
	}
}

func (os Observers) ProgrammingError(err error) {
	for _, o := range os {
		if o != nil {
			o.ProgrammingError(err)
		}
	}
}
