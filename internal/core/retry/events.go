package retry

import (
	"log/slog"
	"time"
)

// EventKind identifies a point in the retry loop.
type EventKind string

const (
	EventThrottle  EventKind = "throttle"
	EventAttempt   EventKind = "attempt"
	EventRetry     EventKind = "retry"
	EventSuccess   EventKind = "success"
	EventFatal     EventKind = "fatal"
	EventExhausted EventKind = "exhausted"
)

// Event is a structured progress report from the controller.
type Event struct {
	Kind        EventKind
	Policy      string
	Attempt     int // 1-based
	MaxAttempts int
	Wait        time.Duration
	Class       Classification
	Err         error
}

// Observer receives controller events. It must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) OnEvent(e Event) {
	for _, o := range m {
		o.OnEvent(e)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

// LogObserver writes events to logger.
func LogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return ObserverFunc(func(e Event) {
		switch e.Kind {
		case EventThrottle:
			logger.Info("Adaptive delay before call", "policy", e.Policy, "wait", e.Wait)
		case EventAttempt:
			if e.Attempt > 1 {
				logger.Info("Retrying call", "policy", e.Policy, "attempt", e.Attempt, "max", e.MaxAttempts)
			}
		case EventRetry:
			logger.Warn("Transient error, waiting before retry",
				"policy", e.Policy,
				"attempt", e.Attempt,
				"max", e.MaxAttempts,
				"class", e.Class.String(),
				"wait", e.Wait,
				"error", e.Err,
			)
		case EventSuccess:
			logger.Debug("Call succeeded", "policy", e.Policy, "attempt", e.Attempt)
		case EventFatal:
			logger.Error("Non-retryable error", "policy", e.Policy, "error", e.Err)
		case EventExhausted:
			logger.Error("Maximum retry attempts exceeded",
				"policy", e.Policy,
				"attempts", e.Attempt,
				"class", e.Class.String(),
				"error", e.Err,
			)
		}
	})
}
