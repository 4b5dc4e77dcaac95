package domain

import "fmt"

// Phase is the coarse position of a call in the survey state machine.
type Phase string

const (
	PhaseNotStarted     Phase = "not_started"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseCompleted      Phase = "completed"
)

// Status is the per-call survey state: NotStarted -> AwaitingAnswer(k) -> Completed.
// Question is only meaningful when Phase is PhaseAwaitingAnswer.
type Status struct {
	Phase    Phase `json:"phase"`
	Question int   `json:"question,omitempty"`
}

// StatusOf derives the state of a call from its answer count and the catalog size.
// A nil participant (no callback seen yet) is NotStarted.
func StatusOf(p *Participant, total int) Status {
	if p == nil {
		return Status{Phase: PhaseNotStarted}
	}
	return StatusAt(p.Answered(), total)
}

// StatusAt is the state of a started call that has answered questions out of total.
func StatusAt(answered, total int) Status {
	if answered >= total {
		return Status{Phase: PhaseCompleted}
	}
	return Status{Phase: PhaseAwaitingAnswer, Question: answered}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s.Phase == PhaseCompleted
}

func (s Status) String() string {
	if s.Phase == PhaseAwaitingAnswer {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Question)
	}
	return string(s.Phase)
}
