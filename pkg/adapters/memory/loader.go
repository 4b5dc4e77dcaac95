package memory

import "context"

// Questions implements ports.QuestionSource over a fixed slice.
type Questions []string

// LoadQuestions returns a copy of the questions in order.
func (q Questions) LoadQuestions(ctx context.Context) ([]string, error) {
	out := make([]string, len(q))
	copy(out, q)
	return out, nil
}
