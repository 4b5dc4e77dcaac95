package ports

import "context"

// QuestionSource supplies the survey questions, in order, at start-up.
type QuestionSource interface {
	LoadQuestions(ctx context.Context) ([]string, error)
}
