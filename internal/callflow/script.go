package callflow

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aretw0/voicesurvey/pkg/domain"
)

// Script holds the configurable wording and platform options of generated documents.
// The zero value is not usable; start from DefaultScript.
type Script struct {
	Title       string
	Welcome     string // may contain domain.CountPlaceholder
	Completion  string
	Voice       domain.Voice
	FinishOnKey string
	Timeout     int
}

// DefaultScript returns the stock survey wording.
func DefaultScript() Script {
	return Script{
		Title:       domain.DefaultFlowTitle,
		Welcome:     domain.DefaultWelcomeTemplate,
		Completion:  domain.DefaultCompletionMessage,
		Voice:       domain.DefaultVoice,
		FinishOnKey: domain.DefaultFinishOnKey,
		Timeout:     domain.DefaultRecordTimeout,
	}
}

// Document computes the flow document for a call that has answered questions.
// It is a pure function: the same inputs always yield the same document.
//
//   - answered == N: the completion message only, no record step.
//   - answered == 0: welcome, question 0, record.
//   - otherwise: question[answered], record.
func (s Script) Document(catalog *domain.Catalog, answered int, onFinish string) domain.FlowDocument {
	doc := domain.FlowDocument{Title: s.Title}

	if answered >= catalog.Len() {
		doc.Steps = []domain.Step{domain.Say(s.Completion, s.Voice)}
		return doc
	}

	if answered == 0 {
		doc.Steps = append(doc.Steps, domain.Say(s.welcome(catalog.Len()), s.Voice))
	}
	doc.Steps = append(doc.Steps,
		domain.Say(catalog.At(answered).Text, s.Voice),
		domain.Record(domain.RecordOptions{
			FinishOnKey: s.FinishOnKey,
			Timeout:     s.Timeout,
			OnFinish:    onFinish,
		}),
	)
	return doc
}

func (s Script) welcome(count int) string {
	return strings.ReplaceAll(s.Welcome, domain.CountPlaceholder, strconv.Itoa(count))
}

// OnFinishURL returns base with the callID query parameter set, keeping any other query.
func OnFinishURL(base, callID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid callback url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("callID", callID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
