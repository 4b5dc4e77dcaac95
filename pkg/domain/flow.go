package domain

// Step action names understood by the telephony platform.
const (
	ActionSay    = "say"
	ActionRecord = "record"
)

// DefaultFlowTitle is the title carried by every generated flow document.
const DefaultFlowTitle = "Survey Call Step"

// FlowDocument is the ordered instruction sequence the platform executes next.
// It is built fresh for each response and never persisted.
type FlowDocument struct {
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// Step is one instruction. Options holds SayOptions or RecordOptions.
type Step struct {
	Action  string `json:"action"`
	Options any    `json:"options"`
}

// SayOptions configures a text-to-speech step.
type SayOptions struct {
	Payload  string `json:"payload"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

// RecordOptions configures a recording step.
// Timeout is the silence timeout in seconds and is passed through untouched.
type RecordOptions struct {
	FinishOnKey string `json:"finishOnKey"`
	Timeout     int    `json:"timeout"`
	OnFinish    string `json:"onFinish"`
}

// Say builds a say step.
func Say(text string, voice Voice) Step {
	return Step{
		Action: ActionSay,
		Options: SayOptions{
			Payload:  text,
			Voice:    voice.Voice,
			Language: voice.Language,
		},
	}
}

// Record builds a record step whose completion is posted to onFinish.
func Record(opts RecordOptions) Step {
	return Step{Action: ActionRecord, Options: opts}
}

// Voice selects the text-to-speech voice for say steps.
type Voice struct {
	Voice    string `json:"voice" mapstructure:"voice"`
	Language string `json:"language" mapstructure:"language"`
}

// DefaultVoice matches what the platform expects when nothing is configured.
var DefaultVoice = Voice{Voice: "male", Language: "en-US"}

// CountPlaceholder is replaced with the number of questions in the welcome message.
const CountPlaceholder = "{count}"

// Survey message defaults.
const (
	DefaultWelcomeTemplate = "Welcome to our survey! You will be asked {count} questions. The answers will be recorded. " +
		"Speak your response for each and press any key on your phone to move on to the next question. " +
		"Here is the first question:"
	DefaultCompletionMessage = "You have completed our survey. Thank you for participating!"
)

// Recording defaults: finish on any key or after 10 seconds of silence.
const (
	DefaultFinishOnKey   = "any"
	DefaultRecordTimeout = 10
)
