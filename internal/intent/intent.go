// Package intent classifies incoming DSR messages into conversation intents.
//
// Classification runs an ordered keyword rule pass first; only when no rule
// matches does it consult the AI fallback, and any failure there yields
// IntentUnknown. Button action codes never reach the rules: they resolve
// through a fixed table.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/BeatBard/ccs-pops/internal/genai"
	"github.com/BeatBard/ccs-pops/internal/models"
)

//go:embed rules.yaml
var defaultRules []byte

// Spec is the classifier configuration: the fallback system prompt and the
// keyword lists for the rule pass.
type Spec struct {
	System   string `yaml:"system"`
	Keywords struct {
		Greeting      []string `yaml:"greeting"`
		Checkin       []string `yaml:"checkin"`
		OutletDetails []string `yaml:"outlet_details"`
		EndSummary    []string `yaml:"end_summary"`
		AreaView      []string `yaml:"area_view"`
	} `yaml:"keywords"`
}

// buttonIntents maps button action codes to intents. Codes arrive verbatim
// from the transport and take precedence over every text rule.
var buttonIntents = map[string]models.Intent{
	string(models.ButtonCheckin):       models.IntentCheckin,
	string(models.ButtonOutletDetails): models.IntentOutletDetails,
	string(models.ButtonEndSummary):    models.IntentEndSummary,
	string(models.ButtonAreaView):      models.IntentAreaView,
	string(models.ButtonBack):          models.IntentGreeting,
}

// ButtonIntent resolves a button action code, reporting whether it is one.
func ButtonIntent(code string) (models.Intent, bool) {
	i, ok := buttonIntents[code]
	return i, ok
}

// Classifier maps message text to one of the seven intents.
type Classifier struct {
	spec Spec
	ai   genai.ClientInterface
}

// NewClassifier builds a classifier with the embedded default rules. The AI
// client is optional; without it unmatched messages classify as unknown.
func NewClassifier(ai genai.ClientInterface) *Classifier {
	var spec Spec
	// The embedded default is known-good yaml.
	if err := yaml.Unmarshal(defaultRules, &spec); err != nil {
		panic(fmt.Sprintf("embedded intent rules invalid: %v", err))
	}
	return &Classifier{spec: spec, ai: ai}
}

// LoadClassifier builds a classifier from a rules file on disk.
func LoadClassifier(path string, ai genai.ClientInterface) (*Classifier, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intent rules: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse intent rules: %w", err)
	}
	slog.Info("Intent rules loaded", "path", path)
	return &Classifier{spec: spec, ai: ai}, nil
}

func containsAny(message string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(message, k) {
			return true
		}
	}
	return false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Classify maps one message to an intent. If the message is a recognized
// button action code the fixed table answers immediately. The keyword rules
// run next in a fixed order, the AI fallback after that, and IntentUnknown is
// the terminal default. The rule pass is deterministic: the same text always
// classifies the same way.
func (c *Classifier) Classify(ctx context.Context, message string, state models.State) models.Intent {
	if i, ok := ButtonIntent(message); ok {
		slog.Debug("Intent classified from button code", "code", message, "intent", i)
		return i
	}

	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case containsAny(lower, c.spec.Keywords.Greeting):
		return models.IntentGreeting
	case isAllDigits(lower):
		return models.IntentOutletNumber
	case containsAny(lower, c.spec.Keywords.Checkin):
		return models.IntentCheckin
	case containsAny(lower, c.spec.Keywords.OutletDetails):
		return models.IntentOutletDetails
	case containsAny(lower, c.spec.Keywords.EndSummary):
		return models.IntentEndSummary
	case containsAny(lower, c.spec.Keywords.AreaView):
		return models.IntentAreaView
	}

	if c.ai != nil {
		if i, err := c.classifyWithAI(ctx, message, state); err == nil {
			slog.Debug("Intent classified by AI", "intent", i)
			return i
		} else {
			slog.Warn("AI intent classification failed", "error", err)
		}
	}
	return models.IntentUnknown
}

func (c *Classifier) classifyWithAI(ctx context.Context, message string, state models.State) (models.Intent, error) {
	prompt := fmt.Sprintf(`Current State: %s
User Message: %q

Classify the user's intent into ONE of these categories:
- greeting: User is greeting (හායි, හෙලෝ, hi, hello, good morning)
- checkin: User wants to check-in or see today's plan (සැලැස්ම, plan, check-in)
- outlet_details: User wants outlet information (outlet, විස්තර, details)
- area_view: User wants to see outlets by area (ප්‍රදේශ, area)
- end_summary: User wants end of day summary (අවසානය, summary, end of day)
- outlet_number: User provided a number (1, 2, 3, etc.)
- unknown: Cannot determine intent

Reply with ONLY the category name, nothing else.`, state, message)

	out, err := c.ai.GeneratePrompt(ctx, c.spec.System, prompt)
	if err != nil {
		return models.IntentUnknown, err
	}
	i := models.Intent(strings.ToLower(strings.TrimSpace(out)))
	if !models.IsValidIntent(i) {
		return models.IntentUnknown, nil
	}
	return i, nil
}
