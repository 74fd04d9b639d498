package nlu

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/timeparse"
)

// IntentGuess is the LLM classifier output.
type IntentGuess struct {
	Intent     Intent
	Confidence float64
}

// IntentClassifier is the LLM primary classification capability.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (IntentGuess, error)
}

// Decision is the pipeline output. Slots is non-nil only when a layer has
// already produced merged slots (supplement routing); otherwise the caller
// runs the extractor.
type Decision struct {
	Intent Intent
	Slots  *Slots
	Source string // safety | supplement | llm | simple_rule | rule_table | none
}

// Safety tokens dominate every other classifier layer.
var (
	reminderTokens     = []string{"提醒"}
	cancelTokens       = []string{"取消", "刪除", "刪掉"}
	domainSwitchTokens = []string{"課表", "查詢", "新增", "刪除", "取消", "設定", "記錄"}

	modifyTokens   = []string{"改到", "改成", "修改", "更改", "換到", "換成", "改"}
	addTokens      = []string{"要上", "安排", "新增"}
	timeHintTokens = []string{"點", ":", "上午", "中午", "下午", "晚上", "每週", "每周", "每天", "每月"}
	queryTokens    = []string{"課表", "查詢", "看一下", "有什麼課", "今天", "明天", "後天", "這週", "下週", "本週", "課程安排", "幾點"}
)

// supplementWindow bounds how old a pending slot record may be before
// supplement routing stops treating new input as an answer to it.
const supplementWindow = 2 * time.Minute

// Pipeline is the layered intent decider. Given the same (text, context,
// config snapshot, mocked classifier) it is deterministic.
type Pipeline struct {
	cfg        *config.Registry
	matcher    *RuleMatcher
	extractor  *Extractor
	classifier IntentClassifier
	now        func() time.Time
}

// NewPipeline wires the decision layers. classifier may be nil.
func NewPipeline(cfg *config.Registry, matcher *RuleMatcher, extractor *Extractor, classifier IntentClassifier) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		matcher:    matcher,
		extractor:  extractor,
		classifier: classifier,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Decide classifies text given the per-user conversation context.
// Layer order is strict; the first decisive layer wins. A panic in any
// layer degrades to the deterministic simple rules.
func (p *Pipeline) Decide(ctx context.Context, text string, conv *ConversationContext) (decision Decision) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("nlu layer panicked, falling back to simple rules", "panic", r)
			decision = p.simpleRuleDecision(text, conv)
		}
		slog.Debug("intent decided",
			"intent", decision.Intent,
			"source", decision.Source,
			"latency_ms", time.Since(start).Milliseconds())
	}()

	// Layer 1: safety short-circuits.
	if containsAnyToken(text, reminderTokens) {
		return Decision{Intent: IntentSetReminder, Source: "safety"}
	}
	if containsAnyToken(text, cancelTokens) {
		return Decision{Intent: IntentCancelCourse, Source: "safety"}
	}

	// Layer 2: supplement routing against the pending flow.
	if d, ok := p.supplementDecision(ctx, text, conv); ok {
		return d
	}

	// Layer 3: LLM primary classifier behind the confidence gate.
	if d, ok := p.llmDecision(ctx, text, conv); ok {
		return d
	}

	// Layer 4: simple deterministic rules.
	if d := p.simpleRuleDecision(text, conv); d.Intent != IntentUnknown {
		return d
	}

	// Layer 5: full rule-table scoring.
	if intent, matched := p.matcher.Match(text); matched {
		return Decision{Intent: p.contextGate(intent, conv), Source: "rule_table"}
	}

	return Decision{Intent: IntentUnknown, Source: "none"}
}

// supplementDecision treats new input as an answer to the pending prompt
// when a fresh pending flow exists and the input is not a domain switch.
func (p *Pipeline) supplementDecision(ctx context.Context, text string, conv *ConversationContext) (Decision, bool) {
	if conv == nil || len(conv.ExpectingInput) == 0 || conv.Pending == nil {
		return Decision{}, false
	}
	if containsAnyToken(text, domainSwitchTokens) {
		return Decision{}, false
	}
	if conv.Pending.Age(p.now()) > supplementWindow {
		return Decision{}, false
	}

	pendingIntent := conv.Pending.Intent
	extracted := p.extractor.Extract(ctx, text, pendingIntent, conv)
	merged := conv.Pending.Slots.Merge(extracted)
	if !IsCompleteForIntent(merged, pendingIntent) {
		return Decision{}, false
	}

	slog.Debug("supplement routing completed pending flow",
		"intent", pendingIntent,
		"pending_age_ms", conv.Pending.Age(p.now()).Milliseconds())
	return Decision{Intent: pendingIntent, Slots: &merged, Source: "supplement"}, true
}

// llmDecision consults the LLM classifier when enabled. Timeouts, errors,
// low confidence, and out-of-set intents all fall through.
func (p *Pipeline) llmDecision(ctx context.Context, text string, conv *ConversationContext) (d Decision, ok bool) {
	if p.classifier == nil || !p.cfg.EnableAIFallback() {
		return Decision{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("llm classifier panicked", "panic", r)
			d, ok = Decision{}, false
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.AIFallbackTimeout())
	defer cancel()

	guess, err := p.classifier.ClassifyIntent(callCtx, text)
	if err != nil {
		slog.Debug("llm classification failed, falling through", "error", err)
		return Decision{}, false
	}
	if !guess.Intent.Valid() || guess.Intent == IntentUnknown {
		return Decision{}, false
	}
	if guess.Confidence < p.cfg.AIFallbackMinConfidence() {
		slog.Debug("llm confidence below gate",
			"intent", guess.Intent,
			"confidence", guess.Confidence)
		return Decision{}, false
	}
	return Decision{Intent: p.contextGate(guess.Intent, conv), Source: "llm"}, true
}

// simpleRuleDecision is the deterministic layer the pipeline degrades to.
func (p *Pipeline) simpleRuleDecision(text string, conv *ConversationContext) Decision {
	switch {
	case containsAnyToken(text, modifyTokens):
		return Decision{Intent: IntentModifyCourse, Source: "simple_rule"}
	case containsAnyToken(text, addTokens) && containsAnyToken(text, timeHintTokens):
		return Decision{Intent: IntentAddCourse, Source: "simple_rule"}
	// A malformed clock ("25點") is an add attempt, not a query; routing it
	// to add_course lets the extractor surface the invalid time.
	case timeparse.HasClockAttempt(text) && !timeparse.HasClockTime(text):
		return Decision{Intent: IntentAddCourse, Source: "simple_rule"}
	case containsAnyToken(text, queryTokens):
		return Decision{Intent: IntentQuerySchedule, Source: "simple_rule"}
	}
	return Decision{Intent: IntentUnknown, Source: "simple_rule"}
}

// contextGate downgrades context-dependent intents to unknown when no
// prior action or expectation justifies them.
func (p *Pipeline) contextGate(intent Intent, conv *ConversationContext) Intent {
	if !intent.RequiresContext() {
		return intent
	}
	if conv == nil {
		return IntentUnknown
	}
	if len(conv.LastActions) > 0 {
		return intent
	}
	if conv.ExpectsAny(InputConfirmation, InputModification, InputCancellation) {
		return intent
	}
	return IntentUnknown
}

func containsAnyToken(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}
