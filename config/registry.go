// Package config loads and serves the conversational configuration:
// intent rules, message templates, and feature flags.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// IntentRule is one entry of the ordered rule table applied by the
// rule matcher. Lower priority value means higher precedence.
type IntentRule struct {
	Intent           string     `mapstructure:"intent" yaml:"intent"`
	Keywords         []string   `mapstructure:"keywords" yaml:"keywords"`
	Patterns         []string   `mapstructure:"patterns" yaml:"patterns"`
	RequiredKeywords []string   `mapstructure:"required_keywords" yaml:"required_keywords"`
	RequiredGroups   [][]string `mapstructure:"required_groups" yaml:"required_groups"`
	Exclusions       []string   `mapstructure:"exclusions" yaml:"exclusions"`
	Priority         int        `mapstructure:"priority" yaml:"priority"`
	RequiresContext  bool       `mapstructure:"requires_context" yaml:"requires_context"`
}

// Listener is notified when a runtime writer changes a value.
type Listener func(namespace, key string)

// Registry holds the three configuration documents. Rules and templates are
// immutable after load; feature flags may be written at runtime (QA only).
type Registry struct {
	mu        sync.RWMutex
	rules     []IntentRule
	templates map[string]string
	flags     map[string]string
	listeners []Listener
}

// New builds a registry from compiled-in defaults, optionally overridden by
// a YAML config file and by environment variables of form NS_KEY_SUB.
func New(configFile string) (*Registry, error) {
	r := &Registry{
		rules:     defaultIntentRules(),
		templates: defaultTemplates(),
		flags:     map[string]string{},
	}

	if configFile != "" {
		v := viper.New()
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		var fileRules []IntentRule
		if err := v.UnmarshalKey("intent_rules", &fileRules); err == nil && len(fileRules) > 0 {
			r.rules = fileRules
		}
		for key, value := range v.GetStringMapString("templates") {
			r.templates[key] = value
		}
		for key, value := range v.GetStringMapString("features") {
			r.flags[strings.ToUpper(key)] = value
		}
		slog.Info("configuration loaded", "file", configFile, "rules", len(r.rules))
	}

	return r, nil
}

// MustNew is New for compiled-in defaults only; it cannot fail.
func MustNew() *Registry {
	r, err := New("")
	if err != nil {
		panic(err)
	}
	return r
}

// IntentRules returns the ordered rule table. The returned slice must be
// treated as immutable.
func (r *Registry) IntentRules() []IntentRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules
}

// Template returns the message template for key, or "" when absent.
func (r *Registry) Template(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[key]
}

// Get resolves a configuration value: environment variable NS_KEY_SUB wins,
// then the loaded document, then the supplied default.
func (r *Registry) Get(namespace, keypath, defaultValue string) string {
	envKey := strings.ToUpper(namespace + "_" + strings.ReplaceAll(keypath, ".", "_"))
	if value := os.Getenv(envKey); value != "" {
		return value
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	switch namespace {
	case "features":
		if value, ok := r.flags[strings.ToUpper(keypath)]; ok {
			return value
		}
	case "templates":
		if value, ok := r.templates[keypath]; ok {
			return value
		}
	}
	return defaultValue
}

// Set writes a runtime value and notifies listeners. Only the features
// namespace accepts writes.
func (r *Registry) Set(namespace, key, value string) {
	if namespace != "features" {
		slog.Warn("ignoring write to immutable config namespace", "namespace", namespace, "key", key)
		return
	}
	r.mu.Lock()
	r.flags[strings.ToUpper(key)] = value
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l(namespace, key)
	}
}

// Subscribe registers a listener for runtime writes.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// flagBool resolves a feature flag to a boolean. Env var wins over document.
func (r *Registry) flagBool(key string, defaultValue bool) bool {
	raw := r.Get("features", key, "")
	if raw == "" {
		// Flags use bare env names (ENABLE_AI_FALLBACK) on the original
		// deployment surface; honor those too.
		raw = os.Getenv(strings.ToUpper(key))
	}
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (r *Registry) flagFloat(key string, defaultValue float64) float64 {
	raw := r.Get("features", key, "")
	if raw == "" {
		raw = os.Getenv(strings.ToUpper(key))
	}
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (r *Registry) flagInt(key string, defaultValue int) int {
	raw := r.Get("features", key, "")
	if raw == "" {
		raw = os.Getenv(strings.ToUpper(key))
	}
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// EnableAIFallback gates every LLM call in the NLU pipeline.
func (r *Registry) EnableAIFallback() bool {
	return r.flagBool("ENABLE_AI_FALLBACK", false)
}

// AIFallbackMinConfidence is the acceptance threshold for LLM classification.
func (r *Registry) AIFallbackMinConfidence() float64 {
	return r.flagFloat("AI_FALLBACK_MIN_CONFIDENCE", 0.7)
}

// AIFallbackTimeout bounds a single LLM call.
func (r *Registry) AIFallbackTimeout() time.Duration {
	ms := r.flagInt("AI_FALLBACK_TIMEOUT_MS", 5000)
	return time.Duration(ms) * time.Millisecond
}

// EnableRecurringCourses gates daily/weekly/monthly recurrence extraction.
func (r *Registry) EnableRecurringCourses() bool {
	return r.flagBool("ENABLE_RECURRING_COURSES", true)
}

// QAForceReal forces the real messaging client even for test users.
func (r *Registry) QAForceReal() bool {
	return r.flagBool("QA_FORCE_REAL", false)
}

// AllowTestWebhook allows unsigned webhook deliveries outside production.
func (r *Registry) AllowTestWebhook() bool {
	return r.flagBool("ALLOW_TEST_WEBHOOK", false)
}

// UseMockLineService selects the mock messaging client globally.
func (r *Registry) UseMockLineService() bool {
	return r.flagBool("USE_MOCK_LINE_SERVICE", false)
}

// DisableContextAutoFill disables query-session pin auto-fill.
func (r *Registry) DisableContextAutoFill() bool {
	return r.flagBool("DISABLE_CONTEXT_AUTO_FILL", false)
}

// StrictRecordRequiresCourse makes content recording require an existing course.
func (r *Registry) StrictRecordRequiresCourse() bool {
	return r.flagBool("STRICT_RECORD_REQUIRES_COURSE", false)
}
