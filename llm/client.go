// Package llm backs the NLU pipeline with an OpenAI-compatible chat model
// for intent classification and slot enhancement. Every call is optional:
// callers treat errors and timeouts as "no answer" and fall back to rules.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/timeparse"
)

// Config represents LLM client configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, ollama, or any compatible
	Model       string // gpt-4o-mini, deepseek-chat, ...
	APIKey      string
	BaseURL     string
	Temperature float32 // default: 0.1
	Timeout     int     // request timeout in seconds (default: 10)

	// MaxConcurrent bounds in-flight requests; RPS bounds the request rate.
	// Zero values mean 4 and 10 respectively.
	MaxConcurrent int64
	RPS           float64
}

// Client speaks to one OpenAI-compatible endpoint. It implements
// nlu.IntentClassifier and nlu.SlotEnhancer.
type Client struct {
	client      *openai.Client
	model       string
	provider    string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	sem         *semaphore.Weighted
}

// New creates a client for the configured provider. Unknown providers are
// treated as generic OpenAI-compatible endpoints.
func New(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	switch cfg.Provider {
	case "deepseek":
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
	case "siliconflow":
		if baseURL == "" {
			baseURL = "https://api.siliconflow.cn/v1"
		}
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
	case "openai", "":
	default:
		slog.Info("using generic OpenAI-compatible provider", "provider", cfg.Provider)
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		provider:    cfg.Provider,
		temperature: temperature,
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)),
		sem:         semaphore.NewWeighted(maxConcurrent),
	}, nil
}

// intentList is the closed set offered to the classifier prompt.
var intentList = []string{
	"add_course", "create_recurring_course", "modify_course", "cancel_course",
	"stop_recurring_course", "query_schedule", "query_course_content",
	"record_content", "add_course_content", "set_reminder", "unknown",
}

const classifySystemPrompt = `你是課程管理助理的意圖分類器。
使用者會用中文描述課程安排需求，請判斷最符合的意圖。
只能回傳 JSON，格式為 {"intent": "<意圖>", "confidence": <0到1的數字>}。
意圖必須是以下之一：%s
無法判斷時回傳 {"intent": "unknown", "confidence": 0}。`

const extractSystemPrompt = `你是課程管理助理的資訊抽取器。
從使用者的中文輸入抽取欄位，只回傳 JSON，未提及的欄位省略：
{"studentName": "學生姓名", "courseName": "課程名稱（保留「課」字）",
 "scheduleTime": "HH:MM", "courseDate": "YYYY-MM-DD",
 "location": "地點", "teacher": "老師", "content": "課程內容"}
不要編造輸入中沒有的資訊。今天日期：%s。`

type intentResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type slotResponse struct {
	StudentName  string `json:"studentName"`
	CourseName   string `json:"courseName"`
	ScheduleTime string `json:"scheduleTime"`
	CourseDate   string `json:"courseDate"`
	Location     string `json:"location"`
	Teacher      string `json:"teacher"`
	Content      string `json:"content"`
}

// ClassifyIntent asks the model for the user's intent with a confidence.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (nlu.IntentGuess, error) {
	system := fmt.Sprintf(classifySystemPrompt, strings.Join(intentList, ", "))

	raw, err := c.complete(ctx, system, text)
	if err != nil {
		return nlu.IntentGuess{}, err
	}

	var parsed intentResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nlu.IntentGuess{}, fmt.Errorf("llm: malformed intent response: %w", err)
	}
	guess := nlu.IntentGuess{
		Intent:     nlu.Intent(parsed.Intent),
		Confidence: parsed.Confidence,
	}
	if !guess.Intent.Valid() {
		return nlu.IntentGuess{}, fmt.Errorf("llm: intent %q outside the closed set", parsed.Intent)
	}
	return guess, nil
}

// ExtractSlots asks the model to fill slot gaps. The caller merges the
// result; rule-extracted fields always win.
func (c *Client) ExtractSlots(ctx context.Context, text string, intent nlu.Intent, existing nlu.Slots) (nlu.Slots, error) {
	today := timeparse.FormatForStorage(time.Now().In(timeparse.Location("")))
	system := fmt.Sprintf(extractSystemPrompt, today)

	prompt := text
	if !existing.IsEmpty() {
		known, _ := json.Marshal(existing)
		prompt = fmt.Sprintf("輸入：%s\n已知欄位（不要重複抽取）：%s", text, known)
	}
	if intent != "" && intent != nlu.IntentUnknown {
		prompt += "\n意圖：" + string(intent)
	}

	raw, err := c.complete(ctx, system, prompt)
	if err != nil {
		return nlu.Slots{}, err
	}

	var parsed slotResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nlu.Slots{}, fmt.Errorf("llm: malformed slot response: %w", err)
	}
	return nlu.Slots{
		StudentName:  parsed.StudentName,
		CourseName:   parsed.CourseName,
		ScheduleTime: parsed.ScheduleTime,
		CourseDate:   parsed.CourseDate,
		Location:     parsed.Location,
		Teacher:      parsed.Teacher,
		Content:      parsed.Content,
	}, nil
}

// complete runs one bounded chat completion.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit wait: %w", err)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("llm: concurrency limit: %w", err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   256,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		slog.Debug("llm request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("llm chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}

	slog.Debug("llm response received",
		"model", c.model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}

// Warmup sends a lightweight ping to establish the upstream connection.
func (c *Client) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.client.CreateChatCompletion(warmupCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		slog.Warn("llm warmup ping failed, first request may be slower",
			"provider", c.provider, "model", c.model, "error", err)
		return
	}
	slog.Info("llm connection warmed up",
		"provider", c.provider, "model", c.model,
		"duration_ms", time.Since(start).Milliseconds())
}

// stripCodeFence unwraps ```json ... ``` fenced model output and trims any
// prose around the outermost JSON object.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
