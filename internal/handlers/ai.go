package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/quietleaf/journal/internal/handlers/render"
	"github.com/quietleaf/journal/internal/handlers/userctx"
	"github.com/quietleaf/journal/internal/logger"
	"github.com/quietleaf/journal/internal/service/llm"
)

const (
	maxResponseTokens = 500
	aiTemperature     = 0.7

	// Caps on what gets forwarded to the model
	maxCurrentTextChars = 200
	maxEntryChars       = 2000
	maxRecentEntries    = 3
	maxPatternEntries   = 10
	maxSummaryChars     = 150
)

const promptSystem = `You are a compassionate journaling assistant. Your role is to:
- Ask thoughtful, open-ended questions that encourage self-reflection
- Use evidence-based techniques from CBT and positive psychology
- Be supportive but not directive
- Never diagnose or give medical advice
- Encourage seeking professional help when appropriate

Respond with a single, thoughtful prompt or question (1-2 sentences max).`

const analyzeSystem = `You are a compassionate journaling assistant analyzing journal entries. Provide:
1. A brief, supportive reflection (2-3 sentences)
2. Identify 1-2 themes or patterns
3. Suggest a gentle follow-up question

Be warm and non-judgmental. Never diagnose. If you detect crisis language, respond with empathy and encourage professional help.

Format your response as JSON:
{
    "reflection": "your supportive reflection",
    "themes": ["theme1", "theme2"],
    "follow_up": "a gentle question",
    "crisis_detected": false
}`

const patternsSystem = `You are analyzing journal entries to identify helpful patterns. Provide:
1. Overall mood trend (improving/stable/declining)
2. 2-3 recurring themes or topics
3. Positive patterns to reinforce
4. Gentle suggestions for growth

Be encouraging and constructive. Focus on strengths and progress.

Format as JSON:
{
    "mood_trend": "description",
    "themes": ["theme1", "theme2"],
    "positive_patterns": ["pattern1"],
    "suggestions": ["suggestion1"]
}`

var moodLabels = map[int]string{
	1: "very low",
	2: "low",
	3: "neutral",
	4: "good",
	5: "very good",
}

func handlePrompt(gateway llmGateway, l logger.Logger) http.Handler {
	type PromptRequest struct {
		Mood          int      `json:"mood" validate:"omitempty,min=1,max=5"`
		RecentEntries []string `json:"recent_entries"`
		CurrentText   string   `json:"current_text"`
	}
	type PromptResponse struct {
		Prompt string `json:"prompt"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[PromptRequest](w, r)
		if err != nil {
			return
		}

		var b strings.Builder
		b.WriteString("Generate a journaling prompt")

		if data.Mood != 0 {
			fmt.Fprintf(&b, " for someone feeling %s", moodLabels[data.Mood])
		}
		if data.CurrentText != "" {
			fmt.Fprintf(&b, ". They've started writing: %q...", truncate(data.CurrentText, maxCurrentTextChars))
		}
		if len(data.RecentEntries) > 0 {
			recent := data.RecentEntries
			if len(recent) > maxRecentEntries {
				recent = recent[:maxRecentEntries]
			}
			fmt.Fprintf(&b, ". Recent themes: %s", strings.Join(recent, ", "))
		}

		text, err := gateway.Generate(r.Context(), b.String(), promptSystem, maxResponseTokens, aiTemperature)
		if err != nil {
			llmFailure(w, requestLogger(r, l), "prompt", err)
			return
		}

		render.JSON(w, PromptResponse{Prompt: text})
	})
}

func handleAnalyze(gateway llmGateway, l logger.Logger) http.Handler {
	type AnalyzeRequest struct {
		Content string `json:"content" validate:"required,min=10"`
		Mood    int    `json:"mood" validate:"omitempty,min=1,max=5"`
	}
	type Analysis struct {
		Reflection     string   `json:"reflection"`
		Themes         []string `json:"themes"`
		FollowUp       string   `json:"follow_up"`
		CrisisDetected bool     `json:"crisis_detected"`
	}
	type AnalyzeResponse struct {
		Analysis Analysis `json:"analysis"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[AnalyzeRequest](w, r)
		if err != nil {
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Analyze this journal entry:\n\n%s", truncate(data.Content, maxEntryChars))
		if data.Mood != 0 {
			fmt.Fprintf(&b, "\n\nReported mood: %d/5", data.Mood)
		}

		text, err := gateway.Generate(r.Context(), b.String(), analyzeSystem, maxResponseTokens, aiTemperature)
		if err != nil {
			llmFailure(w, requestLogger(r, l), "analyze", err)
			return
		}

		var analysis Analysis
		if err := json.Unmarshal([]byte(text), &analysis); err != nil {
			// Model replied in prose, keep it as the reflection
			analysis = Analysis{Reflection: text, Themes: []string{}}
		}

		render.JSON(w, AnalyzeResponse{Analysis: analysis})
	})
}

func handlePatterns(gateway llmGateway, l logger.Logger) http.Handler {
	type PatternEntry struct {
		Content string `json:"content" validate:"required"`
		Mood    int    `json:"mood" validate:"omitempty,min=1,max=5"`
		Date    string `json:"date"`
	}
	type PatternsRequest struct {
		Entries []PatternEntry `json:"entries" validate:"required,min=3,dive"`
	}
	type Patterns struct {
		MoodTrend        string   `json:"mood_trend"`
		Themes           []string `json:"themes"`
		PositivePatterns []string `json:"positive_patterns"`
		Suggestions      []string `json:"suggestions"`
	}
	type PatternsResponse struct {
		Patterns Patterns `json:"patterns"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[PatternsRequest](w, r)
		if err != nil {
			return
		}

		entries := data.Entries
		if len(entries) > maxPatternEntries {
			entries = entries[len(entries)-maxPatternEntries:]
		}

		summaries := make([]string, 0, len(entries))
		for i, entry := range entries {
			mood := "N/A"
			if entry.Mood != 0 {
				mood = fmt.Sprintf("%d", entry.Mood)
			}
			summaries = append(summaries, fmt.Sprintf(
				"Entry %d (mood: %s/5): %s...",
				i+1, mood, truncate(entry.Content, maxSummaryChars),
			))
		}

		message := "Analyze these journal entries for patterns:\n\n" + strings.Join(summaries, "\n\n")

		text, err := gateway.Generate(r.Context(), message, patternsSystem, maxResponseTokens, aiTemperature)
		if err != nil {
			llmFailure(w, requestLogger(r, l), "patterns", err)
			return
		}

		var patterns Patterns
		if err := json.Unmarshal([]byte(text), &patterns); err != nil {
			patterns = Patterns{
				MoodTrend:        "Unable to determine",
				Themes:           []string{},
				PositivePatterns: []string{},
				Suggestions:      []string{},
			}
		}

		render.JSON(w, PatternsResponse{Patterns: patterns})
	})
}

// requestLogger attaches the authenticated user to log records
func requestLogger(r *http.Request, l logger.Logger) logger.Logger {
	if u, ok := userctx.FromContext(r.Context()); ok {
		return l.With("user_id", u.ID)
	}
	return l
}

// llmFailure logs the full cause for operators and keeps the user-facing
// message generic
func llmFailure(w http.ResponseWriter, l logger.Logger, op string, err error) {
	l.Error("Text generation failed", "op", op, "error", err)

	var genErr *llm.Error
	if errors.As(err, &genErr) && genErr.Code == llm.CodeModelMissing {
		render.ServiceError(w, "The AI model is not available. Please contact the operator.", http.StatusServiceUnavailable)
		return
	}

	render.ServiceError(w, "The AI service is temporarily unavailable. Please try again later.", http.StatusServiceUnavailable)
}

// truncate limits s to max runes
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
