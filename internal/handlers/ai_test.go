package handlers

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietleaf/journal/internal/service/llm"
	"github.com/quietleaf/journal/internal/service/ratelimit"
)

// registerAndGetCookie creates a user through the http api and returns its
// session cookie
func registerAndGetCookie(t *testing.T, url string) *http.Cookie {
	t.Helper()

	resp, body := postJSON(t, url+"/api/auth/register", `{"username": "alice123", "pin": "4242"}`)
	require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", body)
	require.Equal(t, 1, len(resp.Cookies()))
	return resp.Cookies()[0]
}

func requireBodyJSONEq(t *testing.T, resp *http.Response, want string) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, want, string(body))
}

func Test_AIRoutes(t *testing.T) {
	t.Parallel()

	t.Run("prompt ok", func(t *testing.T) {
		gateway := &gatewayStub{text: "What made you smile today?"}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/prompt",
			`{"mood": 4, "current_text": "Today I", "recent_entries": ["work", "sleep"]}`, cookie)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `{"prompt": "What made you smile today?"}`, body)

		require.Contains(t, gateway.prompt, "feeling good", "mood 4 should map to its label")
		require.Contains(t, gateway.prompt, `"Today I"`, "started text should be forwarded")
		require.Contains(t, gateway.prompt, "work, sleep", "recent themes should be forwarded")
		require.Contains(t, gateway.system, "journaling assistant")
	})

	t.Run("prompt without session fails", func(t *testing.T) {
		gateway := &gatewayStub{text: "unused"}
		url, _ := startTestServer(t, gateway, RouterConfig{})

		resp, body := postJSON(t, url+"/api/ai/prompt", `{"mood": 3}`)

		require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"error": "service_error",
				"message": "Authentication required"
			}`, body)
		require.Equal(t, 0, gateway.calls, "model should not be called for anonymous requests")
	})

	t.Run("prompt invalid mood fails", func(t *testing.T) {
		url, _ := startTestServer(t, &gatewayStub{}, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/prompt", `{"mood": 6}`, cookie)

		require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
		require.Contains(t, body, "validation_failed")
	})

	t.Run("prompt generation unavailable", func(t *testing.T) {
		gateway := &gatewayStub{err: &llm.Error{Code: llm.CodeExhausted, Model: "phi3:mini", Attempts: 3}}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/prompt", `{"mood": 3}`, cookie)

		require.Equalf(t, http.StatusServiceUnavailable, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"error": "service_error",
				"message": "The AI service is temporarily unavailable. Please try again later."
			}`, body)
	})

	t.Run("prompt model missing tells operator", func(t *testing.T) {
		gateway := &gatewayStub{err: &llm.Error{Code: llm.CodeModelMissing, Model: "phi3:mini"}}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/prompt", `{"mood": 3}`, cookie)

		require.Equalf(t, http.StatusServiceUnavailable, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"error": "service_error",
				"message": "The AI model is not available. Please contact the operator."
			}`, body)
	})

	t.Run("analyze ok", func(t *testing.T) {
		gateway := &gatewayStub{text: `{
			"reflection": "You sound tired but hopeful.",
			"themes": ["rest", "hope"],
			"follow_up": "What would help you rest?",
			"crisis_detected": false
		}`}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/analyze",
			`{"content": "Long day at work, slept badly.", "mood": 2}`, cookie)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"analysis": {
					"reflection": "You sound tired but hopeful.",
					"themes": ["rest", "hope"],
					"follow_up": "What would help you rest?",
					"crisis_detected": false
				}
			}`, body)

		require.Contains(t, gateway.prompt, "Long day at work, slept badly.")
		require.Contains(t, gateway.prompt, "Reported mood: 2/5")
	})

	t.Run("analyze prose reply becomes reflection", func(t *testing.T) {
		gateway := &gatewayStub{text: "That sounds like a hard day."}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/analyze",
			`{"content": "Long day at work, slept badly."}`, cookie)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"analysis": {
					"reflection": "That sounds like a hard day.",
					"themes": [],
					"follow_up": "",
					"crisis_detected": false
				}
			}`, body)
	})

	t.Run("analyze short content fails", func(t *testing.T) {
		url, _ := startTestServer(t, &gatewayStub{}, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/analyze", `{"content": "short"}`, cookie)

		require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {"content": "Value is too short (minimum 10)"}
			}`, body)
	})

	t.Run("patterns ok", func(t *testing.T) {
		gateway := &gatewayStub{text: `{
			"mood_trend": "improving",
			"themes": ["sleep", "work"],
			"positive_patterns": ["morning walks"],
			"suggestions": ["keep walking"]
		}`}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/patterns", `{
			"entries": [
				{"content": "Slept badly", "mood": 2, "date": "2025-06-01"},
				{"content": "Walked in the morning", "mood": 3, "date": "2025-06-02"},
				{"content": "Felt much better", "mood": 4, "date": "2025-06-03"}
			]
		}`, cookie)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"patterns": {
					"mood_trend": "improving",
					"themes": ["sleep", "work"],
					"positive_patterns": ["morning walks"],
					"suggestions": ["keep walking"]
				}
			}`, body)

		require.Contains(t, gateway.prompt, "Entry 1 (mood: 2/5): Slept badly...")
		require.Contains(t, gateway.prompt, "Entry 3 (mood: 4/5): Felt much better...")
	})

	t.Run("patterns too few entries fails", func(t *testing.T) {
		gateway := &gatewayStub{}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/patterns", `{
			"entries": [
				{"content": "one"},
				{"content": "two"}
			]
		}`, cookie)

		require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
		require.Contains(t, body, "validation_failed")
		require.Equal(t, 0, gateway.calls, "model should not be called for invalid input")
	})

	t.Run("patterns unparsable reply falls back", func(t *testing.T) {
		gateway := &gatewayStub{text: "no json here"}
		url, _ := startTestServer(t, gateway, RouterConfig{})
		cookie := registerAndGetCookie(t, url)

		resp, body := postJSON(t, url+"/api/ai/patterns", `{
			"entries": [
				{"content": "one day"},
				{"content": "two days"},
				{"content": "three days"}
			]
		}`, cookie)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"patterns": {
					"mood_trend": "Unable to determine",
					"themes": [],
					"positive_patterns": [],
					"suggestions": []
				}
			}`, body)
	})

	t.Run("rate limit enforced", func(t *testing.T) {
		gateway := &gatewayStub{text: "ok"}
		url, _ := startTestServer(t, gateway, RouterConfig{
			AILimiter: ratelimit.NewWindow(2, time.Hour),
		})
		cookie := registerAndGetCookie(t, url)

		for i := range 2 {
			resp, body := postJSON(t, url+"/api/ai/prompt", `{"mood": 3}`, cookie)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "request %d should pass. Body: %s", i+1, body)
		}

		resp, body := postJSON(t, url+"/api/ai/prompt", `{"mood": 3}`, cookie)
		require.Equalf(t, http.StatusTooManyRequests, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `
			{
				"error": "service_error",
				"message": "Rate limit exceeded. Please try again later."
			}`, body)
		require.Equal(t, 2, gateway.calls, "denied request should not reach the model")
	})

	t.Run("auth routes are not rate limited", func(t *testing.T) {
		url, _ := startTestServer(t, &gatewayStub{}, RouterConfig{
			AILimiter: ratelimit.NewWindow(1, time.Hour),
		})

		for range 3 {
			resp, err := http.Get(url + "/api/auth/status")
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})
}

func Test_HealthRoute(t *testing.T) {
	t.Parallel()

	t.Run("llm reachable", func(t *testing.T) {
		url, _ := startTestServer(t, &gatewayStub{healthy: true}, RouterConfig{})

		resp, err := http.Get(url + "/api/health")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		requireBodyJSONEq(t, resp, `{"status": "ok", "llm": true}`)
	})

	t.Run("llm down still ok", func(t *testing.T) {
		url, _ := startTestServer(t, &gatewayStub{healthy: false}, RouterConfig{})

		resp, err := http.Get(url + "/api/health")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		requireBodyJSONEq(t, resp, `{"status": "ok", "llm": false}`)
	})
}
