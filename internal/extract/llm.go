package extract

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/pkg/anthropic"
)

// LLMOptions tunes the model fallback used when markup yields nothing.
type LLMOptions struct {
	Model     string
	MaxTokens int64
	// MaxChars caps the page text sent to the model. Default 12000.
	MaxChars int
}

const llmSystemPrompt = `You extract business contact details from the visible text of a company web page.
Reply with a JSON array of strings and nothing else. Return [] when the page has none.
Only return values that appear in the text. Do not guess or complete partial values.`

var fieldPrompts = map[model.FieldType]string{
	model.FieldEmail:   "email addresses of the business",
	model.FieldPhone:   "telephone numbers of the business, as written",
	model.FieldAddress: "postal addresses of the business, one string per address with street, city, state and ZIP",
}

type llmFallback struct {
	client anthropic.Client
	opts   LLMOptions

	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

func newLLMFallback(client anthropic.Client, opts LLMOptions) *llmFallback {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 12000
	}
	return &llmFallback{client: client, opts: opts}
}

// candidates asks the model for field values found in text.
func (l *llmFallback) candidates(ctx context.Context, text string, field model.FieldType) ([]string, error) {
	what, ok := fieldPrompts[field]
	if !ok {
		return nil, nil
	}
	text = collapse(text)
	if text == "" {
		return nil, nil
	}
	if len(text) > l.opts.MaxChars {
		text = text[:l.opts.MaxChars]
	}

	temp := 0.0
	l.calls.Add(1)
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.opts.Model,
		MaxTokens: l.opts.MaxTokens,
		System: []anthropic.SystemBlock{{
			Text:         llmSystemPrompt,
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: "List the " + what + ".\n\nPage text:\n" + text,
		}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	l.input.Add(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens)
	l.output.Add(resp.Usage.OutputTokens)

	return parseStringArray(resp.Text())
}

// parseStringArray decodes the first JSON array of strings in s.
func parseStringArray(s string) ([]string, error) {
	start, end := strings.IndexByte(s, '['), strings.LastIndexByte(s, ']')
	if start < 0 || end < start {
		return nil, eris.Errorf("extract: no json array in model reply %q", truncate(s, 80))
	}
	var out []string
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "extract: decode model reply")
	}
	return out, nil
}

// plausible filters model output the same way markup candidates are
// filtered, returning the value to yield or "".
func plausible(field model.FieldType, v string) string {
	v = strings.TrimSpace(v)
	switch field {
	case model.FieldEmail:
		return mailtoAddress(v)
	case model.FieldPhone:
		return phoneDigits(v)
	case model.FieldAddress:
		v = collapse(v)
		if len(v) < 8 || !strings.ContainsFunc(v, unicode.IsDigit) {
			return ""
		}
		return v
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
