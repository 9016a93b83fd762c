package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/pkg/anthropic"
)

// fakeModel implements anthropic.Client with a canned reply.
type fakeModel struct {
	reply string
	err   error
	reqs  []anthropic.MessageRequest
}

func (f *fakeModel) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 900, CacheReadInputTokens: 100, OutputTokens: 30},
	}, nil
}

const plainPage = `<html><body><h1>Oak Street Dental</h1>
<p>Visit us at 400 Oak Avenue, Suite 2, Madison, WI 53703. Open weekdays.</p>
<script>var x = "ignored";</script></body></html>`

func TestExtract_LLMFallbackAddresses(t *testing.T) {
	m := &fakeModel{reply: "Here you go:\n[\"400 Oak Avenue, Suite 2,  Madison, WI 53703\", \"Madison\", \"400 Oak Avenue, Suite 2, Madison, WI 53703\"]"}
	e := New(&fakeFetcher{html: plainPage}, WithLLM(m, LLMOptions{Model: "claude-haiku-4-5-20251001"}))

	got := collect(t, e, model.FieldAddress)

	assert.Equal(t, []string{"400 Oak Avenue, Suite 2, Madison, WI 53703"}, got)
	require.Len(t, m.reqs, 1)
	req := m.reqs[0]
	assert.Equal(t, "claude-haiku-4-5-20251001", req.Model)
	assert.Equal(t, int64(512), req.MaxTokens)
	assert.Contains(t, req.Messages[0].Content, "postal addresses")
	assert.Contains(t, req.Messages[0].Content, "400 Oak Avenue")
	assert.NotContains(t, req.Messages[0].Content, "ignored", "scripts are not sent")

	calls, usage := e.LLMUsage()
	assert.Equal(t, int64(1), calls)
	assert.Equal(t, int64(1000), usage.InputTokens)
	assert.Equal(t, int64(30), usage.OutputTokens)
}

func TestExtract_LLMFallbackPhonesNormalized(t *testing.T) {
	m := &fakeModel{reply: `["(608) 555-0142", "555-0142", "+1 608 555 0142"]`}
	e := New(&fakeFetcher{html: plainPage}, WithLLM(m, LLMOptions{}))

	assert.Equal(t, []string{"6085550142"}, collect(t, e, model.FieldPhone))
}

func TestExtract_LLMNotCalledWhenMarkupYields(t *testing.T) {
	m := &fakeModel{reply: `[]`}
	e := New(&fakeFetcher{html: page}, WithLLM(m, LLMOptions{}))

	got := collect(t, e, model.FieldEmail)

	assert.NotEmpty(t, got)
	assert.Empty(t, m.reqs)
}

func TestExtract_LLMErrorIsNotYielded(t *testing.T) {
	m := &fakeModel{err: errors.New("anthropic: create message: 529 overloaded")}
	e := New(&fakeFetcher{html: plainPage}, WithLLM(m, LLMOptions{}))

	assert.Empty(t, collect(t, e, model.FieldEmail))
	assert.Len(t, m.reqs, 1)
}

func TestExtract_LLMTextTruncated(t *testing.T) {
	m := &fakeModel{reply: `[]`}
	long := "<html><body><p>" + strings.Repeat("word ", 1000) + "</p></body></html>"
	e := New(&fakeFetcher{html: long}, WithLLM(m, LLMOptions{MaxChars: 100}))

	assert.Empty(t, collect(t, e, model.FieldAddress))
	require.Len(t, m.reqs, 1)
	content := m.reqs[0].Messages[0].Content
	text := content[strings.Index(content, "Page text:\n")+len("Page text:\n"):]
	assert.Len(t, text, 100)
}

func TestParseStringArray(t *testing.T) {
	got, err := parseStringArray("```json\n[\"a\", \"b\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = parseStringArray("no contacts found")
	assert.Error(t, err)

	_, err = parseStringArray(`[1, 2]`)
	assert.Error(t, err)
}

func TestPlausible(t *testing.T) {
	assert.Equal(t, "info@acme.biz", plausible(model.FieldEmail, " Info@Acme.biz "))
	assert.Empty(t, plausible(model.FieldEmail, "not an email"))
	assert.Equal(t, "6085550142", plausible(model.FieldPhone, "608.555.0142"))
	assert.Empty(t, plausible(model.FieldPhone, "555-0142"))
	assert.Equal(t, "1 Elm St, Troy, NY 12180", plausible(model.FieldAddress, "1 Elm St,   Troy, NY 12180"))
	assert.Empty(t, plausible(model.FieldAddress, "Troy, New York"))
	assert.Empty(t, plausible(model.FieldURL, "https://acme.biz"))
}
