package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
    "transcript": [
        {"speaker": "Doctor", "text": "Where does it hurt?"},
        {"speaker": "Patient", "text": "Lower back, mostly in the morning. 腰痛"}
    ],
    "qa_analysis": {
        "presentation": {"onset": "Two weeks ago", "is_chronic": "No"}
    },
    "summary": {"presentation": "Acute lower back pain", "life_effect": "Poor sleep", "goal": "Sleep better"}
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "json fence", text: "Result:\n```json\n{\"a\":1}\n```\nThanks", want: `{"a":1}`},
		{name: "generic fence", text: "Result:\n```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "raw", text: "  {\"a\":1}\n", want: `{"a":1}`},
		{name: "json fence preferred over earlier generic", text: "```\nnot it\n```\n```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "unterminated json fence", text: "```json\n{\"a\":1}", want: `{"a":1}`},
		{name: "unterminated generic fence", text: "```\n{\"a\":1}", want: `{"a":1}`},
		{name: "only first json block", text: "```json\n{\"a\":1}\n```\n```json\n{\"b\":2}\n```", want: `{"a":1}`},
		{name: "empty", text: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.text))
		})
	}
}

func TestParseFormattingVariantsAgree(t *testing.T) {
	variants := map[string]string{
		"json fence":    "Here is the analysis:\n```json\n" + sampleJSON + "\n```",
		"generic fence": "Here is the analysis:\n```\n" + sampleJSON + "\n```",
		"raw":           sampleJSON,
	}

	var want *Result
	for name, text := range variants {
		got, err := Parse(text)
		require.NoError(t, err, name)
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want.Transcript, got.Transcript, name)
		assert.Equal(t, want.QAAnalysis, got.QAAnalysis, name)
		assert.Equal(t, want.Summary, got.Summary, name)
	}

	require.NotNil(t, want)
	require.Len(t, want.Transcript, 2)
	assert.Equal(t, "Patient", want.Transcript[1].Speaker)
	assert.Equal(t, "Lower back, mostly in the morning. 腰痛", want.Transcript[1].Text)
	assert.Equal(t, "Two weeks ago", want.QAAnalysis["presentation"]["onset"])
	assert.Equal(t, "Sleep better", want.SummaryField(SummaryGoal))
}

func TestParseEmptyResult(t *testing.T) {
	text := "Here is the result:\n```json\n{\"transcript\":[],\"qa_analysis\":{},\"summary\":{}}\n```"

	res, err := Parse(text)
	require.NoError(t, err)
	assert.NotNil(t, res.Transcript)
	assert.Empty(t, res.Transcript)
	assert.Empty(t, res.QAAnalysis)
	assert.Empty(t, res.Summary)
	assert.JSONEq(t, `{"transcript":[],"qa_analysis":{},"summary":{}}`, string(res.Raw()))
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"prose":              "Sorry, I could not hear the recording.",
		"broken json":        "```json\n{\"transcript\": [\n```",
		"array top level":    "[]",
		"missing summary":    `{"transcript":[],"qa_analysis":{}}`,
		"null transcript":    `{"transcript":null,"qa_analysis":{},"summary":{}}`,
		"wrong text type":    `{"transcript":[{"speaker":"Doctor","text":5}],"qa_analysis":{},"summary":{}}`,
		"nested summary":     `{"transcript":[],"qa_analysis":{},"summary":{"goal":{"a":"b"}}}`,
		"trailing garbage":   `{"transcript":[],"qa_analysis":{},"summary":{}} and more`,
		"empty fenced block": "```json\n```",
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := Parse(text)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestResultMarshalKeepsOriginalDocument(t *testing.T) {
	res, err := Parse(`{"summary":{"goal":"x"},"transcript":[],"qa_analysis":{},"extra":true}`)
	require.NoError(t, err)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":{"goal":"x"},"transcript":[],"qa_analysis":{},"extra":true}`, string(out))
}

func TestResultMarshalWithoutRaw(t *testing.T) {
	res := &Result{
		Transcript: []Utterance{{Speaker: "Doctor", Text: "Hi"}},
		QAAnalysis: map[string]map[string]string{},
		Summary:    map[string]string{"goal": "x"},
	}

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transcript":[{"speaker":"Doctor","text":"Hi"}],"qa_analysis":{},"summary":{"goal":"x"}}`, string(out))
}
