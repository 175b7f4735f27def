package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Node {
	t.Helper()
	n, err := Parse([]byte(raw))
	require.NoError(t, err)
	return n
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"url key", `{"url": "http://a/b.png"}`, "http://a/b.png", true},
		{"markdown with trailing text", `"![x](http://a/b.png) trailing text"`, "http://a/b.png", true},
		{"nested data uri", `{"content": [{"image": "data:image/png;base64,AAAA"}]}`, "data:image/png;base64,AAAA", true},
		{"no url anywhere", `{"foo": 1, "bar": "no url here"}`, "", false},
		{"array skips failing items", `["not a url", {"link": "http://x/y"}]`, "http://x/y", true},
		{"embedded url in prose", `"see https://cdn.example.com/i.webp for the result"`, "https://cdn.example.com/i.webp", true},
		{"url with whitespace falls back to substring", `"http://a/b c"`, "http://a/b", true},
		{"trimmed bare url", `"  https://a/b.png  "`, "https://a/b.png", true},
		{"number", `42`, "", false},
		{"null", `null`, "", false},
		{"empty object", `{}`, "", false},
		{"uppercase scheme in markdown", `"![img](HTTPS://A/B.PNG)"`, "HTTPS://A/B.PNG", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(mustParse(t, tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPriorityBeatsSourceOrder(t *testing.T) {
	n := mustParse(t, `{"thumbnail": "http://t/small.png", "image": "http://i/full.png"}`)

	got, ok := Extract(n)
	require.True(t, ok)
	assert.Equal(t, "http://i/full.png", got)
}

func TestExtractFallbackFollowsSourceOrder(t *testing.T) {
	n := mustParse(t, `{"zeta": "http://z/1.png", "alpha": "http://a/1.png"}`)

	got, ok := Extract(n)
	require.True(t, ok)
	assert.Equal(t, "http://z/1.png", got)
}

func TestExtractSkipsFalsyPriorityValues(t *testing.T) {
	n := mustParse(t, `{"url": "", "data": null, "result": {"link": "http://r/1.png"}}`)

	got, ok := Extract(n)
	require.True(t, ok)
	assert.Equal(t, "http://r/1.png", got)
}

func TestFromChatCompletion(t *testing.T) {
	n := mustParse(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Here you go ![image](https://img.example.com/out.png)"}}]
	}`)

	got, ok := FromChatCompletion(n)
	require.True(t, ok)
	assert.Equal(t, "https://img.example.com/out.png", got)
}

func TestFromAnySortsMapKeys(t *testing.T) {
	n := FromAny(map[string]any{
		"b": "http://b/1.png",
		"a": "http://a/1.png",
	})

	got, ok := Extract(n)
	require.True(t, ok)
	assert.Equal(t, "http://a/1.png", got)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	assert.ErrorIs(t, err, ErrTrailingData)

	_, err = Parse([]byte(`<html>bad gateway</html>`))
	assert.Error(t, err)
}

func TestNodeLookupAndText(t *testing.T) {
	n := mustParse(t, `{"data": {"task_id": 1234, "task_result": {"images": [{"url": "http://k/1.png"}]}}}`)

	assert.Equal(t, "1234", n.Lookup("data", "task_id").Text())
	assert.Equal(t, "http://k/1.png", n.Lookup("data", "task_result", "images", "0", "url").Str())
	assert.True(t, n.Lookup("data", "missing", "deeper").IsNull())
	assert.Equal(t, "1234", n.FirstText([]string{"id"}, []string{"data", "task_id"}))
}

func TestNodeMarshalKeepsOrder(t *testing.T) {
	raw := `{"z":1,"a":[true,null,"x"],"m":{"k":"v"}}`
	n := mustParse(t, raw)

	assert.Equal(t, raw, n.String())
}
