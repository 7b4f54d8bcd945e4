package uriconv_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/rscls/pkg/uriconv"
)

func upper(uri string) string {
	return uri + "#rewritten"
}

func TestWalkLocation(t *testing.T) {
	raw := json.RawMessage(`{"uri":"file:///a.rs","range":{"start":{"line":0,"character":0}}}`)
	out, err := uriconv.Walk(raw, upper)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"uri":"file:///a.rs#rewritten"`)
}

func TestWalkWorkspaceEditChangesKeys(t *testing.T) {
	raw := json.RawMessage(`{"changes":{"file:///a.rs":[{"range":{},"newText":"x"}]}}`)
	out, err := uriconv.Walk(raw, upper)
	require.NoError(t, err)

	var decoded map[string]map[string][]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	_, ok := decoded["changes"]["file:///a.rs#rewritten"]
	assert.True(t, ok)
}

func TestWalkNestedDiagnosticRelatedInformation(t *testing.T) {
	raw := json.RawMessage(`{
		"uri":"file:///a.rs",
		"diagnostics":[{
			"message":"oops",
			"codeDescription":{"href":"file:///b.rs"},
			"relatedInformation":[{"location":{"uri":"file:///c.rs"},"message":"see"}]
		}]
	}`)
	out, err := uriconv.Walk(raw, upper)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `"uri":"file:///a.rs#rewritten"`)
	assert.Contains(t, s, `"href":"file:///b.rs#rewritten"`)
	assert.Contains(t, s, `"uri":"file:///c.rs#rewritten"`)
}

func TestWalkNilAndNullPassThrough(t *testing.T) {
	out, err := uriconv.Walk(nil, upper)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = uriconv.Walk(json.RawMessage(`null`), upper)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

type fakeResolver struct {
	scriptToProject map[string]string
	projectToScript map[string]string
}

func (f *fakeResolver) ScriptPathToProjectPath(p string) (string, bool) {
	v, ok := f.scriptToProject[p]
	return v, ok
}

func (f *fakeResolver) ProjectPathToScriptPath(p string) (string, bool) {
	v, ok := f.projectToScript[p]
	return v, ok
}

func TestClientToServerTranslator(t *testing.T) {
	resolver := &fakeResolver{scriptToProject: map[string]string{"/home/user/foo.rs": "/tmp/pkg/foo.rs"}}
	translate := uriconv.ClientToServerTranslator(resolver)

	assert.Equal(t, "file:///tmp/pkg/foo.rs", translate("file:///home/user/foo.rs"))
	assert.Equal(t, "file:///home/user/bar.rs", translate("file:///home/user/bar.rs"))
	assert.Equal(t, "untitled:Untitled-1", translate("untitled:Untitled-1"))
}

func TestServerToClientTranslator(t *testing.T) {
	resolver := &fakeResolver{projectToScript: map[string]string{"/tmp/pkg/foo.rs": "/home/user/foo.rs"}}
	translate := uriconv.ServerToClientTranslator(resolver)

	assert.Equal(t, "file:///home/user/foo.rs", translate("file:///tmp/pkg/foo.rs"))
}
