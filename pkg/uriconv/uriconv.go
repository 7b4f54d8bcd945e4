// Package uriconv rewrites URIs embedded anywhere inside an LSP payload,
// in either direction: client-facing script URIs translated to the
// server-facing synthesized package URIs rust-analyzer expects, or back.
// The original rscls's src/context.rs only ever rewrites a single bare
// url.Url at the top of a request; because LSP's actual payload universe
// scatters URIs across dozens of shapes (Location, WorkspaceEdit,
// Diagnostic.relatedInformation, CodeAction.edit, CallHierarchyItem, ...),
// this package walks the decoded JSON value generically instead of hand
// enumerating every payload struct, per the "data-driven URI visitor"
// design note: any map key known to hold a URI string is rewritten
// wherever it appears, and WorkspaceEdit's "changes" map (keyed BY uri) has
// its keys rewritten too.
package uriconv

import (
	"encoding/json"

	"gitlab.com/tozd/go/errors"
)

// Direction names the two ways a translation can run. Walk and the
// translators do not take a Direction; the direction is fixed by which
// translator is built.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client->server"
	}
	return "server->client"
}

// TranslateFunc rewrites a single URI string. It returns the input
// unchanged for any URI it doesn't recognize (e.g. anything not scheme
// "file").
type TranslateFunc func(uri string) string

// uriKeys lists every plain-string JSON key across the LSP payload universe
// that is itself known to hold a URI, covering Location, LocationLink,
// CallHierarchyItem, TypeHierarchyItem, DocumentLink, Diagnostic's
// codeDescription.href, and CreateFile/RenameFile/DeleteFile resource
// operations.
var uriKeys = map[string]bool{
	"uri":       true,
	"targetUri": true,
	"target":    true,
	"href":      true,
	"oldUri":    true,
	"newUri":    true,
	"rootUri":   true,
	"scopeUri":  true,
}

// Walk decodes raw as a generic JSON value, rewrites every URI it finds
// using translate, and re-encodes it. A nil/empty raw is returned
// unchanged.
func Walk(raw json.RawMessage, translate TranslateFunc) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return raw, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Errorf("decoding payload for URI translation: %w", err)
	}

	rewritten := walkValue(v, translate)

	out, err := json.Marshal(rewritten)
	if err != nil {
		return nil, errors.Errorf("encoding payload after URI translation: %w", err)
	}
	return out, nil
}

func walkValue(v any, translate TranslateFunc) any {
	switch val := v.(type) {
	case map[string]any:
		return walkObject(val, translate)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = walkValue(elem, translate)
		}
		return out
	default:
		return v
	}
}

func walkObject(obj map[string]any, translate TranslateFunc) map[string]any {
	out := make(map[string]any, len(obj))

	for key, value := range obj {
		switch {
		case key == "changes":
			// WorkspaceEdit.changes is a map keyed BY uri: both the keys
			// and the nested TextEdit values need walking.
			if changes, ok := value.(map[string]any); ok {
				rewritten := make(map[string]any, len(changes))
				for uri, edits := range changes {
					rewritten[translate(uri)] = walkValue(edits, translate)
				}
				out[key] = rewritten
				continue
			}
			out[key] = walkValue(value, translate)
		case uriKeys[key]:
			if s, ok := value.(string); ok {
				out[key] = translate(s)
				continue
			}
			out[key] = walkValue(value, translate)
		default:
			out[key] = walkValue(value, translate)
		}
	}

	return out
}
