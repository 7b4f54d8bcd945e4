// Package router implements the single-consumer main loop that ties every
// other component together: it drains the event bus, rewrites each message
// (URI translation, config injection, script registration), and forwards
// it to the opposite endpoint's outgoing channel. Mirrors the original
// rscls's src/main.rs event loop almost directly — the closest thing in
// this repo to a line-for-line port, generalized per the handler/uriconv
// packages' table-driven and data-driven designs instead of main.rs's
// hand-enumerated match arms.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/rscls/pkg/bus"
	"github.com/walteh/rscls/pkg/handler"
	"github.com/walteh/rscls/pkg/message"
	"github.com/walteh/rscls/pkg/project"
	"github.com/walteh/rscls/pkg/rlog"
	"github.com/walteh/rscls/pkg/uriconv"
)

const (
	methodInitialize             = "initialize"
	methodWorkspaceConfiguration = "workspace/configuration"
	methodDidOpenTextDocument    = "textDocument/didOpen"
	methodDidCloseTextDocument   = "textDocument/didClose"
	methodDidSaveTextDocument    = "textDocument/didSave"
	methodDidChangeConfig        = "workspace/didChangeConfiguration"

	methodReloadWorkspace    = "rust-analyzer/reloadWorkspace"
	methodRebuildProcMacros  = "rust-analyzer/rebuildProcMacros"
	methodRunFlyCheck        = "rust-analyzer/runFlyCheck"

	languageIDRustScript = "rust-script"
	languageIDRust       = "rust"
)

// cargoCheckOverride is injected as rust-analyzer's check.overrideCommand so
// its background check runs against the synthesized package directly
// instead of trying to discover a Cargo workspace that doesn't exist.
var cargoCheckOverride = []string{"cargo", "check", "--workspace", "--message-format=json", "--all-targets"}

// Router drains a Bus and forwards each event to the opposite endpoint,
// rewriting URIs and injecting rust-analyzer configuration along the way.
type Router struct {
	events *project.Cache
	bus    *bus.Bus
	logger zerolog.Logger

	toServer chan<- message.Message
	toClient chan<- message.Message

	requests *handler.Table // client->server requests, and the server's responses to them
	notifs   *handler.Table // client->server notifications

	mu                sync.Mutex
	pendingFromServer map[string]pendingRequest // request id string -> request, for server->client requests awaiting a client response
	pendingFromClient map[string]pendingRequest // request id string -> request, for client->server requests awaiting a server response
	currentVersion    bus.Version
}

// pendingRequest is what the router remembers about a request while it
// awaits the matching response, so the response handler can be looked up
// by the original method and, for workspace/configuration, so only the
// items that asked for the "rust-analyzer" section get rewritten.
type pendingRequest struct {
	method   string
	sections []string // set only for workspace/configuration requests
}

// correlationMissError reports a response whose id doesn't match any
// request the router is still tracking: either a duplicate response, a
// response for a request the router never saw, or an id reused across
// unrelated requests — in every case a protocol violation severe enough
// that continuing to route messages would only compound the corruption.
type correlationMissError struct {
	direction string
	id        string
}

func (e *correlationMissError) Error() string {
	return fmt.Sprintf("%s: response id %s matches no pending request", e.direction, e.id)
}

// New builds a Router. cache is the script/project cache consulted for
// linkedProjects and URI translation; b is the event bus, consulted for the
// reload-version counter; toServer/toClient are the outgoing channels the
// respective endpoint's WriteLoop drains.
func New(cache *project.Cache, b *bus.Bus, logger zerolog.Logger, toServer, toClient chan<- message.Message) *Router {
	r := &Router{
		events:            cache,
		bus:               b,
		logger:            logger.With().Str("component", "router").Logger(),
		toServer:          toServer,
		toClient:          toClient,
		requests:          handler.NewTable(),
		notifs:            handler.NewTable(),
		pendingFromServer: make(map[string]pendingRequest),
		pendingFromClient: make(map[string]pendingRequest),
		currentVersion:    b.CurrentVersion(),
	}
	r.registerHandlers()
	return r
}

func (r *Router) registerHandlers() {
	handler.Register(r.notifs, methodDidOpenTextDocument, func(p *didOpenParams) {
		if p.TextDocument.LanguageID != languageIDRustScript {
			return
		}
		scriptPath, err := filePathFromURI(p.TextDocument.URI)
		if err != nil {
			r.logger.Warn().Err(err).Str("uri", p.TextDocument.URI).Msg("didOpen with unparseable uri")
			return
		}
		r.events.Register(context.Background(), scriptPath)
		p.TextDocument.LanguageID = languageIDRust
	})

	handler.Register(r.notifs, methodDidCloseTextDocument, func(p *textDocumentIdentifierParams) {
		if scriptPath, err := filePathFromURI(p.TextDocument.URI); err == nil {
			r.events.DeregisterIfRegistered(scriptPath)
		}
	})

	handler.Register(r.notifs, methodDidSaveTextDocument, func(p *textDocumentIdentifierParams) {
		if scriptPath, err := filePathFromURI(p.TextDocument.URI); err == nil {
			r.events.Saved(context.Background(), scriptPath)
		}
	})

	// rust-analyzer/reloadWorkspace triggers a refresh of every tracked
	// script's synthesized package, not just whichever one was last
	// touched, mirroring the original's queue_refresh_all.
	handler.Register(r.requests, methodReloadWorkspace, func(p *struct{}) {
		r.events.QueueRefreshAll(context.Background())
	})
	// rust-analyzer/rebuildProcMacros and runFlyCheck carry no
	// script-relative URIs or state rscls needs to touch; registering
	// them here, rather than leaving them to fall through unregistered,
	// makes the table the single source of truth for every known
	// extension method instead of an implicit "whatever isn't listed
	// just forwards" rule.
	handler.Register(r.requests, methodRebuildProcMacros, func(p *struct{}) {})
	handler.Register(r.notifs, methodRunFlyCheck, func(p *runFlyCheckParams) {})
}

// runFlyCheckParams mirrors lsp_extra.rs's RunFlyCheckParams: an optional
// text document identifier naming which open document to fly-check.
type runFlyCheckParams struct {
	TextDocument *textDocumentIdentifier `json:"textDocument,omitempty"`
}

// didOpenParams and textDocumentIdentifierParams are the params of the
// didOpen, didClose and didSave notifications. handler.Register's typed
// entries re-encode the whole decoded value in place of the original
// params, so omitting a field here would lose it on the way back out —
// every field the editor sends in these three payloads is represented
// below.
type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentIdentifierParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"` // didSave only
}

func filePathFromURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Errorf("parsing uri %q: %w", raw, err)
	}
	if u.Scheme != "file" {
		return "", errors.Errorf("uri %q is not a file:// uri", raw)
	}
	return u.Path, nil
}

// Run drains events until the bus is closed, ctx is canceled, or the
// editor sends an exit notification.
func (r *Router) Run(ctx context.Context, events <-chan bus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			done, err := r.handle(ctx, ev)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// handle processes one event and reports whether the loop should terminate
// after it — true only once an exit notification has been forwarded.
func (r *Router) handle(ctx context.Context, ev bus.Event) (bool, error) {
	switch ev.Kind {
	case bus.KindClientToServer:
		return r.handleClientToServer(ev.Message)
	case bus.KindServerToClient:
		return false, r.handleServerToClient(ev.Message)
	case bus.KindServerLog:
		rlog.ServerLog(r.logger, ev.LogLine)
		return false, nil
	case bus.KindNeedReload:
		return false, r.handleNeedReload(ev.ReloadedAt)
	default:
		return false, nil
	}
}

func (r *Router) handleClientToServer(msg message.Message) (bool, error) {
	translate := uriconv.ClientToServerTranslator(r.events)

	switch m := msg.(type) {
	case *message.Request:
		if err := r.translateParams(&m.Params, translate); err != nil {
			return false, err
		}
		if m.Method == methodInitialize {
			if err := r.injectInitializeConfig(m); err != nil {
				return false, err
			}
		}
		if err := r.requests.ApplyToRequest(m); err != nil {
			return false, err
		}
		r.putPendingFromClient(m.ID, m.Method, nil)
	case *message.Response:
		if err := r.translateResult(&m.Result, translate); err != nil {
			return false, err
		}
		pending, ok := r.takePendingFromServer(m.ID)
		if !ok {
			return false, &correlationMissError{direction: "client->server response", id: m.ID.String()}
		}
		if pending.method == methodWorkspaceConfiguration {
			if err := r.injectWorkspaceConfigurationResponse(m, pending.sections); err != nil {
				return false, err
			}
		}
	case *message.Notification:
		// Handlers run first so didOpen/didClose/didSave see the script's
		// own URI, which is what the cache is keyed by.
		if err := r.notifs.ApplyToNotification(m); err != nil {
			return false, err
		}
		if err := r.translateParams(&m.Params, translate); err != nil {
			return false, err
		}
	}

	r.toServer <- msg
	return message.IsExit(msg), nil
}

func (r *Router) handleServerToClient(msg message.Message) error {
	translate := uriconv.ServerToClientTranslator(r.events)

	switch m := msg.(type) {
	case *message.Request:
		if err := r.translateParams(&m.Params, translate); err != nil {
			return err
		}
		r.putPendingFromServer(m.ID, m.Method, workspaceConfigurationSections(m))
	case *message.Response:
		if err := r.translateResult(&m.Result, translate); err != nil {
			return err
		}
		pending, ok := r.takePendingFromClient(m.ID)
		if !ok {
			return &correlationMissError{direction: "server->client response", id: m.ID.String()}
		}
		if err := r.requests.ApplyToResponse(pending.method, m); err != nil {
			return err
		}
	case *message.Notification:
		if err := r.translateParams(&m.Params, translate); err != nil {
			return err
		}
	}

	r.toClient <- msg
	return nil
}

// workspaceConfigurationSections extracts the section name requested by
// each item of a workspace/configuration request, so the response handler
// can later tell which elements of the (parallel) result array to rewrite.
// Returns nil for any other method.
func workspaceConfigurationSections(req *message.Request) []string {
	if req.Method != methodWorkspaceConfiguration {
		return nil
	}
	var params struct {
		Items []struct {
			Section string `json:"section"`
		} `json:"items"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}
	sections := make([]string, len(params.Items))
	for i, item := range params.Items {
		sections[i] = item.Section
	}
	return sections
}

func (r *Router) translateParams(params *json.RawMessage, translate uriconv.TranslateFunc) error {
	out, err := uriconv.Walk(*params, translate)
	if err != nil {
		return errors.Errorf("translating uris: %w", err)
	}
	*params = out
	return nil
}

func (r *Router) translateResult(result *json.RawMessage, translate uriconv.TranslateFunc) error {
	out, err := uriconv.Walk(*result, translate)
	if err != nil {
		return errors.Errorf("translating uris: %w", err)
	}
	*result = out
	return nil
}

func (r *Router) putPendingFromServer(id message.ID, method string, sections []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingFromServer[id.String()] = pendingRequest{method: method, sections: sections}
}

func (r *Router) takePendingFromServer(id message.ID) (pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.pendingFromServer[id.String()]
	if ok {
		delete(r.pendingFromServer, id.String())
	}
	return pending, ok
}

func (r *Router) putPendingFromClient(id message.ID, method string, sections []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingFromClient[id.String()] = pendingRequest{method: method, sections: sections}
}

func (r *Router) takePendingFromClient(id message.ID) (pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.pendingFromClient[id.String()]
	if ok {
		delete(r.pendingFromClient, id.String())
	}
	return pending, ok
}

// injectInitializeConfig rewrites the initialize request's
// initializationOptions, adding linkedProjects/check.overrideCommand the
// same way modify_config does in the original, and starts a reload so a
// later config round-trip picks up whatever scripts get registered next.
func (r *Router) injectInitializeConfig(req *message.Request) error {
	var params map[string]json.RawMessage
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errors.Errorf("decoding initialize params: %w", err)
		}
	} else {
		params = map[string]json.RawMessage{}
	}

	var opts map[string]any
	if raw, ok := params["initializationOptions"]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return errors.Errorf("decoding initializationOptions: %w", err)
		}
	}
	if opts == nil {
		opts = map[string]any{}
	}

	r.bumpVersion()
	modifyConfig(opts, r.events.Projects(context.Background()))

	encodedOpts, err := json.Marshal(opts)
	if err != nil {
		return errors.Errorf("encoding initializationOptions: %w", err)
	}
	params["initializationOptions"] = encodedOpts

	encodedParams, err := json.Marshal(params)
	if err != nil {
		return errors.Errorf("encoding initialize params: %w", err)
	}
	req.Params = encodedParams
	return nil
}

// injectWorkspaceConfigurationResponse rewrites the client's answer to a
// workspace/configuration request rust-analyzer sent itself, replacing only
// the result elements whose corresponding request item asked for the
// "rust-analyzer" config section with our linkedProjects/check.overrideCommand
// injection — every other section (e.g. "files") is left exactly as the
// editor answered it, mirroring main.rs's handle_response::<WorkspaceConfiguration>.
func (r *Router) injectWorkspaceConfigurationResponse(resp *message.Response, sections []string) error {
	var result []map[string]any
	if len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return errors.Errorf("decoding workspace/configuration result: %w", err)
	}

	changed := false
	for i, item := range result {
		if i >= len(sections) || sections[i] != "rust-analyzer" {
			continue
		}
		if item == nil {
			item = map[string]any{}
		}
		r.bumpVersion()
		modifyConfig(item, r.events.Projects(context.Background()))
		result[i] = item
		changed = true
	}
	if !changed {
		return nil
	}

	out, err := json.Marshal(result)
	if err != nil {
		return errors.Errorf("encoding workspace/configuration result: %w", err)
	}
	resp.Result = out
	return nil
}

// modifyConfig mutates opts in place the way the original's modify_config
// does: injects linkedProjects and overrides check.overrideCommand so
// rust-analyzer's background check runs against the synthesized package
// rather than trying to discover a Cargo workspace that doesn't exist.
func modifyConfig(opts map[string]any, projects []json.RawMessage) {
	projectValues := make([]any, len(projects))
	for i, p := range projects {
		var v any
		_ = json.Unmarshal(p, &v)
		projectValues[i] = v
	}

	check, _ := opts["check"].(map[string]any)
	if check == nil {
		check = map[string]any{}
	}
	overrideCmd := make([]any, len(cargoCheckOverride))
	for i, s := range cargoCheckOverride {
		overrideCmd[i] = s
	}
	check["overrideCommand"] = overrideCmd
	opts["check"] = check

	opts["linkedProjects"] = projectValues
}

// bumpVersion starts a reload on the shared bus and records the new version
// as the one the router now expects a NeedReload signal to catch up to.
func (r *Router) bumpVersion() {
	v := r.bus.StartReload()
	r.mu.Lock()
	r.currentVersion = v
	r.mu.Unlock()
}

// handleNeedReload drops stale reload signals (superseded by a newer
// config rewrite already in flight) and otherwise sends a synthetic
// didChangeConfiguration notification to rust-analyzer, prompting it to
// re-fetch the (now-updated) linkedProjects.
func (r *Router) handleNeedReload(dirty bus.Version) error {
	r.mu.Lock()
	stale := dirty < r.currentVersion
	r.mu.Unlock()
	if stale {
		return nil
	}

	notif := &message.Notification{
		Method: methodDidChangeConfig,
		Params: json.RawMessage(`{"settings":{}}`),
	}
	r.toServer <- notif
	return nil
}
