// Package server implements the ember language server.
package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "ember-lsp"

var log = commonlog.GetLogger("ember.server")

// document is an open editor buffer and the result of its last analysis.
type document struct {
	text  string
	tree  *compiler.Program // nil after a syntax error
	prog  *vm.Program       // nil after any error
	diags []protocol.Diagnostic
}

// LspServer bridges LSP editor features to the compiler and a VM holding
// the global environment, through a Worker.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]*document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. v supplies the globals offered for
// completion and hover.
func NewLSP(v *vm.VM) *LspServer {
	s := &LspServer{
		worker:  NewWorker(v),
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("%s %s initializing", lspName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.publishDiagnostics(ctx, uri, s.update(uri, params.TextDocument.Text))
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) == 0 {
		return nil
	}
	last := params.ContentChanges[len(params.ContentChanges)-1]
	if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
		uri := params.TextDocument.URI
		s.publishDiagnostics(ctx, uri, s.update(uri, whole.Text))
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, []protocol.Diagnostic{})
	return nil
}

// update analyzes text and stores it as the current content of uri.
func (s *LspServer) update(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	result, err := s.worker.Do(func(*vm.VM) any {
		return analyze(text)
	})
	if err != nil {
		log.Errorf("analyze %s: %v", uri, err)
		return nil
	}
	doc := result.(*document)

	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc.diags
}

func (s *LspServer) lookup(uri protocol.DocumentUri) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[string(uri)]
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, diags []protocol.Diagnostic) {
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc := s.lookup(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.worker.Do(func(v *vm.VM) any {
		return complete(v, doc, prefix)
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.lookup(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) any {
		return hover(v, doc, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc := s.lookup(uri)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	if loc := definition(doc, uri, word); loc != nil {
		return []protocol.Location{*loc}, nil
	}
	return nil, nil
}

// --- Analysis (called on the worker goroutine) ---

// analyze parses and compiles text, collecting every reported error as a
// diagnostic.
func analyze(text string) *document {
	doc := &document{text: text}
	tree, err := compiler.Parse(text)
	if err != nil {
		doc.diags = diagnosticsFor(err)
		return doc
	}
	doc.tree = tree

	prog, err := compiler.Compile(tree)
	if err != nil {
		doc.diags = diagnosticsFor(err)
		return doc
	}
	doc.prog = prog
	return doc
}

func diagnosticsFor(err error) []protocol.Diagnostic {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	diags := make([]protocol.Diagnostic, 0, len(errs))
	for _, e := range errs {
		var (
			pos compiler.Position
			msg = e.Error()
		)
		var serr *compiler.SyntaxError
		var cerr *compiler.CompileError
		switch {
		case errors.As(e, &serr):
			pos, msg = serr.Pos, serr.Msg
		case errors.As(e, &cerr):
			pos, msg = cerr.Pos, cerr.Msg
		}
		diags = append(diags, newDiagnostic(toRange(pos, 1), msg))
	}
	return diags
}

func newDiagnostic(r protocol.Range, msg string) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}

func complete(v *vm.VM, doc *document, prefix string) []protocol.CompletionItem {
	seen := make(map[string]bool)
	var items []protocol.CompletionItem
	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	if doc.tree != nil {
		for _, st := range doc.tree.Stmts {
			switch n := st.(type) {
			case *compiler.FunctionDecl:
				add(n.Func.Name, protocol.CompletionItemKindFunction, "function")
			case *compiler.VarDecl:
				for _, d := range n.Declarators {
					add(d.Name, protocol.CompletionItemKindVariable, n.Kind.String())
				}
			}
		}
	}
	for _, name := range v.Globals() {
		g, _ := v.Global(name)
		kind := protocol.CompletionItemKindVariable
		if g.IsCallable() {
			kind = protocol.CompletionItemKindFunction
		}
		add(name, kind, "global")
	}
	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func hover(v *vm.VM, doc *document, word string) *protocol.Hover {
	var b strings.Builder
	switch {
	case doc.prog != nil && doc.prog.Named[word] > 0:
		fn := doc.prog.Functions[doc.prog.Named[word]]
		fmt.Fprintf(&b, "**function %s**(%s)\n\n", fn.Name, paramList(fn))
		fmt.Fprintf(&b, "%d locals, %d instructions", len(fn.Locals), len(fn.Code))
	case doc.prog != nil && topLevel(doc.prog, word) != nil:
		lv := topLevel(doc.prog, word)
		fmt.Fprintf(&b, "**%s %s**\n\ntop-level variable, slot %d", lv.Kind, lv.Name, lv.Slot)
	default:
		g, ok := v.Global(word)
		if !ok {
			return nil
		}
		if n := g.Native(); n != nil {
			arity := fmt.Sprintf("%d", n.Arity)
			if n.Arity < 0 {
				arity = "variadic"
			}
			fmt.Fprintf(&b, "**%s**: builtin function (arity %s)", word, arity)
		} else {
			fmt.Fprintf(&b, "**%s**: global %s\n\n`%s`", word, g.Kind(), vm.Inspect(g))
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func topLevel(prog *vm.Program, name string) *vm.LocalVar {
	lv, ok := prog.TopLevel(name)
	if !ok {
		return nil
	}
	return &lv
}

func paramList(fn *vm.Function) string {
	parts := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		parts[i] = p.Name
		if p.HasDefault {
			parts[i] += " = " + vm.Inspect(p.Default)
		}
	}
	return strings.Join(parts, ", ")
}

// definition finds the top-level declaration of word in doc.
func definition(doc *document, uri protocol.DocumentUri, word string) *protocol.Location {
	if doc.tree == nil {
		return nil
	}
	for _, st := range doc.tree.Stmts {
		switch n := st.(type) {
		case *compiler.FunctionDecl:
			if n.Func.Name == word {
				sp := n.Span()
				return &protocol.Location{URI: uri, Range: protocol.Range{
					Start: toPosition(sp.Start),
					End:   toPosition(sp.End),
				}}
			}
		case *compiler.VarDecl:
			for _, d := range n.Declarators {
				if d.Name == word {
					return &protocol.Location{URI: uri, Range: toRange(d.Pos, utf8.RuneCountInString(word))}
				}
			}
		}
	}
	return nil
}

// --- Positions ---

// toPosition converts a 1-based source position to a 0-based LSP position.
func toPosition(p compiler.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(p.Line-1, 0)),
		Character: protocol.UInteger(max(p.Column-1, 0)),
	}
}

func toRange(p compiler.Position, length int) protocol.Range {
	start := toPosition(p)
	end := start
	end.Character += protocol.UInteger(length)
	return protocol.Range{Start: start, End: end}
}

// --- Text extraction helpers ---

func isWordChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isWordChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
