// Package session owns the lifetime of one agent session: it starts the
// capability server subprocess, performs the discovery handshake, builds
// the invocation bindings, and answers queries until closed.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"sort"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/partsline/scm-agent/internal/agenterr"
	"github.com/partsline/scm-agent/internal/bridge"
	"github.com/partsline/scm-agent/internal/config"
	"github.com/partsline/scm-agent/internal/llm"
	"github.com/partsline/scm-agent/internal/loop"
	"github.com/partsline/scm-agent/internal/schema"
)

type Session struct {
	cfg       config.Config
	logger    *slog.Logger
	mcp       *sdkmcp.ClientSession
	registry  *bridge.Registry
	tools     []llm.ToolDefinition
	completer llm.Completer
	hooks     loop.Hooks

	closeOnce sync.Once
	closeErr  error
}

type Options struct {
	Config    config.Config
	Completer llm.Completer
	Logger    *slog.Logger
	Hooks     loop.Hooks

	// Transport overrides the subprocess transport. Used by tests to wire
	// an in-memory server.
	Transport sdkmcp.Transport
}

// New connects to the capability server and completes the discovery
// handshake. Any failure tears the connection down before returning; a
// returned session owns a live, discovered connection.
func New(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	transport := opts.Transport
	if transport == nil {
		cmd := exec.Command(cfg.ServerCommand, cfg.ServerArgs...)
		transport = &sdkmcp.CommandTransport{Command: cmd}
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "scm-agent", Version: "0.1.0"}, nil)
	mcpSession, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, agenterr.Setup("connect capability server: %v", err)
	}

	s := &Session{
		cfg:       cfg,
		logger:    logger.With("component", "session"),
		mcp:       mcpSession,
		completer: opts.Completer,
		hooks:     opts.Hooks,
	}
	if err := s.discover(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.logger.Info("session ready", "capabilities", s.Capabilities())
	return s, nil
}

// discover enumerates the advertised capabilities once and freezes them
// into contracts, bindings, and the model-facing declaration set.
func (s *Session) discover(ctx context.Context) error {
	translateOpts := schema.Options{FallbackType: fallbackType(s.cfg.SchemaFallbackType)}
	caller := bridge.NewSessionCaller(s.mcp)

	var bindings []*bridge.Binding
	var tools []llm.ToolDefinition
	for tool, err := range s.mcp.Tools(ctx, nil) {
		if err != nil {
			return agenterr.Setup("capability discovery: %v", err)
		}
		if tool == nil {
			continue
		}
		schemaJSON := "{}"
		if tool.InputSchema != nil {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				schemaJSON = string(raw)
			}
		}
		contract, err := schema.Translate(schema.Descriptor{
			Name:            tool.Name,
			Description:     tool.Description,
			InputSchemaJSON: schemaJSON,
		}, translateOpts)
		if err != nil {
			return err
		}
		bindings = append(bindings, bridge.Bind(contract, caller))
		tools = append(tools, llm.ToolDefinition{
			Name:        contract.Name,
			Description: contract.Description,
			Parameters:  json.RawMessage(contract.SchemaJSON),
		})
	}
	if len(bindings) == 0 {
		return agenterr.Setup("capability server advertised nothing")
	}

	s.registry = bridge.NewRegistry(bindings...)
	s.tools = tools
	return nil
}

// Capabilities lists the discovered capability names, sorted.
func (s *Session) Capabilities() []string {
	names := s.registry.Names()
	sort.Strings(names)
	return names
}

// Ask runs one query through a fresh conversation and returns its
// terminal outcome. Conversations do not share state; only the session's
// connection is reused.
func (s *Session) Ask(ctx context.Context, query string) (loop.Outcome, error) {
	seed := []llm.Message{
		{Role: llm.RoleSystem, Content: s.systemPrompt()},
		{Role: llm.RoleUser, Content: query},
	}
	l := loop.New(s.completer, s.registry, s.tools, loop.Options{
		MaxTurns: s.cfg.MaxModelTurns,
		Hooks:    s.hooks,
		Logger:   s.logger,
	})
	return l.Run(ctx, seed)
}

func (s *Session) systemPrompt() string {
	if s.cfg.ServerMode == config.ModeCode {
		return s.cfg.CodeSystemPrompt
	}
	return s.cfg.SystemPrompt
}

// Close shuts the connection down, ending the subprocess. Safe to call
// more than once and on every setup exit path.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.mcp.Close()
		s.logger.Info("session closed")
	})
	return s.closeErr
}

func fallbackType(name string) schema.ParamType {
	switch schema.ParamType(name) {
	case schema.TypeString, schema.TypeInteger, schema.TypeNumber,
		schema.TypeBoolean, schema.TypeList, schema.TypeMap:
		return schema.ParamType(name)
	default:
		return schema.TypeString
	}
}
