// Package bridge turns invocation contracts into callable bindings over a
// live capability session. A binding validates arguments locally before the
// round trip and separates transport failures from capability-reported
// failures.
package bridge

import (
	"context"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/partsline/scm-agent/internal/agenterr"
	"github.com/partsline/scm-agent/internal/schema"
)

// Caller performs one capability round trip. The returned text is the
// flattened payload; reported tells caller-side failure (the remote ran
// the capability and it said no) apart from transport failure (err).
type Caller interface {
	Call(ctx context.Context, name string, args map[string]any) (text string, reported bool, err error)
}

// SessionCaller adapts a connected MCP client session. Calls are
// serialized: the underlying stdio transport carries one request at a
// time.
type SessionCaller struct {
	mu      sync.Mutex
	session *sdkmcp.ClientSession
}

func NewSessionCaller(session *sdkmcp.ClientSession) *SessionCaller {
	return &SessionCaller{session: session}
}

func (c *SessionCaller) Call(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", false, err
	}
	return flattenContent(res.Content), res.IsError, nil
}

// flattenContent joins the textual parts of a call result into the single
// string the conversation carries.
func flattenContent(content []sdkmcp.Content) string {
	var parts []string
	for _, item := range content {
		if text, ok := item.(*sdkmcp.TextContent); ok && strings.TrimSpace(text.Text) != "" {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Binding pairs one contract with the caller that can satisfy it.
type Binding struct {
	contract schema.Contract
	caller   Caller
}

func Bind(contract schema.Contract, caller Caller) *Binding {
	return &Binding{contract: contract, caller: caller}
}

func (b *Binding) Name() string              { return b.contract.Name }
func (b *Binding) Contract() schema.Contract { return b.contract }

// Invoke validates and coerces args against the contract, then performs
// the round trip. Missing required arguments fail before any I/O. A
// capability-reported failure returns the payload text together with a
// tool error so the caller can feed the text back to the model.
func (b *Binding) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := b.contract.Validate(args); err != nil {
		return "", err
	}
	text, reported, err := b.caller.Call(ctx, b.contract.Name, b.contract.Coerce(args))
	if err != nil {
		return "", agenterr.Transport(b.contract.Name, err)
	}
	if reported {
		return text, agenterr.Tool(b.contract.Name, text)
	}
	return text, nil
}

// Registry indexes bindings by capability name.
type Registry struct {
	bindings map[string]*Binding
}

func NewRegistry(bindings ...*Binding) *Registry {
	reg := &Registry{bindings: map[string]*Binding{}}
	for _, binding := range bindings {
		reg.bindings[binding.Name()] = binding
	}
	return reg
}

func (r *Registry) Get(name string) (*Binding, bool) {
	binding, ok := r.bindings[name]
	return binding, ok
}

// Names lists the registered capability names, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	return names
}

// Invoke dispatches by name. Unknown capabilities are a per-invocation
// failure, not a session failure: the model may hallucinate a name.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	binding, ok := r.bindings[name]
	if !ok {
		return "", agenterr.Unknown(name)
	}
	return binding.Invoke(ctx, args)
}
