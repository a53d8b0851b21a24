// Package server hosts the supply-chain capability server. It speaks MCP
// over stdio and advertises either the four lookups individually
// (standard mode) or a single script-execution capability whose namespace
// pre-binds them (code mode).
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/partsline/scm-agent/internal/config"
	"github.com/partsline/scm-agent/internal/sandbox"
	"github.com/partsline/scm-agent/internal/scm"
)

type Server struct {
	mode          string
	dataset       *scm.Dataset
	exec          *sandbox.Executor
	emptyHint     string
	scriptTimeout time.Duration
	logger        *slog.Logger
}

type Config struct {
	Mode      string
	Dataset   *scm.Dataset
	EmptyHint string
	// ScriptTimeout bounds one script execution; zero means unbounded.
	ScriptTimeout time.Duration
	// MaxOutputBytes caps a script's captured output; zero means unlimited.
	MaxOutputBytes int
	Logger         *slog.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dataset := cfg.Dataset
	if dataset == nil {
		dataset = scm.Default()
	}
	s := &Server{
		mode:          cfg.Mode,
		dataset:       dataset,
		emptyHint:     cfg.EmptyHint,
		scriptTimeout: cfg.ScriptTimeout,
		logger:        logger.With("component", "server"),
	}
	if s.mode == "" {
		s.mode = config.ModeStandard
	}
	s.exec = sandbox.New()
	if cfg.MaxOutputBytes > 0 {
		s.exec.LimitOutput(cfg.MaxOutputBytes)
	}
	s.exec.Bind(dataset.PartID, "get_part_id", "find_part_id")
	s.exec.Bind(dataset.StockLevel, "get_stock_level", "check_stock")
	s.exec.Bind(dataset.SupplierLocation, "get_supplier_location", "find_supplier_city")
	s.exec.Bind(dataset.ShippingCost, "get_shipping_cost", "calculate_shipping")
	return s
}

// Run serves MCP over stdio until the context ends or the peer hangs up.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("capability server starting", "mode", s.mode)
	return s.MCP().Run(ctx, &sdkmcp.StdioTransport{})
}

// MCP builds the SDK server with the mode's capability set attached.
func (s *Server) MCP() *sdkmcp.Server {
	srv := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "scm-logistics-server", Version: "0.1.0"}, nil)
	if s.mode == config.ModeCode {
		s.addScriptTool(srv)
	} else {
		s.addLookupTools(srv)
	}
	return srv
}

func (s *Server) addLookupTools(srv *sdkmcp.Server) {
	srv.AddTool(&sdkmcp.Tool{
		Name: "find_part_id",
		Description: "Retrieves the technical Part ID for a given English part name " +
			"(e.g., \"ID-100\" or an error message). USE THIS FIRST. You cannot " +
			"check stock or location without an ID.",
		InputSchema: lookupSchema("part_name", "The common name of the part (e.g., \"Engine\", \"Tire\")."),
	}, s.lookupHandler("find_part_id", "part_name", s.dataset.PartID))

	srv.AddTool(&sdkmcp.Tool{
		Name:        "check_stock",
		Description: "Checks the current inventory quantity for a specific Part ID.",
		InputSchema: lookupSchema("part_id", "The technical ID (must start with \"ID-\", e.g., \"ID-100\")."),
	}, s.lookupHandler("check_stock", "part_id", s.dataset.StockLevel))

	srv.AddTool(&sdkmcp.Tool{
		Name:        "find_supplier_city",
		Description: "Finds the city where the supplier for a specific Part ID is located.",
		InputSchema: lookupSchema("part_id", "The technical ID (must start with \"ID-\", e.g., \"ID-100\")."),
	}, s.lookupHandler("find_supplier_city", "part_id", s.dataset.SupplierLocation))

	srv.AddTool(&sdkmcp.Tool{
		Name:        "calculate_shipping",
		Description: "Calculates the shipping cost to transport items from a specific Supplier City.",
		InputSchema: lookupSchema("city", "The name of the city (e.g., \"Stuttgart\", \"Berlin\")."),
	}, s.lookupHandler("calculate_shipping", "city", s.dataset.ShippingCost))
}

func (s *Server) addScriptTool(srv *sdkmcp.Server) {
	srv.AddTool(&sdkmcp.Tool{
		Name: "execute_script",
		Description: "Executes a script in a restricted environment. The following " +
			"functions are already available (do not import anything):\n" +
			"- get_part_id(name) -> str\n" +
			"- get_stock_level(id) -> str\n" +
			"- get_supplier_location(id) -> str\n" +
			"- get_shipping_cost(city) -> str\n" +
			"Chain the calls in a single script, store intermediate values in " +
			"variables, and print() the final answer.",
		InputSchema: lookupSchema("script", "The script to execute."),
	}, s.scriptHandler())
}

func (s *Server) lookupHandler(name, param string, fn func(string) string) sdkmcp.ToolHandler {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		value, ok := stringArgument(req, param)
		if !ok {
			s.logger.Warn("lookup rejected", "capability", name, "missing", param)
			return errorResult("Error: missing required argument '" + param + "'."), nil
		}
		text := fn(value)
		s.logger.Debug("lookup served", "capability", name, "argument", value)
		return textResult(text), nil
	}
}

func (s *Server) scriptHandler() sdkmcp.ToolHandler {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		src, ok := stringArgument(req, "script")
		if !ok {
			return errorResult("Error: missing required argument 'script'."), nil
		}
		if s.scriptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.scriptTimeout)
			defer cancel()
		}
		res := s.exec.Run(ctx, src)
		if res.Failed() {
			s.logger.Debug("script failed", "error", res.RuntimeError)
			return errorResult(res.Text(s.emptyHint)), nil
		}
		return textResult(res.Text(s.emptyHint)), nil
	}
}

func lookupSchema(param, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			param: map[string]any{"type": "string", "description": description},
		},
		"required": []string{param},
	}
}

func stringArgument(req *sdkmcp.CallToolRequest, param string) (string, bool) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return "", false
	}
	var args map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return "", false
	}
	value, ok := args[param].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func textResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}
}

func errorResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
		IsError: true,
	}
}
