// Package stdio exposes a memory.Coordinator over JSON-RPC on stdin/stdout,
// one line per request, one line per response — the transport spec §6
// describes for embedding loreweave into a game engine's NPC runtime
// without a network hop. Adapted from the teacher's MCP server loop.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/CanopyHQ/loreweave/internal/memory"
)

// Server reads JSON-RPC requests from stdin and writes responses to
// stdout, dispatching each to the wrapped Coordinator.
type Server struct {
	coord   *memory.Coordinator
	scanner *bufio.Scanner
	out     *bufio.Writer
}

// New wraps coord for stdio serving.
func New(coord *memory.Coordinator) *Server {
	return &Server{
		coord:   coord,
		scanner: bufio.NewScanner(os.Stdin),
		out:     bufio.NewWriter(os.Stdout),
	}
}

// Serve runs the request loop until stdin closes.
func (s *Server) Serve() error {
	fmt.Fprintln(os.Stderr, "loreweave stdio transport ready")
	s.scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(nil, -32700, "parse error", err.Error())
			continue
		}
		s.handle(&req)
	}
	return s.scanner.Err()
}

// Close flushes any buffered output and releases the coordinator.
func (s *Server) Close() error {
	s.out.Flush()
	return s.coord.Close()
}

func (s *Server) handle(req *Request) {
	ctx := context.Background()

	var result interface{}
	var err error

	switch req.Method {
	case "memory.add":
		result, err = s.handleAdd(ctx, req.Params)
	case "memory.recent":
		result, err = s.handleRecent(ctx, req.Params)
	case "memory.search":
		result, err = s.handleSearch(ctx, req.Params)
	case "memory.context":
		result, err = s.handleContext(ctx, req.Params)
	case "memory.update":
		result, err = s.handleUpdate(ctx, req.Params)
	case "memory.delete":
		result, err = s.handleDelete(ctx, req.Params)
	case "memory.clear":
		result, err = s.handleClear(ctx, req.Params)
	case "memory.forceEmbed":
		result, err = s.handleForceEmbed(ctx, req.Params)
	case "memory.listCharacters":
		result, err = s.coord.ListCharacters(ctx)
	case "memory.export":
		result, err = s.handleExport(ctx, req.Params)
	case "memory.import":
		result, err = s.handleImport(ctx, req.Params)
	case "memory.health":
		result = map[string]interface{}{"status": "ok"}
	default:
		s.sendError(req.ID, -32601, "method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, codeFor(err), "request failed", err.Error())
		return
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleAdd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string         `json:"character"`
		Content   string         `json:"content"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return s.coord.Add(ctx, p.Character, p.Content, p.Metadata)
}

func (s *Server) handleRecent(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return s.coord.GetRecent(ctx, p.Character), nil
}

func (s *Server) handleSearch(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
		Query     string `json:"query"`
		K         int    `json:"k"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return s.coord.Search(ctx, p.Character, p.Query, p.K)
}

func (s *Server) handleContext(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
		Query     string `json:"query"`
		K         int    `json:"k"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return s.coord.GetContext(ctx, p.Character, p.Query, p.K)
}

func (s *Server) handleUpdate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string         `json:"character"`
		ID        string         `json:"id"`
		Content   string         `json:"content"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	loc, err := s.coord.Update(ctx, p.Character, p.ID, p.Content, p.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": p.ID, "location": loc}, nil
}

func (s *Server) handleDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	loc, err := s.coord.Delete(ctx, p.Character, p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": p.ID, "location": loc}, nil
}

func (s *Server) handleClear(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return s.coord.Clear(ctx, p.Character)
}

func (s *Server) handleForceEmbed(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	count, err := s.coord.ForceEmbed(ctx, p.Character)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"embedded": count}, nil
}

func (s *Server) handleExport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Character string `json:"character"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	memories, err := s.coord.Export(ctx, p.Character)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"character": p.Character, "memories": memories}, nil
}

func (s *Server) handleImport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Items []memory.ImportItem `json:"items"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	return s.coord.Import(ctx, p.Items)
}

// Request and Response are the minimal JSON-RPC 2.0 envelope this
// transport speaks — no batching, no notifications.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (s *Server) sendResult(id interface{}, result interface{}) {
	s.write(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id interface{}, code int, message, data string) {
	s.write(Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}})
}

func (s *Server) write(resp Response) {
	data, _ := json.Marshal(resp)
	s.out.Write(data)
	s.out.WriteByte('\n')
	s.out.Flush()
}

// codeFor maps a memory.Kind to a JSON-RPC-ish error code, mirroring the
// status codes spec §7 assigns per error kind.
func codeFor(err error) int {
	switch memory.KindOf(err) {
	case memory.KindEmptyContent, memory.KindValidationFailure:
		return -32602
	case memory.KindNotFound:
		return -32001
	case memory.KindEmbeddingUnavailable:
		return -32002
	case memory.KindStorageFailure:
		return -32003
	default:
		return -32603
	}
}
