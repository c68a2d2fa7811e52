// Package mcp serves the agent tool endpoint over streamable HTTP.  Each
// POST carries one JSON-RPC 2.0 message; sessions are created by
// initialize, named by the Mcp-Session-Id header and owned by the user
// whose bearer token created them.
package mcp

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// SessionHeader names the transport session.
const SessionHeader = "Mcp-Session-Id"

// DefaultIdleTimeout ends sessions that have not been used for an hour.
const DefaultIdleTimeout = time.Hour

// maxBody bounds a single JSON-RPC message.
const maxBody = 1 << 20

type session struct {
	userID   uint64
	lastSeen time.Time
}

// Server dispatches JSON-RPC messages to the tool catalog.
type Server struct {
	Name        string
	Version     string
	IdleTimeout time.Duration

	tools  []tool
	byName map[string]*tool

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewServer(t *Tools) *Server { return newServer(t.catalog()) }

func newServer(tools []tool) *Server {
	s := &Server{
		Name:        "happiness-journal",
		Version:     "1.0.0",
		IdleTimeout: DefaultIdleTimeout,
		tools:       tools,
		byName:      make(map[string]*tool, len(tools)),
		sessions:    make(map[string]*session),
		now:         time.Now,
	}
	for i := range s.tools {
		s.byName[s.tools[i].name] = &s.tools[i]
	}
	return s
}

// HandlePost handles POST /mcp.
func (s *Server) HandlePost(c echo.Context) error {
	ctx := c.Request().Context()
	uid, ok := UserIDFrom(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, failure(nil, codeParseError, "unreadable body"))
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, failure(nil, codeParseError, "parse error"))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return c.JSON(http.StatusBadRequest, failure(req.ID, codeInvalidRequest, "invalid JSON-RPC request"))
	}

	if req.Method == "initialize" {
		if req.isNotification() {
			return c.JSON(http.StatusBadRequest, failure(nil, codeInvalidRequest, "initialize requires an id"))
		}
		id, err := s.open(uid)
		if err != nil {
			return err
		}
		c.Response().Header().Set(SessionHeader, id)
		logger.WithContext(ctx).Info("mcp session opened", zap.Uint64("user_id", uid))
		return c.JSON(http.StatusOK, result(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    serverCapabilities{Tools: &toolCapability{}},
			ServerInfo:      serverInfo{Name: s.Name, Version: s.Version},
		}))
	}

	sid := c.Request().Header.Get(SessionHeader)
	if sid == "" {
		return c.JSON(http.StatusBadRequest, failure(req.ID, codeInvalidRequest, "missing "+SessionHeader))
	}
	if !s.touch(sid, uid) {
		return c.JSON(http.StatusNotFound, failure(req.ID, codeInvalidRequest, "unknown session"))
	}

	if req.isNotification() {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, s.dispatch(c, &req, uid))
}

// HandleDelete handles DELETE /mcp, ending the caller's session.
func (s *Server) HandleDelete(c echo.Context) error {
	uid, ok := UserIDFrom(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	sid := c.Request().Header.Get(SessionHeader)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, found := s.sessions[sid]
	if !found || sess.userID != uid {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Not Found"})
	}
	delete(s.sessions, sid)
	return c.NoContent(http.StatusNoContent)
}

// HandleGet answers GET /mcp.  Server-initiated streams are not offered.
func (s *Server) HandleGet(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderAllow, "POST, DELETE")
	return c.NoContent(http.StatusMethodNotAllowed)
}

func (s *Server) dispatch(c echo.Context, req *request, uid uint64) response {
	switch req.Method {
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		out := make([]toolDescription, 0, len(s.tools))
		for _, t := range s.tools {
			out = append(out, toolDescription{
				Name:        t.name,
				Description: t.description,
				InputSchema: t.inputSchema,
				Annotations: &toolAnnotations{ReadOnlyHint: boolPtr(true)},
			})
		}
		return result(req.ID, toolsListResult{Tools: out})
	case "tools/call":
		var p toolsCallParams
		if len(req.Params) == 0 || json.Unmarshal(req.Params, &p) != nil {
			return failure(req.ID, codeInvalidParams, "invalid tools/call params")
		}
		t, ok := s.byName[p.Name]
		if !ok {
			return failure(req.ID, codeInvalidParams, "unknown tool: "+p.Name)
		}
		return result(req.ID, s.call(c, t, uid, p.Arguments))
	default:
		return failure(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) call(c echo.Context, t *tool, uid uint64, args json.RawMessage) toolsCallResult {
	ctx := c.Request().Context()
	out, err := t.run(ctx, uid, args)
	if err != nil {
		msg := err.Error()
		if !isToolError(err) {
			logger.WithContext(ctx).Error("mcp tool failed", zap.String("tool", t.name), zap.Error(err))
			msg = "internal error"
		}
		return toolsCallResult{Content: []contentBlock{{Type: "text", Text: msg}}, IsError: true}
	}
	text, err := json.Marshal(out)
	if err != nil {
		logger.WithContext(ctx).Error("mcp tool result encode", zap.String("tool", t.name), zap.Error(err))
		return toolsCallResult{Content: []contentBlock{{Type: "text", Text: "internal error"}}, IsError: true}
	}
	return toolsCallResult{
		Content:           []contentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: out,
	}
}

func (s *Server) open(uid uint64) (string, error) {
	id, err := utils.RandomURLToken(24)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[id] = &session{userID: uid, lastSeen: s.now()}
	s.mu.Unlock()
	return id, nil
}

// touch reports whether sid is a live session of uid and refreshes it.
func (s *Server) touch(sid string, uid uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sid]
	if !ok || sess.userID != uid {
		return false
	}
	now := s.now()
	if now.Sub(sess.lastSeen) >= s.IdleTimeout {
		delete(s.sessions, sid)
		return false
	}
	sess.lastSeen = now
	return true
}

// SweepIdle drops sessions idle for longer than IdleTimeout.
func (s *Server) SweepIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.IdleTimeout {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
