// Package httpapi serves the local admin dashboard: a gin router that
// proxies REST calls 1:1 onto the supervisor's JSON-RPC broker, an
// echo WebSocket endpoint, and path-traversal-safe static file
// serving.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pryx-co/pryx/internal/broker"
	"github.com/pryx-co/pryx/internal/metrics"
	"github.com/pryx-co/pryx/internal/permission"
	"github.com/pryx-co/pryx/internal/supervisor"
	"github.com/pryx-co/pryx/internal/token"
)

// RPCCaller is the subset of *supervisor.Supervisor the router needs;
// narrowed to an interface so handlers are testable against a fake.
type RPCCaller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

type supervisorCaller struct{ sup *supervisor.Supervisor }

func (c supervisorCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.sup.Broker().Call(ctx, method, params)
}

// New builds the full gin.Engine for the local admin API.
func New(sup *supervisor.Supervisor, tokens *token.Store, perms *permission.Manager, staticDir string) *gin.Engine {
	return newWithCaller(supervisorCaller{sup: sup}, tokens, perms, staticDir)
}

func newWithCaller(rpc RPCCaller, tokens *token.Store, perms *permission.Manager, staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", rootHandler(tokens, staticDir))
	r.GET("/ws", wsHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(authMiddleware(tokens))
	registerAPIRoutes(api, rpc, perms)

	r.NoRoute(staticFilesHandler(staticDir))
	return r
}

func registerAPIRoutes(api *gin.RouterGroup, rpc RPCCaller, perms *permission.Manager) {
	api.GET("/health", proxyGet(rpc, "admin.health"))
	api.GET("/skills", proxyGet(rpc, "admin.skills.list"))
	api.GET("/config", proxyGet(rpc, "admin.config.get"))
	api.GET("/providers", proxyGet(rpc, "admin.providers.list"))
	api.GET("/models", proxyGet(rpc, "admin.models.list"))

	api.GET("/channels", proxyGet(rpc, "admin.channels.list"))
	api.POST("/channels", proxyBody(rpc, "admin.channels.create"))
	api.GET("/channels/:id", proxyWithID(rpc, "admin.channels.get"))
	api.PUT("/channels/:id", proxyBodyWithID(rpc, "admin.channels.update"))
	api.DELETE("/channels/:id", proxyWithID(rpc, "admin.channels.delete"))
	api.POST("/channels/:id/test", proxyWithID(rpc, "admin.channels.test"))

	api.GET("/mcp", proxyGet(rpc, "admin.mcp.list"))
	api.POST("/mcp", proxyBody(rpc, "admin.mcp.create"))
	api.GET("/mcp/:id", proxyWithID(rpc, "admin.mcp.get"))
	api.PUT("/mcp/:id", proxyBodyWithID(rpc, "admin.mcp.update"))
	api.DELETE("/mcp/:id", proxyWithID(rpc, "admin.mcp.delete"))

	api.GET("/policies", proxyGet(rpc, "admin.policies.list"))
	api.POST("/policies", proxyBody(rpc, "admin.policies.create"))
	api.GET("/policies/:id", proxyWithID(rpc, "admin.policies.get"))
	api.PUT("/policies/:id", proxyBodyWithID(rpc, "admin.policies.update"))
	api.DELETE("/policies/:id", proxyWithID(rpc, "admin.policies.delete"))

	api.GET("/audit/logs", proxyGet(rpc, "admin.audit.list"))
	api.GET("/cost/summary", proxyGet(rpc, "admin.cost.summary"))

	// Dashboard-driven permission approvals: the only way to resolve a
	// request when native dialogs are disabled.
	api.GET("/permissions", listPendingHandler(perms))
	api.POST("/permissions/:id/resolve", resolvePermissionHandler(perms))
	api.DELETE("/permissions/:id", cancelPermissionHandler(perms))
}

const rpcCallTimeout = 10 * time.Second

func rpcCall(c *gin.Context, rpc RPCCaller, method string, params any) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), rpcCallTimeout)
	defer cancel()

	start := time.Now()
	result, err := rpc.Call(ctx, method, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RPCCallDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		writeRPCError(c, method, err)
		return
	}
	c.Data(http.StatusOK, "application/json", result)
}

func writeRPCError(c *gin.Context, method string, err error) {
	if err == broker.ErrProcessNotRunning {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sidecar not initialized"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func proxyGet(rpc RPCCaller, method string) gin.HandlerFunc {
	return func(c *gin.Context) { rpcCall(c, rpc, method, nil) }
}

func proxyBody(rpc RPCCaller, method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		rpcCall(c, rpc, method, body)
	}
}

func proxyWithID(rpc RPCCaller, method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rpcCall(c, rpc, method, map[string]any{"id": c.Param("id")})
	}
}

func proxyBodyWithID(rpc RPCCaller, method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		if body == nil {
			body = map[string]any{}
		}
		body["id"] = c.Param("id")
		rpcCall(c, rpc, method, body)
	}
}

func listPendingHandler(perms *permission.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pending": perms.ListPending()})
	}
}

func resolvePermissionHandler(perms *permission.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Response permission.Response `json:"response"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := perms.Resolve(c.Param("id"), body.Response); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func cancelPermissionHandler(perms *permission.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := perms.Cancel(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// rootHandler serves index.html and sets the admin-token cookie the
// dashboard uses for subsequent same-origin requests.
func rootHandler(tokens *token.Store, staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens.Value() != "" {
			c.SetSameSite(http.SameSiteStrictMode)
			c.SetCookie("pryx_admin_token", tokens.Value(), 0, "/", "", false, true)
		}

		indexPath := filepath.Join(staticDir, "index.html")
		if data, err := os.ReadFile(indexPath); err == nil {
			c.Data(http.StatusOK, "text/html; charset=utf-8", data)
			return
		}
		c.Data(http.StatusOK, "text/html", []byte("<h1>Pryx Host</h1><p>Local web UI available at /</p>"))
	}
}

// staticFilesHandler serves files under staticDir. Any request path
// containing ".." is rejected with 403 before resolution, and the
// resolved path is then prefix-checked against the base directory.
func staticFilesHandler(staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		baseDir, err := filepath.Abs(staticDir)
		if err != nil {
			c.String(http.StatusInternalServerError, "server configuration error")
			return
		}

		reqPath := strings.TrimPrefix(c.Request.URL.Path, "/")
		if strings.Contains(reqPath, "..") {
			c.String(http.StatusForbidden, "access denied")
			return
		}

		var segments []string
		for _, seg := range strings.Split(reqPath, "/") {
			if seg != "" && seg != ".." {
				segments = append(segments, seg)
			}
		}

		var target string
		if len(segments) == 0 || reqPath == "index.html" {
			target = filepath.Join(baseDir, "index.html")
		} else {
			target = filepath.Join(append([]string{baseDir}, segments...)...)
		}

		if !strings.HasPrefix(target, baseDir) {
			c.String(http.StatusForbidden, "access denied")
			return
		}

		info, err := os.Stat(target)
		if err != nil {
			c.String(http.StatusNotFound, "file not found")
			return
		}
		if info.IsDir() {
			c.String(http.StatusNotFound, "file not found")
			return
		}
		c.File(target)
	}
}

// wsHandler is an echo-only WebSocket endpoint, kept as the extension
// point for a richer dashboard protocol.
func wsHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, typ, data); err != nil {
			return
		}
	}
}
