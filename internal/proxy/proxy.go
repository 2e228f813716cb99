// Package proxy forwards /api requests verbatim to the remote content
// origin and injects permissive CORS response headers, so a browser front
// end served from another port can reach the API during development.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler is the pass-through /api proxy. It carries no business logic.
type Handler struct {
	target  *url.URL
	proxy   *httputil.ReverseProxy
	origins []string
	log     *zap.Logger
}

// New creates a proxy targeting the given origin. allowedOrigins lists the
// browser origins that receive CORS approval; the first entry is the
// default when a request carries no recognizable Origin header.
func New(target *url.URL, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if v := strings.TrimSpace(o); v != "" {
			origins = append(origins, v)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	h := &Handler{target: target, origins: origins, log: log}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			// changeOrigin: the upstream virtual host must see its own name.
			req.Host = target.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			h.setCORSHeaders(resp.Header, resp.Request.Header.Get("Origin"))
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("proxy upstream error",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintf(w, `{"status":"error","message":"upstream unreachable"}`)
		},
	}
	h.proxy = rp
	return h
}

// RegisterRoutes mounts the proxy under /api.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.Any("/api/*proxyPath", h.handle)
}

func (h *Handler) handle(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		h.setCORSHeaders(c.Writer.Header(), c.GetHeader("Origin"))
		c.Status(http.StatusNoContent)
		return
	}
	h.proxy.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) setCORSHeaders(header http.Header, requestOrigin string) {
	origin := h.origins[0]
	for _, allowed := range h.origins {
		if allowed == requestOrigin {
			origin = requestOrigin
			break
		}
	}
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept")
	header.Set("Access-Control-Allow-Credentials", "true")
}
