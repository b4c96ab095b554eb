// Package transport serves ENI documents over HTTP.
//
// Every POST carries one document and receives one response document. Each
// client connection owns an eni.Session, so a handshake or login on a
// connection binds the user for the requests that follow on it.
package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eni-go/internal/eni"
	"eni-go/internal/protocol"
)

// MaxDocumentBytes bounds a request document. Larger bodies are treated as
// malformed.
const MaxDocumentBytes = 64 << 20

const responseContentType = "text/xml; charset=ISO-8859-1"

type sessionKey struct{}

// Server is the HTTP front of a Gateway.
type Server struct {
	gateway  *eni.Gateway
	sessions *eni.SessionRegistry
	logger   eni.Logger
	router   *gin.Engine
	started  time.Time

	conns sync.Map // net.Conn -> *eni.Session
}

// Options configures NewServer.
type Options struct {
	Metrics  *Metrics
	Gatherer prometheus.Gatherer
}

// NewServer builds the router. /metrics is served when a Gatherer is given.
func NewServer(gateway *eni.Gateway, sessions *eni.SessionRegistry, logger eni.Logger, opts Options) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	if opts.Metrics != nil {
		r.Use(RequestMetrics(opts.Metrics))
	}

	s := &Server{
		gateway:  gateway,
		sessions: sessions,
		logger:   logger,
		router:   r,
		started:  time.Now(),
	}

	r.GET("/healthz", s.handleHealth)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.NoRoute(s.handleDocument)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server that opens a session per connection
// and closes it when the connection goes away.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ConnContext:       s.connContext,
		ConnState:         s.connState,
	}
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	sess := s.sessions.Open()
	s.conns.Store(c, sess)
	s.logger.Debug("connection opened", "session", sess.ID, "remote", c.RemoteAddr().String())
	return context.WithValue(ctx, sessionKey{}, sess)
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	if v, ok := s.conns.LoadAndDelete(c); ok {
		sess := v.(*eni.Session)
		s.sessions.Close(sess)
		s.logger.Debug("connection closed", "session", sess.ID, "user", sess.User())
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := s.HTTPServer(addr)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handleDocument(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	sess, ok := c.Request.Context().Value(sessionKey{}).(*eni.Session)
	if !ok {
		// Served without HTTPServer: the request is its own session.
		sess = s.sessions.Open()
		defer s.sessions.Close(sess)
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxDocumentBytes)
	var out bytes.Buffer
	if err := s.gateway.Handle(c.Request.Context(), sess, body, &out); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, protocol.ErrMalformedDocument), errors.As(err, &tooLarge):
			s.logger.Warn("dropping connection after malformed document", "session", sess.ID, "error", err)
		default:
			s.logger.Error("handling document", "session", sess.ID, "error", err)
		}
		c.Header("Connection", "close")
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, responseContentType, out.Bytes())
}
