// Package diagnostics exposes a small local-only gin-gonic HTTP surface over a running engine:
// GET /healthz, GET /integrity, GET /stats. It is operator tooling over the embedded process, not
// a network write path or an authenticated API boundary, grounded on rest_api/stores.go's
// gin.Context/gin.H handler shape and tools/httpserver's main-wiring pattern.
package diagnostics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/vtm/fs"
	"github.com/sharedcode/vtm/heap"
)

// Server wires a gin router over one engine's transaction manager and heap allocator.
type Server struct {
	txns  *fs.TransactionManager
	alloc *heap.Allocator
	log   *slog.Logger
	router *gin.Engine
}

// New builds a Server. alloc may be nil if the caller only wants /healthz.
func New(txns *fs.TransactionManager, alloc *heap.Allocator) *Server {
	s := &Server{txns: txns, alloc: alloc, log: slog.Default()}
	s.router = gin.Default()
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/integrity", s.handleIntegrity)
	s.router.GET("/stats", s.handleStats)
	return s
}

// Run blocks serving on addr (e.g. "localhost:8080"), mirroring rest_main.go's router.Run call.
func (s *Server) Run(addr string) error {
	s.log.Info("diagnostics server starting", "addr", addr)
	return s.router.Run(addr)
}

// Router exposes the underlying gin.Engine for embedding into a larger mux, or for
// httptest-driven tests that don't want to bind a real socket.
func (s *Server) Router() *gin.Engine { return s.router }

// GetHealthz godoc
// @Summary GetHealthz reports whether the segment manager is open and how many segments exist.
// @Produce json
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (s *Server) handleHealthz(c *gin.Context) {
	base := s.txns.Base()
	count, err := base.SegmentCount()
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{
		"status":        "ok",
		"segment_count": count,
		"segment_size":  base.SegmentSize(),
	})
}

// GetIntegrity godoc
// @Summary GetIntegrity runs the heap allocator's integrity check across every segment.
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /integrity [get]
func (s *Server) handleIntegrity(c *gin.Context) {
	if s.alloc == nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "no heap allocator registered with this diagnostics server"})
		return
	}
	txn := s.txns.BeginReadonlyTransaction()
	defer txn.Release()

	ok, notes := s.alloc.CheckIntegrity(txn, true)
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	c.IndentedJSON(status, gin.H{"healthy": ok, "notes": notes})
}

// GetStats godoc
// @Summary GetStats reports per-segment free bytes plus active transaction and lock counts.
// @Produce json
// @Success 200 {object} map[string]any
// @Router /stats [get]
func (s *Server) handleStats(c *gin.Context) {
	base := s.txns.Base()
	count, err := base.SegmentCount()
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	stats := gin.H{
		"lock_count":            s.txns.LockCount(),
		"active_readonly_count": s.txns.ActiveReadonlyCount(),
	}

	if s.alloc != nil {
		txn := s.txns.BeginReadonlyTransaction()
		defer txn.Release()

		free := make(map[string]int64, count)
		for idx := uint32(0); idx < count; idx++ {
			avail, err := s.alloc.Available(txn, idx)
			if err != nil {
				free[fmt.Sprintf("segment_%d", idx)] = -1
				continue
			}
			free[fmt.Sprintf("segment_%d", idx)] = avail
		}
		stats["available_per_segment"] = free
	}

	c.IndentedJSON(http.StatusOK, stats)
}
