// Package api exposes the operator-facing read API: ledger totals and the
// leaderboard as JSON. It is not the user surface; that is the Telegram bot.
package api

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mhdcoin-bot/internal/engine"
	"mhdcoin-bot/internal/models"
)

type Server struct {
	Engine *engine.Engine
	Log    *zap.SugaredLogger
}

func NewServer(eng *engine.Engine, log *zap.SugaredLogger) *Server {
	return &Server{Engine: eng, Log: log}
}

// Router builds the gin handler. allowedCIDRs, when non-empty, restricts
// /api to callers inside those networks.
func (s *Server) Router(allowedCIDRs []string) *gin.Engine {
	r := gin.Default()
	r.Use(requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	if len(allowedCIDRs) > 0 {
		api.Use(ipAllowlist(allowedCIDRs))
	}
	api.GET("/stats", s.handleStats)
	api.GET("/leaderboard", s.handleLeaderboard)

	return r
}

func (s *Server) handleStats(c *gin.Context) {
	totals, err := s.Engine.Stats(c.Request.Context())
	if err != nil {
		s.Log.Errorw("stats query failed", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure, try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":       totals.Users,
		"total_taps":  totals.TotalTaps,
		"total_mined": models.FormatAmount(totals.TotalMined),
	})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.Engine.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		s.Log.Errorw("leaderboard query failed", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure, try again"})
		return
	}

	type row struct {
		Rank  int    `json:"rank"`
		Name  string `json:"name"`
		Mined string `json:"mined"`
	}
	rows := make([]row, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, row{Rank: i + 1, Name: e.Name, Mined: models.FormatAmount(e.TotalMined)})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ipAllowlist rejects callers whose address is outside the allowed CIDR
// networks. Invalid CIDR entries are skipped.
func ipAllowlist(cidrs []string) gin.HandlerFunc {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		if _, block, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, block)
		}
	}
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		for _, block := range nets {
			if block.Contains(ip) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
