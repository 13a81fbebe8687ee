package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/export"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/intake"
	"qrattend/internal/issuer"
	"qrattend/internal/metrics"
	"qrattend/internal/record"
	"qrattend/internal/session"
	"qrattend/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// scanOutcome maps an intake rejection to its outcome name and status.
func scanOutcome(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusCreated, "Accepted"
	case errors.Is(err, intake.ErrScanInProgress):
		return http.StatusTooManyRequests, "ScanInProgress"
	case errors.Is(err, intake.ErrExpired):
		return http.StatusGone, "Expired"
	case errors.Is(err, intake.ErrAlreadyRecorded):
		return http.StatusConflict, "AlreadyRecorded"
	case errors.Is(err, intake.ErrMissingFields):
		return http.StatusBadRequest, "MissingFields"
	case errors.Is(err, intake.ErrInvalidField):
		return http.StatusBadRequest, "InvalidField"
	case errors.Is(err, intake.ErrMalformedPayload):
		return http.StatusBadRequest, "MalformedPayload"
	default:
		return http.StatusInternalServerError, "StorageFailure"
	}
}

// scanResults retains the latest feed outcome per student so a polling
// client can read what happened to its frames.
type scanResults struct {
	mu   sync.Mutex
	last map[string]gin.H
}

func (s *scanResults) set(student string, v gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[student] = v
}

func (s *scanResults) get(student string) (gin.H, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[student]
	return v, ok
}

// qrStatus is the status line shown next to the displayed code; issue
// sets it and expiry replaces it.
type qrStatus struct {
	mu  sync.Mutex
	msg string
}

func (q *qrStatus) set(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msg = msg
}

func (q *qrStatus) get() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msg
}

func runHTTP(cfg config.App) error {
	kv, err := store.Open(cfg.StorageBackend, cfg.DataPath, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer kv.Close()
	log.Printf("storage backend %q ready", cfg.StorageBackend)

	records := record.NewStore(kv)

	status := &qrStatus{}
	iss := issuer.New(kv, cfg.QRTTL, func() {
		status.set(`QR Code expired. Generate a new one.`)
		log.Println("active qr code expired")
	})

	in := intake.New(records, cfg.QRTTL, cfg.DupWindow, cfg.ScanCooldown)
	feed := intake.NewFeed()
	results := &scanResults{last: make(map[string]gin.H)}
	exporter := export.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Feed consumer: one goroutine drains decoded frames through intake.
	go in.Consume(ctx, feed, func(fr intake.Frame, rec *record.AttendanceRecord, err error) {
		code, outcome := scanOutcome(err)
		metrics.ScansTotal.WithLabelValues(outcome).Inc()
		res := gin.H{"outcome": outcome, "status": code, "at": time.Now().UnixMilli()}
		if rec != nil {
			res["record"] = rec
		}
		results.set(fr.Student, res)
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		healthy := kv.Healthy(c.Request.Context())
		statusCode := http.StatusOK
		if !healthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, gin.H{"status": "ok", "storage": healthy})
	})

	r.POST("/v1/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Role     string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role, err := session.ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be teacher or student"})
			return
		}
		if err := session.Save(c.Request.Context(), kv, session.Identity{Username: req.Username, Role: role}); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.Username, string(role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"username":      req.Username,
			"role":          role,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/logout", func(c *gin.Context) {
		if err := session.Clear(c.Request.Context(), kv); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "logged out"})
	})

	authGroup.GET("/session", func(c *gin.Context) {
		id, err := session.Load(c.Request.Context(), kv)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, id)
	})

	// ---- teacher: QR issuance ----

	teacher := authGroup.Group("", auth.RequireRole(string(session.RoleTeacher)))

	teacher.POST("/qr", func(c *gin.Context) {
		claims := auth.FromContext(c)
		p, err := iss.Issue(c.Request.Context(), claims.Username)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		metrics.IssuedTotal.Inc()
		status.set("Active QR Code for " + claims.Username)
		_, remaining, _ := iss.Active()
		c.JSON(http.StatusCreated, gin.H{"payload": p, "expires_in": remaining, "status": status.get()})
	})

	teacher.GET("/qr", func(c *gin.Context) {
		p, remaining, ok := iss.Active()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active qr code", "status": status.get()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payload": p, "expires_in": remaining, "status": status.get()})
	})

	teacher.GET("/qr/image", func(c *gin.Context) {
		p, _, ok := iss.Active()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active qr code"})
			return
		}
		png, err := iss.RenderPNG(p, cfg.QRSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	teacher.DELETE("/qr", func(c *gin.Context) {
		iss.Cancel()
		status.set("")
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	})

	teacher.GET("/qr/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"history": iss.History(c.Request.Context())})
	})

	teacher.DELETE("/qr/history", func(c *gin.Context) {
		if err := iss.ClearHistory(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	})

	teacher.POST("/sessions", func(c *gin.Context) {
		sc, err := iss.NewSessionCode(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, sc)
	})

	teacher.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": iss.Sessions(c.Request.Context())})
	})

	// ---- student: scanning ----

	student := authGroup.Group("", auth.RequireRole(string(session.RoleStudent)))

	student.POST("/scans", func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		rec, err := in.Scan(c.Request.Context(), req.Payload, claims.Username)
		code, outcome := scanOutcome(err)
		metrics.ScansTotal.WithLabelValues(outcome).Inc()
		resp := gin.H{"outcome": outcome}
		if rec != nil {
			resp["record"] = rec
		}
		if err != nil {
			resp["error"] = err.Error()
		}
		c.JSON(code, resp)
	})

	student.POST("/scans/frames", func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		accepted := feed.Offer(intake.Frame{Student: claims.Username, Payload: req.Payload})
		if !accepted {
			metrics.FramesDroppedTotal.Inc()
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": accepted})
	})

	student.GET("/scans/result", func(c *gin.Context) {
		claims := auth.FromContext(c)
		res, ok := results.get(claims.Username)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no scan result yet"})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	// ---- both roles: records ----

	authGroup.GET("/records", func(c *gin.Context) {
		claims := auth.FromContext(c)
		q := record.Query{
			Subject: c.Query("subject"),
			Date:    c.Query("date"),
			Month:   c.Query("month"),
		}
		recs := record.Filter(records.Load(c.Request.Context()), q)
		recs = scopeToRole(recs, claims)
		c.JSON(http.StatusOK, gin.H{"records": record.SortedView(recs)})
	})

	authGroup.GET("/records/subjects", func(c *gin.Context) {
		claims := auth.FromContext(c)
		recs := scopeToRole(records.Load(c.Request.Context()), claims)
		c.JSON(http.StatusOK, gin.H{"subjects": record.Subjects(recs)})
	})

	authGroup.DELETE("/records/:id", func(c *gin.Context) {
		claims := auth.FromContext(c)
		id := c.Param("id")
		removed, err := records.DeleteMatching(c.Request.Context(), func(r record.AttendanceRecord) bool {
			if claims.Role == string(session.RoleStudent) && r.StudentName != claims.Username {
				return false
			}
			return r.ID == id
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if removed == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})

	authGroup.DELETE("/records", func(c *gin.Context) {
		claims := auth.FromContext(c)

		// Student clear-all: every record belonging to the caller.
		if c.Query("mine") == "1" {
			removed, err := records.DeleteMatching(c.Request.Context(), func(r record.AttendanceRecord) bool {
				return r.StudentName == claims.Username
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"removed": removed})
			return
		}

		// Tuple delete: removes every record matching the tuple, which
		// may be more than one.
		var tuple record.AttendanceRecord
		if err := c.ShouldBindJSON(&tuple); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		removed, err := records.DeleteMatching(c.Request.Context(), func(r record.AttendanceRecord) bool {
			if claims.Role == string(session.RoleStudent) && r.StudentName != claims.Username {
				return false
			}
			return r.MatchesTuple(tuple)
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})

	authGroup.GET("/records/export", func(c *gin.Context) {
		claims := auth.FromContext(c)
		format, err := export.ParseFormat(c.Query("format"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q := record.Query{
			Subject: c.Query("subject"),
			Date:    c.Query("date"),
			Month:   c.Query("month"),
		}
		recs := record.Filter(records.Load(c.Request.Context()), q)
		recs = scopeToRole(recs, claims)

		res, err := exporter.Export(record.SortedView(recs), format, !q.Empty())
		if err != nil {
			if errors.Is(err, export.ErrNoRecords) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		metrics.ExportsTotal.WithLabelValues(string(res.Format), boolLabel(res.FellBack)).Inc()
		if res.FellBack {
			// Surfaced so clients can show the fallback notice.
			c.Header("X-Export-Fallback", "csv")
			log.Printf("%s export unavailable, fell back to csv", format)
		}
		c.Header("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
		c.Data(http.StatusOK, res.MIME, res.Data)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()
	iss.Cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// scopeToRole narrows a record set to what the caller may see: students
// see only their own records.
func scopeToRole(recs []record.AttendanceRecord, claims auth.Claims) []record.AttendanceRecord {
	if claims.Role != string(session.RoleStudent) {
		return recs
	}
	var out []record.AttendanceRecord
	for _, r := range recs {
		if r.StudentName == claims.Username {
			out = append(out, r)
		}
	}
	return out
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
