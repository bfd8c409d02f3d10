package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/scholarship-finder/internal/ai"
	"github.com/david/scholarship-finder/internal/auth"
	"github.com/david/scholarship-finder/internal/db"
	"github.com/david/scholarship-finder/internal/ingest"
	"github.com/david/scholarship-finder/internal/match"
	"github.com/david/scholarship-finder/internal/models"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	Config      *ingest.Config
	Classifier  ingest.FieldClassifier
	Tracker     *ingest.Tracker
	Matcher     *match.Engine
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pool *pgxpool.Pool, cfg *ingest.Config) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:5173"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	ollama := ai.NewOllamaClient(cfg.AI.Host, cfg.AI.Model)

	s := &Server{
		DB:          pool,
		Store:       db.NewStore(pool),
		AuthService: auth.NewService(pool),
		Echo:        e,
		Config:      cfg,
		Classifier:  ai.NewFieldClassifier(ollama),
		Tracker:     ingest.NewTracker(),
		Matcher:     match.NewEngine(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/scholarships", s.handleListScholarships)
	api.GET("/scholarships/:id", s.handleGetScholarship)
	api.GET("/stats", s.handleGetStats)
	api.POST("/matches", s.handlePublicMatches)
	api.GET("/crawl/progress", s.handleCrawlProgress)

	// Auth
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Student routes (JWT)
	student := api.Group("")
	student.Use(auth.Middleware)
	student.GET("/matches", s.handleUserMatches)
	student.PATCH("/profile", s.handleUpdateProfile)
	student.POST("/saved/:id", s.handleSaveScholarship)
	student.DELETE("/saved/:id", s.handleUnsaveScholarship)
	student.GET("/saved", s.handleGetSavedScholarships)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/crawl", s.handleTriggerCrawl)
	admin.POST("/crawl/cancel", s.handleCancelCrawl)
	admin.GET("/crawl/stats", s.handleCrawlStats)
	admin.POST("/recalculate-status", s.handleRecalculateStatus)
	admin.PUT("/scholarships/:id", s.handleUpdateScholarship)
	admin.DELETE("/scholarships/:id", s.handleDeleteScholarship)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleListScholarships(c echo.Context) error {
	limit := 20
	offset := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	result, err := s.Store.ListScholarships(c.Request().Context(), db.ListParams{
		Query:      c.QueryParam("q"),
		Status:     c.QueryParam("status"),
		StudyLevel: c.QueryParam("study_level"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		c.Logger().Errorf("Failed to list scholarships: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetScholarship(c echo.Context) error {
	sch, err := s.Store.GetScholarship(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, sch)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// Matching

type matchRequest struct {
	CGPA    float64 `json:"cgpa"`
	Program string  `json:"program"`
}

type matchResponse struct {
	Matches    []models.MatchResult `json:"matches"`
	NonMatches []models.MatchResult `json:"nonMatches"`
}

func (s *Server) handlePublicMatches(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	return s.respondMatches(c, models.StudentProfile{Grade: req.CGPA, Program: req.Program})
}

func (s *Server) handleUserMatches(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	user, err := s.AuthService.GetUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
	}
	return s.respondMatches(c, models.StudentProfile{Grade: user.CGPA, Program: user.Program})
}

func (s *Server) respondMatches(c echo.Context, profile models.StudentProfile) error {
	active, err := s.Store.FindActive(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("Failed to load active scholarships: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	matches, nonMatches := s.Matcher.Evaluate(profile, active)
	if matches == nil {
		matches = []models.MatchResult{}
	}
	if nonMatches == nil {
		nonMatches = []models.MatchResult{}
	}
	return c.JSON(http.StatusOK, matchResponse{Matches: matches, NonMatches: nonMatches})
}

// Crawl control

func (s *Server) handleTriggerCrawl(c echo.Context) error {
	clearFirst := strings.EqualFold(c.QueryParam("clear"), "true")

	if !s.Tracker.Begin() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "A crawl is already running"})
	}

	// Detach from the HTTP request lifecycle; the crawl outlives it.
	crawlCtx, cancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 2*time.Hour,
	)

	pipeline := ingest.NewPipeline(
		s.Config.Crawler,
		ingest.CollyFetcherWithConfig(s.Config.Fetch),
		s.Store,
		s.Classifier,
	)
	if s.Config.AI.MinTextLength > 0 {
		pipeline.MinTextForAI = s.Config.AI.MinTextLength
	}

	go func() {
		defer cancel()
		if err := pipeline.Run(crawlCtx, s.Tracker, clearFirst); err != nil {
			log.Printf("crawl failed: %v", err)
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Crawl started",
		"clear":   clearFirst,
	})
}

func (s *Server) handleCancelCrawl(c echo.Context) error {
	if !s.Tracker.RequestCancel() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No crawl is running"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Cancellation requested"})
}

// handleCrawlProgress streams tracker snapshots as Server-Sent Events until
// the crawl reaches a terminal state or the client disconnects.
func (s *Server) handleCrawlProgress(c echo.Context) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSnapshot := func(p ingest.Progress) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	if err := writeSnapshot(s.Tracker.Snapshot()); err != nil {
		return nil
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := s.Tracker.Snapshot()
			if err := writeSnapshot(snap); err != nil {
				return nil
			}
			if !snap.IsRunning && snap.Current > 0 {
				return nil
			}
		}
	}
}

func (s *Server) handleCrawlStats(c echo.Context) error {
	ctx := c.Request().Context()
	stats, err := s.Store.GetStats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp := map[string]interface{}{"scholarships": stats}
	if session, err := s.Store.LatestCrawlSession(ctx); err == nil && session != nil {
		resp["lastSession"] = session
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecalculateStatus(c echo.Context) error {
	now := time.Now()
	updated, err := s.Store.RecalculateStatuses(c.Request().Context(),
		func(deadline *time.Time, studyLevels []string, studyLevel string) string {
			return ingest.ComputeStatus(deadline, studyLevels, studyLevel, now)
		})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Status recalculation complete",
		"updated": updated,
	})
}

// Admin record maintenance

func (s *Server) handleUpdateScholarship(c echo.Context) error {
	var sch models.Scholarship
	if err := c.Bind(&sch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	// Status is derived, never taken from the request body.
	sch.Status = ingest.ComputeStatus(sch.Deadline, sch.StudyLevels, sch.StudyLevel, time.Now())

	updated, err := s.Store.UpdateScholarship(c.Request().Context(), c.Param("id"), &sch)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteScholarship(c echo.Context) error {
	if err := s.Store.DeleteScholarship(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// Auth handlers

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req auth.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	user, err := s.AuthService.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update profile"})
	}
	return c.JSON(http.StatusOK, user)
}

// Saved scholarships

func (s *Server) handleSaveScholarship(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	schID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid scholarship ID"})
	}

	if err := s.AuthService.SaveScholarship(c.Request().Context(), userID, schID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save scholarship"})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleUnsaveScholarship(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	schID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid scholarship ID"})
	}

	if err := s.AuthService.UnsaveScholarship(c.Request().Context(), userID, schID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to unsave scholarship"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "unsaved"})
}

func (s *Server) handleGetSavedScholarships(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	saved, err := s.AuthService.GetSavedScholarships(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch saved scholarships"})
	}
	if saved == nil {
		saved = []models.Scholarship{}
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}
