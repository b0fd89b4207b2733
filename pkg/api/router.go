// Package api is the illustrative HTTP binding spec.md §6 calls for: one
// thin Gin surface proving the core is reachable, not a full REST
// implementation (the HTTP/REST adapter itself remains a Non-goal of the
// core, spec.md §1). Grounded on cmd/tarsy/main.go's router setup
// (router.GET("/health", ...), gin.Default(), JSON error shape).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AXLMRIN/activetigger-go/pkg/auth"
	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/orchestrator"
	"github.com/AXLMRIN/activetigger-go/pkg/project"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// Server bundles the dependencies every handler needs.
type Server struct {
	db    *store.Store
	orch  *orchestrator.Orchestrator
	router *gin.Engine
}

// New builds the router and registers every route.
func New(db *store.Store, orch *orchestrator.Orchestrator) *Server {
	s := &Server{db: db, orch: orch, router: gin.Default()}
	s.routes()
	return s
}

// Router exposes the underlying *gin.Engine for tests and for Run.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the HTTP server, mirroring cmd/tarsy/main.go's
// router.Run(":"+httpPort).
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	projects := s.router.Group("/projects")
	projects.GET("", s.handleListProjects)
	projects.POST("/new", s.authMiddleware(models.ActionAdd), s.handleCreateProject)
	projects.DELETE("/:slug", s.authMiddleware(models.ActionDelete), s.handleDeleteProject)
	projects.GET("/:slug/statistics", s.authMiddleware(models.ActionGet), s.handleStatistics)

	elements := s.router.Group("/projects/:slug/elements")
	elements.POST("/next", s.authMiddleware(models.ActionGet), s.handleNextElement)

	tags := s.router.Group("/projects/:slug/tags")
	tags.POST("/add", s.authMiddleware(models.ActionUpdate), s.handleAddTag)
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := store.Health(reqCtx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": health, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": health})
}

// authHeaderUser reads the caller identity and role off request headers —
// a narrow stand-in for the real session/JWT middleware spec.md §1 puts out
// of scope. X-AT-User / X-AT-Role let tests and curl exercise auth(user,
// project) without standing up a token issuer.
func authHeaderUser(c *gin.Context) (user string, status models.AuthStatus) {
	return c.GetHeader("X-AT-User"), models.AuthStatus(c.GetHeader("X-AT-Role"))
}

func (s *Server) authMiddleware(action models.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, status := authHeaderUser(c)
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-AT-User"})
			return
		}
		if err := auth.Authorize(status, action); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.AlreadyExists:
		status = http.StatusConflict
	case errs.Invalid:
		status = http.StatusBadRequest
	case errs.Conflict:
		status = http.StatusConflict
	case errs.Unavailable:
		status = http.StatusServiceUnavailable
	case errs.Forbidden:
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleListProjects(c *gin.Context) {
	list, err := s.db.Projects.List(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type createProjectRequest struct {
	Name        string                 `json:"name" binding:"required"`
	ColText     string                 `json:"col_text" binding:"required"`
	ColsContext []string               `json:"cols_context"`
	ColLabel    string                 `json:"col_label"`
	NTest       int                    `json:"n_test"`
	Rows        []orchestrator.CorpusRow `json:"rows" binding:"required"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := c.GetString("user")
	p, err := s.orch.CreateProject(c.Request.Context(), orchestrator.CreateSpec{
		Name: req.Name, ColText: req.ColText, ColsContext: req.ColsContext,
		ColLabel: req.ColLabel, NTest: req.NTest, Rows: req.Rows,
	}, user)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, p.Meta())
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	user := c.GetString("user")
	if err := s.orch.DeleteProject(c.Request.Context(), c.Param("slug"), user); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStatistics(c *gin.Context) {
	p, err := s.orch.GetProject(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeErr(c, err)
		return
	}
	stats, err := p.Statistics(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type nextElementRequest struct {
	Scheme    string               `json:"scheme" binding:"required"`
	Selection models.SelectionMode `json:"selection" binding:"required"`
	Sample    models.SampleFilter  `json:"sample"`
	Tag       *string              `json:"tag"`
	Filter    string               `json:"filter"`
	ModelName string               `json:"model_name"`
}

func (s *Server) handleNextElement(c *gin.Context) {
	p, err := s.orch.GetProject(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req nextElementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sample := req.Sample
	if sample == "" {
		sample = models.SampleUntagged
	}
	result, err := p.NextElement(c.Request.Context(), project.NextElementRequest{
		Scheme: req.Scheme, Selection: req.Selection, Sample: sample,
		User: c.GetString("user"), Tag: req.Tag, Filter: req.Filter, ModelName: req.ModelName,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type addTagRequest struct {
	ElementID string  `json:"element_id" binding:"required"`
	Scheme    string  `json:"scheme" binding:"required"`
	Label     *string `json:"label"`
	Dataset   models.Partition `json:"dataset" binding:"required"`
	Comment   string  `json:"comment"`
}

func (s *Server) handleAddTag(c *gin.Context) {
	p, err := s.orch.GetProject(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req addTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ann, err := p.Schemes.PushAnnotation(c.Request.Context(), req.ElementID, req.Scheme, req.Label, c.GetString("user"), req.Dataset, req.Comment)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ann)
}
