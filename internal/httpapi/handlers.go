package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/state"
	"github.com/noema/noema/internal/stages/b10adaptation"
)

// rateLimiter is a single-bucket limiter shared across requests, mirroring
// the teacher's coarse per-process throttling rather than a per-client
// scheme — spec.md does not call for per-client fairness.
type rateLimiter struct {
	limiter *rate.Limiter
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

// Router builds the gin engine exposing session ticks, policy changes,
// document ingest, skill batches, and the SPEC_FULL.md supplemented
// fact-store / concept-graph / policy-rollback endpoints, generalized
// from _examples/o9nn-echo.go/core/webserver/server.go's route table.
func (s *Server) Router(corsEnabled bool, ratePerSec float64) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.accessLog())

	if corsEnabled {
		cfg := cors.DefaultConfig()
		cfg.AllowAllOrigins = true
		cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
		r.Use(cors.New(cfg))
	}
	if ratePerSec > 0 {
		rl := &rateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec*2)+1)}
		r.Use(rl.middleware())
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions/:thread_id/messages", s.handlePostMessage)
		v1.POST("/sessions/:thread_id/policy", s.handlePostPolicy)
		v1.POST("/sessions/:thread_id/documents", s.handlePostDocument)
		v1.POST("/sessions/:thread_id/skills:batch", s.handlePostSkillBatch)

		v1.GET("/sessions/:thread_id/facts/:key", s.handleGetFact)
		v1.PUT("/sessions/:thread_id/facts/:key", s.handlePutFact)
		v1.GET("/sessions/:thread_id/concept-graph", s.handleGetConceptGraph)
		v1.POST("/sessions/:thread_id/policy/rollback", s.handlePostPolicyRollback)

		v1.GET("/sessions/:thread_id/ws/push", s.handleWSPush)
		v1.GET("/sessions/:thread_id/ws/chat", s.handleWSChat)
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Infow("request",
			"method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "latency_ms", time.Since(start).Milliseconds())
	}
}

// handlePostMessage runs one full tick with a new perception.events entry
// built from the posted text, per spec.md §6's session-tick contract.
func (s *Server) handlePostMessage(c *gin.Context) {
	threadID := c.Param("thread_id")
	var body struct {
		Text string `json:"text" binding:"required"`
		Lang string `json:"lang"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event := state.Tree{
		"id": idhash.SHA1OfString(threadID + body.Text + time.Now().String()),
		"type": "message_commit", "text": body.Text, "lang": body.Lang,
		"author": "user", "at_ms": time.Now().UnixMilli(),
	}
	next, r1, r2 := s.RunTick(threadID, event)
	c.JSON(http.StatusOK, gin.H{
		"state":       publicView(next),
		"ran_full":    r1.Ran,
		"ran_short":   r2.Ran,
		"errors_full": r1.Errors,
	})
}

// handlePostPolicy applies an operator-authored config delta via the
// adaptation block's apply stager directly, bypassing the SLO-triggered
// planner path — the manual-override entry point spec.md §7 describes.
func (s *Server) handlePostPolicy(c *gin.Context) {
	threadID := c.Param("thread_id")
	var body struct {
		Ops []state.Tree `json:"ops" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st := s.Sessions.Get(threadID)
	ops := make([]any, len(body.Ops))
	for i, op := range body.Ops {
		ops[i] = op
	}
	staged := state.DeepMerge(st, state.Tree{
		"policy": state.Tree{
			"apply_plan":      state.Tree{"ops": ops, "base_config": st.Get("policy").Get("config")},
			"current_version": st.Get("policy").Get("staged").Get("version"),
		},
	})
	env := b10adaptation.PolicyApplyStager(staged)
	if env.Status != kernel.StatusOK {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": string(env.Status)})
		return
	}
	next := state.DeepMerge(st, env.Updates)
	s.Sessions.Set(threadID, next)
	c.JSON(http.StatusOK, gin.H{
		"status":  string(env.Status),
		"version": next.Get("policy").Get("staged").Get("version"),
		"config":  next.Get("policy").Get("staged").Get("config"),
	})
}

// handlePostDocument feeds a document through the normal tick pipeline by
// injecting a synthetic message_commit perception event carrying the
// document text; it does not call the ingest skill directly.
func (s *Server) handlePostDocument(c *gin.Context) {
	threadID := c.Param("thread_id")
	var body struct {
		DocID string `json:"doc_id" binding:"required"`
		Text  string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event := state.Tree{
		"id": idhash.SHA1OfString("doc:" + body.DocID), "type": "message_commit",
		"text": body.Text, "doc_id": body.DocID, "author": "document",
		"at_ms": time.Now().UnixMilli(),
	}
	next, r1, _ := s.RunTick(threadID, event)
	c.JSON(http.StatusAccepted, gin.H{"state": publicView(next), "ran": r1.Ran})
}

// handlePostSkillBatch runs a batch of skill calls directly through the
// skills driver outside the composer, for callers that want raw tool
// execution without a full tick (SPEC_FULL.md §C).
func (s *Server) handlePostSkillBatch(c *gin.Context) {
	var body struct {
		Calls []state.Tree `json:"calls" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	calls := make([]any, len(body.Calls))
	for i, call := range body.Calls {
		calls[i] = call
	}
	frame := state.Tree{"type": "skills", "calls": calls, "deadline_ms": int64(8000)}
	reply := s.Loop.Drivers.ExecuteSkills(frame)
	c.JSON(http.StatusOK, reply)
}

func (s *Server) handleGetFact(c *gin.Context) {
	threadID, key := c.Param("thread_id"), c.Param("key")
	fact, ok := s.Storage.GetFact(threadID, strings.ToLower(key))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, fact)
}

func (s *Server) handlePutFact(c *gin.Context) {
	threadID, key := c.Param("thread_id"), c.Param("key")
	var body struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kNorm := strings.ToLower(key)
	if err := s.Storage.UpsertFact(threadID, key, body.Value, kNorm, time.Now().UnixMilli()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleGetConceptGraph returns the session's current concept-graph
// nodes/edges/rules slice for introspection (SPEC_FULL.md §C).
func (s *Server) handleGetConceptGraph(c *gin.Context) {
	threadID := c.Param("thread_id")
	st := s.Sessions.Get(threadID)
	c.JSON(http.StatusOK, gin.H{
		"nodes": st.Get("concept_graph").Get("nodes"),
		"edges": st.Get("concept_graph").Get("edges"),
		"rules": st.Get("concept_graph").Get("rules"),
	})
}

// handlePostPolicyRollback merges the config recorded in
// policy.staged.rollback_point into policy.config and sets
// policy.current_version to its version_id, the undo path for a bad
// PolicyApplyStager version (SPEC_FULL.md §C).
func (s *Server) handlePostPolicyRollback(c *gin.Context) {
	threadID := c.Param("thread_id")
	st := s.Sessions.Get(threadID)
	rollback := st.Get("policy").Get("staged").Get("rollback_point")
	versionID := rollback.GetString("version_id")
	if versionID == "" && len(rollback.Get("config")) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no_rollback_point"})
		return
	}
	next := state.DeepMerge(st, state.Tree{
		"policy": state.Tree{"config": rollback.Get("config"), "current_version": state.Tree{"id": versionID}},
	})
	s.Sessions.Set(threadID, next)
	c.JSON(http.StatusOK, gin.H{"restored_version": versionID, "config": next.Get("policy").Get("config")})
}

// publicView strips internal trace fields before returning state over the
// wire, matching the teacher's practice of never shipping raw internals
// to clients (core/webserver/server.go's response DTOs).
func publicView(st state.Tree) state.Tree {
	view := state.Tree{}
	for _, k := range []string{"dialog", "execution", "observability", "session"} {
		if v, ok := st[k]; ok {
			view[k] = v
		}
	}
	return view
}
