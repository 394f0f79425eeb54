package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pledge-service/internal/service"
	"pledge-service/internal/store"
	"pledge-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	goals      *service.GoalService
	ledger     *service.ContributionLedger
	reconciler *service.GoalReconciler
	store      *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(goals *service.GoalService, ledger *service.ContributionLedger, reconciler *service.GoalReconciler, st *store.Store) *Handler {
	return &Handler{
		goals:      goals,
		ledger:     ledger,
		reconciler: reconciler,
		store:      st,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/goals", h.createGoal)
		v1.GET("/goals/:id", h.getGoal)
		v1.DELETE("/goals/:id", h.deleteGoal)
		v1.PATCH("/goals/:id/contributions", h.setContributionsEnabled)
		v1.GET("/goals/:id/progress", h.getProgress)
		v1.POST("/goals/:id/pledges", h.submitPledge)
		v1.GET("/goals/:id/pledges", h.listPledges)
		v1.POST("/goals/:id/evaluate", h.evaluateGoal)
		v1.POST("/pledges/:id/settle", h.settlePledge)
		v1.POST("/pledges/:id/cancel", h.cancelPledge)
		v1.POST("/pledges/:id/refund", h.refundPledge)
		v1.GET("/products/:id", h.getProduct)
		v1.POST("/products/:id/replenish", h.replenishInventory)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createGoal(c *gin.Context) {
	var req service.CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	goal, err := h.goals.CreateGoal(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, goal)
}

func (h *Handler) getGoal(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	goal, err := h.goals.GetGoal(c.Request.Context(), goalID)
	if err != nil {
		respondError(c, err)
		return
	}

	progress, err := h.reconciler.Progress(c.Request.Context(), goalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"goal":     goal,
		"progress": progress,
	})
}

func (h *Handler) deleteGoal(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.goals.DeleteGoal(c.Request.Context(), goalID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) setContributionsEnabled(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.goals.SetContributionsEnabled(c.Request.Context(), goalID, *req.Enabled); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) getProgress(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	progress, err := h.reconciler.Progress(c.Request.Context(), goalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

func (h *Handler) submitPledge(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.SubmitPledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.GoalID = goalID

	pledge, err := h.ledger.SubmitPledge(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pledge)
}

func (h *Handler) listPledges(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	pledges, err := h.ledger.ListPledges(c.Request.Context(), goalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pledges": pledges})
}

func (h *Handler) evaluateGoal(c *gin.Context) {
	goalID, ok := pathID(c)
	if !ok {
		return
	}

	result, outcome, err := h.reconciler.EvaluateAndMaterialize(c.Request.Context(), goalID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"outcome": outcome}
	if result != nil {
		resp["conversion"] = result
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) settlePledge(c *gin.Context) {
	pledgeID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		SettlementRef string `json:"settlement_ref" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	pledge, err := h.ledger.SettlePledge(c.Request.Context(), pledgeID, req.SettlementRef)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pledge)
}

func (h *Handler) cancelPledge(c *gin.Context) {
	pledgeID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	pledge, err := h.ledger.CancelPledge(c.Request.Context(), pledgeID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pledge)
}

func (h *Handler) refundPledge(c *gin.Context) {
	pledgeID, ok := pathID(c)
	if !ok {
		return
	}

	pledge, err := h.ledger.RefundPledge(c.Request.Context(), pledgeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pledge)
}

func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	inventory, err := h.store.GetInventory(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":   product,
		"inventory": inventory,
	})
}

// replenishInventory adds stock for a product. An out-of-stock conversion is
// retried on the next settlement once stock comes back.
func (h *Handler) replenishInventory(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.store.ReplenishInventory(c.Request.Context(), productID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// respondError maps engine sentinels to HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidPledge), errors.Is(err, service.ErrInvalidGoal):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInsufficientInventory):
		status = http.StatusConflict
	case errors.Is(err, service.ErrConcurrencyConflict):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
