package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"bitbucket.org/mmdatafocus/warehouse_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(correlationIdMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/lots/:id/status", submitLotStatus(logger))
		api.POST("/lots/:id/receive", receiveLot(logger))
		api.GET("/lots/:id/lines/:lineId/landed-cost", landedCost)
		api.GET("/lots/:id/excluded-expenses", excludedExpenses)
		api.POST("/orders/:id/status", submitOrderStatus(logger))
		api.GET("/stock/on-hand", onHand)
		api.GET("/stock/valuation", valuation)
		api.GET("/warehouses/:id/stock", warehouseStock)
		api.GET("/warehouses/:id/summary", warehouseSummary)
		api.GET("/balance", balance)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	// Connect to backing services after the server is listening.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

func correlationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-Id", correlationId)
		c.Next()
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsTransitionError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsValidationError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Query(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

type statusChangeRequest struct {
	Status string `json:"status" binding:"required"`
}

func submitLotStatus(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req statusChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lot, err := workflow.SubmitLotStatusChange(c.Request.Context(), logger, lotId, models.LotStatus(req.Status))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, lot)
	}
}

type receiveLotRequest struct {
	WarehouseId int `json:"warehouse_id" binding:"required"`
}

func receiveLot(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req receiveLotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		movements, err := workflow.ReceiveLotIntoWarehouse(c.Request.Context(), logger, lotId, req.WarehouseId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"movements": movements})
	}
}

func landedCost(c *gin.Context) {
	lotId, ok := pathId(c, "id")
	if !ok {
		return
	}
	lineId, ok := pathId(c, "lineId")
	if !ok {
		return
	}
	snapshot, err := models.GetLotSnapshot(c.Request.Context(), lotId)
	if err != nil {
		writeError(c, err)
		return
	}
	cost, err := snapshot.LandedUnitCost(lineId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lot_id": lotId, "line_id": lineId, "landed_unit_cost": cost})
}

func excludedExpenses(c *gin.Context) {
	lotId, ok := pathId(c, "id")
	if !ok {
		return
	}
	expenses, err := workflow.ExcludedExpensesForLot(c.Request.Context(), lotId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"excluded_expenses": expenses})
}

func submitOrderStatus(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req statusChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := workflow.SubmitOrderStatusChange(c.Request.Context(), logger, orderId, models.OrderStatus(req.Status))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func onHand(c *gin.Context) {
	productId, ok := queryId(c, "product_id")
	if !ok {
		return
	}
	warehouseId, ok := queryId(c, "warehouse_id")
	if !ok {
		return
	}
	qty, err := models.OnHandQuantity(c.Request.Context(), productId, warehouseId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"on_hand": qty})
}

func valuation(c *gin.Context) {
	productId, ok := queryId(c, "product_id")
	if !ok {
		return
	}
	warehouseId, ok := queryId(c, "warehouse_id")
	if !ok {
		return
	}
	value, err := models.CurrentValuation(c.Request.Context(), productId, warehouseId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valuation": value})
}

func warehouseStock(c *gin.Context) {
	warehouseId, ok := pathId(c, "id")
	if !ok {
		return
	}
	if _, err := models.GetWarehouse(c.Request.Context(), warehouseId); err != nil {
		writeError(c, err)
		return
	}
	rows, err := models.GetWarehouseStock(c.Request.Context(), warehouseId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": rows})
}

func warehouseSummary(c *gin.Context) {
	warehouseId, ok := pathId(c, "id")
	if !ok {
		return
	}
	if _, err := models.GetWarehouse(c.Request.Context(), warehouseId); err != nil {
		writeError(c, err)
		return
	}
	summary, err := models.GetWarehouseSummary(c.Request.Context(), warehouseId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func balance(c *gin.Context) {
	const layout = "2006-01-02"
	dateFrom, err := time.Parse(layout, c.Query("date_from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
		return
	}
	dateTo, err := time.Parse(layout, c.Query("date_to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
		return
	}
	// inclusive end of day
	dateTo = dateTo.Add(24*time.Hour - time.Nanosecond)

	result, err := models.GetBalance(c.Request.Context(), dateFrom, dateTo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
