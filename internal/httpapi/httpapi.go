// Package httpapi exposes the six attribution operations as a gin router.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/w3c/attribution/docs"
	"github.com/w3c/attribution/internal/domain"
	"github.com/w3c/attribution/internal/dto"
	"github.com/w3c/attribution/internal/engine"
)

// Engine is the subset of *engine.Engine that the HTTP layer drives.
type Engine interface {
	SaveImpression(in engine.SaveImpressionInput) (engine.SaveImpressionAck, error)
	MeasureConversion(in engine.MeasureConversionInput) (engine.MeasureConversionResult, error)
	ClearImpressionsForSite(rawSite string) error
	ClearExpiredImpressions()
	ClearState(in engine.ClearStateInput) error
	SetEnabled(enabled bool)
	Enabled() bool
}

type Handler struct {
	engine Engine
	router *gin.Engine
	log    *zap.Logger
}

func NewHandler(engine Engine, log *zap.Logger) *Handler {
	h := &Handler{
		engine: engine,
		router: gin.Default(),
		log:    log,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/impression", h.saveImpression)
	h.router.POST("/conversion", h.measureConversion)
	h.router.POST("/clear/impressions", h.clearImpressionsForSite)
	h.router.POST("/clear/expired", h.clearExpiredImpressions)
	h.router.POST("/clear/state", h.clearState)
	h.router.POST("/control/enabled", h.setEnabled)
	h.router.GET("/control/enabled", h.getEnabled)
	h.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// healthCheck reports liveness.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeDomainError(c *gin.Context, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		status := http.StatusInternalServerError
		switch derr.Kind {
		case domain.InvalidSyntax, domain.OutOfRange, domain.UnknownReference:
			status = http.StatusBadRequest
		case domain.InvalidState, domain.Disabled:
			status = http.StatusConflict
		}
		c.JSON(status, dto.ErrorResponse{
			Kind:    derr.Kind.String(),
			Field:   derr.Field,
			Message: derr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Kind: "internal", Message: err.Error()})
}

// saveImpression handles POST /impression.
// @Summary Save an impression
// @Description Records an impression, subject to the engine's construction-time size limits.
// @Tags impressions
// @Accept json
// @Produce json
// @Param impression body dto.SaveImpressionRequest true "Impression data"
// @Success 200 {object} dto.SaveImpressionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /impression [post]
func (h *Handler) saveImpression(c *gin.Context) {
	var req dto.SaveImpressionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid saveImpression request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "invalid_syntax", Message: err.Error()})
		return
	}

	_, err := h.engine.SaveImpression(engine.SaveImpressionInput{
		ImpressionSite:    req.ImpressionSite,
		IntermediarySite:  req.IntermediarySite,
		HistogramIndex:    req.HistogramIndex,
		MatchValue:        req.MatchValue,
		ConversionSites:   req.ConversionSites,
		ConversionCallers: req.ConversionCallers,
		LifetimeDays:      req.LifetimeDays,
		Priority:          req.Priority,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SaveImpressionResponse{})
}

// measureConversion handles POST /conversion.
// @Summary Measure a conversion
// @Description Matches stored impressions, allocates credit, and returns an encrypted histogram report.
// @Tags conversions
// @Accept json
// @Produce json
// @Param conversion body dto.MeasureConversionRequest true "Conversion data"
// @Success 200 {object} dto.MeasureConversionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /conversion [post]
func (h *Handler) measureConversion(c *gin.Context) {
	var req dto.MeasureConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid measureConversion request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "invalid_syntax", Message: err.Error()})
		return
	}

	result, err := h.engine.MeasureConversion(engine.MeasureConversionInput{
		TopLevelSite:       req.TopLevelSite,
		IntermediarySite:   req.IntermediarySite,
		AggregationService: req.AggregationService,
		HistogramSize:      req.HistogramSize,
		Epsilon:            req.Epsilon,
		LookbackDays:       req.LookbackDays,
		Credit:             req.Credit,
		Value:              req.Value,
		MaxValue:           req.MaxValue,
		MatchValues:        req.MatchValues,
		ImpressionSites:    req.ImpressionSites,
		ImpressionCallers:  req.ImpressionCallers,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MeasureConversionResponse{
		Report:               result.Report,
		UnencryptedHistogram: result.UnencryptedHistogram,
	})
}

// clearImpressionsForSite handles POST /clear/impressions.
// @Summary Clear impressions for a site
// @Tags lifecycle
// @Accept json
// @Produce json
// @Param body body dto.ClearImpressionsForSiteRequest true "Site to clear"
// @Success 200
// @Failure 400 {object} dto.ErrorResponse
// @Router /clear/impressions [post]
func (h *Handler) clearImpressionsForSite(c *gin.Context) {
	var req dto.ClearImpressionsForSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "invalid_syntax", Message: err.Error()})
		return
	}
	if err := h.engine.ClearImpressionsForSite(req.Site); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// clearExpiredImpressions handles POST /clear/expired.
// @Summary Clear expired impressions
// @Tags lifecycle
// @Produce json
// @Success 200
// @Router /clear/expired [post]
func (h *Handler) clearExpiredImpressions(c *gin.Context) {
	h.engine.ClearExpiredImpressions()
	c.Status(http.StatusOK)
}

// clearState handles POST /clear/state.
// @Summary Clear browsing state
// @Tags lifecycle
// @Accept json
// @Produce json
// @Param body body dto.ClearStateRequest true "Sites to clear, or forget_visits for a full wipe"
// @Success 200
// @Failure 400 {object} dto.ErrorResponse
// @Router /clear/state [post]
func (h *Handler) clearState(c *gin.Context) {
	var req dto.ClearStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "invalid_syntax", Message: err.Error()})
		return
	}
	if err := h.engine.ClearState(engine.ClearStateInput{Sites: req.Sites, ForgetVisits: req.ForgetVisits}); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// setEnabled handles POST /control/enabled.
// @Summary Enable or disable the engine
// @Tags control
// @Accept json
// @Produce json
// @Param body body dto.SetEnabledRequest true "Desired state"
// @Success 200
// @Router /control/enabled [post]
func (h *Handler) setEnabled(c *gin.Context) {
	var req dto.SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Kind: "invalid_syntax", Message: err.Error()})
		return
	}
	h.engine.SetEnabled(req.Enabled)
	h.log.Info("engine enabled state changed", zap.Bool("enabled", req.Enabled))
	c.Status(http.StatusOK)
}

// getEnabled handles GET /control/enabled.
// @Summary Read the engine's enabled state
// @Tags control
// @Produce json
// @Success 200 {object} dto.EnabledResponse
// @Router /control/enabled [get]
func (h *Handler) getEnabled(c *gin.Context) {
	c.JSON(http.StatusOK, dto.EnabledResponse{Enabled: h.engine.Enabled()})
}
