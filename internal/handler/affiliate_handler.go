package handler

import (
	"net/http"
	"strconv"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/SergeiKhy/linktrack/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AffiliateHandler struct {
	service service.AffiliateService
	logger  *zap.Logger
}

func NewAffiliateHandler(service service.AffiliateService, logger *zap.Logger) *AffiliateHandler {
	return &AffiliateHandler{
		service: service,
		logger:  logger,
	}
}

// Create godoc
// @Summary Create an affiliate link
// @Description Create a tracked affiliate link. The slug is generated from the product name unless customSlug is given.
// @Tags affiliate
// @Accept json
// @Produce json
// @Param request body models.CreateAffiliateInput true "Affiliate link creation request"
// @Success 201 {object} models.AffiliateLink
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/affiliate [post]
func (h *AffiliateHandler) Create(c *gin.Context) {
	limitBody(c)
	var input models.CreateAffiliateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		respondBindError(c, err)
		return
	}

	link, err := h.service.Create(c.Request.Context(), &input)
	if err != nil {
		respondError(c, h.logger, "Failed to create affiliate link", err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

// List godoc
// @Summary List affiliate links
// @Description List affiliate links with counters and renewal status
// @Tags affiliate
// @Produce json
// @Param createdBy query string false "Author filter"
// @Param category query string false "Category filter"
// @Param isActive query bool false "Active flag filter"
// @Success 200 {array} models.AffiliateSummary
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/affiliate [get]
func (h *AffiliateHandler) List(c *gin.Context) {
	var filter models.AffiliateFilter
	if v, ok := c.GetQuery("createdBy"); ok && v != "" {
		filter.CreatedBy = &v
	}
	if v, ok := c.GetQuery("category"); ok && v != "" {
		filter.Category = &v
	}
	if v, ok := c.GetQuery("isActive"); ok && v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "isActive must be true or false",
			})
			return
		}
		filter.IsActive = &active
	}

	links, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "Failed to list affiliate links", err)
		return
	}
	if links == nil {
		links = []models.AffiliateSummary{}
	}
	c.JSON(http.StatusOK, links)
}

// Get godoc
// @Summary Get affiliate link statistics
// @Description Link with counters, daily clicks, social networks, countries and the most recent accesses
// @Tags affiliate
// @Produce json
// @Param id path string true "Affiliate link ID"
// @Success 200 {object} models.AffiliateStats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/affiliate/{id} [get]
func (h *AffiliateHandler) Get(c *gin.Context) {
	stats, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to get affiliate link", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Update godoc
// @Summary Update an affiliate link
// @Description Partial update. Renews the link: daysRemaining is counted from the last update.
// @Tags affiliate
// @Accept json
// @Produce json
// @Param id path string true "Affiliate link ID"
// @Param request body models.UpdateAffiliateInput true "Fields to update"
// @Success 200 {object} models.AffiliateLink
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/affiliate/{id} [put]
func (h *AffiliateHandler) Update(c *gin.Context) {
	limitBody(c)
	var input models.UpdateAffiliateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	link, err := h.service.Update(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		respondError(c, h.logger, "Failed to update affiliate link", err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// Delete godoc
// @Summary Delete an affiliate link
// @Tags affiliate
// @Produce json
// @Param id path string true "Affiliate link ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/affiliate/{id} [delete]
func (h *AffiliateHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "Failed to delete affiliate link", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Affiliate link deleted successfully"})
}
