package apihandlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"bottle/internal/app"
	"bottle/internal/models"
	"bottle/internal/services"
)

type APIHandler struct {
	App *app.App
}

func NewAPIHandler(a *app.App) *APIHandler {
	return &APIHandler{App: a}
}

// RegisterRoutes mounts the API under /api/v1 plus /health and /metrics.
func (h *APIHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		feeds := v1.Group("/feeds")
		{
			feeds.GET("", h.ListFeedsHandler)
			feeds.POST("", h.AddFeedHandler)
			feeds.POST("/:community/:id/sync", h.TriggerFeedSyncHandler)
			feeds.GET("/:community/:id/state", h.FeedStateHandler)
		}

		downloads := v1.Group("/downloads")
		{
			downloads.POST("/images", h.TriggerImageDownloadHandler)
			downloads.GET("/images/state", h.ImageDownloadStateHandler)
		}

		galleries := v1.Group("/galleries")
		{
			galleries.POST("/:gid/download", h.TriggerGalleryDownloadHandler)
			galleries.GET("/:gid/state", h.GalleryStateHandler)
		}

		v1.GET("/jobs", h.JobsHandler)
	}

	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", gin.WrapH(h.App.Metrics.Handler()))
}

func (h *APIHandler) HealthHandler(c *gin.Context) {
	if err := h.App.Ping(c.Request.Context()); err != nil {
		JSONError(c, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Feeds ---

func (h *APIHandler) ListFeedsHandler(c *gin.Context) {
	var community models.Community
	if raw := c.Query("community"); raw != "" {
		parsed, err := models.ParseCommunity(raw)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		community = parsed
	}
	feeds, err := h.App.FeedService.ListFeeds(c.Request.Context(), community)
	if err != nil {
		Internal(c, fmt.Sprintf("list feeds: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": feeds})
}

func (h *APIHandler) AddFeedHandler(c *gin.Context) {
	var req services.AddFeedParams
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	feed, err := h.App.FeedService.AddFeed(c.Request.Context(), req)
	if err != nil {
		FromError(c, err)
		return
	}
	log.WithFields(log.Fields{"feed": feed.Key().String(), "name": feed.Name}).Info("Feed added via API")
	c.JSON(http.StatusCreated, gin.H{"data": feed})
}

func parseFeedID(c *gin.Context) (models.FeedID, error) {
	community, err := models.ParseCommunity(c.Param("community"))
	if err != nil {
		return models.FeedID{}, err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return models.FeedID{}, fmt.Errorf("%w: invalid feed id %q", models.ErrInvalidInput, c.Param("id"))
	}
	return models.FeedID{Community: community, FeedID: id}, nil
}

func (h *APIHandler) TriggerFeedSyncHandler(c *gin.Context) {
	id, err := parseFeedID(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	accepted, err := h.App.JobService.TriggerFeedSync(c.Request.Context(), id)
	if err != nil {
		FromError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func (h *APIHandler) FeedStateHandler(c *gin.Context) {
	id, err := parseFeedID(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.App.JobService.FeedState(id))
}

// --- Image downloads ---

func (h *APIHandler) TriggerImageDownloadHandler(c *gin.Context) {
	accepted := h.App.JobService.TriggerImageDownload(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func (h *APIHandler) ImageDownloadStateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.App.JobService.ImageDownloadState())
}

// --- Galleries ---

func parseGalleryID(c *gin.Context) (int64, error) {
	gid, err := strconv.ParseInt(c.Param("gid"), 10, 64)
	if err != nil || gid <= 0 {
		return 0, fmt.Errorf("%w: invalid gallery id %q", models.ErrInvalidInput, c.Param("gid"))
	}
	return gid, nil
}

func (h *APIHandler) TriggerGalleryDownloadHandler(c *gin.Context) {
	gid, err := parseGalleryID(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	accepted, err := h.App.JobService.TriggerGalleryDownload(c.Request.Context(), gid)
	if err != nil {
		FromError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func (h *APIHandler) GalleryStateHandler(c *gin.Context) {
	gid, err := parseGalleryID(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.App.JobService.GalleryState(gid))
}

func (h *APIHandler) JobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.App.JobService.AllStates())
}
