package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/service"
	"log-viewer-backend/internal/store"
	"log-viewer-backend/internal/util"
)

const maxIngestBody = 8 << 20

type LogController struct {
	ingestService   service.IngestService
	logQueryService service.LogQueryService
	archiveService  service.ArchiveQueryService
}

func NewLogController(
	ingestService service.IngestService,
	logQueryService service.LogQueryService,
	archiveService service.ArchiveQueryService,
) *LogController {
	return &LogController{
		ingestService:   ingestService,
		logQueryService: logQueryService,
		archiveService:  archiveService,
	}
}

func RegisterLogRoutes(router *gin.Engine, controller *LogController) {
	api := router.Group("/api")
	{
		api.POST("/ingest", controller.Ingest)
		api.GET("/query", controller.Query)
		api.GET("/stats", controller.Stats)
		api.GET("/services", controller.Services)
		api.GET("/archive", controller.SearchArchive)
		api.GET("/health", controller.Health)
	}
}

// Ingest godoc
// @Summary      Ingest raw log lines
// @Description  Parses a newline-delimited text body and ingests every non-blank line as one record.
// @Tags         logs
// @Accept       plain
// @Produce      json
// @Param        body  body      string  true  "Newline-delimited log lines"
// @Success      200   {object}  dto.IngestResponse
// @Failure      400   {object}  model.Response "Unreadable body"
// @Router       /api/ingest [post]
func (c *LogController) Ingest(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxIngestBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse("Failed to read request body", nil))
		return
	}
	ctx.JSON(http.StatusOK, c.ingestService.IngestText(ctx.Request.Context(), string(body)))
}

// Query godoc
// @Summary      Query retained logs
// @Description  Full-text search with service, level and time filters over the retained records. Only available on the sqlite backend.
// @Tags         logs
// @Produce      json
// @Param        search     query     string  false  "Full-text search"
// @Param        services   query     string  false  "Comma-separated service names"
// @Param        levels     query     string  false  "Comma-separated levels (e.g., ERROR,WARN)"
// @Param        startTime  query     string  false  "Start time, ISO 8601 or epoch milliseconds"
// @Param        endTime    query     string  false  "End time, ISO 8601 or epoch milliseconds"
// @Param        limit      query     int     false  "Page size (default: 100, max: 1000)" minimum(1) maximum(1000)
// @Param        offset     query     int     false  "Records to skip" minimum(0)
// @Success      200        {object}  dto.LogQueryResponse
// @Failure      400        {object}  model.Response "Invalid query parameters"
// @Failure      501        {object}  model.Response "Store backend has no query index"
// @Failure      500        {object}  model.Response "Internal server error"
// @Router       /api/query [get]
func (c *LogController) Query(ctx *gin.Context) {
	req, err := parseQueryRequest(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse(err.Error(), nil))
		return
	}

	result, err := c.logQueryService.Query(ctx.Request.Context(), req)
	if err != nil {
		c.writeError(ctx, err, "Failed to query logs")
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// Stats godoc
// @Summary      Retained log statistics
// @Description  Totals per service and level plus per-minute counts for the last 30 minutes. Only available on the sqlite backend.
// @Tags         logs
// @Produce      json
// @Success      200  {object}  dto.LogStats
// @Failure      501  {object}  model.Response "Store backend has no query index"
// @Failure      500  {object}  model.Response "Internal server error"
// @Router       /api/stats [get]
func (c *LogController) Stats(ctx *gin.Context) {
	stats, err := c.logQueryService.Stats(ctx.Request.Context())
	if err != nil {
		c.writeError(ctx, err, "Failed to compute stats")
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// Services godoc
// @Summary      Discovered services
// @Tags         logs
// @Produce      json
// @Success      200  {object}  dto.ServicesResponse
// @Router       /api/services [get]
func (c *LogController) Services(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.ServicesResponse{Services: c.logQueryService.Services()})
}

// SearchArchive godoc
// @Summary      Search the long-term archive
// @Description  Searches records archived to Elasticsearch, including those pruned from the retention store.
// @Tags         archive
// @Produce      json
// @Param        startTime  query     string  true   "Start time, ISO 8601 or epoch milliseconds"
// @Param        endTime    query     string  true   "End time, ISO 8601 or epoch milliseconds"
// @Param        query      query     string  false  "Query string"
// @Param        levels     query     string  false  "Comma-separated levels"
// @Param        services   query     string  false  "Comma-separated service names"
// @Param        sortOrder  query     string  false  "Sort order (default: desc)" Enums(asc, desc)
// @Param        page       query     int     false  "Page number (default: 1)" minimum(1)
// @Param        size       query     int     false  "Page size (default: 100, max: 1000)" minimum(1) maximum(1000)
// @Success      200        {object}  dto.ArchiveSearchResponse
// @Failure      400        {object}  model.Response "Invalid query parameters"
// @Failure      503        {object}  model.Response "Archive not enabled"
// @Failure      500        {object}  model.Response "Internal server error"
// @Router       /api/archive [get]
func (c *LogController) SearchArchive(ctx *gin.Context) {
	startTime, errStart := util.ParseTimeFlexible(ctx.Query("startTime"))
	endTime, errEnd := util.ParseTimeFlexible(ctx.Query("endTime"))
	if errStart != nil || errEnd != nil {
		ctx.JSON(http.StatusBadRequest, model.NewResponse("Invalid startTime or endTime format. Use ISO 8601 or epoch milliseconds.", nil))
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(ctx.DefaultQuery("size", strconv.Itoa(store.DefaultQueryLimit)))

	req := dto.ArchiveSearchRequest{
		StartTime: startTime,
		EndTime:   endTime,
		Query:     ctx.Query("query"),
		Levels:    splitCSV(ctx.Query("levels")),
		Services:  splitCSV(ctx.Query("services")),
		SortOrder: ctx.DefaultQuery("sortOrder", "desc"),
		Page:      page,
		Size:      size,
	}
	result, err := c.archiveService.SearchArchive(ctx.Request.Context(), req)
	if err != nil {
		c.writeError(ctx, err, "Failed to search archive")
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// Health godoc
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  dto.HealthResponse
// @Router       /api/health [get]
func (c *LogController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.logQueryService.Health())
}

func (c *LogController) writeError(ctx *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidQuery):
		ctx.JSON(http.StatusBadRequest, model.NewResponse(err.Error(), nil))
	case errors.Is(err, store.ErrQueryUnsupported):
		ctx.JSON(http.StatusNotImplemented, model.NewResponse(err.Error(), nil))
	case errors.Is(err, service.ErrArchiveDisabled):
		ctx.JSON(http.StatusServiceUnavailable, model.NewResponse(err.Error(), nil))
	default:
		log.Error().Err(err).Str("path", ctx.FullPath()).Msg(msg)
		ctx.JSON(http.StatusInternalServerError, model.NewResponse(msg, nil))
	}
}

func parseQueryRequest(ctx *gin.Context) (dto.LogQueryRequest, error) {
	var req dto.LogQueryRequest
	var err error

	req.Search = ctx.Query("search")
	req.Services = splitCSV(ctx.Query("services"))
	if req.Levels, err = service.ParseLevels(ctx.Query("levels")); err != nil {
		return req, err
	}
	if req.StartTime, err = util.ParseOptionalTime(ctx.Query("startTime")); err != nil {
		return req, errors.New("invalid startTime format, use ISO 8601 or epoch milliseconds")
	}
	if req.EndTime, err = util.ParseOptionalTime(ctx.Query("endTime")); err != nil {
		return req, errors.New("invalid endTime format, use ISO 8601 or epoch milliseconds")
	}
	if raw := ctx.Query("limit"); raw != "" {
		if req.Limit, err = strconv.Atoi(raw); err != nil {
			return req, errors.New("limit must be an integer")
		}
	}
	if raw := ctx.Query("offset"); raw != "" {
		if req.Offset, err = strconv.Atoi(raw); err != nil {
			return req, errors.New("offset must be an integer")
		}
	}
	return req, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
