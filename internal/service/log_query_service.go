package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/hub"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/repository"
	"log-viewer-backend/internal/store"
)

var (
	ErrInvalidQuery    = errors.New("invalid query")
	ErrArchiveDisabled = errors.New("archive is not enabled")
)

type LogQueryService interface {
	Query(ctx context.Context, req dto.LogQueryRequest) (*dto.LogQueryResponse, error)
	Stats(ctx context.Context) (*dto.LogStats, error)
	Services() []string
	Health() dto.HealthResponse
}

type logQueryService struct {
	hub *hub.Hub
	now func() time.Time
}

func NewLogQueryService(h *hub.Hub) LogQueryService {
	return &logQueryService{
		hub: h,
		now: time.Now,
	}
}

func (s *logQueryService) Query(ctx context.Context, req dto.LogQueryRequest) (*dto.LogQueryResponse, error) {
	if req.StartTime != nil && req.EndTime != nil && req.EndTime.Before(*req.StartTime) {
		return nil, fmt.Errorf("%w: endTime cannot be before startTime", ErrInvalidQuery)
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidQuery)
	}
	if req.Limit > store.MaxQueryLimit {
		req.Limit = store.MaxQueryLimit
	}
	req.Search = strings.TrimSpace(req.Search)

	log.Debug().
		Str("search", req.Search).
		Strs("services", req.Services).
		Int("levels", len(req.Levels)).
		Int("limit", req.Limit).
		Int("offset", req.Offset).
		Msg("Querying logs")

	return s.hub.Store().Query(ctx, req)
}

func (s *logQueryService) Stats(ctx context.Context) (*dto.LogStats, error) {
	return s.hub.Store().Stats(ctx, s.now())
}

func (s *logQueryService) Services() []string {
	services := s.hub.Services()
	if services == nil {
		services = []string{}
	}
	return services
}

func (s *logQueryService) Health() dto.HealthResponse {
	st := s.hub.Store()
	return dto.HealthResponse{
		Status:  "ok",
		Backend: st.Backend(),
		Records: st.Len(),
		Viewers: s.hub.ViewerCount(),
	}
}

// ParseLevels splits a comma separated level filter. Unknown names are
// rejected rather than silently matching nothing.
func ParseLevels(raw string) ([]model.Level, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var levels []model.Level
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		level, ok := model.ParseLevel(part)
		if !ok {
			return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidQuery, strings.TrimSpace(part))
		}
		levels = append(levels, level)
	}
	return levels, nil
}

type ArchiveQueryService interface {
	SearchArchive(ctx context.Context, req dto.ArchiveSearchRequest) (*dto.ArchiveSearchResponse, error)
}

type archiveQueryService struct {
	repo repository.ArchiveRepository
}

// NewArchiveQueryService accepts a nil repository when the archive is
// disabled; searches then fail with ErrArchiveDisabled.
func NewArchiveQueryService(repo repository.ArchiveRepository) ArchiveQueryService {
	return &archiveQueryService{repo: repo}
}

func (s *archiveQueryService) SearchArchive(ctx context.Context, req dto.ArchiveSearchRequest) (*dto.ArchiveSearchResponse, error) {
	if s.repo == nil {
		return nil, ErrArchiveDisabled
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: startTime and endTime are required", ErrInvalidQuery)
	}
	if req.EndTime.Before(req.StartTime) {
		return nil, fmt.Errorf("%w: endTime cannot be before startTime", ErrInvalidQuery)
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 || req.Size > store.MaxQueryLimit {
		req.Size = store.DefaultQueryLimit
	}
	req.SortOrder = strings.ToLower(req.SortOrder)
	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		req.SortOrder = "desc"
	}
	for i, level := range req.Levels {
		req.Levels[i] = strings.ToUpper(strings.TrimSpace(level))
	}

	log.Info().
		Time("start_time", req.StartTime).
		Time("end_time", req.EndTime).
		Str("query", req.Query).
		Strs("levels", req.Levels).
		Strs("services", req.Services).
		Int("page", req.Page).
		Int("size", req.Size).
		Msg("Searching archive")

	return s.repo.Search(ctx, req)
}
