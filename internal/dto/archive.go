package dto

import (
	"time"

	"log-viewer-backend/internal/model"
)

type ArchiveSearchRequest struct {
	StartTime time.Time
	EndTime   time.Time
	Query     string
	Levels    []string
	Services  []string
	SortOrder string
	Page      int
	Size      int
}

type ArchiveSearchResponse struct {
	Logs       []model.Record `json:"logs"`
	TotalCount int64          `json:"totalCount"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
}
