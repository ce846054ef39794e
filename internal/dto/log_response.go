package dto

import (
	"time"

	"log-viewer-backend/internal/model"
)

type LogQueryRequest struct {
	Search    string
	Services  []string
	Levels    []model.Level
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

type LogQueryResponse struct {
	Logs        []model.Record `json:"logs"`
	Total       int64          `json:"total"`
	Services    []string       `json:"services"`
	LevelCounts map[string]int `json:"levelCounts"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type LevelCount struct {
	Level string `json:"level"`
	Count int64  `json:"count"`
}

type MinuteCount struct {
	Minute string `json:"minute"`
	Count  int64  `json:"count"`
}

type LogStats struct {
	TotalLogs     int64         `json:"totalLogs"`
	Services      []NameCount   `json:"services"`
	Levels        []LevelCount  `json:"levels"`
	LogsPerMinute []MinuteCount `json:"logsPerMinute"`
}

type IngestResponse struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
}

type ServicesResponse struct {
	Services []string `json:"services"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Records int    `json:"records"`
	Viewers int    `json:"viewers"`
}
