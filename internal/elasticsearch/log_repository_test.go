package elasticsearch_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/elasticsearch"
)

func TestBuildSearchRequest(t *testing.T) {
	start := time.Date(2024, 1, 11, 16, 0, 0, 0, time.UTC)
	req := dto.ArchiveSearchRequest{
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Query:     "timeout",
		Levels:    []string{"ERROR"},
		Services:  []string{"web", "db"},
		SortOrder: "asc",
		Page:      3,
		Size:      20,
	}

	searchRequest := elasticsearch.BuildSearchRequest(req)
	require.NotNil(t, searchRequest.From)
	assert.Equal(t, 40, *searchRequest.From)
	assert.Equal(t, 20, *searchRequest.Size)
	require.NotNil(t, searchRequest.Query.Bool)
	assert.Len(t, searchRequest.Query.Bool.Filter, 4)

	body, err := json.Marshal(searchRequest)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"2024-01-11T16:00:00Z"`)
	assert.Contains(t, string(body), `service.keyword`)
	assert.Contains(t, string(body), `level.keyword`)
	assert.Contains(t, string(body), `"asc"`)
}

func TestBuildSearchRequest_MinimalFilter(t *testing.T) {
	start := time.Date(2024, 1, 11, 16, 0, 0, 0, time.UTC)
	searchRequest := elasticsearch.BuildSearchRequest(dto.ArchiveSearchRequest{
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Page:      1,
		Size:      10,
	})

	assert.Len(t, searchRequest.Query.Bool.Filter, 1)
	assert.Equal(t, 0, *searchRequest.From)
}

func TestIndexName(t *testing.T) {
	ts := time.Date(2024, 1, 11, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "viewerlogs-2024-01-12", elasticsearch.IndexName("viewerlogs", ts))
}
