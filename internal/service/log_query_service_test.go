package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/service"
)

func TestParseLevels(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []model.Level
		wantErr bool
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "error", want: []model.Level{model.LevelError}},
		{name: "mixed case with spaces", raw: " Info , WARNING,", want: []model.Level{model.LevelInfo, model.LevelWarn}},
		{name: "unknown", raw: "info,loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ParseLevels(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, service.ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubArchiveRepo struct {
	got dto.ArchiveSearchRequest
}

func (r *stubArchiveRepo) Search(_ context.Context, req dto.ArchiveSearchRequest) (*dto.ArchiveSearchResponse, error) {
	r.got = req
	return &dto.ArchiveSearchResponse{Page: req.Page, Size: req.Size}, nil
}

func TestArchiveQueryService_Disabled(t *testing.T) {
	svc := service.NewArchiveQueryService(nil)
	_, err := svc.SearchArchive(context.Background(), dto.ArchiveSearchRequest{})
	assert.ErrorIs(t, err, service.ErrArchiveDisabled)
}

func TestArchiveQueryService_ValidatesAndDefaults(t *testing.T) {
	repo := &stubArchiveRepo{}
	svc := service.NewArchiveQueryService(repo)
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	_, err := svc.SearchArchive(context.Background(), dto.ArchiveSearchRequest{StartTime: start})
	assert.ErrorIs(t, err, service.ErrInvalidQuery)

	_, err = svc.SearchArchive(context.Background(), dto.ArchiveSearchRequest{StartTime: start, EndTime: start.Add(-time.Hour)})
	assert.ErrorIs(t, err, service.ErrInvalidQuery)

	resp, err := svc.SearchArchive(context.Background(), dto.ArchiveSearchRequest{
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Levels:    []string{" warn"},
		SortOrder: "ASC",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, "asc", repo.got.SortOrder)
	assert.Equal(t, []string{"WARN"}, repo.got.Levels)
	assert.Positive(t, repo.got.Size)
}
