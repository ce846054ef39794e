package repository

import (
	"context"

	"log-viewer-backend/internal/dto"
)

// ArchiveRepository searches records that left the retention window but
// were kept by the long-term archive.
type ArchiveRepository interface {
	Search(ctx context.Context, req dto.ArchiveSearchRequest) (*dto.ArchiveSearchResponse, error)
}
