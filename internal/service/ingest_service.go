package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/hub"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/parser"
)

// IngestService is the single entry point for raw lines, whatever source
// they come from. Lines are parsed, handed to the hub, and on success
// queued for the external sinks.
type IngestService interface {
	// IngestLine returns nil, nil for blank lines.
	IngestLine(ctx context.Context, line string) (*model.Record, error)
	IngestText(ctx context.Context, text string) dto.IngestResponse
}

type ingestService struct {
	parser     parser.LogParser
	hub        *hub.Hub
	dispatcher SinkDispatcher
}

func NewIngestService(p parser.LogParser, h *hub.Hub, dispatcher SinkDispatcher) IngestService {
	return &ingestService{
		parser:     p,
		hub:        h,
		dispatcher: dispatcher,
	}
}

func (s *ingestService) IngestLine(ctx context.Context, line string) (*model.Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	rec := s.parser.Parse(line)
	if err := s.ingest(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *ingestService) IngestText(ctx context.Context, text string) dto.IngestResponse {
	var resp dto.IngestResponse
	for _, rec := range parser.ParseLines(s.parser, text) {
		if err := s.ingest(ctx, rec); err != nil {
			resp.Failed++
			continue
		}
		resp.Accepted++
	}
	return resp
}

func (s *ingestService) ingest(ctx context.Context, rec model.Record) error {
	if err := s.hub.Ingest(ctx, rec); err != nil {
		log.Error().Err(err).Str("service", rec.Service).Msg("Failed to ingest record")
		return err
	}
	s.dispatcher.Enqueue(rec)
	return nil
}
