package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/filestate"
)

// FileSourceService tails plain log files. Each run reads the lines
// appended since the previous run and remembers the byte offset of the
// last complete line.
type FileSourceService interface {
	ProcessFiles(ctx context.Context) error
}

type fileSourceService struct {
	patterns    []string
	stateMgr    filestate.Manager
	ingest      IngestService
	processLock sync.Mutex
}

func NewFileSourceService(cfg *config.Config, stateMgr filestate.Manager, ingest IngestService) FileSourceService {
	return &fileSourceService{
		patterns: cfg.FileSource.Paths,
		stateMgr: stateMgr,
		ingest:   ingest,
	}
}

func (s *fileSourceService) ProcessFiles(ctx context.Context) error {
	if !s.processLock.TryLock() {
		log.Warn().Msg("File source run already in progress, skipping run.")
		return nil
	}
	defer s.processLock.Unlock()

	startTime := time.Now()
	currentState, err := s.stateMgr.LoadState()
	if err != nil {
		return fmt.Errorf("failed to load file state: %w", err)
	}

	newState := make(filestate.FileProcessState, len(currentState))
	for k, v := range currentState {
		newState[k] = v
	}

	files := s.findFiles()
	var totalLines int64
	for _, path := range files {
		lines, offset, err := s.processFile(ctx, path, currentState[path])
		newState[path] = offset
		totalLines += lines
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Error().Err(err).Str("file", path).Msg("Failed to process file")
		}
	}

	if err := s.stateMgr.SaveState(newState); err != nil {
		return fmt.Errorf("failed to save file state: %w", err)
	}

	if totalLines > 0 {
		log.Info().
			Int64("lines_read", totalLines).
			Int("files", len(files)).
			Dur("duration", time.Since(startTime)).
			Msg("Finished file source run.")
	}
	return ctx.Err()
}

// findFiles expands the configured glob patterns into a sorted,
// de-duplicated list of regular files.
func (s *fileSourceService) findFiles() []string {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range s.patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("Invalid file source pattern")
			continue
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			files = append(files, match)
		}
	}
	sort.Strings(files)
	return files
}

// processFile ingests complete lines after lastOffset. A trailing line
// without a newline is left for the next run so it is never split.
func (s *fileSourceService) processFile(ctx context.Context, path string, lastOffset int64) (linesRead int64, offset int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, lastOffset, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, lastOffset, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.Size() < lastOffset {
		log.Warn().Str("file", path).Int64("last_offset", lastOffset).Int64("current_size", info.Size()).Msg("File truncated or rotated, resetting offset.")
		lastOffset = 0
	}
	if _, err := file.Seek(lastOffset, io.SeekStart); err != nil {
		return 0, lastOffset, fmt.Errorf("failed to seek file %s to offset %d: %w", path, lastOffset, err)
	}

	offset = lastOffset
	reader := bufio.NewReader(file)
	for {
		if err := ctx.Err(); err != nil {
			return linesRead, offset, err
		}
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return linesRead, offset, nil
			}
			return linesRead, offset, fmt.Errorf("error reading file %s: %w", path, readErr)
		}
		offset += int64(len(line))
		linesRead++
		if _, err := s.ingest.IngestLine(ctx, line); err != nil {
			log.Warn().Err(err).Str("file", path).Int64("offset", offset).Msg("Line from file was not ingested")
		}
	}
}
