package service

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// MaxLineBytes bounds how much of a single input line is kept for parsing.
// Longer lines are truncated; the remainder is still echoed and skipped.
const MaxLineBytes = 1024 * 1024

// StdinSource reads piped log output line by line. When echo is set every
// line is copied to out so the viewer can sit transparently in a pipeline.
type StdinSource struct {
	ingest IngestService
	in     io.Reader
	out    io.Writer
	echo   bool
}

func NewStdinSource(ingest IngestService, in io.Reader, out io.Writer, echo bool) *StdinSource {
	return &StdinSource{
		ingest: ingest,
		in:     in,
		out:    out,
		echo:   echo,
	}
}

// Run returns at EOF or when ctx is cancelled between lines. Reaching EOF
// does not stop the server; viewers keep the retained history.
func (s *StdinSource) Run(ctx context.Context) error {
	reader := bufio.NewReaderSize(s.in, 64*1024)

	var lines, truncated int
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, cut, err := s.readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if cut {
			truncated++
			log.Warn().Int("max_bytes", MaxLineBytes).Msg("Input line too long, truncated")
		}
		if _, err := s.ingest.IngestLine(ctx, line); err == nil {
			lines++
		}
	}
	log.Info().Int("lines", lines).Int("truncated", truncated).Msg("Input stream ended, server keeps running")
	return nil
}

// readLine returns the next line without its terminator, keeping at most
// MaxLineBytes of it. Echo sees the whole line regardless of the cap.
func (s *StdinSource) readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	var cut, started bool
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if started {
				s.echoBytes([]byte("\n"))
				return string(buf), cut, nil
			}
			return "", false, err
		}
		started = true
		s.echoBytes(chunk)

		if room := MaxLineBytes - len(buf); len(chunk) > room {
			chunk = chunk[:room]
			cut = true
		}
		buf = append(buf, chunk...)

		if !isPrefix {
			s.echoBytes([]byte("\n"))
			return string(buf), cut, nil
		}
	}
}

func (s *StdinSource) echoBytes(p []byte) {
	if !s.echo {
		return
	}
	if _, err := s.out.Write(p); err != nil {
		log.Warn().Err(err).Msg("Failed to echo line, disabling echo")
		s.echo = false
	}
}
