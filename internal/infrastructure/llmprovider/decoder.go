package llmprovider

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/infrastructure/logger"
)

// Record tags of the newline-delimited stream protocol. Each line is
// `<tag>:<jsonPayload>`.
const (
	tagText       = "0"
	tagData       = "2"
	tagError      = "3"
	tagAnnotation = "8"
	tagFinish     = "d"
)

type finishPayload struct {
	FinishReason string     `json:"finishReason"`
	Usage        *llm.Usage `json:"usage"`
}

// Decoder turns a raw byte stream into llm.StreamEvents. Bytes may arrive in
// arbitrary chunks; partial lines are buffered until their newline arrives,
// and a trailing line without a newline is processed at EOF.
type Decoder struct {
	reader *bufio.Reader
	logger zerolog.Logger
	done   bool
}

// NewDecoder wraps r. The logger is used for skipped malformed records.
func NewDecoder(r io.Reader, log zerolog.Logger) *Decoder {
	return &Decoder{
		reader: bufio.NewReader(r),
		logger: logger.Component(log, "stream_decoder"),
	}
}

// Next returns the next decoded event, io.EOF when the stream is exhausted,
// or the underlying read error. After an error record the decoder stops
// consuming further input.
func (d *Decoder) Next() (*llm.StreamEvent, error) {
	if d.done {
		return nil, io.EOF
	}
	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.done = true
				// Flush a trailing record that had no final newline.
				if ev := d.decodeLine(line); ev != nil {
					return ev, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
		if ev := d.decodeLine(line); ev != nil {
			if ev.Kind == llm.EventError {
				d.done = true
			}
			return ev, nil
		}
	}
}

// decodeLine parses one record. Returns nil for blank, malformed, or
// unknown-tag lines, which are skipped.
func (d *Decoder) decodeLine(line string) *llm.StreamEvent {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}
	tag, payload, found := strings.Cut(line, ":")
	if !found {
		d.logger.Warn().Str("line", truncate(line, 80)).Msg("record without tag separator, skipping")
		return nil
	}
	switch tag {
	case tagText:
		var text string
		if err := json.Unmarshal([]byte(payload), &text); err != nil {
			d.logger.Warn().Err(err).Msg("malformed text record, skipping")
			return nil
		}
		return &llm.StreamEvent{Kind: llm.EventText, Text: text}
	case tagError:
		var text string
		if err := json.Unmarshal([]byte(payload), &text); err != nil {
			d.logger.Warn().Err(err).Msg("malformed error record, skipping")
			return nil
		}
		return &llm.StreamEvent{Kind: llm.EventError, Text: text}
	case tagFinish:
		var fin finishPayload
		if err := json.Unmarshal([]byte(payload), &fin); err != nil {
			d.logger.Warn().Err(err).Msg("malformed finish record, skipping")
			return nil
		}
		return &llm.StreamEvent{Kind: llm.EventFinish, FinishReason: fin.FinishReason, Usage: fin.Usage}
	case tagData:
		if !json.Valid([]byte(payload)) {
			d.logger.Warn().Msg("malformed data record, skipping")
			return nil
		}
		return &llm.StreamEvent{Kind: llm.EventData, Raw: []byte(payload)}
	case tagAnnotation:
		if !json.Valid([]byte(payload)) {
			d.logger.Warn().Msg("malformed annotation record, skipping")
			return nil
		}
		return &llm.StreamEvent{Kind: llm.EventAnnotation, Raw: []byte(payload)}
	default:
		d.logger.Warn().Str("tag", truncate(tag, 16)).Msg("unknown record tag, skipping")
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
