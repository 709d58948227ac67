package llmprovider

import (
	"encoding/json"
	"fmt"
	"io"

	"hypermaps/server/internal/domain/llm"
)

// Encoder writes tagged records in the same framing the decoder consumes, so
// the service can relay or originate streams in the wire protocol.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Text writes a `0:` text-delta record.
func (e *Encoder) Text(delta string) error {
	return e.record(tagText, delta)
}

// Error writes a `3:` error record.
func (e *Encoder) Error(message string) error {
	return e.record(tagError, message)
}

// Finish writes a `d:` finish record.
func (e *Encoder) Finish(reason string, usage *llm.Usage) error {
	return e.record(tagFinish, finishPayload{FinishReason: reason, Usage: usage})
}

// Data writes a `2:` data record with an already-encoded payload.
func (e *Encoder) Data(raw json.RawMessage) error {
	_, err := fmt.Fprintf(e.w, "%s:%s\n", tagData, raw)
	return err
}

// Annotation writes an `8:` annotation record with an already-encoded payload.
func (e *Encoder) Annotation(raw json.RawMessage) error {
	_, err := fmt.Fprintf(e.w, "%s:%s\n", tagAnnotation, raw)
	return err
}

func (e *Encoder) record(tag string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", tag, err)
	}
	if _, err := fmt.Fprintf(e.w, "%s:%s\n", tag, data); err != nil {
		return fmt.Errorf("write %s record: %w", tag, err)
	}
	return nil
}
