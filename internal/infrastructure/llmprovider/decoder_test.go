package llmprovider_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/infrastructure/llmprovider"
)

// chunkReader yields the input in fixed-size pieces so records get split at
// arbitrary byte boundaries.
type chunkReader struct {
	data []byte
	size int
	off  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	end := r.off + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.off:end])
	r.off += n
	return n, nil
}

func drain(t *testing.T, d *llmprovider.Decoder) []*llm.StreamEvent {
	t.Helper()
	var events []*llm.StreamEvent
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		events = append(events, ev)
	}
}

func concatText(events []*llm.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Kind == llm.EventText {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestDecoderSplitAcrossReads(t *testing.T) {
	input := "0:\"Hello\"\n0:\" there\"\n0:\", friend\"\nd:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":3,\"completionTokens\":7}}\n"

	// Every chunk size must produce the same events in the same order.
	for _, size := range []int{1, 2, 3, 5, 7, 64, len(input)} {
		d := llmprovider.NewDecoder(&chunkReader{data: []byte(input), size: size}, zerolog.Nop())
		events := drain(t, d)
		if got := concatText(events); got != "Hello there, friend" {
			t.Fatalf("chunk size %d: text = %q", size, got)
		}
		last := events[len(events)-1]
		if last.Kind != llm.EventFinish || last.FinishReason != "stop" {
			t.Fatalf("chunk size %d: last event = %+v, want finish/stop", size, last)
		}
		if last.Usage == nil || last.Usage.CompletionTokens != 7 {
			t.Fatalf("chunk size %d: usage = %+v", size, last.Usage)
		}
	}
}

func TestDecoderTrailingLineWithoutNewline(t *testing.T) {
	d := llmprovider.NewDecoder(strings.NewReader("0:\"a\"\n0:\"b\""), zerolog.Nop())
	events := drain(t, d)
	if got := concatText(events); got != "ab" {
		t.Fatalf("text = %q, want ab", got)
	}
}

func TestDecoderSkipsUnknownAndMalformed(t *testing.T) {
	input := strings.Join([]string{
		`0:"keep"`,
		`9:{"mystery":true}`,          // unknown tag
		`0:not-json`,                  // malformed payload
		`garbage without a separator`, // no tag at all
		`0:"also"`,
		``,
	}, "\n")
	d := llmprovider.NewDecoder(strings.NewReader(input), zerolog.Nop())
	events := drain(t, d)
	if got := concatText(events); got != "keepalso" {
		t.Fatalf("text = %q, want keepalso", got)
	}
	for _, ev := range events {
		if ev.Kind != llm.EventText {
			t.Fatalf("unexpected event kind %d", ev.Kind)
		}
	}
}

func TestDecoderErrorRecordStopsStream(t *testing.T) {
	input := "0:\"before\"\n3:\"rate limit exceeded\"\n0:\"after\"\n"
	d := llmprovider.NewDecoder(strings.NewReader(input), zerolog.Nop())

	events := drain(t, d)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (error stops the stream)", len(events))
	}
	if events[1].Kind != llm.EventError || events[1].Text != "rate limit exceeded" {
		t.Fatalf("second event = %+v, want error record", events[1])
	}
}

func TestDecoderPassesDataAndAnnotations(t *testing.T) {
	input := "2:{\"step\":1}\n8:[{\"note\":\"x\"}]\n0:\"hi\"\n"
	d := llmprovider.NewDecoder(strings.NewReader(input), zerolog.Nop())
	events := drain(t, d)
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Kind != llm.EventData || string(events[0].Raw) != `{"step":1}` {
		t.Fatalf("data event = %+v", events[0])
	}
	if events[1].Kind != llm.EventAnnotation || string(events[1].Raw) != `[{"note":"x"}]` {
		t.Fatalf("annotation event = %+v", events[1])
	}
}

func TestEncoderOutputDecodes(t *testing.T) {
	var buf bytes.Buffer
	enc := llmprovider.NewEncoder(&buf)
	if err := enc.Text("line one\nline two"); err != nil {
		t.Fatal(err)
	}
	if err := enc.Error("boom"); err != nil {
		t.Fatal(err)
	}

	d := llmprovider.NewDecoder(&buf, zerolog.Nop())
	ev, err := d.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != llm.EventText || ev.Text != "line one\nline two" {
		t.Fatalf("decoded text = %+v", ev)
	}
	ev, err = d.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != llm.EventError || ev.Text != "boom" {
		t.Fatalf("decoded error = %+v", ev)
	}
}
