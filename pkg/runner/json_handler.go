package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/strand/pkg/domain"
)

// JSONHandler writes one JSON object per line (NDJSON) and reads JSON or plain lines.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	mu sync.Mutex
}

// Message is the envelope of every line written by JSONHandler.
type Message struct {
	Type   string              `json:"type"`
	Event  *domain.StreamEvent `json:"event,omitempty"`
	Result *ResultMessage      `json:"result,omitempty"`
	Text   string              `json:"text,omitempty"`
}

// ResultMessage is the JSON form of domain.RunResult.
type ResultMessage struct {
	ThreadID string           `json:"thread_id"`
	Status   domain.RunStatus `json:"status"`
	Step     int              `json:"step"`
	State    domain.State     `json:"state"`
	Next     []string         `json:"next,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// NewJSONHandler creates a handler for NDJSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) encode(m Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(m)
}

func (h *JSONHandler) Event(ctx context.Context, ev domain.StreamEvent) error {
	return h.encode(Message{Type: "event", Event: &ev})
}

func (h *JSONHandler) Result(ctx context.Context, res *domain.RunResult) error {
	msg := &ResultMessage{
		ThreadID: res.ThreadID,
		Status:   res.Status,
		Step:     res.Step,
		State:    res.State,
		Next:     res.Next,
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	return h.encode(Message{Type: "result", Result: msg})
}

// Input reads one line. A JSON string is unquoted; anything else is returned raw.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	return SanitizeInput(text)
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.encode(Message{Type: "system", Text: msg})
}
