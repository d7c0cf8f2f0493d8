package replay

import (
	"context"
	"io"
	"net/http"

	"github.com/soyeahso/chatkit-demo/internal/agui"
)

// Transport answers every request with a 200 text/event-stream response fed
// by the player. No network is touched.
type Transport struct {
	Player *Player
}

// NewTransport returns a Transport backed by p.
func NewTransport(p *Player) *Transport {
	return &Transport{Player: p}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(req.Context())
	pr, pw := io.Pipe()
	// unblock a pending write once the caller gives up
	stop := context.AfterFunc(ctx, func() { pw.CloseWithError(ctx.Err()) })
	go func() {
		defer cancel()
		defer stop()
		pw.CloseWithError(t.Player.Play(ctx, pw, body))
	}()

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {agui.ContentTypeSSE}, "Cache-Control": {"no-cache"}},
		Body:          &streamBody{PipeReader: pr, cancel: cancel},
		ContentLength: -1,
		Request:       req,
	}, nil
}

// streamBody stops the player when the caller closes the response body.
type streamBody struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (b *streamBody) Close() error {
	b.cancel()
	return b.PipeReader.Close()
}

// Handler streams the player's frames over HTTP, flushing after each.
type Handler struct {
	Player *Player
}

// NewHandler returns a Handler backed by p.
func NewHandler(p *Player) *Handler {
	return &Handler{Player: p}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", agui.ContentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.Player.Play(r.Context(), w, body); err != nil {
		h.Player.log.Debug().Err(err).Msg("stream ended early")
	}
}
