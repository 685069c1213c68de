// Package proxy provides the capture layer of splice: a transparent HTTP
// proxy that fronts the Anthropic API, forwards traffic verbatim, and
// delivers request/response callbacks to a capture.Observer. The proxy knows
// nothing about correlation or reconstruction; it only captures.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/capture"
	"github.com/papercomputeco/splice/pkg/sse"
	"github.com/papercomputeco/splice/proxy/header"
)

const bearerPrefix = "Bearer "

// Proxy is a transparent capture proxy between an agent CLI and the
// upstream API.
type Proxy struct {
	config        Config
	observer      capture.Observer
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy delivering capture callbacks to observer.
func New(config Config, observer capture.Observer, logger *zap.Logger) (*Proxy, error) {
	if observer == nil {
		return nil, errors.New("observer is required")
	}
	if config.UpstreamURL == "" {
		config.UpstreamURL = DefaultUpstreamURL
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	p := &Proxy{
		config:        config,
		observer:      observer,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	// Transparent proxy route - forwards any path to upstream
	app.All("/*", p.handle)

	return p, nil
}

// Run starts the proxy server on the configured listening address.
func (p *Proxy) Run() error {
	p.logger.Info("starting capture proxy",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting capture proxy",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listener(listener)
}

// Close shuts down the proxy and signals the observer that no further
// callbacks will arrive.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.observer.OnShutdown()
	return err
}

// handle captures the request, forwards it upstream, and captures the
// response on the way back through.
func (p *Proxy) handle(c *fiber.Ctx) error {
	reqTime := time.Now()
	method := c.Method()
	body := c.Body()
	fullURL := strings.TrimRight(p.config.UpstreamURL, "/") + c.OriginalURL()
	reqHeaders := p.headerHandler.CaptureRequestHeaders(c)

	p.sniffBearerToken(reqHeaders)

	key := p.observer.OnRequest(capture.Request{
		Time:    reqTime,
		Method:  method,
		URL:     fullURL,
		Headers: reqHeaders,
		Body:    append([]byte(nil), body...),
	})

	if wantsStream(body) {
		return p.forwardStreaming(c, fullURL, body, key)
	}

	return p.forwardBuffered(c, method, fullURL, body, key)
}

// forwardBuffered handles non-streaming calls: the whole upstream response
// is read, captured, and relayed.
func (p *Proxy) forwardBuffered(c *fiber.Ctx, method, fullURL string, body []byte, key capture.Key) error {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), method, fullURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).SendString("upstream request failed")
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).SendString("failed to read upstream response")
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	p.observer.OnResponse(key, capture.Response{
		Time:       time.Now(),
		StatusCode: httpResp.StatusCode,
		Headers:    p.headerHandler.CaptureResponseHeaders(httpResp),
		Body:       respBody,
	})

	return c.Status(httpResp.StatusCode).Send(respBody)
}

// forwardStreaming handles calls that requested a streamed response.
func (p *Proxy) forwardStreaming(c *fiber.Ctx, fullURL string, body []byte, key capture.Key) error {
	// Use context.Background() instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, but the streaming
	// pump runs asynchronously in a separate goroutine and needs the
	// upstream connection to remain open.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).SendString("upstream request failed")
	}

	if httpResp.StatusCode != http.StatusOK {
		// Error responses come back as plain JSON even when streaming was
		// requested; capture and relay them buffered.
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()

		p.observer.OnResponse(key, capture.Response{
			Time:       time.Now(),
			StatusCode: httpResp.StatusCode,
			Headers:    p.headerHandler.CaptureResponseHeaders(httpResp),
			Body:       respBody,
		})

		p.headerHandler.SetClientResponseHeaders(c, httpResp)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	// io.Pipe gives direct backpressure: pw.Write blocks until fasthttp's
	// writeBodyChunked consumes the data and flushes it to the TCP socket,
	// so the client sees true per-chunk streaming rather than a buffered
	// blob at end of stream.
	pr, pw := io.Pipe()
	go p.pumpStream(httpResp, pw, key)

	// Body stream with unknown size (-1) triggers chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pumpStream relays the upstream SSE stream to the pipe writer while
// accumulating a verbatim copy for the capture record.
func (p *Proxy) pumpStream(httpResp *http.Response, pw *io.PipeWriter, key capture.Key) {
	defer httpResp.Body.Close()
	defer pw.Close()

	var raw bytes.Buffer
	tr := sse.NewTeeReader(httpResp.Body, io.MultiWriter(pw, &raw))

	events := 0
	for {
		ev, err := tr.Next()
		if err != nil {
			p.logger.Error("error reading upstream stream", zap.Error(err))
			break
		}
		if ev == nil {
			break
		}
		events++
	}

	p.logger.Debug("stream complete",
		zap.Uint64("key", uint64(key)),
		zap.Int("events", events),
		zap.Int("bytes", raw.Len()),
	)

	p.observer.OnResponse(key, capture.Response{
		Time:       time.Now(),
		StatusCode: httpResp.StatusCode,
		Headers:    p.headerHandler.CaptureResponseHeaders(httpResp),
		Body:       raw.Bytes(),
	})
}

// sniffBearerToken reports an observed Authorization bearer token to the
// configured callback.
func (p *Proxy) sniffBearerToken(headers map[string]string) {
	if p.config.OnBearerToken == nil {
		return
	}

	auth := capture.Header(headers, "Authorization")
	if strings.HasPrefix(auth, bearerPrefix) {
		p.config.OnBearerToken(strings.TrimPrefix(auth, bearerPrefix))
	}
}

// wantsStream checks the request payload's stream flag. The Messages API
// only streams when asked to.
func wantsStream(body []byte) bool {
	if len(body) == 0 {
		return false
	}

	var probe struct {
		Stream *bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stream != nil && *probe.Stream
}
