// Package client talks to the agent platform REST and SSE endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/httpclient"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://127.0.0.1:8080/api/ap"

// Client is an HTTP client for the agent platform API
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	tracer     trace.Tracer
}

// ClientOption is a function for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the timeout of REST calls. Query streams are not bounded
// by it.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the bearer token. A blank token sends no Authorization header.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewClient creates a new client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	parsedURL, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q must be absolute", baseURL)
	}

	httpClient := httpclient.NewHTTPClient()
	httpClient.Timeout = 30 * time.Second

	client := &Client{
		baseURL:    parsedURL,
		httpClient: httpClient,
		tracer:     otel.Tracer("agent-webclient/client"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetToken replaces the bearer token for subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	u := *c.baseURL
	u.Path = path.Join(u.Path, endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doRequest performs a REST call and returns the envelope data.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "client.request", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", endpoint),
	))
	defer span.End()

	data, err := c.roundTrip(ctx, method, endpoint, query, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, query url.Values, body any) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	slog.Debug("API response", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(respBody))
	return decodeEnvelope(resp.StatusCode, respBody)
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshaling response: %w", err)
	}
	return out, nil
}

// decodeList decodes an array payload. Anything other than an array is
// treated as an empty list.
func decodeList[T any](data json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil
	}
	return decodeData[[]T](trimmed)
}

// GetAgents retrieves the available agents
func (c *Client) GetAgents(ctx context.Context) ([]api.Agent, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/agents", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[api.Agent](data)
}

// GetChats retrieves the chat summaries
func (c *Client) GetChats(ctx context.Context) ([]api.Chat, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[api.Chat](data)
}

// GetChat retrieves the recorded events of a chat.
func (c *Client) GetChat(ctx context.Context, chatID string, includeRawMessages bool) (*api.ChatDetail, error) {
	query := url.Values{}
	setQuery(query, "chatId", chatID)
	if includeRawMessages {
		query.Set("includeRawMessages", "true")
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/chat", query, nil)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &api.ChatDetail{}, nil
	}
	detail, err := decodeData[api.ChatDetail](trimmed)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetViewport retrieves the HTML registered under a viewport key.
func (c *Client) GetViewport(ctx context.Context, viewportKey string) (*api.Viewport, error) {
	query := url.Values{}
	setQuery(query, "viewportKey", viewportKey)

	data, err := c.doRequest(ctx, http.MethodGet, "/viewport", query, nil)
	if err != nil {
		return nil, err
	}
	var vp api.Viewport
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &vp); err != nil {
			return nil, fmt.Errorf("unmarshaling response: %w", err)
		}
	}
	return &vp, nil
}

// SubmitTool posts the parameters of a frontend tool back to its run.
func (c *Client) SubmitTool(ctx context.Context, req api.SubmitRequest) (*api.SubmitResponse, error) {
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/submit", nil, req)
	if err != nil {
		return nil, err
	}

	var resp api.SubmitResponse
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("unmarshaling response: %w", err)
		}
	}
	return &resp, nil
}

// Query starts a run and returns its event stream. The stream outlives the
// REST timeout; cancel ctx to abort it.
func (c *Client) Query(ctx context.Context, query api.QueryRequest) (*Stream, error) {
	ctx, span := c.tracer.Start(ctx, "client.query", trace.WithAttributes(
		attribute.String("agent.key", query.AgentKey),
		attribute.String("chat.id", query.ChatID),
	))

	stream, err := c.openStream(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	stream.span = span
	return stream, nil
}

func (c *Client) openStream(ctx context.Context, query api.QueryRequest) (*Stream, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/query", nil, query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			Status: resp.StatusCode,
			Msg:    parseQueryError(resp.StatusCode, body),
			Body:   string(body),
		}
	}

	return &Stream{
		body:   resp.Body,
		reader: NewSSEReader(resp.Body),
	}, nil
}

func setQuery(query url.Values, key, value string) {
	if value == "" {
		return
	}
	query.Set(key, value)
}

// Stream is an open POST /query response.
type Stream struct {
	body   io.ReadCloser
	reader *SSEReader
	span   trace.Span
	frames int
}

// Next returns the next frame, or io.EOF once the server closed the stream.
func (s *Stream) Next() (Frame, error) {
	frame, err := s.reader.Next()
	if err == nil {
		s.frames++
	}
	return frame, err
}

// Close releases the response body and ends the trace span.
func (s *Stream) Close() error {
	if s.span != nil {
		s.span.SetAttributes(attribute.Int("sse.frames", s.frames))
		s.span.End()
		s.span = nil
	}
	return s.body.Close()
}

// DecodeEvent parses the JSON data of an event frame.
func DecodeEvent(data string) (api.Event, error) {
	var ev api.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return api.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return ev, nil
}
