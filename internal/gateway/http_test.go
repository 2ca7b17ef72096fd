package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/internal/relay"
	"github.com/himorishige/hatago-mcp-hub/internal/session"
)

type fakeHub struct{}

func (f *fakeHub) ServerInfo() mcp.Implementation { return mcp.Implementation{Name: "hatago-mcp-hub"} }
func (f *fakeHub) Capabilities() dispatcher.Capabilities {
	return dispatcher.Capabilities{Tools: &dispatcher.ListChangedCapability{ListChanged: true}}
}
func (f *fakeHub) TouchSession(string, json.RawMessage) {}
func (f *fakeHub) ListTools() ([]mcp.Tool, string, int64) {
	return []mcp.Tool{{Name: "fs_read"}}, "abc", 1
}
func (f *fakeHub) CallTool(context.Context, string, map[string]interface{}, interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (f *fakeHub) ListResources() []mcp.Resource { return nil }
func (f *fakeHub) ReadResource(context.Context, string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (f *fakeHub) ListResourceTemplates(context.Context) []mcp.ResourceTemplate { return nil }
func (f *fakeHub) ListPrompts() []mcp.Prompt                                   { return nil }
func (f *fakeHub) GetPrompt(context.Context, string, map[string]interface{}) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}

func newTestGateway() *Gateway {
	d := dispatcher.New(&fakeHub{})
	r := relay.New()
	sessions := session.New(time.Minute)
	return New(d, r, sessions)
}

func TestHTTP_Post_WithoutSessionHeader_IssuesFreshUUID(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(sessionHeader))
}

func TestHTTP_Post_ReusesSessionAcrossRequests(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req1, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(body))
	resp1, err := http.DefaultClient.Do(req1)
	require.NoError(t, err)
	sessID := resp1.Header.Get(sessionHeader)
	resp1.Body.Close()
	require.NotEmpty(t, sessID)

	req2, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(body))
	req2.Header.Set(sessionHeader, sessID)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, sessID, resp2.Header.Get(sessionHeader))
}

func TestHTTP_Post_DispatcherErrorResponse_Returns200(t *testing.T) {
	// A well-formed JSON-RPC error carrying the request's own id (here,
	// method-not-found from an unknown method) is a successful HTTP exchange,
	// not a server failure — only the id:null internal-error shape gets 500.
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	body := []byte(`{"jsonrpc":"2.0","id":7,"method":"not/a/real/method"}`)
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded dispatcher.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	assert.EqualValues(t, dispatcher.CodeMethodNotFound, decoded.Error.Code)
	assert.EqualValues(t, 7, decoded.ID)
}

func TestHTTP_Delete_WithoutSessionHeader_Returns400(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Delete_WithSessionHeader_Returns204(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL, nil)
	req.Header.Set(sessionHeader, "some-session-id")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTP_UnsupportedMethod_Returns405(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_Get_OpensSSEStreamWithReadyEvent(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	assert.Contains(t, string(buf[:n]), `"type":"ready"`)
}
