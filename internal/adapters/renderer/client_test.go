package renderer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid http url", "http://renderer:9090", false},
		{"valid https url with trailing slash", "https://renderer.example.com/", false},
		{"empty url", "", true},
		{"missing scheme", "renderer:9090", true},
		{"unsupported scheme", "ftp://renderer", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(ClientOptions{BaseURL: tt.baseURL})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_Render_Success(t *testing.T) {
	var (
		gotPath   string
		gotAccept string
		gotBody   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 rendered"))
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)

	rendered, err := client.Render(context.Background(), "report_cover", map[string]string{"requester_name": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 rendered"), rendered)

	assert.Equal(t, "/render", gotPath)
	assert.Equal(t, "application/pdf", gotAccept)
	assert.Equal(t, "report_cover", gotBody["template_id"])
	data, ok := gotBody["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Jane", data["requester_name"])
}

func TestClient_Render_ErrorStatusIncludesSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("unknown template"))
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Render(context.Background(), "bogus_template", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "unknown template")
}

func TestClient_Render_EmptyDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Render(context.Background(), "report_cover", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestClient_Render_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Render(ctx, "report_cover", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
