package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowvault/pkg/errors"
	"flowvault/pkg/logger"
	"flowvault/pkg/models"
)

const listingJSON = `[
	{"flow_id": "onboarding", "flow_name": "Onboarding", "flow_url": "https://example.com/flows/onboarding"},
	{"flow_name": "Checkout", "flow_url": "https://example.com/flows/checkout"}
]`

func TestListFlows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, listingJSON)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logger.NewNop())
	flows, err := client.ListFlows(context.Background(), models.App{Title: "App", URL: server.URL})
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, "onboarding", flows[0].ID)
	// Missing ids are derived from the name.
	assert.Equal(t, "Checkout", flows[1].ID)
}

func TestListFlowsKeepsInvalidRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"flow_name": "Good", "flow_url": "https://example.com/good"},
			{"flow_name": "", "flow_url": "https://example.com/nameless"}
		]`)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logger.NewNop())
	flows, err := client.ListFlows(context.Background(), models.App{Title: "App", URL: server.URL})
	require.NoError(t, err)

	// Malformed records stay in the listing so they end up with their own
	// failed checkpoint entries downstream.
	require.Len(t, flows, 2)
	assert.Equal(t, "Good", flows[0].ID)
	assert.Error(t, flows[1].Validate())
}

func TestListFlowsBadJSONIsAppFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logger.NewNop())
	_, err := client.ListFlows(context.Background(), models.App{Title: "App", URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, errors.KindTerminalApp, errors.KindOf(err))
}

func TestStatusCodeClassification(t *testing.T) {
	var status int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logger.NewNop())
	app := models.App{Title: "App", URL: server.URL}

	atomic.StoreInt32(&status, http.StatusNotFound)
	_, err := client.ListFlows(context.Background(), app)
	require.Error(t, err)
	assert.Equal(t, errors.KindTerminalFlow, errors.KindOf(err))

	atomic.StoreInt32(&status, http.StatusServiceUnavailable)
	_, err = client.ListFlows(context.Background(), app)
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))

	atomic.StoreInt32(&status, http.StatusTooManyRequests)
	_, err = client.ListFlows(context.Background(), app)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestFetchArchiveStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		io.WriteString(w, "zipbytes")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logger.NewNop())
	body, err := client.FetchArchive(context.Background(), models.Flow{
		ID: "f", Name: "F", URL: server.URL,
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "zipbytes", string(data))
}

func TestFetchArchiveRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := NewClient(10*time.Second, logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchArchive(ctx, models.Flow{ID: "f", Name: "F", URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
