package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dtn/upcn/pkg/manager"
)

func TestHandleContactsReturnsSnapshots(t *testing.T) {
	mgr, err := manager.New("mtcp:127.0.0.1,0", manager.Config{})
	require.NoError(t, err)
	require.NoError(t, mgr.StartScheduledContact("mtcp", "dtn://ground", "10.0.0.1:4556"))

	srv := NewServer(mgr)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewClient(ts.URL)
	views, err := client.Contacts()
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "mtcp", views[0].CLA)
	assert.Equal(t, "10.0.0.1:4556", views[0].CLAAddr)
	assert.False(t, views[0].Opportunistic)
}

func TestHandleContactsRejectsNonGet(t *testing.T) {
	mgr, err := manager.New("mtcp:127.0.0.1,0", manager.Config{})
	require.NoError(t, err)

	srv := NewServer(mgr)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/contacts", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
