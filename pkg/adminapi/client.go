package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dtn "github.com/go-dtn/upcn"
)

// ContactView mirrors manager.ContactSnapshot on the wire, decoupled from
// the server package so a client binary never needs to import pkg/manager.
type ContactView struct {
	CLA           string  `json:"CLA"`
	Key           string  `json:"Key"`
	PeerEID       dtn.EID `json:"PeerEID"`
	CLAAddr       string  `json:"CLAAddr"`
	State         string  `json:"State"`
	InContact     bool    `json:"InContact"`
	Opportunistic bool    `json:"Opportunistic"`
	RetryCount    int     `json:"RetryCount"`
}

// Client queries a remote Server's /contacts endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a Client against baseURL, e.g. "http://127.0.0.1:9091".
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

// Contacts fetches the remote node's current contact registry snapshot.
func (c *Client) Contacts() ([]ContactView, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/contacts")
	if err != nil {
		return nil, fmt.Errorf("adminapi: requesting contacts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adminapi: unexpected status %s", resp.Status)
	}
	var views []ContactView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("adminapi: decoding response: %w", err)
	}
	return views, nil
}
