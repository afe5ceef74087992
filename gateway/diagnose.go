package gateway

import (
	"context"
	"errors"
)

// Diagnosis reports whether the gateway is configured and can reach the
// token endpoint. It never contains credential values.
type Diagnosis struct {
	BaseURL                string `json:"base_url"`
	TestMode               bool   `json:"test_mode"`
	ClientIDConfigured     bool   `json:"client_id_configured"`
	APIKeyConfigured       bool   `json:"api_key_configured"`
	TransportKeyConfigured bool   `json:"transport_key_configured"`
	Reachable              bool   `json:"reachable"`
	Authenticated          bool   `json:"authenticated"`
	Error                  string `json:"error,omitempty"`
}

// Diagnose obtains an access token (from cache or the token endpoint).
func (c *Client) Diagnose(ctx context.Context) Diagnosis {
	d := Diagnosis{
		BaseURL:                c.cfg.BaseURL,
		TestMode:               c.cfg.TestMode,
		ClientIDConfigured:     c.cfg.ClientID != "",
		APIKeyConfigured:       c.cfg.APIKey != "",
		TransportKeyConfigured: c.cipher != nil,
	}
	if _, err := c.tokens.Token(ctx); err != nil {
		d.Error = err.Error()
		var ge *Error
		d.Reachable = errors.As(err, &ge) && ge.StatusCode != 0
		return d
	}
	d.Reachable = true
	d.Authenticated = true
	return d
}
