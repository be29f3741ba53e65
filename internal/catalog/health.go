package catalog

import (
	"context"
	"fmt"
	"net/http"
)

// Health is the snapshot produced by one connectivity check. It is
// recomputed on demand and never persisted.
type Health struct {
	// ServerReachable is true when the liveness endpoint answered 2xx.
	ServerReachable bool `json:"serverReachable"`
	// Authorized is true when the configured token passed the identity probe.
	Authorized bool `json:"authorized"`
	// CollectionAccessible is true when the target collection could be listed.
	CollectionAccessible bool `json:"collectionAccessible"`
	// Detail carries diagnostic text for the first failed stage.
	Detail string `json:"detail,omitempty"`
}

// Ready reports whether all three stages passed.
func (h Health) Ready() bool {
	return h.ServerReachable && h.Authorized && h.CollectionAccessible
}

// CheckConnection runs the three-stage reachability and authorization probe
// that gates every sync run. The stages run in order and short-circuit on
// the first failure:
//
//  1. liveness:   GET /server/info
//  2. identity:   GET /users/me with the configured token
//  3. collection: GET /items/<collection>?limit=1
//
// Network failures (timeout, DNS) are reported as an unreachable server,
// never propagated as errors. A 403 on the collection probe is called out
// as a permissions problem rather than a generic failure.
func (c *Client) CheckConnection(ctx context.Context) (bool, Health) {
	var health Health

	status, _, err := c.get(ctx, "/server/info")
	if err != nil {
		health.Detail = fmt.Sprintf("server unreachable: %v", err)
		return false, health
	}
	if status < 200 || status > 299 {
		health.Detail = fmt.Sprintf("server liveness probe returned HTTP %d", status)
		return false, health
	}
	health.ServerReachable = true

	status, body, err := c.get(ctx, "/users/me")
	if err != nil {
		health.ServerReachable = false
		health.Detail = fmt.Sprintf("server unreachable: %v", err)
		return false, health
	}
	if status < 200 || status > 299 {
		health.Detail = fmt.Sprintf("authentication failed (HTTP %d)", status)
		if msg := errorMessage(body); msg != "" {
			health.Detail += ": " + msg
		}
		return false, health
	}
	health.Authorized = true

	status, body, err = c.get(ctx, fmt.Sprintf("/items/%s?limit=1", c.collection))
	if err != nil {
		health.ServerReachable = false
		health.Authorized = false
		health.Detail = fmt.Sprintf("server unreachable: %v", err)
		return false, health
	}
	if status == http.StatusForbidden {
		health.Detail = fmt.Sprintf("token lacks permission to read collection %q", c.collection)
		return false, health
	}
	if status < 200 || status > 299 {
		health.Detail = fmt.Sprintf("collection %q probe returned HTTP %d", c.collection, status)
		if msg := errorMessage(body); msg != "" {
			health.Detail += ": " + msg
		}
		return false, health
	}
	health.CollectionAccessible = true

	return true, health
}
