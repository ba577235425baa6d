package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/openredstone/linkore/internal/domain"
)

// NATS subjects served by the proxy-side plugin.
const (
	SubjectPrimary = "linkore.perms.primary"
	SubjectTrack   = "linkore.perms.track"
	SubjectChanged = "linkore.perms.changed"
)

const requestTimeout = 5 * time.Second

type primaryRequest struct {
	UUID string `json:"uuid"`
}

type primaryResponse struct {
	PrimaryGroup string `json:"primary_group"`
	Error        string `json:"error,omitempty"`
}

type trackRequest struct {
	Track string `json:"track"`
}

type trackResponse struct {
	Groups []string `json:"groups"`
	Error  string   `json:"error,omitempty"`
}

// Client implements Provider over NATS request-reply. The proxy plugin holds
// the authoritative permission data and answers these subjects.
type Client struct {
	nc *nats.Conn
}

// NewClient wraps an existing NATS connection.
func NewClient(nc *nats.Conn) *Client {
	return &Client{nc: nc}
}

// PrimaryGroup asks the plugin for the player's current primary group.
func (c *Client) PrimaryGroup(ctx context.Context, id uuid.UUID) (string, error) {
	var resp primaryResponse
	if err := c.request(ctx, SubjectPrimary, primaryRequest{UUID: id.String()}, &resp); err != nil {
		return "", fmt.Errorf("primary group lookup for %s: %w", id, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("primary group lookup for %s: %s", id, resp.Error)
	}
	return resp.PrimaryGroup, nil
}

// TrackGroups asks the plugin for the groups of the named track.
func (c *Client) TrackGroups(ctx context.Context, track string) ([]string, error) {
	var resp trackResponse
	if err := c.request(ctx, SubjectTrack, trackRequest{Track: track}, &resp); err != nil {
		return nil, fmt.Errorf("track lookup for %q: %w", track, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("track lookup for %q: %s", track, resp.Error)
	}
	return resp.Groups, nil
}

// SubscribeChanges delivers permission-change events to the handler until the
// returned subscription is unsubscribed. Malformed payloads are dropped.
func (c *Client) SubscribeChanges(handler func(domain.PermissionChange)) (*nats.Subscription, error) {
	return c.nc.Subscribe(SubjectChanged, func(msg *nats.Msg) {
		var change domain.PermissionChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			return
		}
		handler(change)
	})
}

func (c *Client) request(ctx context.Context, subject string, req, resp interface{}) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(msg.Data, resp)
}
