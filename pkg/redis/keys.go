package redis

import "strings"

// Every key lives under one namespace so a shared Redis can host other
// services. Empty parts are dropped.
const keyNamespace = "nc"

func key(parts ...string) string {
	out := make([]string, 1, len(parts)+1)
	out[0] = keyNamespace
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

func (c *Client) IdempotencyKey(scope, id string) string { return key("idempotency", scope, id) }

func (c *Client) RateLimitKey(scope string) string { return key("rate_limit", scope) }

func (c *Client) CooldownKey(scope string) string { return key("cooldown", scope) }

func (c *Client) ResetTokenKey(code string) string { return key("reset", code) }

// AccessSessionKey holds the refresh session of one access token jti.
func (c *Client) AccessSessionKey(accessID string) string { return key("session", "access", accessID) }

// UserSessionsKey is the set of a user's live access IDs.
func (c *Client) UserSessionsKey(userID string) string { return key("session", "user", userID) }

// ChannelName is the pub/sub channel carrying changes for topic.
func (c *Client) ChannelName(topic string) string { return key("channel", topic) }
