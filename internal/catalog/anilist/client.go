// Package anilist implements the catalog contract against the AniList GraphQL API.
package anilist

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/machinebox/graphql"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

const (
	graphqlURL = "https://graphql.anilist.co"
	// APITag is the media_api tag this client writes into the registry
	APITag = "anilist"
)

// Client is the AniList catalog client.  Session state (token, viewer) is
// carried on the struct, never in globals.
type Client struct {
	client *graphql.Client
	auth   *catalog.AuthStore

	mu    sync.RWMutex
	token string
	user  *domain.UserProfile
}

// New creates a client.  A credential previously persisted in the auth store is
// picked up without re-validating; the first authenticated call surfaces a
// rejection if the token has gone stale.
func New(auth *catalog.AuthStore) *Client {
	c := &Client{
		client: graphql.NewClient(graphqlURL),
		auth:   auth,
	}

	if record := auth.Load(APITag); record != nil && record.Token != "" {
		c.token = record.Token
		c.user = record.UserProfile
	}
	return c
}

// Authenticate validates the token by fetching the viewer profile.  On success
// the credential is persisted; on rejection the stored credential is cleared.
func (c *Client) Authenticate(ctx context.Context, token string) (*domain.UserProfile, error) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	user, err := c.fetchViewer(ctx)
	if err != nil {
		c.mu.Lock()
		c.token = ""
		c.user = nil
		c.mu.Unlock()
		c.auth.Clear(APITag)

		var netErr *catalog.NetworkError
		if errors.As(err, &netErr) {
			return nil, err
		}
		return nil, catalog.ErrAuthRejected
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	if err := c.auth.Save(APITag, &catalog.AuthRecord{UserProfile: user, Token: token}); err != nil {
		log.Error("Failed to persist catalog credential", "api", APITag, "error", err)
	}
	return user, nil
}

// IsAuthenticated reports whether a token is held
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// ViewerProfile returns the cached viewer profile, or nil
func (c *Client) ViewerProfile() *domain.UserProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// query runs a GraphQL request with auth headers and a short transient retry
func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}, result interface{}) error {
	req := graphql.NewRequest(query)

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for key, value := range variables {
		req.Var(key, value)
	}

	err := retry.Do(
		func() error { return c.client.Run(ctx, req, result) },
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil && isTransient(err) {
		return &catalog.NetworkError{Err: err}
	}
	return err
}

// isTransient classifies transport-level failures worth retrying
func isTransient(err error) bool {
	var netErr *url.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout")
}

func (c *Client) fetchViewer(ctx context.Context) (*domain.UserProfile, error) {
	query := `
        query {
            Viewer {
                id
                name
                avatar {
                    medium
                }
            }
        }
    `

	var response struct {
		Viewer struct {
			ID     int
			Name   string
			Avatar struct{ Medium string }
		}
	}

	if err := c.query(ctx, query, nil, &response); err != nil {
		return nil, err
	}

	if response.Viewer.ID == 0 {
		return nil, catalog.ErrAuthRejected
	}

	log.Info("Fetched viewer profile", "id", response.Viewer.ID)

	return &domain.UserProfile{
		ID:     response.Viewer.ID,
		Name:   response.Viewer.Name,
		Avatar: response.Viewer.Avatar.Medium,
	}, nil
}
