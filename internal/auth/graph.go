package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"invoicedash/internal"
	"invoicedash/internal/util"
)

// GraphClient reads the signed-in user's profile from Microsoft Graph.
type GraphClient struct {
	client *resty.Client
}

type graphProfile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func NewGraphClient(baseURL string) *GraphClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r != nil && r.StatusCode() >= 500
	})
	return &GraphClient{client: client}
}

func (g *GraphClient) Me(ctx context.Context, accessToken string) (internal.User, error) {
	var profile graphProfile
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&profile).
		Get("/me")
	if err != nil {
		return internal.User{}, fmt.Errorf("graph /me: %w", err)
	}
	if resp.IsError() {
		return internal.User{}, fmt.Errorf("graph /me: status %d", resp.StatusCode())
	}
	if profile.ID == "" {
		return internal.User{}, fmt.Errorf("graph /me: profile without id")
	}
	return internal.User{
		ID:    profile.ID,
		Name:  util.FirstNonEmpty(profile.DisplayName, profile.UserPrincipalName),
		Email: util.FirstNonEmpty(profile.Mail, profile.UserPrincipalName),
	}, nil
}
