package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Henry-Sarabia/igdb/v2"
	"github.com/go-resty/resty/v2"
)

// getTwitchToken fetches an App Access Token from Twitch.
func getTwitchToken(ctx context.Context, client *resty.Client, authURL, clientID, clientSecret string) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	res, err := client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     clientID,
			"client_secret": clientSecret,
			"grant_type":    "client_credentials",
		}).
		SetResult(&result).
		Post(authURL)
	if err != nil {
		return "", err
	}
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %s", res.Status())
	}
	if result.AccessToken == "" {
		return "", errors.New("empty access token in response")
	}
	return result.AccessToken, nil
}

// preflightIGDB makes one cheap query to confirm the credentials work.
func preflightIGDB(clientID, token string, httpClient *http.Client) error {
	client := igdb.NewClient(clientID, token, httpClient)
	_, err := client.Games.Search("mario", igdb.SetFields("id"), igdb.SetLimit(1))
	if err != nil && !errors.Is(err, igdb.ErrNoResults) {
		return err
	}
	return nil
}
