package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Account is an identity-provider account as it appears on the wire, both in
// the directory API and in webhook event payloads. Optional fields are
// pointers so "absent" and "explicitly empty" stay distinguishable.
type Account struct {
	ID                    string         `json:"id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              *string        `json:"image_url"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
}

// EmailAddress is one entry of an account's email address list.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// PrimaryEmail returns the account's primary email address, or ok=false when
// the account has none (hidden or not yet verified).
func (a *Account) PrimaryEmail() (string, bool) {
	for _, e := range a.EmailAddresses {
		if e.ID == a.PrimaryEmailAddressID {
			return e.EmailAddress, true
		}
	}
	return "", false
}

// Directory fetches account profiles from the identity provider. Used by the
// user-resolution step when a verified subject has no local record yet.
type Directory interface {
	GetAccount(ctx context.Context, subjectID string) (*Account, error)
}

// HTTPDirectory talks to the identity provider's backend user API.
//
// The API authenticates with the provider secret key as a bearer token.
// oauth2.NewClient with a static token source gives us an *http.Client that
// injects the Authorization header on every request, so the secret is
// configured exactly once at construction — never hardcoded at call sites.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

var _ Directory = (*HTTPDirectory)(nil)

// NewHTTPDirectory creates a directory client for the provider API at
// baseURL, authenticated with secretKey.
func NewHTTPDirectory(baseURL, secretKey string) *HTTPDirectory {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: secretKey})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = 10 * time.Second

	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// GetAccount fetches one account by subject id.
//
// Any failure — network, non-200 status, undecodable body — is returned as
// an error for the caller to classify; the resolution step maps it to a
// server error rather than proceeding with a partial user.
func (d *HTTPDirectory) GetAccount(ctx context.Context, subjectID string) (*Account, error) {
	url := d.baseURL + "/v1/users/" + subjectID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling identity directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: identity directory returned status %d for subject %s",
			resp.StatusCode, subjectID)
	}

	var acct Account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, fmt.Errorf("auth: decoding directory response: %w", err)
	}

	if acct.ID == "" {
		return nil, fmt.Errorf("auth: identity directory returned an account without an id")
	}

	return &acct, nil
}
