package btcpay

import (
	"net/url"
	"strings"
)

// AuthorizeURL is where an admin is sent to create an API key for one
// store. The server posts apiKey and permissions back to redirect.
func AuthorizeURL(serverURL string, permissions []string, applicationName, redirect, applicationID string) string {
	q := url.Values{}
	for _, p := range permissions {
		q.Add("permissions", p)
	}
	q.Set("applicationName", applicationName)
	q.Set("strict", "true")
	q.Set("selectiveStores", "true")
	q.Set("redirect", redirect)
	q.Set("applicationIdentifier", applicationID)

	return strings.TrimRight(serverURL, "/") + "/api-keys/authorize?" + q.Encode()
}
