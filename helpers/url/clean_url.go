package url_helpers

import (
	"net/url"
	"strings"
)

// CleanURL drops credentials, query and fragment so the URL can be logged.
func CleanURL(value string) (ret string) {
	u, err := url.Parse(value)
	if err != nil {
		return
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Host returns the host (including the port) of a platform URL. Bare
// hostnames are accepted as well.
func Host(value string) string {
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}

	u, err := url.Parse(value)
	if err != nil {
		return ""
	}

	return u.Host
}

// APIBase returns the URL without a trailing slash so endpoint paths can be
// appended to it.
func APIBase(value string) string {
	return strings.TrimRight(CleanURL(value), "/")
}
