package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks a backend endpoint URL. Private and loopback hosts are
// allowed since the backend usually runs next to the orchestrator.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend url scheme %q (must be http or https)", u.Scheme)
	}

	if u.Hostname() == "" {
		return fmt.Errorf("invalid backend url host %q", u.Host)
	}

	if u.User != nil {
		return fmt.Errorf("backend url must not contain userinfo")
	}

	if u.Fragment != "" {
		return fmt.Errorf("backend url must not contain fragment")
	}

	return nil
}
