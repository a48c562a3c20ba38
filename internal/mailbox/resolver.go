package mailbox

import (
	"fmt"
	"strings"
)

// Default IMAP endpoints for well-known providers. Keyed by the provider
// tag stored on the account and by the mail domain, so a setup flow can
// resolve either "gmail" or "alice@gmail.com".
var knownProviders = map[string]string{
	"gmail":          "imap.gmail.com:993",
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook":        "outlook.office365.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"yahoo":          "imap.mail.yahoo.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"icloud":         "imap.mail.me.com:993",
	"icloud.com":     "imap.mail.me.com:993",
	"me.com":         "imap.mail.me.com:993",
	"aol.com":        "imap.aol.com:993",
	"zoho.com":       "imap.zoho.com:993",
	"fastmail":       "imap.fastmail.com:993",
	"fastmail.com":   "imap.fastmail.com:993",
	"gmx.com":        "imap.gmx.com:993",
	"gmx.de":         "imap.gmx.net:993",
	"web.de":         "imap.web.de:993",
}

// ResolveHost returns the IMAP host and port for a provider tag or mailbox
// address. Unknown domains fall back to the imap.<domain>:993 convention.
func ResolveHost(providerOrEmail string) (string, int, error) {
	key := strings.ToLower(strings.TrimSpace(providerOrEmail))
	if key == "" {
		return "", 0, fmt.Errorf("empty provider")
	}

	// Accept a full mailbox address and resolve by its domain
	if at := strings.LastIndex(key, "@"); at >= 0 {
		key = key[at+1:]
		if key == "" {
			return "", 0, fmt.Errorf("invalid email format")
		}
	}

	addr, ok := knownProviders[key]
	if !ok {
		if !strings.Contains(key, ".") {
			return "", 0, fmt.Errorf("unknown provider %q", key)
		}
		addr = "imap." + key + ":993"
	}

	host, port, err := splitAddr(addr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func splitAddr(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 993, nil
	}
	var port int
	if _, err := fmt.Sscanf(addr[idx+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}
