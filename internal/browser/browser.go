// Package browser hands URLs to the desktop's default handler.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
}

// Open launches the platform's default handler for rawURL. Only http, https
// and mailto links are accepted.
func Open(rawURL string) error {
	name, args, err := Command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

// Command returns the launcher invocation for goos without running it.
func Command(goos, rawURL string) (string, []string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}
	// scheme check keeps the launcher from receiving arbitrary arguments
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return "", nil, fmt.Errorf("refusing to open %q URL", u.Scheme)
	}
	target := u.String()

	switch goos {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform %s", goos)
	}
}
