package search

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	catalogPath = regexp.MustCompile(`^/catalog/(\d+)(?:/|$)`)
	bareID      = regexp.MustCompile(`^\d+$`)
)

// ProductIDFromURL extracts the product id from a marketplace product link
// such as https://www.wildberries.ru/catalog/12345/detail.aspx. A bare
// numeric id is accepted as is.
func ProductIDFromURL(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("empty product link")
	}
	if bareID.MatchString(link) {
		return link, nil
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse product link: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "wildberries.ru" {
		return "", fmt.Errorf("unsupported product host %q", u.Hostname())
	}
	m := catalogPath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("no product id in %q", u.Path)
	}
	return m[1], nil
}
