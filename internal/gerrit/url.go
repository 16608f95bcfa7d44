package gerrit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// changeURLRegex matches the change page URLs of the PolyGerrit and the old
// GWT user interfaces, with an optional patch set suffix.
var changeURLRegex = regexp.MustCompile(`^(https?://.+?)/(?:#/)?(?:c/(?:.+/\+/)?)?(\d+)(?:/\d+)?$`)

// ParseChangeURL extracts the instance base URL and the change number from a
// change page URL.
// Supported formats:
//
//	https://{host}/c/{project}/+/{number}[/{patchset}]
//	https://{host}/#/c/{number}/
//	https://{host}/{number}
func ParseChangeURL(url string) (baseURL string, number int, err error) {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")

	matches := changeURLRegex.FindStringSubmatch(url)
	if len(matches) != 3 {
		return "", 0, fmt.Errorf("invalid change URL format: %s", url)
	}

	number, err = strconv.Atoi(matches[2])
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("invalid change number '%s' in %s", matches[2], url)
	}
	return matches[1], number, nil
}
