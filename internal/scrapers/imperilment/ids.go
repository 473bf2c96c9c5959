package imperilment

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseCreatedLocation splits a creation redirect of the form `<base>/<resource>/<id>`
// into its resource name and id. Relative locations are resolved against `base`.
func ParseCreatedLocation(location, base string) (string, uint64, error) {
	if location == "" {
		return "", 0, fmt.Errorf("%w: response did not redirect", ErrIdExtractionFailed)
	}
	baseUrl, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", 0, fmt.Errorf("%w: parse base %q: %w", ErrIdExtractionFailed, base, err)
	}
	locationUrl, err := url.Parse(location)
	if err != nil {
		return "", 0, fmt.Errorf("%w: parse location %q: %w", ErrIdExtractionFailed, location, err)
	}
	resolved := baseUrl.ResolveReference(locationUrl)

	if !strings.EqualFold(resolved.Host, baseUrl.Host) {
		return "", 0, fmt.Errorf("%w: location %q is not under %q", ErrIdExtractionFailed, location, base)
	}
	prefix := baseUrl.Path + "/"
	if !strings.HasPrefix(resolved.Path, prefix) {
		return "", 0, fmt.Errorf("%w: location %q is not under %q", ErrIdExtractionFailed, location, base)
	}

	segments := strings.Split(strings.Trim(strings.TrimPrefix(resolved.Path, prefix), "/"), "/")
	if len(segments) != 2 {
		return "", 0, fmt.Errorf("%w: location %q is not <resource>/<id>", ErrIdExtractionFailed, location)
	}
	id, err := strconv.ParseUint(segments[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: location %q does not end in an id", ErrIdExtractionFailed, location)
	}
	return segments[0], id, nil
}

// ExtractCreatedId returns the id of the resource a creation response redirected to.
func ExtractCreatedId(location, base string) (uint64, error) {
	_, id, err := ParseCreatedLocation(location, base)
	return id, err
}
