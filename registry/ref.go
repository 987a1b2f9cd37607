package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
	"oras.land/oras-go/v2/registry"
)

// clientRef holds the parsed components of a reference.
type clientRef struct {
	registry   string
	repository string
	reference  string
}

func parseClientRef(ref string) (clientRef, error) {
	r, err := registry.ParseReference(ref)
	if err != nil {
		return clientRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return clientRef{
		registry:   r.Registry,
		repository: r.Repository,
		reference:  r.Reference,
	}, nil
}

// isDigest returns true if the reference is a digest (not a tag).
func isDigest(ref string) bool {
	return strings.Contains(ref, ":")
}

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]{0,127}$`)

// TagFor returns the tag under which name is stored. Names that are valid
// tags are used as-is; any other name maps to "sha256-" and the hex digest
// of the name.
func TagFor(name string) string {
	if tagPattern.MatchString(name) {
		return name
	}
	return "sha256-" + digest.FromString(name).Encoded()
}

// Reference joins a repository ("host/path") and a tag.
func Reference(repository, tag string) string {
	return strings.TrimSuffix(repository, "/") + ":" + tag
}
