package github

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/eventflow/types"
)

// Locator is a parsed repository reference.
type Locator struct {
	Owner string
	Name  string
}

// String returns the canonical owner/name form.
func (l Locator) String() string {
	return l.Owner + "/" + l.Name
}

// Artifact returns the repository artifact this locator refers to.
func (l Locator) Artifact() types.Artifact {
	return types.NewArtifact(types.NamespaceGithub, types.ArtifactRepository, l.String())
}

// ParseLocator resolves the repository references that show up in project
// registries: bare "owner/name", https URLs, and ssh remotes. A trailing
// ".git" is stripped.
func ParseLocator(s string) (Locator, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Locator{}, types.NewError(types.ErrInvalidArtifact, "empty repository locator")
	}

	cleaned := raw
	switch {
	case strings.HasPrefix(raw, "git@"):
		// git@github.com:owner/name.git
		_, after, found := strings.Cut(raw, ":")
		if !found {
			return Locator{}, types.NewError(types.ErrInvalidArtifact,
				fmt.Sprintf("unparseable ssh locator %q", s))
		}
		cleaned = after
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Locator{}, types.NewError(types.ErrInvalidArtifact,
				fmt.Sprintf("unparseable url locator %q", s)).WithCause(err)
		}
		cleaned = strings.TrimPrefix(u.Path, "/")
	}

	cleaned = strings.TrimSuffix(strings.Trim(cleaned, "/"), ".git")
	parts := strings.Split(cleaned, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Locator{}, types.NewError(types.ErrInvalidArtifact,
			fmt.Sprintf("locator %q does not resolve to owner/name", s))
	}
	return Locator{Owner: parts[0], Name: parts[1]}, nil
}
