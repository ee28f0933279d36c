// Package fixtures provides canonical test data for eventflow tests:
// artifacts, groups, and pre-built events with deterministic keys.
package fixtures

import (
	"github.com/BaSui01/eventflow/types"
)

// Repo returns a GitHub repository artifact named owner/name.
func Repo(owner, name string) types.Artifact {
	return types.NewArtifact(types.NamespaceGithub, types.ArtifactRepository, owner+"/"+name)
}

// User returns a GitHub user artifact.
func User(login string) types.Artifact {
	return types.NewArtifact(types.NamespaceGithub, types.ArtifactUser, login)
}

// Group returns an artifact group owning the given artifacts.
func Group(name string, artifacts ...types.Artifact) types.ArtifactGroup {
	return types.NewArtifactGroup(name, artifacts...)
}

// SoloRepoGroup returns a one-repository group, the most common shape in
// collector tests.
func SoloRepoGroup(owner, name string) types.ArtifactGroup {
	return Group(owner+"-project", Repo(owner, name))
}
