package types

import "fmt"

// ArtifactNamespace identifies the external source system an artifact
// belongs to.
type ArtifactNamespace string

const (
	NamespaceGithub   ArtifactNamespace = "GITHUB"
	NamespaceGitlab   ArtifactNamespace = "GITLAB"
	NamespaceNpm      ArtifactNamespace = "NPM_REGISTRY"
	NamespaceEthereum ArtifactNamespace = "ETHEREUM"
	NamespaceOptimism ArtifactNamespace = "OPTIMISM"
)

// ArtifactType identifies the kind of entity an artifact refers to.
type ArtifactType string

const (
	ArtifactRepository   ArtifactType = "REPOSITORY"
	ArtifactUser         ArtifactType = "USER"
	ArtifactOrganization ArtifactType = "ORGANIZATION"
	ArtifactPackage      ArtifactType = "PACKAGE"
	ArtifactContract     ArtifactType = "CONTRACT_ADDRESS"
)

// Artifact is a trackable external entity. Identity is the triple
// (Namespace, Type, Name) and never changes; ID is assigned by the store
// on first sight and is zero until then (an "incomplete" artifact).
type Artifact struct {
	ID        int64             `json:"id,omitempty"`
	Namespace ArtifactNamespace `json:"namespace"`
	Type      ArtifactType      `json:"type"`
	Name      string            `json:"name"`
}

// NewArtifact returns an incomplete artifact carrying only its identity.
func NewArtifact(ns ArtifactNamespace, typ ArtifactType, name string) Artifact {
	return Artifact{Namespace: ns, Type: typ, Name: name}
}

// Key returns the canonical identity key used for cache and index lookups.
// Two artifacts with the same identity share a key regardless of ID.
func (a Artifact) Key() string {
	return fmt.Sprintf("%s::%s::%s", a.Namespace, a.Type, a.Name)
}

// Complete reports whether the artifact has a store-assigned ID.
func (a Artifact) Complete() bool {
	return a.ID != 0
}

// Validate checks that the identity triple is fully populated.
func (a Artifact) Validate() error {
	if a.Namespace == "" || a.Type == "" || a.Name == "" {
		return NewError(ErrInvalidArtifact,
			fmt.Sprintf("artifact identity incomplete: namespace=%q type=%q name=%q", a.Namespace, a.Type, a.Name))
	}
	return nil
}

// ArtifactGroup is a named owner (typically a project) together with the
// ordered artifacts it owns. A group shares one fetch range and one commit
// boundary; its artifacts are processed in slice order.
type ArtifactGroup struct {
	Name      string     `json:"name"`
	Artifacts []Artifact `json:"artifacts"`
}

// NewArtifactGroup creates a group owning the given artifacts.
func NewArtifactGroup(name string, artifacts ...Artifact) ArtifactGroup {
	return ArtifactGroup{Name: name, Artifacts: artifacts}
}
