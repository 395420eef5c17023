package resources

import (
	"fmt"

	"github.com/getmockd/resourcebind/pkg/resource"
)

// RepositoryBranchSchema maps one entry of a repository's branch list.
var RepositoryBranchSchema = resource.MustSchema(resource.Schema{
	Name:        "RepositoryBranch",
	IDAttribute: "name",
	WireSchema:  wireSchema("repository_branch.json"),
	Defaults: map[string]any{
		"isDefault": false,
	},
	Fields: []resource.Field{
		{Wire: "name", Kind: resource.KindString, Required: true},
		{Wire: "commit", Kind: resource.KindString},
		{Wire: "default", Attr: "isDefault", Kind: resource.KindBool},
	},
})

// RepositoryBranchesURL returns the branch list endpoint of a repository.
func RepositoryBranchesURL(repositoryID any) string {
	return fmt.Sprintf("/api/repositories/%v/branches/", repositoryID)
}

// RepositoryBranches is the branch list of a repository.
type RepositoryBranches struct {
	*resource.Collection
}

// NewRepositoryBranches creates an empty branch collection. Set its URL
// (see RepositoryBranchesURL) before fetching.
func NewRepositoryBranches(opts ...resource.CollectionOption) *RepositoryBranches {
	opts = append([]resource.CollectionOption{resource.WithArrayKey("branches")}, opts...)
	return &RepositoryBranches{Collection: resource.NewCollection(RepositoryBranchSchema, opts...)}
}

// Default returns the repository's default branch, or nil.
func (b *RepositoryBranches) Default() *resource.Model {
	for _, m := range b.Models() {
		if isDefault, _ := m.Get("isDefault").(bool); isDefault {
			return m
		}
	}
	return nil
}

// Names returns the branch names in order.
func (b *RepositoryBranches) Names() []string {
	return resource.Reduce(b.Collection, func(acc []string, m *resource.Model) []string {
		name, _ := m.Get("name").(string)
		return append(acc, name)
	}, nil)
}
