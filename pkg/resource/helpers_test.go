package resource

import (
	"github.com/getmockd/resourcebind/pkg/fetch/fetchtest"
)

// --- Helpers ---

var branchSchema = MustSchema(Schema{
	Name:        "Branch",
	IDAttribute: "name",
	Defaults:    map[string]any{"isDefault": false},
	Fields: []Field{
		{Wire: "name", Kind: KindString, Required: true},
		{Wire: "commit", Kind: KindString},
		{Wire: "default", Attr: "isDefault", Kind: KindBool},
	},
})

var attachmentSchema = MustSchema(Schema{
	Name:        "Attachment",
	ResourceKey: "user_file_attachment",
	URLRoot:     "/api/users/admin/user-file-attachments/",
	Fields: []Field{
		{Wire: "id", Kind: KindInt},
		{Wire: "caption", Kind: KindString},
		{Wire: "filename", Kind: KindString},
		{Wire: "absolute_url", Attr: "downloadURL", Kind: KindString},
	},
	Out: []OutField{
		{Attr: "caption", Policy: SendIfSet},
		{Attr: "file", Wire: "path", Policy: SendIfNewOrChanged},
	},
})

const branchesURL = "/api/repositories/123/branches/"

func branchesPayload() map[string]any {
	return map[string]any{
		"stat": "ok",
		"branches": []any{
			map[string]any{"commit": "859d4e148ce3ce60bbda6622cdbe5c2c2f8d9817", "default": true, "name": "master"},
			map[string]any{"commit": "92463764015ef463b4b6d1a1825fee7aeec8cb15", "default": false, "name": "release-1.7.x"},
			map[string]any{"commit": "a15d0e635064a2e1929ce1bf3bc8d4aa65738b64", "default": false, "name": "release-1.6.x"},
		},
	}
}

func newBranches(client *fetchtest.Client, opts ...CollectionOption) *Collection {
	base := []CollectionOption{
		WithCollectionClient(client),
		WithCollectionURL(branchesURL),
		WithArrayKey("branches"),
	}
	return NewCollection(branchSchema, append(base, opts...)...)
}
