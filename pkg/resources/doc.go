// Package resources declares the concrete Review Board resource types built
// on package resource: user file attachments, diff files, and repository
// branches. Each type is a mapping table plus a thin typed wrapper.
package resources

import (
	"embed"
	"path"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// wireSchema returns an embedded JSON Schema by file name.
func wireSchema(name string) []byte {
	data, err := schemaFS.ReadFile(path.Join("schemas", name))
	if err != nil {
		panic(err)
	}
	return data
}
