package resources

import (
	"github.com/getmockd/resourcebind/pkg/resource"
)

var revisionRef = []resource.Field{
	{Wire: "id", Kind: resource.KindInt},
	{Wire: "revision", Kind: resource.KindInt},
}

// DiffFileSchema maps a file entry of the diff viewer payload.
var DiffFileSchema = resource.MustSchema(resource.Schema{
	Name:       "DiffFile",
	WireSchema: wireSchema("diff_file.json"),
	Fields: []resource.Field{
		{Wire: "base_filediff_id", Attr: "baseFileDiffID", Kind: resource.KindInt},
		{Wire: "binary", Kind: resource.KindBool},
		{Wire: "comment_counts", Attr: "commentCounts", Kind: resource.KindList},
		{Wire: "deleted", Kind: resource.KindBool},
		{Wire: "filediff", Kind: resource.KindRecord, Record: revisionRef},
		{Wire: "id", Kind: resource.KindInt},
		{Wire: "index", Kind: resource.KindInt},
		{Wire: "interfilediff", Kind: resource.KindRecord, Record: revisionRef},
		{Wire: "modified_filename", Attr: "modifiedFilename", Kind: resource.KindString},
		{Wire: "modified_revision", Attr: "modifiedRevision", Kind: resource.KindString},
		{Wire: "newfile", Kind: resource.KindBool},
		{Wire: "orig_filename", Attr: "origFilename", Kind: resource.KindString},
		{Wire: "orig_revision", Attr: "origRevision", Kind: resource.KindString},
	},
	Computed: []resource.Computed{
		{Attr: "isRename", Expr: `origFilename != nil && modifiedFilename != nil && origFilename != modifiedFilename`},
	},
})

// Revision points at a FileDiff within a diff revision.
type Revision struct {
	ID       int
	Revision int
}

// DiffFile is one file shown in the diff viewer.
type DiffFile struct {
	*resource.Model
}

// NewDiffFile creates a diff file model.
func NewDiffFile(attrs map[string]any, opts ...resource.Option) (*DiffFile, error) {
	m, err := resource.New(DiffFileSchema, attrs, opts...)
	if err != nil {
		return nil, err
	}
	return &DiffFile{Model: m}, nil
}

// FileDiff returns the FileDiff this entry shows, or nil.
func (d *DiffFile) FileDiff() *Revision {
	return revisionOf(d.Get("filediff"))
}

// InterFileDiff returns the interdiff FileDiff, or nil when not an interdiff.
func (d *DiffFile) InterFileDiff() *Revision {
	return revisionOf(d.Get("interfilediff"))
}

// OrigFilename returns the original file name.
func (d *DiffFile) OrigFilename() string {
	s, _ := d.Get("origFilename").(string)
	return s
}

// ModifiedFilename returns the modified file name.
func (d *DiffFile) ModifiedFilename() string {
	s, _ := d.Get("modifiedFilename").(string)
	return s
}

// IsRename reports whether the file was renamed.
func (d *DiffFile) IsRename() bool {
	b, _ := d.Get("isRename").(bool)
	return b
}

func revisionOf(v any) *Revision {
	rec, ok := v.(resource.Record)
	if !ok {
		return nil
	}
	return &Revision{ID: rec.Int("id"), Revision: rec.Int("revision")}
}
