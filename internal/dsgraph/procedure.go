// Procedures: a parameterized configuration template or small program
// bundled with a dataset that prepares it for a particular use (e.g.,
// text-in-git, yoda layout). A Procedure is a named bundle of file
// operations applied to a fresh working tree, run from the new dataset's
// creation path.
package dsgraph

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"text/template"

	"github.com/datalad-core/datalad/internal/errs"
)

// Procedure is one named configuration template.
type Procedure struct {
	Name string
	// Files maps a relpath within the new dataset to a text/template body
	// rendered against TemplateData.
	Files map[string]string
}

// TemplateData is what a procedure's templates see.
type TemplateData struct {
	DatasetRoot string
	DatasetID   string
}

// builtinProcedures are the procedures datalad-core ships built in.
var builtinProcedures = map[string]Procedure{
	"text2git": {
		Name: "text2git",
		Files: map[string]string{
			".gitattributes": "* annex.largefiles=((mimeencoding=binary)and(largerthan=0))\n",
		},
	},
	"yoda": {
		Name: "yoda",
		Files: map[string]string{
			"code/.gitkeep":   "",
			"README.md":       "# {{.DatasetID}}\n\nDataset root: {{.DatasetRoot}}\n",
		},
	},
}

// LookupProcedure resolves a procedure by name, checking
// `.datalad/<name>/` templates within the dataset first, falling back to the builtin table.
func (ds *Dataset) LookupProcedure(name string) (Procedure, error) {
	dir := filepath.Join(ds.Root, ".datalad", name)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return Procedure{}, errs.Wrap(errs.Internal, err, "read procedure directory %s", dir)
		}
		proc := Procedure{Name: name, Files: map[string]string{}}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			body, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return Procedure{}, errs.Wrap(errs.Internal, err, "read procedure file %s", e.Name())
			}
			proc.Files[e.Name()] = string(body)
		}
		return proc, nil
	}
	if proc, ok := builtinProcedures[name]; ok {
		return proc, nil
	}
	return Procedure{}, errs.New(errs.InvalidArgument, "no such procedure %q", name)
}

// RunProcedure applies a procedure to ds's working tree, rendering each file's
// template against TemplateData.
func (ds *Dataset) RunProcedure(ctx context.Context, name string) error {
	proc, err := ds.LookupProcedure(name)
	if err != nil {
		return err
	}
	data := TemplateData{DatasetRoot: ds.Root, DatasetID: ds.ID.String()}
	for relpath, body := range proc.Files {
		tmpl, err := template.New(relpath).Parse(body)
		if err != nil {
			return errs.Wrap(errs.InvalidArgument, err, "parse procedure %q template %s", name, relpath)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return errs.Wrap(errs.Internal, err, "render procedure %q template %s", name, relpath)
		}
		if err := writeWorkingFile(ds.Root, relpath, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
