package hydrate

import (
	"embed"
	"encoding/json"
	"io/fs"
	"os"
	"path"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

//go:embed devdata
var embeddedDevData embed.FS

// DevDataLoader reads FHIR JSON resources for development sessions. When a
// filesystem path is configured it wins over the embedded data, so deployments
// can ship their own fixtures without rebuilding.
type DevDataLoader struct {
	fsys fs.FS
	root string
}

// NewDevDataLoader creates a loader. An empty dir selects the embedded data.
func NewDevDataLoader(dir string) *DevDataLoader {
	if dir != "" {
		return &DevDataLoader{fsys: os.DirFS(dir), root: "."}
	}
	return &DevDataLoader{fsys: embeddedDevData, root: "devdata"}
}

// Load reads every JSON resource under <root>/<resourceType>/. A missing
// directory means no fixtures for that type.
func (l *DevDataLoader) Load(resourceType string) ([]fhir.Resource, error) {
	dir := path.Join(l.root, resourceType)
	entries, err := fs.ReadDir(l.fsys, dir)
	if err != nil {
		return nil, nil
	}

	var resources []fhir.Resource
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := fs.ReadFile(l.fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return resources, err
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return resources, err
		}
		resources = append(resources, fhir.Resource(m))
	}
	return resources, nil
}
