// Package confloader provides configuration loading for KeyMesh.
//
// Sources are merged in priority order: environment variables override
// the YAML file, which overrides struct defaults. The optional Watcher
// re-reads the file on change for settings that support hot reload.
package confloader
