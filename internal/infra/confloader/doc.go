// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults (LoadMap, or a pre-filled target struct)
//  2. .env files, exported into the process environment
//  3. The YAML config file
//  4. WAMESH_* environment variables
//  5. Explicit overrides (LoadMap after Load)
//
// Environment keys use a double underscore between sections so single
// underscores survive inside key names:
//
//	WAMESH_STORAGE__DATA_DIR=/var/lib/wamesh  ->  storage.data_dir
//
// Watcher reports edits to the config file so callers can re-read the
// settings that are safe to change at runtime.
package confloader
