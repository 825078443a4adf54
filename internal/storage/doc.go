// Package storage persists test sessions and resolves named storage
// profiles to concrete backends.
//
// # Overview
//
// The engines consume the Storage interface and never assume a
// persistence format. Two implementations ship:
//
//  1. InMemoryStorage - a mutex-guarded slice, used by tests and by
//     profiles of type "memory".
//  2. JSONStorage - a single JSON file of the form {"sessions": [...]},
//     written atomically (temp file + rename) with timestamped backups
//     rotated before every write. An LRU session cache fronts lookups
//     by session id.
//
// # Profiles
//
// A StorageProfile names a backend type and file path so different
// SUTs, environments or machines can keep separate histories.
// ProfileManager owns the profiles.yaml file: it creates the default
// profile on first use, validates the file format version, and resolves
// a profile name to a Storage instance via GetStorage. ProfileWatcher
// watches the profiles file and invokes a reload callback, debounced,
// whenever it changes on disk.
package storage
