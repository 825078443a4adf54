package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/metrics"
)

const (
	// profilesFormatVersion is written to every saved profiles file.
	profilesFormatVersion = "1.0"

	// minProfilesFormatVersion is the oldest profiles file format this
	// build can read.
	minProfilesFormatVersion = "1.0"

	// profileEnvVar overrides the active profile when no explicit
	// profile name is given.
	profileEnvVar = "INSIGHT_PROFILE"

	// defaultProfileName is the profile created on first use and the
	// fallback when the configured active profile is gone.
	defaultProfileName = "default"
)

// profileNamePattern constrains profile names to characters that are
// safe both as flattened config keys and as file path components.
var profileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// StorageProfile is a named storage configuration. Profiles let
// different SUTs, environments or machines keep separate session
// histories behind separate backends.
type StorageProfile struct {
	Name         string    `yaml:"name"`
	StorageType  string    `yaml:"storage_type"`
	FilePath     string    `yaml:"file_path,omitempty"`
	Created      time.Time `yaml:"created"`
	LastModified time.Time `yaml:"last_modified"`
}

// profilesFile is the on-disk shape of profiles.yaml.
type profilesFile struct {
	FormatVersion string                     `yaml:"format_version"`
	ActiveProfile string                     `yaml:"active_profile"`
	Profiles      map[string]*StorageProfile `yaml:"profiles"`
}

// ProfileManager owns the profiles file: it creates the default profile
// on first use, persists every mutation with a backup of the previous
// state, and resolves profile names to Storage instances.
type ProfileManager struct {
	path    string
	mu      sync.RWMutex
	logger  *logging.Logger
	metrics *metrics.Metrics

	profiles map[string]*StorageProfile
	active   string

	// memoryStores holds the process-wide storage instance per
	// memory-type profile so repeated GetStorage calls share state.
	memoryStores map[string]*InMemoryStorage
}

// DefaultProfilesPath returns the profiles file location used when no
// explicit path is configured.
func DefaultProfilesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", NewProfileError("failed to resolve home directory: %v", err)
	}
	return filepath.Join(home, ".insight", "profiles.yaml"), nil
}

// NewProfileManager loads the profiles file at path, bootstrapping it
// with a default profile when it does not exist. An empty path selects
// DefaultProfilesPath.
func NewProfileManager(path string) (*ProfileManager, error) {
	if path == "" {
		var err error
		path, err = DefaultProfilesPath()
		if err != nil {
			return nil, err
		}
	}

	logger := logging.GetLogger("storage.profiles")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, NewProfileError("failed to create profiles directory for %s: %v", path, err)
	}

	m := &ProfileManager{
		path:         path,
		logger:       logger,
		profiles:     make(map[string]*StorageProfile),
		memoryStores: make(map[string]*InMemoryStorage),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		m.profiles[defaultProfileName] = m.newProfile(defaultProfileName, "json", "")
		m.active = defaultProfileName
		if err := m.saveLocked(); err != nil {
			return nil, err
		}
		logger.Info("Created profiles file %s with default profile", path)
		return m, nil
	}

	pf, err := readProfilesFile(path)
	if err != nil {
		return nil, err
	}

	m.profiles = pf.Profiles
	for name, profile := range m.profiles {
		if profile.Name == "" {
			profile.Name = name
		}
	}
	if _, ok := m.profiles[defaultProfileName]; !ok {
		m.profiles[defaultProfileName] = m.newProfile(defaultProfileName, "json", "")
	}

	m.active = pf.ActiveProfile
	if _, ok := m.profiles[m.active]; m.active == "" || !ok {
		m.active = defaultProfileName
	}

	logger.Debug("Loaded %d profiles from %s (active: %s)", len(m.profiles), path, m.active)
	return m, nil
}

// WithMetrics attaches Prometheus metrics, inherited by every storage
// instance the manager resolves.
func (m *ProfileManager) WithMetrics(mm *metrics.Metrics) *ProfileManager {
	m.metrics = mm
	return m
}

// Path returns the profiles file path.
func (m *ProfileManager) Path() string {
	return m.path
}

// CreateProfile creates and persists a new profile. The file path may
// be empty for json profiles, a per-profile default next to the
// profiles file is used then.
func (m *ProfileManager) CreateProfile(name, storageType, filePath string) (*StorageProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return nil, NewProfileError("profile name must not be empty")
	}
	if !profileNamePattern.MatchString(name) {
		return nil, NewProfileError("profile name %q contains unsupported characters (allowed: letters, digits, - and _)", name)
	}
	if _, ok := m.profiles[name]; ok {
		return nil, NewProfileError("profile %q already exists", name)
	}

	storageType = strings.ToLower(storageType)
	switch storageType {
	case "json", "memory":
	case "":
		storageType = "json"
	default:
		return nil, NewProfileError("unsupported storage type %q (supported: json, memory)", storageType)
	}

	profile := m.newProfile(name, storageType, filePath)
	m.profiles[name] = profile

	if err := m.saveLocked(); err != nil {
		return nil, err
	}

	m.logger.Info("Created profile %q (type: %s)", name, storageType)
	return profile, nil
}

// GetProfile returns the profile with the given name. An empty name
// resolves to the INSIGHT_PROFILE environment variable when set, and to
// the active profile otherwise.
func (m *ProfileManager) GetProfile(name string) (*StorageProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		if env := os.Getenv(profileEnvVar); env != "" {
			name = env
		} else {
			name = m.active
		}
	}

	profile, ok := m.profiles[name]
	if !ok {
		return nil, NewProfileError("profile %q does not exist", name)
	}
	return profile, nil
}

// SwitchProfile makes the named profile the active one and persists the
// change.
func (m *ProfileManager) SwitchProfile(name string) (*StorageProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[name]
	if !ok {
		return nil, NewProfileError("profile %q does not exist", name)
	}

	m.active = name
	if err := m.saveLocked(); err != nil {
		return nil, err
	}

	m.logger.Info("Switched active profile to %q", name)
	return profile, nil
}

// DeleteProfile removes a profile. The default profile and the active
// profile cannot be deleted.
func (m *ProfileManager) DeleteProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[name]; !ok {
		return NewProfileError("profile %q does not exist", name)
	}
	if name == defaultProfileName {
		return NewProfileError("cannot delete the default profile")
	}
	if name == m.active {
		return NewProfileError("cannot delete the active profile %q", name)
	}

	delete(m.profiles, name)
	delete(m.memoryStores, name)

	if err := m.saveLocked(); err != nil {
		return err
	}

	m.logger.Info("Deleted profile %q", name)
	return nil
}

// ListProfiles returns all profiles sorted by name.
func (m *ProfileManager) ListProfiles() []*StorageProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profiles := make([]*StorageProfile, 0, len(m.profiles))
	for _, profile := range m.profiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles
}

// ActiveProfile returns the currently active profile, honoring the
// INSIGHT_PROFILE environment override.
func (m *ProfileManager) ActiveProfile() (*StorageProfile, error) {
	return m.GetProfile("")
}

// ActiveName returns the name of the persisted active profile.
func (m *ProfileManager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// GetStorage resolves a profile name to a Storage instance. An empty
// name resolves like GetProfile. Profiles of type "memory" share one
// process-wide instance per profile name.
func (m *ProfileManager) GetStorage(name string) (Storage, error) {
	profile, err := m.GetProfile(name)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(profile.StorageType) {
	case "json":
		js, err := NewJSONStorage(profile.FilePath)
		if err != nil {
			return nil, err
		}
		return js.WithMetrics(m.metrics), nil
	case "memory":
		m.mu.Lock()
		defer m.mu.Unlock()
		store, ok := m.memoryStores[profile.Name]
		if !ok {
			store = NewInMemoryStorage()
			m.memoryStores[profile.Name] = store
		}
		return store, nil
	default:
		return nil, NewProfileError("unsupported storage type %q in profile %q", profile.StorageType, profile.Name)
	}
}

// newProfile builds a profile with timestamps set and a default session
// file path derived from the profile name when none is given.
func (m *ProfileManager) newProfile(name, storageType, filePath string) *StorageProfile {
	if filePath == "" && storageType == "json" {
		filePath = filepath.Join(filepath.Dir(m.path), "sessions", name+".json")
	}

	now := time.Now().UTC()
	return &StorageProfile{
		Name:         name,
		StorageType:  storageType,
		FilePath:     filePath,
		Created:      now,
		LastModified: now,
	}
}

// saveLocked persists the profile set, backing up the previous file
// first. Callers hold m.mu.
func (m *ProfileManager) saveLocked() error {
	for _, profile := range m.profiles {
		if profile.Created.IsZero() {
			profile.Created = time.Now().UTC()
		}
	}

	pf := profilesFile{
		FormatVersion: profilesFormatVersion,
		ActiveProfile: m.active,
		Profiles:      m.profiles,
	}

	data, err := yamlv3.Marshal(&pf)
	if err != nil {
		return NewProfileError("failed to marshal profiles: %v", err)
	}

	backupFile(m.path, m.logger)

	if err := atomicWrite(m.path, data); err != nil {
		return NewProfileError("failed to save profiles to %s: %v", m.path, err)
	}
	return nil
}

// readProfilesFile loads and validates a profiles file. The format
// version is checked against the minimum supported version so an
// incompatible file fails loudly instead of being half-read.
func readProfilesFile(path string) (*profilesFile, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, NewProfileError("failed to load profiles from %q: %v", path, err)
	}

	var pf profilesFile
	if err := k.UnmarshalWithConf("", &pf, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, NewProfileError("failed to parse profiles from %q: %v", path, err)
	}

	if pf.FormatVersion == "" {
		return nil, NewProfileError("profiles file %q has no format_version", path)
	}
	fileVer, err := version.NewVersion(pf.FormatVersion)
	if err != nil {
		return nil, NewProfileError("profiles file %q has invalid format_version %q: %v", path, pf.FormatVersion, err)
	}
	minVer := version.Must(version.NewVersion(minProfilesFormatVersion))
	if fileVer.LessThan(minVer) {
		return nil, NewProfileError("profiles file %q has format_version %s, minimum supported is %s",
			path, pf.FormatVersion, minProfilesFormatVersion)
	}

	if pf.Profiles == nil {
		pf.Profiles = make(map[string]*StorageProfile)
	}
	return &pf, nil
}
