package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName       = "typedrest"
	defaultProfile    = "default"
	profilePrefix     = "profile:"
	profileIndexKey   = "profiles_index"
	currentProfileKey = "current_profile"

	EnvBaseURL    = "TREST_BASE_URL"
	EnvToken      = "TREST_TOKEN"
	EnvProfile    = "TREST_PROFILE"
	EnvJournalURL = "TREST_JOURNAL_URL"

	envKeyringBackend  = "TREST_KEYRING_BACKEND"
	envKeyringPassword = "TREST_KEYRING_PASSWORD"
	envCredentialsDir  = "TREST_CREDENTIALS_DIR"

	keyringBackendAuto   = "auto"
	keyringBackendFile   = "file"
	keyringBackendSystem = "system"
)

// openKeyring is a package-level function for opening keyrings.
// It can be replaced in tests to use a mock keyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

var userConfigDir = os.UserConfigDir

var stdinHasTTY = func() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// SetOpenKeyring allows replacing the keyring opener for testing.
// Returns a cleanup function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

// Profile holds the connection settings for one API.
type Profile struct {
	BaseURL string `json:"base_url"`
	// Token is sent as a bearer token unless Headers sets Authorization.
	Token      string            `json:"token,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Envelope   bool              `json:"envelope,omitempty"`
	Debug      bool              `json:"debug,omitempty"`
	JournalURL string            `json:"journal_url,omitempty"`
	Aliases    map[string]Alias  `json:"aliases,omitempty"`
}

// Alias is a named endpoint.
type Alias struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Header returns the default request headers for the profile.
func (p Profile) Header() http.Header {
	h := make(http.Header, len(p.Headers)+1)
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	if p.Token != "" && h.Get("Authorization") == "" {
		h.Set("Authorization", "Bearer "+p.Token)
	}
	return h
}

// AliasNames returns the alias names in sorted order.
func (p Profile) AliasNames() []string {
	names := make([]string, 0, len(p.Aliases))
	for name := range p.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrNotConfigured is returned when no profile is stored
var ErrNotConfigured = errors.New("typedrest not configured - run 'trest config set-url <url>' first")

// ErrAliasNotFound is returned when an alias does not exist
var ErrAliasNotFound = errors.New("alias not found")

// keyringConfig returns the keyring configuration
func keyringConfig() keyring.Config {
	cfg := keyring.Config{
		ServiceName: serviceName,
	}

	backend := keyringBackendMode()
	if backend == keyringBackendSystem {
		return cfg
	}

	configureFileBackend(&cfg)

	// Headless Linux has no secret service; use encrypted file storage.
	if shouldForceFileBackend(runtime.GOOS, backend, os.Getenv("DBUS_SESSION_BUS_ADDRESS")) {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}

	return cfg
}

func keyringBackendMode() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKeyringBackend))) {
	case keyringBackendFile:
		return keyringBackendFile
	case keyringBackendSystem, "os", "native":
		return keyringBackendSystem
	default:
		return keyringBackendAuto
	}
}

func shouldForceFileBackend(goos, backend, dbusAddr string) bool {
	if backend == keyringBackendFile {
		return true
	}
	if backend != keyringBackendAuto {
		return false
	}
	return goos == "linux" && strings.TrimSpace(dbusAddr) == ""
}

func configureFileBackend(cfg *keyring.Config) {
	cfg.FileDir = keyringFileDir()
	cfg.FilePasswordFunc = keyringFilePassword
}

func keyringFileDir() string {
	base := strings.TrimSpace(os.Getenv(envCredentialsDir))
	if base == "" {
		if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
			base = filepath.Join(dir, serviceName)
		}
	}
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			base = filepath.Join(home, ".config", serviceName)
		}
	}
	if base == "" {
		base = filepath.Join(os.TempDir(), serviceName)
	}
	return filepath.Join(base, "keyring")
}

func keyringFilePassword(prompt string) (string, error) {
	if password := os.Getenv(envKeyringPassword); strings.TrimSpace(password) != "" {
		return password, nil
	}
	if !stdinHasTTY() {
		return "", fmt.Errorf("set %s when using file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

func profileKey(name string) string {
	if name == "" {
		name = defaultProfile
	}
	return profilePrefix + name
}

func open() (keyring.Keyring, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

func loadProfileIndex(ring keyring.Keyring) ([]string, error) {
	item, err := ring.Get(profileIndexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get profile index: %w", err)
	}
	var profiles []string
	if err := json.Unmarshal(item.Data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile index: %w", err)
	}
	return profiles, nil
}

func saveProfileIndex(ring keyring.Keyring, profiles []string) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profile index: %w", err)
	}
	return ring.Set(keyring.Item{Key: profileIndexKey, Data: data})
}

func normalizeProfiles(profiles []string) []string {
	seen := make(map[string]struct{}, len(profiles))
	var out []string
	for _, p := range profiles {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SaveProfile stores a profile and makes it current.
func SaveProfile(name string, p Profile) error {
	if name == "" {
		name = defaultProfile
	}
	ring, err := open()
	if err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := ring.Set(keyring.Item{Key: profileKey(name), Data: data}); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	profiles, err := loadProfileIndex(ring)
	if err != nil {
		return err
	}
	if err := saveProfileIndex(ring, normalizeProfiles(append(profiles, name))); err != nil {
		return err
	}
	return SetCurrentProfile(name)
}

// LoadProfile retrieves a named profile.
func LoadProfile(name string) (Profile, error) {
	if name == "" {
		name = defaultProfile
	}
	ring, err := open()
	if err != nil {
		return Profile{}, err
	}

	item, err := ring.Get(profileKey(name))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Profile{}, ErrNotConfigured
		}
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(item.Data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return p, nil
}

// UpdateProfile loads a profile (or starts an empty one), applies fn and
// saves the result.
func UpdateProfile(name string, fn func(*Profile) error) error {
	p, err := LoadProfile(name)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return err
	}
	if err := fn(&p); err != nil {
		return err
	}
	return SaveProfile(name, p)
}

// DeleteProfile removes a stored profile.
func DeleteProfile(name string) error {
	if name == "" {
		name = defaultProfile
	}
	ring, err := open()
	if err != nil {
		return err
	}

	if err := ring.Remove(profileKey(name)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove profile: %w", err)
	}

	profiles, err := loadProfileIndex(ring)
	if err != nil {
		return err
	}
	var remaining []string
	for _, p := range profiles {
		if p != name {
			remaining = append(remaining, p)
		}
	}
	if err := saveProfileIndex(ring, remaining); err != nil {
		return err
	}

	current, err := CurrentProfile()
	if err == nil && current == name {
		next := defaultProfile
		if len(remaining) > 0 {
			next = remaining[0]
		}
		_ = SetCurrentProfile(next)
	}
	return nil
}

// ListProfiles returns the known profile names.
func ListProfiles() ([]string, error) {
	ring, err := open()
	if err != nil {
		return nil, err
	}
	return loadProfileIndex(ring)
}

// CurrentProfile returns the active profile name.
func CurrentProfile() (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(currentProfileKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return defaultProfile, nil
		}
		return "", fmt.Errorf("failed to get current profile: %w", err)
	}
	return string(item.Data), nil
}

// SetCurrentProfile sets the active profile name.
func SetCurrentProfile(name string) error {
	if name == "" {
		name = defaultProfile
	}
	ring, err := open()
	if err != nil {
		return err
	}
	return ring.Set(keyring.Item{Key: currentProfileKey, Data: []byte(name)})
}

// SetAlias stores an alias on a profile.
func SetAlias(profile, name string, alias Alias) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("alias name is required")
	}
	if strings.TrimSpace(alias.Path) == "" {
		return errors.New("alias path is required")
	}
	alias.Method = strings.ToUpper(strings.TrimSpace(alias.Method))
	if alias.Method == "" {
		alias.Method = http.MethodGet
	}
	return UpdateProfile(profile, func(p *Profile) error {
		if p.Aliases == nil {
			p.Aliases = make(map[string]Alias)
		}
		p.Aliases[name] = alias
		return nil
	})
}

// RemoveAlias deletes an alias from a profile.
func RemoveAlias(profile, name string) error {
	return UpdateProfile(profile, func(p *Profile) error {
		if _, ok := p.Aliases[name]; !ok {
			return fmt.Errorf("%w: %s", ErrAliasNotFound, name)
		}
		delete(p.Aliases, name)
		return nil
	})
}
