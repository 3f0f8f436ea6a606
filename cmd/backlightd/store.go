package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// Profile Store - profiles, active state, validation, YAML persistence
// ============================================================================
//
// On-disk layout under the config directory:
//   profiles/<name>.yaml   one file per profile (name + rule parameters)
//   state.yaml             active profile name + manual override
//
// Profiles and active state are persisted separately so that switching the
// active profile never rewrites profile definitions.
//
// Every mutation is validate-then-apply: the change is made on a copy,
// validated as a whole store, and only then swapped in. A rejected change
// leaves the store byte-identical to before.
// ============================================================================

// ScheduleEntry is one (hour, minute) -> brightness level row of a profile's
// time schedule.
type ScheduleEntry struct {
	Hour   int `yaml:"hour" json:"hour"`
	Minute int `yaml:"minute" json:"minute"`
	Level  int `yaml:"level" json:"level"`
}

// Profile is a named bundle of rule parameters selectable as a unit.
type Profile struct {
	Name string `yaml:"name" json:"name"`

	// IdleTimeoutSec >= 0; 0 disables idle detection for this profile.
	IdleTimeoutSec int `yaml:"idle_timeout_sec" json:"idle_timeout_sec"`

	VideoDetection bool `yaml:"video_detection" json:"video_detection"`
	ACAlwaysOn     bool `yaml:"ac_always_on" json:"ac_always_on"`

	// SSIDs maps networks to this profile. Validation enforces uniqueness
	// across the whole store, so a network selects exactly one profile.
	SSIDs []string `yaml:"ssids,omitempty" json:"ssids,omitempty"`

	// Schedule is kept sorted by (hour, minute).
	Schedule []ScheduleEntry `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// IdleTimeout returns the idle timeout as a duration.
func (p Profile) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutSec) * time.Second
}

// ManualOverride is a user-set brightness that supersedes all other rules
// until explicitly cleared. It never expires on its own.
type ManualOverride struct {
	Level int       `yaml:"level" json:"level"`
	SetAt time.Time `yaml:"set_at" json:"set_at"`
}

// ActiveProfileState is the singleton persisted record: which profile is
// active plus the optional manual override.
type ActiveProfileState struct {
	ActiveProfile string          `yaml:"active_profile" json:"active_profile"`
	Override      *ManualOverride `yaml:"override,omitempty" json:"override,omitempty"`
}

// Store owns all profiles and the active state. It is mutated only from the
// daemon loop; persistence happens in the effects layer.
type Store struct {
	dir      string
	Profiles map[string]Profile
	Active   ActiveProfileState
}

// defaultProfile seeds a fresh config directory on first run.
func defaultProfile() Profile {
	return Profile{
		Name:           "default",
		IdleTimeoutSec: 300,
		VideoDetection: true,
		ACAlwaysOn:     false,
	}
}

// LoadStore reads all profiles and the active state from dir, seeding a
// default profile when the directory is empty. It does not validate; callers
// validate against the actuator's level count once that is known.
func LoadStore(dir string) (*Store, error) {
	s := &Store{
		dir:      dir,
		Profiles: make(map[string]Profile),
	}

	profilesDir := filepath.Join(dir, "profiles")
	entries, err := os.ReadDir(profilesDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(profilesDir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile %s: %w", e.Name(), err)
		}
		var p Profile
		if err := yaml.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", e.Name(), err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(e.Name(), ".yaml")
		}
		if _, dup := s.Profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile name %q", p.Name)
		}
		sortSchedule(p.Schedule)
		s.Profiles[p.Name] = p
	}

	if len(s.Profiles) == 0 {
		p := defaultProfile()
		s.Profiles[p.Name] = p
	}

	statePath := filepath.Join(dir, "state.yaml")
	b, err := os.ReadFile(statePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.Active = ActiveProfileState{ActiveProfile: firstProfileName(s.Profiles)}
	case err != nil:
		return nil, fmt.Errorf("read state: %w", err)
	default:
		if err := yaml.Unmarshal(b, &s.Active); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		if s.Active.ActiveProfile == "" {
			s.Active.ActiveProfile = firstProfileName(s.Profiles)
		}
	}

	return s, nil
}

func firstProfileName(profiles map[string]Profile) string {
	if _, ok := profiles["default"]; ok {
		return "default"
	}
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func sortSchedule(entries []ScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hour != entries[j].Hour {
			return entries[i].Hour < entries[j].Hour
		}
		return entries[i].Minute < entries[j].Minute
	})
}

// Validate checks the whole store. maxLevel < 0 skips level range checks
// (used before the actuator has been opened).
func (s *Store) Validate(maxLevel int) error {
	if len(s.Profiles) == 0 {
		return validationErrorf("no profiles defined")
	}

	ssidOwner := make(map[string]string)
	for name, p := range s.Profiles {
		if p.Name != name {
			return validationErrorf("profile %q: name field %q does not match key", name, p.Name)
		}
		if p.IdleTimeoutSec < 0 {
			return validationErrorf("profile %q: idle_timeout_sec must be >= 0", name)
		}

		seenSSID := make(map[string]struct{})
		for _, ssid := range p.SSIDs {
			if ssid == "" {
				return validationErrorf("profile %q: empty ssid", name)
			}
			if _, dup := seenSSID[ssid]; dup {
				return validationErrorf("profile %q: duplicate ssid %q", name, ssid)
			}
			seenSSID[ssid] = struct{}{}
			if owner, taken := ssidOwner[ssid]; taken {
				return validationErrorf("ssid %q used by both %q and %q", ssid, owner, name)
			}
			ssidOwner[ssid] = name
		}

		seenSlot := make(map[[2]int]struct{})
		for _, e := range p.Schedule {
			if e.Hour < 0 || e.Hour > 23 {
				return validationErrorf("profile %q: schedule hour %d out of range", name, e.Hour)
			}
			if e.Minute < 0 || e.Minute > 59 {
				return validationErrorf("profile %q: schedule minute %d out of range", name, e.Minute)
			}
			slot := [2]int{e.Hour, e.Minute}
			if _, dup := seenSlot[slot]; dup {
				return validationErrorf("profile %q: duplicate schedule entry %02d:%02d", name, e.Hour, e.Minute)
			}
			seenSlot[slot] = struct{}{}
			if err := checkLevel(e.Level, maxLevel); err != nil {
				return validationErrorf("profile %q: schedule %02d:%02d: %v", name, e.Hour, e.Minute, err)
			}
		}
	}

	if _, ok := s.Profiles[s.Active.ActiveProfile]; !ok {
		return validationErrorf("active profile %q does not exist", s.Active.ActiveProfile)
	}
	if s.Active.Override != nil {
		if err := checkLevel(s.Active.Override.Level, maxLevel); err != nil {
			return validationErrorf("manual override: %v", err)
		}
	}

	return nil
}

func checkLevel(level, maxLevel int) error {
	if level < 0 {
		return fmt.Errorf("level %d is negative", level)
	}
	if maxLevel >= 0 && level > maxLevel {
		return fmt.Errorf("level %d exceeds hardware maximum %d", level, maxLevel)
	}
	return nil
}

// ActiveProfile returns the currently selected profile. Validation guarantees
// the reference resolves.
func (s *Store) ActiveProfile() Profile {
	return s.Profiles[s.Active.ActiveProfile]
}

// ProfileNames returns all profile names, sorted.
func (s *Store) ProfileNames() []string {
	names := make([]string, 0, len(s.Profiles))
	for n := range s.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProfileForSSID returns the profile owning the given SSID, if any.
func (s *Store) ProfileForSSID(ssid string) (string, bool) {
	for name, p := range s.Profiles {
		for _, candidate := range p.SSIDs {
			if candidate == ssid {
				return name, true
			}
		}
	}
	return "", false
}

// ==============================
// Mutations (validate-then-apply)
// ==============================

// SwitchProfile selects a different active profile. The manual override is
// intentionally preserved across the switch.
func (s *Store) SwitchProfile(name string) error {
	if _, ok := s.Profiles[name]; !ok {
		return &NotFoundError{What: fmt.Sprintf("profile %q", name)}
	}
	s.Active.ActiveProfile = name
	return nil
}

// SetManualOverride installs a manual override after range-checking against
// the actuator's reported maximum.
func (s *Store) SetManualOverride(level, maxLevel int, now time.Time) error {
	if err := checkLevel(level, maxLevel); err != nil {
		return validationErrorf("manual override: %v", err)
	}
	s.Active.Override = &ManualOverride{Level: level, SetAt: now}
	return nil
}

// ClearManualOverride removes the override. Clearing an absent override is a
// no-op, never an error.
func (s *Store) ClearManualOverride() {
	s.Active.Override = nil
}

// AddScheduleEntry adds a schedule row to the named profile, rejecting
// duplicate (hour, minute) slots and out-of-range values.
func (s *Store) AddScheduleEntry(profile string, entry ScheduleEntry, maxLevel int) error {
	p, ok := s.Profiles[profile]
	if !ok {
		return &NotFoundError{What: fmt.Sprintf("profile %q", profile)}
	}

	trial := p
	trial.Schedule = append(append([]ScheduleEntry(nil), p.Schedule...), entry)
	sortSchedule(trial.Schedule)

	saved := s.Profiles[profile]
	s.Profiles[profile] = trial
	if err := s.Validate(maxLevel); err != nil {
		s.Profiles[profile] = saved
		return err
	}
	return nil
}

// RemoveScheduleEntry removes the (hour, minute) row from the named profile.
func (s *Store) RemoveScheduleEntry(profile string, hour, minute int) error {
	p, ok := s.Profiles[profile]
	if !ok {
		return &NotFoundError{What: fmt.Sprintf("profile %q", profile)}
	}

	kept := make([]ScheduleEntry, 0, len(p.Schedule))
	removed := false
	for _, e := range p.Schedule {
		if e.Hour == hour && e.Minute == minute {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return &NotFoundError{What: fmt.Sprintf("schedule entry %02d:%02d", hour, minute)}
	}
	p.Schedule = kept
	s.Profiles[profile] = p
	return nil
}

// ==============================
// Persistence
// ==============================

// SaveActiveState writes state.yaml atomically.
func (s *Store) SaveActiveState() error {
	return writeYAMLAtomic(filepath.Join(s.dir, "state.yaml"), s.Active)
}

// SaveProfile writes one profile file atomically.
func (s *Store) SaveProfile(name string) error {
	p, ok := s.Profiles[name]
	if !ok {
		return &NotFoundError{What: fmt.Sprintf("profile %q", name)}
	}
	dir := filepath.Join(s.dir, "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}
	return writeYAMLAtomic(filepath.Join(dir, name+".yaml"), p)
}

// SaveAll persists every profile plus the active state. Used to materialize
// the seeded default store on first run.
func (s *Store) SaveAll() error {
	for name := range s.Profiles {
		if err := s.SaveProfile(name); err != nil {
			return err
		}
	}
	return s.SaveActiveState()
}

// writeYAMLAtomic writes via a temp file and rename so readers never observe
// a partial document.
func writeYAMLAtomic(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
