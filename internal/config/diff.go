package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// ProfilesChanged is true if any alarm profile was added, removed, or
	// modified. Profile changes require rebuilding the pipelines.
	ProfilesChanged bool
	ProfileChanges  []ProfileDiff

	// TuningChanged is true if the engine tuning block or audio parameters
	// changed. These also require a pipeline rebuild.
	TuningChanged bool

	// LogLevelChanged can be applied without restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// ProfileDiff describes what changed for a single named profile.
type ProfileDiff struct {
	Name     string
	Modified bool
	Added    bool
	Removed  bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.System.LogLevel != new.System.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.System.LogLevel
	}

	if old.Audio != new.Audio || old.Engine != new.Engine {
		d.TuningChanged = true
	}

	oldProfiles := make(map[string]*ProfileEntry, len(old.Profiles))
	for i := range old.Profiles {
		oldProfiles[old.Profiles[i].Name] = &old.Profiles[i]
	}
	newProfiles := make(map[string]*ProfileEntry, len(new.Profiles))
	for i := range new.Profiles {
		newProfiles[new.Profiles[i].Name] = &new.Profiles[i]
	}

	for name, oldP := range oldProfiles {
		newP, exists := newProfiles[name]
		if !exists {
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{Name: name, Removed: true})
			d.ProfilesChanged = true
			continue
		}
		// Segments make the entries incomparable with ==.
		if !reflect.DeepEqual(oldP, newP) {
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{Name: name, Modified: true})
			d.ProfilesChanged = true
		}
	}
	for name := range newProfiles {
		if _, exists := oldProfiles[name]; !exists {
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{Name: name, Added: true})
			d.ProfilesChanged = true
		}
	}

	return d
}
