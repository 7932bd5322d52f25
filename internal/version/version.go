package version

import (
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/wipsher/wipsher/internal/version.Version=..." on release builds.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const develVersion = "0.0.0"

// Resolve returns the release version when one was stamped in, else the
// module version from the build info, else a VCS derived development version.
func Resolve() string {
	return resolveVersion(Version, debug.ReadBuildInfo)
}

// Details describes the commit and build date when they are known.
func Details() string {
	return resolveDetails(Commit, Date, debug.ReadBuildInfo)
}

func resolveVersion(base string, readInfo func() (*debug.BuildInfo, bool)) string {
	if base = strings.TrimPrefix(strings.TrimSpace(base), "v"); base != "" {
		return base
	}

	info, ok := readInfo()
	if !ok || info == nil {
		return develVersion
	}

	if v := info.Main.Version; v != "" && v != "(devel)" {
		return strings.TrimPrefix(v, "v")
	}

	revision, modified := vcsState(info)
	if revision == "" {
		return develVersion
	}

	suffix := shortRevision(revision)
	if modified {
		suffix += "-dirty"
	}
	return develVersion + "-" + suffix
}

func resolveDetails(commit, date string, readInfo func() (*debug.BuildInfo, bool)) string {
	if commit == "" || date == "" {
		if info, ok := readInfo(); ok && info != nil {
			for _, setting := range info.Settings {
				switch {
				case setting.Key == "vcs.revision" && commit == "":
					commit = shortRevision(setting.Value)
				case setting.Key == "vcs.time" && date == "":
					date = setting.Value
				}
			}
		}
	}

	var parts []string
	if commit != "" {
		parts = append(parts, "commit "+commit)
	}
	if date != "" {
		parts = append(parts, "built "+date)
	}
	return strings.Join(parts, ", ")
}

func vcsState(info *debug.BuildInfo) (string, bool) {
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	return revision, modified
}

func shortRevision(revision string) string {
	if len(revision) > 7 {
		return revision[:7]
	}
	return revision
}
