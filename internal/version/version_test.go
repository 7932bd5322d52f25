package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildInfo(mainVersion string, settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: mainVersion}, Settings: settings}, true
	}
}

func noBuildInfo() (*debug.BuildInfo, bool) {
	return nil, false
}

func TestResolveVersion_StampedRelease(t *testing.T) {
	t.Parallel()
	got := resolveVersion("v1.2.0", buildInfo("v9.9.9"))
	require.Equal(t, "1.2.0", got)
}

func TestResolveVersion_ModuleVersion(t *testing.T) {
	t.Parallel()
	got := resolveVersion("", buildInfo("v0.3.1"))
	require.Equal(t, "0.3.1", got)
}

func TestResolveVersion_DevelWithRevision(t *testing.T) {
	t.Parallel()
	got := resolveVersion("", buildInfo("(devel)", debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456789"}))
	require.Equal(t, "0.0.0-abcdef0", got)
}

func TestResolveVersion_DirtyWorkingTree(t *testing.T) {
	t.Parallel()
	got := resolveVersion("", buildInfo("(devel)",
		debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456789"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	))
	require.Equal(t, "0.0.0-abcdef0-dirty", got)
}

func TestResolveVersion_NoVCS(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0.0.0", resolveVersion("", buildInfo("(devel)")))
}

func TestResolveVersion_NoBuildInfo(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0.0.0", resolveVersion("  ", noBuildInfo))
}

func TestResolveDetails_Stamped(t *testing.T) {
	t.Parallel()
	got := resolveDetails("1a2b3c4", "2026-01-02", noBuildInfo)
	require.Equal(t, "commit 1a2b3c4, built 2026-01-02", got)
}

func TestResolveDetails_FromBuildInfo(t *testing.T) {
	t.Parallel()
	got := resolveDetails("", "", buildInfo("(devel)",
		debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456789"},
		debug.BuildSetting{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
	))
	require.Equal(t, "commit abcdef0, built 2026-03-04T05:06:07Z", got)
}

func TestResolveDetails_Unknown(t *testing.T) {
	t.Parallel()
	require.Empty(t, resolveDetails("", "", noBuildInfo))
}
