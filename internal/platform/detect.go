package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "wipsher"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

// Target returns the os_arch pair used to lay out packaged engine binaries.
func (r Runtime) Target() string {
	return r.OS + "_" + r.Arch
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// Env is the slice of the process environment that directory resolution
// depends on. Tests build one by hand instead of mutating the real env.
type Env struct {
	GOOS          string
	HomeDir       string
	XDGDataHome   string
	XDGConfigHome string
}

func CurrentEnv() (Env, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Env{}, fmt.Errorf("resolve user home: %w", err)
	}

	return Env{
		GOOS:          runtime.GOOS,
		HomeDir:       homeDir,
		XDGDataHome:   os.Getenv("XDG_DATA_HOME"),
		XDGConfigHome: os.Getenv("XDG_CONFIG_HOME"),
	}, nil
}

func DefaultModelDirFor(env Env) (string, error) {
	dataDir, err := dataDirFor(env)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

func DefaultConfigPathFor(env Env) (string, error) {
	if env.HomeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch env.GOOS {
	case "linux":
		if env.XDGConfigHome != "" {
			return filepath.Join(env.XDGConfigHome, appName, "config.toml"), nil
		}
		return filepath.Join(env.HomeDir, ".config", appName, "config.toml"), nil
	case "darwin":
		return filepath.Join(env.HomeDir, "Library", "Application Support", appName, "config.toml"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", env.GOOS)
	}
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	env, err := CurrentEnv()
	if err != nil {
		return "", err
	}
	return DefaultModelDirFor(env)
}

func ResolveConfigPath(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	env, err := CurrentEnv()
	if err != nil {
		return "", err
	}
	return DefaultConfigPathFor(env)
}

func dataDirFor(env Env) (string, error) {
	if env.HomeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch env.GOOS {
	case "linux":
		if env.XDGDataHome != "" {
			return filepath.Join(env.XDGDataHome, appName), nil
		}
		return filepath.Join(env.HomeDir, ".local", "share", appName), nil
	case "darwin":
		return filepath.Join(env.HomeDir, "Library", "Application Support", appName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", env.GOOS)
	}
}
