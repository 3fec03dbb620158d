package handlers

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"
)

// DefaultAppName is reported when no name has been set.
const DefaultAppName = "throttlegate"

var (
	versionMu sync.RWMutex
	appInfo   = AppInfo{
		Name:      DefaultAppName,
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
	}
)

// SetVersionInfo records the build metadata injected into main.
func SetVersionInfo(version, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	if version != "" {
		appInfo.Version = version
	}
	if commit != "" {
		appInfo.Commit = commit
	}
	if buildDate != "" {
		appInfo.BuildDate = buildDate
	}
}

// SetAppName overrides the reported binary name.
func SetAppName(name string) {
	if name == "" {
		return
	}
	versionMu.Lock()
	defer versionMu.Unlock()
	appInfo.Name = name
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo lists versions of the libraries that shape runtime behavior.
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
	Chi      string `json:"chi,omitempty"`
	Redis    string `json:"go_redis,omitempty"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// CurrentVersion snapshots the version document served by /version.
func CurrentVersion() VersionResponse {
	versionMu.RLock()
	app := appInfo
	versionMu.RUnlock()
	app.GoVersion = runtime.Version()

	fulmen := crucible.GetVersion()
	deps := DepInfo{
		Gofulmen: fulmen.Gofulmen,
		Crucible: fulmen.Crucible,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			switch dep.Path {
			case "github.com/go-chi/chi/v5":
				deps.Chi = dep.Version
			case "github.com/redis/go-redis/v9":
				deps.Redis = dep.Version
			}
		}
	}

	return VersionResponse{
		App:          app,
		Dependencies: deps,
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentVersion())
}
