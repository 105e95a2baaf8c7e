package obs

import (
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// Build identifies the running binary.
type Build struct {
	Version   string
	Revision  string
	GoVersion string
	Modified  bool
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hrportal_build_info",
		Help: "Always 1; labels identify the running build.",
	},
	[]string{"version", "revision", "go_version", "env"},
)

// ReadBuild combines the linker-stamped version and revision with the VCS
// stamp Go embeds in the binary. Linker values win unless they are unset.
func ReadBuild(version, revision string) Build {
	info, _ := debug.ReadBuildInfo()
	return buildFrom(info, version, revision)
}

func buildFrom(info *debug.BuildInfo, version, revision string) Build {
	b := Build{Version: version, Revision: revision, GoVersion: runtime.Version()}
	if info == nil {
		return b.withDefaults()
	}
	if info.GoVersion != "" {
		b.GoVersion = info.GoVersion
	}
	if unset(b.Version) && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if unset(b.Revision) {
				b.Revision = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b.withDefaults()
}

func unset(v string) bool { return v == "" || v == "dev" || v == "unknown" }

func (b Build) withDefaults() Build {
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Revision == "" {
		b.Revision = "unknown"
	}
	return b
}

// ShortRevision is the first 12 characters of the revision, marked when the
// tree was dirty at build time.
func (b Build) ShortRevision() string {
	r := b.Revision
	if len(r) > 12 {
		r = r[:12]
	}
	if b.Modified {
		r += "-dirty"
	}
	return r
}

// PublishBuild exposes b on hrportal_build_info. Earlier label sets are
// dropped so the gauge always describes one build.
func PublishBuild(b Build, env string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.ShortRevision(), b.GoVersion, env).Set(1)
}
