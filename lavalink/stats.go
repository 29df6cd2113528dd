package lavalink

// Stats is the periodic statistics report of a node.
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         Duration    `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

// Better reports whether this node is less loaded than the other one,
// judged by system CPU load per core.
func (s Stats) Better(other Stats) bool {
	return s.SystemLoadPercent() < other.SystemLoadPercent()
}

// SystemLoadPercent returns the node process load normalized per CPU core.
func (s Stats) SystemLoadPercent() float64 {
	if s.CPU.Cores == 0 {
		return 0
	}
	return s.CPU.LavalinkLoad / float64(s.CPU.Cores) * 100
}

type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// Info describes a node's capabilities as returned by GET /v4/info.
type Info struct {
	Version        Version  `json:"version"`
	BuildTime      int64    `json:"buildTime"`
	Git            Git      `json:"git"`
	JVM            string   `json:"jvm"`
	Lavaplayer     string   `json:"lavaplayer"`
	SourceManagers []string `json:"sourceManagers"`
	Filters        []string `json:"filters"`
	Plugins        []Plugin `json:"plugins"`
}

// HasSourceManager reports whether the node advertises the given source.
func (i Info) HasSourceManager(name string) bool {
	for _, source := range i.SourceManagers {
		if source == name {
			return true
		}
	}
	return false
}

// HasPlugin reports whether the node advertises the given plugin.
func (i Info) HasPlugin(name string) bool {
	for _, plugin := range i.Plugins {
		if plugin.Name == name {
			return true
		}
	}
	return false
}

type Version struct {
	Semver     string  `json:"semver"`
	Major      int     `json:"major"`
	Minor      int     `json:"minor"`
	Patch      int     `json:"patch"`
	PreRelease *string `json:"preRelease,omitempty"`
}

type Git struct {
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	CommitTime int64  `json:"commitTime"`
}

type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
