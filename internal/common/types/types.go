package types

import "time"

// Config represents application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Copy     CopyConfig     `yaml:"copy"`
	Volumes  VolumesConfig  `yaml:"volumes"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIPrefix string `yaml:"api_prefix"`
}

// DatabaseConfig represents the media index database configuration
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Name           string `yaml:"name"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	MaxConnections int    `yaml:"max_connections"`
}

// CacheConfig represents media list cache configuration
type CacheConfig struct {
	Capacity   int `yaml:"capacity"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// CopyConfig represents the chunked copy engine configuration
type CopyConfig struct {
	BufferSize     int    `yaml:"buffer_size"`
	ChunkThreshold int64  `yaml:"chunk_threshold"`
	MaxThreads     int    `yaml:"max_threads"`
	PausePollMS    int    `yaml:"pause_poll_ms"`
	DefaultPolicy  string `yaml:"default_policy"`
}

// VolumesConfig lists the storage volumes the service manages
type VolumesConfig struct {
	RefreshSeconds int           `yaml:"refresh_seconds"`
	Mounts         []MountConfig `yaml:"mounts"`
}

// MountConfig describes one storage volume
type MountConfig struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Removable bool   `yaml:"removable"`
}

// WatcherConfig represents file change watcher configuration
type WatcherConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Roots           []string `yaml:"roots"`
	IntervalSeconds int      `yaml:"interval_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MediaInfo is one file or media item as shown in a listing
type MediaInfo struct {
	ID          string     `json:"id"`
	URI         string     `json:"uri"`
	Path        string     `json:"path"`
	Size        int64      `json:"size"`
	DisplayName string     `json:"display_name"`
	Bucket      string     `json:"bucket"`
	MimeType    string     `json:"mime_type,omitempty"`
	ModTime     time.Time  `json:"mod_time"`
	DateTaken   *time.Time `json:"date_taken,omitempty"`
	IsDir       bool       `json:"is_dir"`
}

// QueryType names a media listing that is not tied to a single directory
type QueryType string

const (
	QueryAllImages    QueryType = "ALL_IMAGES"
	QueryAllVideos    QueryType = "ALL_VIDEOS"
	QueryAllAudio     QueryType = "ALL_AUDIO"
	QueryAllDocuments QueryType = "ALL_DOCUMENTS"
	QueryRecentFiles  QueryType = "RECENT_FILES"
	QueryRecycleBin   QueryType = "RECYCLE_BIN"
)

// QueryTypes lists every known query type
var QueryTypes = []QueryType{
	QueryAllImages,
	QueryAllVideos,
	QueryAllAudio,
	QueryAllDocuments,
	QueryRecentFiles,
	QueryRecycleBin,
}

// Valid reports whether q is a known query type
func (q QueryType) Valid() bool {
	for _, t := range QueryTypes {
		if t == q {
			return true
		}
	}
	return false
}

// Volume represents a storage volume and its last observed state
type Volume struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Removable  bool      `json:"removable"`
	Mounted    bool      `json:"mounted"`
	TotalSpace int64     `json:"total_space"`
	FreeSpace  int64     `json:"free_space"`
	CheckedAt  time.Time `json:"checked_at"`
}

// AuditReport is the outcome of checking the media index against the disk
type AuditReport struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"` // running, completed, failed
	Repair       bool         `json:"repair"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      *time.Time   `json:"end_time,omitempty"`
	TotalEntries int          `json:"total_entries"`
	Repaired     int          `json:"repaired"`
	Issues       []AuditIssue `json:"issues"`
	Summary      string       `json:"summary,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// AuditIssue is one index entry that disagrees with the file system
type AuditIssue struct {
	Type        string `json:"type"` // missing_file, stale_entry
	Path        string `json:"path"`
	Description string `json:"description"`
}
