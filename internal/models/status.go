package models

// Status summarizes stored records and disk usage for /api/status and the
// status command.
type Status struct {
	Records        map[string]int `json:"records"`
	Tutors         int            `json:"tutors"`
	DiskUsageBytes *int64         `json:"disk_usage_bytes,omitempty"`
	DiskUsageFiles *int           `json:"disk_usage_files,omitempty"`
	Config         *StatusConfig  `json:"config,omitempty"`
}

// StatusConfig is the subset of configuration reported by Status.
type StatusConfig struct {
	StorageDriver string   `json:"storage_driver"`
	DataDir       string   `json:"data_dir"`
	MaxFileBytes  int64    `json:"max_file_bytes"`
	MaxFiles      int      `json:"max_files"`
	Providers     []string `json:"providers"`
}
