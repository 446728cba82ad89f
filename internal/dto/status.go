package dto

type HealthDTO struct {
	OK        bool             `json:"ok"`
	App       AppStatusDTO     `json:"app"`
	Storage   StorageStatusDTO `json:"storage"`
	Realtime  RealtimeDTO      `json:"realtime"`
	StartedAt string           `json:"started_at"`
}

type AppStatusDTO struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	UptimeSec int64  `json:"uptime_sec"`
	SafeMode  bool   `json:"safe_mode"`
}

type StorageStatusDTO struct {
	Driver         string `json:"driver"`
	SchemaVersion  int    `json:"schema_version"`
	SafeModeReason string `json:"safe_mode_reason,omitempty"`
}

type RealtimeDTO struct {
	Subscribers int `json:"subscribers"`
}
