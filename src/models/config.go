package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Gateway   MGatewayConfig   `yaml:"gateway"`
	Pacing    MPacingConfig    `yaml:"pacing"`
	Streaming MStreamingConfig `yaml:"streaming"`
	Analytics MAnalyticsConfig `yaml:"analytics"`
	Storage   MStorageConfig   `yaml:"storage"`
	Publisher MPublisherConfig `yaml:"publisher"`
}

type MGatewayConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ClientID                 int    `yaml:"client_id"`
	ConnectionTimeoutSeconds int    `yaml:"connection_timeout_seconds"`
	DataTimeoutSeconds       int    `yaml:"data_timeout_seconds"`
	StreamTimeoutSeconds     int    `yaml:"stream_timeout_seconds"`
	NewsTimeoutSeconds       int    `yaml:"news_timeout_seconds"`
	SweepIntervalSeconds     int    `yaml:"sweep_interval_seconds"`
}

type MPacingConfig struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
	QueueDepth    int `yaml:"queue_depth"`
}

type MStreamingConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"`
}

type MAnalyticsConfig struct {
	MAPeriods               []int   `yaml:"ma_periods"`
	VolatilityHighThreshold float64 `yaml:"volatility_high_threshold"`
	VolatilityLowThreshold  float64 `yaml:"volatility_low_threshold"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MPublisherConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}
