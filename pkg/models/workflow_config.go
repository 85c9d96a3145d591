package models

// WorkflowConfig is the declarative pipeline definition the orchestrator
// validates at create time. The shape mirrors the ingestion framework's
// YAML/JSON documents: stage discriminators select implementations from a
// closed registry.
type WorkflowConfig struct {
	Source         SourceConfig    `yaml:"source" json:"source"`
	Processor      ProcessorConfig `yaml:"processor" json:"processor"`
	Sink           SinkConfig      `yaml:"sink" json:"sink"`
	WorkflowConfig ServerConfig    `yaml:"workflowConfig" json:"workflowConfig"`
}

// SourceConfig selects and configures the extraction stage.
type SourceConfig struct {
	Type         string            `yaml:"type" json:"type"`
	ServiceName  string            `yaml:"serviceName" json:"serviceName"`
	SourceConfig NestedSourceConfig `yaml:"sourceConfig" json:"sourceConfig"`
}

// NestedSourceConfig wraps the inner source discriminator.
type NestedSourceConfig struct {
	Config SourceConfigDetails `yaml:"config" json:"config"`
}

// SourceConfigDetails carries the inner source type discriminator.
type SourceConfigDetails struct {
	Type string `yaml:"type" json:"type"`
}

// ProcessorConfig selects and configures the processing stage.
type ProcessorConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// SinkConfig selects and configures the sink stage.
type SinkConfig struct {
	Type   string       `yaml:"type" json:"type"`
	Config SinkSettings `yaml:"config" json:"config"`
}

// SinkSettings holds settings for all supported sink types; only the fields
// for the selected sink type are consulted.
type SinkSettings struct {
	// Elasticsearch sink
	ESHost string `yaml:"es_host" json:"es_host"`
	ESPort int    `yaml:"es_port" json:"es_port"`

	// Postgres sink
	DatabaseDSN string `yaml:"database_dsn" json:"database_dsn"`

	// RecreateIndexes destroys and recreates every report index before
	// writing. Destructive: prior history for those indices is discarded.
	RecreateIndexes bool `yaml:"recreate_indexes" json:"recreate_indexes"`

	// BatchSize bounds how many rows are buffered before a sink flush.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// ServerConfig wraps the catalog server connection used by the workflow.
type ServerConfig struct {
	OpenMetadataServerConfig OpenMetadataServerConfig `yaml:"openMetadataServerConfig" json:"openMetadataServerConfig"`
}

// OpenMetadataServerConfig is the catalog server connection block.
type OpenMetadataServerConfig struct {
	HostPort       string         `yaml:"hostPort" json:"hostPort"`
	AuthProvider   string         `yaml:"authProvider" json:"authProvider"`
	SecurityConfig SecurityConfig `yaml:"securityConfig" json:"securityConfig"`
}

// SecurityConfig carries the catalog credential. The token is opaque to the
// engine; verification is the catalog's concern.
type SecurityConfig struct {
	JWTToken string `yaml:"jwtToken" json:"jwtToken"`
}
