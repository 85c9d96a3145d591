package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
)

const sampleWorkflowYAML = `
source:
  type: dataInsight
  serviceName: OpenMetadata
  sourceConfig:
    config:
      type: dataInsight
processor:
  type: data-insight-processor
sink:
  type: elasticsearch
  config:
    es_host: localhost
    es_port: 9200
    recreate_indexes: true
    batch_size: 250
workflowConfig:
  openMetadataServerConfig:
    hostPort: http://localhost:8585/api
    authProvider: openmetadata
    securityConfig:
      jwtToken: test-token
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, sampleWorkflowYAML))
	require.NoError(t, err)

	assert.Equal(t, SourceTypeDataInsight, cfg.Source.Type)
	assert.Equal(t, "OpenMetadata", cfg.Source.ServiceName)
	assert.Equal(t, SinkTypeElasticsearch, cfg.Sink.Type)
	assert.Equal(t, "localhost", cfg.Sink.Config.ESHost)
	assert.Equal(t, 9200, cfg.Sink.Config.ESPort)
	assert.True(t, cfg.Sink.Config.RecreateIndexes)
	assert.Equal(t, 250, cfg.Sink.Config.BatchSize)
	assert.Equal(t, "test-token", cfg.WorkflowConfig.OpenMetadataServerConfig.SecurityConfig.JWTToken)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoadConfigBadYAML(t *testing.T) {
	_, err := LoadConfig(writeTempConfig(t, "source: [unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoadConfigRejectsUnknownSource(t *testing.T) {
	bad := strings.Replace(sampleWorkflowYAML, "type: dataInsight", "type: Foo", 1)

	_, err := LoadConfig(writeTempConfig(t, bad))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
