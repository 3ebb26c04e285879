package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/conexus/domain/model"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Fabric.Validate())

	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.True(t, cfg.Fabric.EnableCrossNodeBroadcast)
	assert.True(t, cfg.Fabric.EnableLocalProcessing)
	assert.True(t, cfg.Fabric.EnableGracefulDegradation)
	assert.Equal(t, 5, cfg.Fabric.CircuitBreakerFailureThreshold)
	assert.EqualValues(t, 30_000, cfg.Fabric.CircuitBreakerTimeoutMillis)
	assert.Equal(t, 3, cfg.Fabric.MaxRetryAttempts)
	assert.EqualValues(t, 1_000, cfg.Fabric.RetryDelayMillis)
	assert.Equal(t, 2.0, cfg.Fabric.RetryBackoffMultiplier)
	assert.Equal(t, 100, cfg.Fabric.MaxConcurrentEvents)
	assert.Equal(t, "conexus:events", cfg.Fabric.EventBroadcastChannel)
}

func TestFabricConfig_Validate(t *testing.T) {
	valid := func() FabricConfig {
		return DefaultConfig().Fabric
	}

	tests := []struct {
		name    string
		mutate  func(f *FabricConfig)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(f *FabricConfig) {},
			wantErr: false,
		},
		{
			name:    "circuitBreakerFailureThreshold below 1 fails",
			mutate:  func(f *FabricConfig) { f.CircuitBreakerFailureThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "circuitBreakerTimeoutMillis below 1000 fails",
			mutate:  func(f *FabricConfig) { f.CircuitBreakerTimeoutMillis = 999 },
			wantErr: true,
		},
		{
			name:    "maxRetryAttempts below 1 fails",
			mutate:  func(f *FabricConfig) { f.MaxRetryAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "retryDelayMillis below 1000 fails",
			mutate:  func(f *FabricConfig) { f.RetryDelayMillis = 500 },
			wantErr: true,
		},
		{
			name:    "retryBackoffMultiplier below 1.0 fails",
			mutate:  func(f *FabricConfig) { f.RetryBackoffMultiplier = 0.5 },
			wantErr: true,
		},
		{
			name:    "eventProcessingTimeoutMillis below 1000 fails",
			mutate:  func(f *FabricConfig) { f.EventProcessingTimeoutMillis = 999 },
			wantErr: true,
		},
		{
			name:    "networkBroadcastTimeoutMillis below 1000 fails",
			mutate:  func(f *FabricConfig) { f.NetworkBroadcastTimeoutMillis = 1 },
			wantErr: true,
		},
		{
			name:    "maxConcurrentEvents below 1 fails",
			mutate:  func(f *FabricConfig) { f.MaxConcurrentEvents = 0 },
			wantErr: true,
		},
		{
			name:    "empty eventBroadcastChannel fails",
			mutate:  func(f *FabricConfig) { f.EventBroadcastChannel = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(&f)

			err := f.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFabricConfig_DurationAccessors(t *testing.T) {
	f := FabricConfig{
		CircuitBreakerTimeoutMillis:   2_500,
		RetryDelayMillis:              1_500,
		EventProcessingTimeoutMillis:  7_000,
		NetworkBroadcastTimeoutMillis: 4_000,
	}

	assert.Equal(t, 2500e6, float64(f.CircuitBreakerTimeout()))
	assert.Equal(t, 1500e6, float64(f.RetryDelay()))
	assert.Equal(t, 7000e6, float64(f.EventProcessingTimeout()))
	assert.Equal(t, 4000e6, float64(f.NetworkBroadcastTimeout()))
}

func TestParse_SeedsDefaultsThenOverridesThenValidates(t *testing.T) {
	yamlDoc := []byte(`
general:
  nodeId: node-a
  logLevel: debug
fabric:
  maxRetryAttempts: 5
  circuitBreakerFailureThreshold: 10
`)

	cfg, err := Parse(yamlDoc)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.General.NodeID)
	assert.Equal(t, "debug", cfg.General.LogLevel)

	assert.Equal(t, 5, cfg.Fabric.MaxRetryAttempts)
	assert.Equal(t, 10, cfg.Fabric.CircuitBreakerFailureThreshold)

	// Fields untouched by the document keep DefaultConfig's values.
	assert.True(t, cfg.Fabric.EnableCrossNodeBroadcast)
	assert.Equal(t, "conexus:events", cfg.Fabric.EventBroadcastChannel)
}

func TestParse_RejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("not: valid: yaml: at: all:"))
	require.Error(t, err)
}

func TestParse_PropagatesValidationFailure(t *testing.T) {
	yamlDoc := []byte(`
fabric:
  eventBroadcastChannel: ""
`)

	_, err := Parse(yamlDoc)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}
