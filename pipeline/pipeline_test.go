package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := &Runner{}
	registry := r.Registry()

	require.Contains(t, registry, DefaultPipeline)
	require.Contains(t, registry, StageFetching)
	require.Contains(t, registry, StagePreprocessing)
	require.Contains(t, registry, StageTraining)
	require.Contains(t, registry, StageExporting)

	// The full pipeline runs every stage in dependency order
	full := registry[DefaultPipeline]
	require.Len(t, full, 4)
	assert.Equal(t, StageFetching, full[0].Name)
	assert.Equal(t, StagePreprocessing, full[1].Name)
	assert.Equal(t, StageTraining, full[2].Name)
	assert.Equal(t, StageExporting, full[3].Name)

	// Exporting alone still retrains first, it needs a live network
	exporting := registry[StageExporting]
	require.Len(t, exporting, 2)
	assert.Equal(t, StageTraining, exporting[0].Name)
	assert.Equal(t, StageExporting, exporting[1].Name)
}

func TestPipelineNames(t *testing.T) {
	r := &Runner{}
	names := r.PipelineNames()

	assert.Equal(t, []string{
		DefaultPipeline,
		StageExporting,
		StageFetching,
		StagePreprocessing,
		StageTraining,
	}, names)
}

func TestRunUnknownPipeline(t *testing.T) {
	r := &Runner{}
	err := r.Run("no_such_pipeline", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline")
}

func TestStatusDefaults(t *testing.T) {
	r := &Runner{}
	status := r.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.CurrentStage)
}
