package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadGranularity(t *testing.T) {
	cfg := Default()
	cfg.EventTrackerGranularity = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadHashgrowth(t *testing.T) {
	cfg := Default()
	cfg.DTimerTsetHashgrowth = 1.0
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveBatchSize(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 0
	require.Error(t, cfg.Validate())
}

func TestProjections_CarryThroughValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, cfg.EventTrackerGranularity, cfg.CalendarConfig().Granularity)
	require.Equal(t, cfg.BatchSize, cfg.WorkerConfig().BatchSize)
}
