package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avillegas/alcalorscraper/internal/config"
)

func TestClampConcurrency(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1, clampConcurrency(0))
	require.Equal(t, 1, clampConcurrency(-5))
	require.Equal(t, 7, clampConcurrency(7))
	require.Equal(t, config.MaxConcurrency, clampConcurrency(config.MaxConcurrency))
	require.Equal(t, config.MaxConcurrency, clampConcurrency(config.MaxConcurrency+50))
}

func TestResolveWindow_SingleDate(t *testing.T) {
	t.Parallel()
	start, end, err := resolveWindow("2024-12-15", "", "", false, 3)
	require.NoError(t, err)
	require.Equal(t, start, end)
	require.Equal(t, time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), start)
}

func TestResolveWindow_Range(t *testing.T) {
	t.Parallel()
	start, end, err := resolveWindow("", "2024-03-01", "2024-03-10", false, 3)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), end)
}

func TestResolveWindow_Today(t *testing.T) {
	t.Parallel()
	start, end, err := resolveWindow("", "", "", true, 3)
	require.NoError(t, err)
	require.Equal(t, 3, int(end.Sub(start).Hours()/24))

	now := time.Now().UTC()
	require.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), end)
}

func TestResolveWindow_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := resolveWindow("", "", "", false, 3)
	require.Error(t, err)

	_, _, err = resolveWindow("2024-12-15", "2024-03-01", "", false, 3)
	require.Error(t, err)

	_, _, err = resolveWindow("", "2024-03-10", "2024-03-01", false, 3)
	require.Error(t, err)

	_, _, err = resolveWindow("", "", "", true, 0)
	require.NoError(t, err)

	_, _, err = resolveWindow("15-12-2024", "", "", false, 3)
	require.Error(t, err)

	_, _, err = resolveWindow("2024-12-15", "", "", true, 3)
	require.Error(t, err)
}
