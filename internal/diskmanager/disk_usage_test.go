package diskmanager

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/sensorrec/internal/errors"
)

func TestGetDetailedDiskUsage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	info, err := GetDetailedDiskUsage(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, info.Path)
	assert.Positive(t, info.TotalBytes)
	assert.LessOrEqual(t, info.FreeBytes, info.TotalBytes)
}

func TestGetDetailedDiskUsage_MissingPathUsesParent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	info, err := GetDetailedDiskUsage(context.Background(), filepath.Join(dir, "not", "yet", "created"))
	require.NoError(t, err)
	assert.Equal(t, dir, info.Path)
}

func TestCheckFreeSpace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := CheckFreeSpace(context.Background(), dir, 0)
	require.NoError(t, err)

	_, err = CheckFreeSpace(context.Background(), dir, 1)
	require.NoError(t, err)

	_, err = CheckFreeSpace(context.Background(), dir, math.MaxUint64)
	require.ErrorIs(t, err, ErrInsufficientSpace)
	assert.True(t, errors.IsCategory(err, errors.CategoryDiskUsage))
}
