// Package diskmanager guards recordings against running out of disk space.
package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/sensorrec/internal/errors"
)

// ErrInsufficientSpace is wrapped by CheckFreeSpace when free space is below the threshold.
var ErrInsufficientSpace = errors.Newf("insufficient free disk space").
	Component("diskmanager").
	Category(errors.CategoryDiskUsage).
	Build()

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	Path        string
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	UsedPercent float64
}

// GetDetailedDiskUsage returns usage of the filesystem holding path. A path
// that does not exist yet is resolved to its nearest existing parent.
func GetDetailedDiskUsage(ctx context.Context, path string) (DiskSpaceInfo, error) {
	startTime := time.Now()
	existing := nearestExisting(path)

	usage, err := disk.UsageWithContext(ctx, existing)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskUsage).
			Context("path", existing).
			Context("operation", "disk_usage").
			Timing("disk_usage_check", time.Since(startTime)).
			Build()
	}

	return DiskSpaceInfo{
		Path:        existing,
		TotalBytes:  usage.Total,
		UsedBytes:   usage.Used,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// CheckFreeSpace fails when the filesystem holding path has fewer than
// minFreeBytes available. A zero threshold disables the check.
func CheckFreeSpace(ctx context.Context, path string, minFreeBytes uint64) (DiskSpaceInfo, error) {
	if minFreeBytes == 0 {
		return DiskSpaceInfo{Path: path}, nil
	}
	info, err := GetDetailedDiskUsage(ctx, path)
	if err != nil {
		return info, err
	}
	if info.FreeBytes < minFreeBytes {
		return info, errors.New(ErrInsufficientSpace).
			Component("diskmanager").
			Category(errors.CategoryDiskUsage).
			Context("path", info.Path).
			Context("free_bytes", info.FreeBytes).
			Context("min_free_bytes", minFreeBytes).
			Build()
	}
	return info, nil
}

func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
