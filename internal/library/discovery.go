package library

import (
	"os"
	"path/filepath"

	"github.com/llehouerou/wavebot/internal/tags"
)

// discoverFiles walks the given source directories and returns all audio files found.
func discoverFiles(sources []string, progress chan<- ScanProgress) []string {
	var files []string
	for _, src := range sources {
		_ = filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
			// Skip any walk errors - intentionally continuing to scan other paths
			if walkErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			if d.IsDir() || !tags.IsAudioFile(path) {
				return nil
			}

			files = append(files, path)
			if len(files)%100 == 0 {
				report(progress, ScanProgress{Phase: PhaseScanning, Current: len(files)})
			}
			return nil
		})
	}
	return files
}
