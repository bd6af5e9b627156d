//go:build !darwin && !linux

package storage

// detectFilesystemType cannot tell network mounts apart here; report unknown and let SQLite try.
func detectFilesystemType(path string) (string, error) {
	return "unknown", nil
}
