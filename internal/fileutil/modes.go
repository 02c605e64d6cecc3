package fileutil

import "os"

// Modes applied to the home directory and the index database files.
const (
	DirMode  os.FileMode = 0700
	FileMode os.FileMode = 0600
)

// IndexFiles returns the database path and the SQLite sidecar files that
// may sit next to it.
func IndexFiles(dbPath string) []string {
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}
