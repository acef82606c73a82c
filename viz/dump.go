package viz

import (
	"bufio"
	"os"
	"path/filepath"
	"time"
)

// MapTimeFormat is the timestamp format used in dumped map filenames.
const MapTimeFormat = "2006-01-02T15:04:05.0000Z"

// CreateTimestampFilename creates an absolute filename with the map name and
// timestamp written into the filename.
func CreateTimestampFilename(dataDirectory, mapName, fileType string, timeStamp time.Time) string {
	return filepath.Join(dataDirectory, mapName+"_map_"+timeStamp.UTC().Format(MapTimeFormat)+fileType)
}

// WriteBytesToFile writes the passed bytes to the passed filename.
func WriteBytesToFile(bytes []byte, filename string) error {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(bytes); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
