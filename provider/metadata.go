package provider

import (
	"os"
	"time"
)

// ModeFileInfo is a FileInfo that also carries permission bits.
type ModeFileInfo interface {
	FileInfo
	Mode() os.FileMode
}

type modeFileInfo struct {
	FileInfo
	mode os.FileMode
}

func (m *modeFileInfo) Mode() os.FileMode { return m.mode }

// WrapOSFileInfo converts an os.FileInfo into a ModeFileInfo.
func WrapOSFileInfo(info os.FileInfo) ModeFileInfo {
	return &modeFileInfo{
		FileInfo: &fileInfo{
			name:    info.Name(),
			size:    info.Size(),
			isDir:   info.IsDir(),
			modTime: info.ModTime(),
		},
		mode: info.Mode().Perm(),
	}
}

// ApplyMetadata copies the permission bits and modification time of
// fileInfo onto the file at path. Values the source does not carry are
// left untouched.
func ApplyMetadata(path string, fileInfo FileInfo) error {
	if fileInfo == nil {
		return nil
	}

	if mInfo, ok := fileInfo.(ModeFileInfo); ok && mInfo.Mode() != 0 {
		if err := os.Chmod(path, mInfo.Mode()); err != nil {
			return err
		}
	}

	if !fileInfo.ModTime().IsZero() {
		// Writing the content bumped mtime, so restore the source's.
		if err := os.Chtimes(path, time.Now(), fileInfo.ModTime()); err != nil {
			return err
		}
	}

	return nil
}
