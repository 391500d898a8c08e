package fs

import "os"

// corruptMagic overwrites segment 0's signature bytes directly on disk, used by
// TestOpenRejectsBadSignature to exercise the invalid_signature path without a back door into
// BaseManager's own write API.
func corruptMagic(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt([]byte{'x', 'x', 'x', 'x'}, 0)
	return err
}
