package main

import (
	"io"
	"os"
)

// installArtifact copies the cache-resident binary at src to the
// user-requested output path dst, setting it executable.
func installArtifact(src, dst string) error {
	if src == "" {
		return nil // the driver recorded no BIN artifact
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
