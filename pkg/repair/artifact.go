package repair

import (
	"fmt"
	"os"
	"time"
)

// writeArtifact saves content as error.<timestamp>.<random>.xml in dir and
// returns the file path.
func writeArtifact(dir string, now time.Time, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "error."+now.Format("20060102150405")+".*.xml")
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return f.Name(), nil
}
