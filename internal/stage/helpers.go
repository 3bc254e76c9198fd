package stage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"reelpipe/internal/services"
)

// RequireFile checks that a media reference points at a readable regular
// file. A missing file is a validation failure; retrying will not help.
func RequireFile(stageName, operation, path string) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrValidation, stageName, operation, "Media reference is empty", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrValidation, stageName, operation,
				fmt.Sprintf("Media file %q does not exist", path), err)
		}
		return services.Wrap(services.ErrTransient, stageName, operation,
			fmt.Sprintf("Stat media file %q", path), err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, stageName, operation,
			fmt.Sprintf("Media reference %q is a directory", path), nil)
	}
	return nil
}
