// Package output writes generated artifacts to disk, all or nothing.
package output

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/manojsingh/agent-skills/generator"
)

var ErrOutputExists = errors.New("output file already exists")

// CollisionError lists the targets that already exist
type CollisionError struct {
	Paths []string
}

func (e *CollisionError) Error() string {
	return ErrOutputExists.Error() + " (use --overwrite): " + strings.Join(e.Paths, ", ")
}

func (e *CollisionError) Unwrap() error {
	return ErrOutputExists
}

// WriteAll writes files under dir. Without overwrite, any existing target
// aborts the run before anything is written. Files are staged as temporary
// files and renamed into place once every write succeeded. A failed rename
// removes the files this call created; files it already replaced under
// overwrite keep their new content.
func WriteAll(dir string, files []generator.File, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", dir)
	}

	targets := make([]string, len(files))
	var collisions []string
	for i, f := range files {
		targets[i] = filepath.Join(dir, f.Name)
		if overwrite {
			continue
		}
		if _, err := os.Lstat(targets[i]); err == nil {
			collisions = append(collisions, targets[i])
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "check %s", targets[i])
		}
	}
	if len(collisions) > 0 {
		return nil, &CollisionError{Paths: collisions}
	}

	staged := make([]string, 0, len(files))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}

	for i, f := range files {
		tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Name)+".*.tmp")
		if err != nil {
			cleanup()
			return nil, errors.Wrapf(err, "stage %s", targets[i])
		}
		staged = append(staged, tmp.Name())
		if _, err := tmp.Write(f.Content); err != nil {
			tmp.Close()
			cleanup()
			return nil, errors.Wrapf(err, "write %s", targets[i])
		}
		if err := tmp.Close(); err != nil {
			cleanup()
			return nil, errors.Wrapf(err, "write %s", targets[i])
		}
		if err := os.Chmod(tmp.Name(), 0o644); err != nil {
			cleanup()
			return nil, errors.Wrapf(err, "chmod %s", targets[i])
		}
	}

	fresh := make([]bool, len(targets))
	for i, target := range targets {
		_, err := os.Lstat(target)
		fresh[i] = os.IsNotExist(err)
	}

	for i, tmp := range staged {
		if err := os.Rename(tmp, targets[i]); err != nil {
			cleanup()
			for k := 0; k < i; k++ {
				if fresh[k] {
					_ = os.Remove(targets[k])
				}
			}
			return nil, errors.Wrapf(err, "rename %s", targets[i])
		}
		log.WithField("file", targets[i]).Debug("written")
	}

	return targets, nil
}
