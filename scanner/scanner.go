// Package scanner discovers and reads C# model sources.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
	"golang.org/x/sync/errgroup"

	"github.com/manojsingh/agent-skills/database"
)

var ErrNoSources = errors.New("no source model files found")

// DefaultExcludeDirs are build and tooling directories never holding models.
var DefaultExcludeDirs = []string{"bin", "obj", "Migrations", ".git", ".vs", "node_modules"}

type Options struct {
	Extension   string
	ExcludeDirs []string
}

// ReadError is a source file that could not be read
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Discover walks root in parallel and returns the matching files, sorted.
func Discover(ctx context.Context, root string, opts Options) ([]string, error) {
	ext := strings.ToLower(opts.Extension)
	if ext == "" {
		ext = ".cs"
	}
	exclude := map[string]struct{}{}
	for _, d := range opts.ExcludeDirs {
		exclude[d] = struct{}{}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(ErrNoSources, "cannot read %s: %s", root, err)
	}
	if !info.IsDir() {
		if strings.ToLower(filepath.Ext(root)) != ext {
			return nil, errors.Wrapf(ErrNoSources, "%s is not a %s file", root, ext)
		}
		return []string{root}, nil
	}

	var (
		mu    sync.Mutex
		files []string
	)

	walkFn := func(path string, fi os.FileInfo) error {
		if fi.IsDir() || strings.ToLower(filepath.Ext(path)) != ext {
			return nil
		}
		if excluded(root, path, exclude) {
			return nil
		}
		mu.Lock()
		files = append(files, path)
		mu.Unlock()
		return nil
	}

	errCallback := walker.WithErrorCallback(func(path string, err error) error {
		log.WithField("path", path).WithError(err).Warn("unable to walk")
		return nil
	})

	if err := walker.WalkWithContext(ctx, root, walkFn, errCallback); err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}

	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNoSources, "no %s files under %s", ext, root)
	}
	sort.Strings(files)

	return files, nil
}

func excluded(root, path string, exclude map[string]struct{}) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if _, ok := exclude[seg]; ok {
			return true
		}
	}

	return false
}

// ReadSources reads the files with a bounded pool of workers. Sources come
// back in the order of paths; unreadable files are reported, not fatal.
func ReadSources(ctx context.Context, paths []string) ([]database.SourceFile, []*ReadError) {
	slots := make([]database.SourceFile, len(paths))
	failures := make([]*ReadError, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU() * 2)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = &ReadError{Path: path, Err: err}
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				failures[i] = &ReadError{Path: path, Err: err}
				return nil
			}
			slots[i] = database.SourceFile{Path: path, Content: data}
			log.WithField("file", path).Debugf("read %d bytes", len(data))
			return nil
		})
	}
	_ = g.Wait()

	var (
		sources []database.SourceFile
		errs    []*ReadError
	)
	for i := range paths {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		sources = append(sources, slots[i])
	}

	return sources, errs
}
