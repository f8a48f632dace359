// Package transform repackages a content item's downloaded files into a
// single publishable artifact. Input archives are unpacked first so nested
// packaging from the source host never ends up inside the artifact.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/smahi/mirrorbot/internal/status"
	"github.com/smahi/mirrorbot/internal/util"
)

// Processor turns a set of downloaded files into one zip artifact under the
// staging directory.
type Processor struct {
	registry   *status.Registry
	stagingDir string
}

func New(registry *status.Registry, stagingDir string) *Processor {
	return &Processor{registry: registry, stagingDir: stagingDir}
}

// Process builds the artifact for one item and returns its path. Every input
// that is a recognizable archive is extracted; everything else is copied
// as-is. The result is a single "<title>.zip" in the staging directory.
func (p *Processor) Process(ctx context.Context, section, title string, files []string) (string, error) {
	if len(files) == 0 {
		return "", errors.New("no files to process")
	}

	rep := status.NewReporter(p.registry, "transform")
	opID := rep.StartTransform(section, title, files[0])

	workDir, err := os.MkdirTemp("", "mirrorbot-transform-*")
	if err != nil {
		rep.Fail(err.Error(), "", opID)
		return "", err
	}
	defer os.RemoveAll(workDir)

	for i, f := range files {
		if ctx.Err() != nil {
			rep.Cancel("", opID)
			return "", ctx.Err()
		}
		rep.UpdateProgress(float64(i)/float64(len(files)+1),
			fmt.Sprintf("Unpacking file %d of %d", i+1, len(files)), opID)
		if err := p.stage(ctx, f, workDir); err != nil {
			rep.Fail(err.Error(), "", opID)
			return "", fmt.Errorf("staging %s: %w", filepath.Base(f), err)
		}
	}

	if err := os.MkdirAll(p.stagingDir, 0755); err != nil {
		rep.Fail(err.Error(), "", opID)
		return "", err
	}
	artifact := filepath.Join(p.stagingDir, util.SanitizeName(title)+".zip")
	rep.UpdateProgress(float64(len(files))/float64(len(files)+1), "Packaging artifact", opID)
	if err := p.pack(ctx, workDir, artifact); err != nil {
		rep.Fail(err.Error(), "", opID)
		return "", fmt.Errorf("packaging artifact: %w", err)
	}

	rep.Complete(artifact, "Artifact ready", opID)
	return artifact, nil
}

// stage extracts src into destDir if it is an archive, otherwise copies it.
func (p *Processor) stage(ctx context.Context, src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	format, input, err := archives.Identify(ctx, filepath.Base(src), f)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return copyFile(src, filepath.Join(destDir, filepath.Base(src)))
		}
		return err
	}

	extractor, ok := format.(archives.Extractor)
	if !ok {
		// Compressed but not an archive (e.g. a lone .gz); keep it verbatim.
		log.Printf("transform: %s is not an extractable archive, copying", filepath.Base(src))
		return copyFile(src, filepath.Join(destDir, filepath.Base(src)))
	}

	return extractor.Extract(ctx, input, func(ctx context.Context, fi archives.FileInfo) error {
		name := filepath.Clean(fi.NameInArchive)
		if name == "." || strings.HasPrefix(name, "..") {
			return nil
		}
		target := filepath.Join(destDir, name)
		if fi.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		r, err := fi.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, r)
		return err
	})
}

// pack zips the work directory's contents into outPath.
func (p *Processor) pack(ctx context.Context, dir, outPath string) error {
	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{dir + string(os.PathSeparator): ""})
	if err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	return archives.Zip{}.Archive(ctx, out, files)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
