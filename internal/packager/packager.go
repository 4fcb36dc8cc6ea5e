// Package packager bundles rendered artifacts into the downloadable archive.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/workspace"
)

const (
	bundleSuffix = "_Video.zip"
	readmeName   = "README.txt"
	videoFormat  = "1080x1920 vertical, 30 fps, 15 s"
)

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Bundle is a written archive
type Bundle struct {
	Path string
	Name string
	Size int64
}

// Packager writes bundles. Now is overridable for tests.
type Packager struct {
	Now func() time.Time
}

func New() *Packager {
	return &Packager{Now: time.Now}
}

// SafeName derives a filename-safe token from a brand name
func SafeName(brand string) string {
	s := strings.Trim(unsafeRun.ReplaceAllString(brand, "_"), "_")
	if s == "" {
		return "video"
	}
	return s
}

// BundleName is the archive filename for brand
func BundleName(brand string) string {
	return SafeName(brand) + bundleSuffix
}

// Package writes <safe>_Video.zip into the workspace containing files and a
// README manifest. Any previous bundle is replaced, so exactly one exists.
func (p *Packager) Package(ws *workspace.Workspace, brand model.Brand, files []string) (*Bundle, error) {
	const op = "packager.Package"
	fail := func(msg string, err error) error {
		return model.NewPipelineError(model.KindPackaging, model.StagePackage, op, msg, err)
	}

	if len(files) == 0 {
		return nil, fail("no artifacts to package", nil)
	}

	safe := SafeName(brand.Name)
	name := safe + bundleSuffix
	final := filepath.Join(ws.Dir, name)

	if err := removeStale(ws, name); err != nil {
		return nil, fail("failed to remove previous bundle", err)
	}

	tmp, err := os.CreateTemp(ws.Dir, ".bundle-*.zip.tmp")
	if err != nil {
		return nil, fail("failed to create bundle", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	for i, src := range files {
		entry := safe + "_instagram_reel"
		if i > 0 {
			entry = fmt.Sprintf("%s_%d", entry, i+1)
		}
		entry += filepath.Ext(src)
		if err := addFile(zw, src, entry); err != nil {
			zw.Close()
			tmp.Close()
			return nil, fail("failed to add "+filepath.Base(src), err)
		}
	}

	w, err := zw.Create(readmeName)
	if err == nil {
		_, err = io.WriteString(w, p.readme(brand))
	}
	if err != nil {
		zw.Close()
		tmp.Close()
		return nil, fail("failed to write manifest", err)
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return nil, fail("failed to finish bundle", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fail("failed to flush bundle", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return nil, fail("failed to move bundle into place", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return nil, fail("failed to stat bundle", err)
	}
	return &Bundle{Path: final, Name: name, Size: info.Size()}, nil
}

// Locate returns the bundle of the workspace or model.ErrBundleNotFound
func Locate(ws *workspace.Workspace) (*Bundle, error) {
	matches, err := filepath.Glob(filepath.Join(ws.Dir, "*"+bundleSuffix))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return &Bundle{Path: m, Name: filepath.Base(m), Size: info.Size()}, nil
	}
	return nil, model.ErrBundleNotFound
}

func removeStale(ws *workspace.Workspace, keep string) error {
	matches, err := filepath.Glob(filepath.Join(ws.Dir, "*"+bundleSuffix))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if filepath.Base(m) == keep {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func addFile(zw *zip.Writer, src, entry string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = entry
	// Video is already compressed.
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func (p *Packager) readme(b model.Brand) string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s - Generated Video\n\n", b.Name)
	fmt.Fprintf(&sb, "Brand:      %s\n", b.Name)
	fmt.Fprintf(&sb, "Tagline:    %s\n", b.Tagline)
	fmt.Fprintf(&sb, "Colors:     primary %s, secondary %s, accent %s\n", b.PrimaryColor, b.SecondaryColor, b.AccentColor)
	fmt.Fprintf(&sb, "CTA:        %s\n", b.CTA)
	fmt.Fprintf(&sb, "Instagram:  %s\n", b.Instagram)
	fmt.Fprintf(&sb, "Website:    %s\n", b.Website)
	fmt.Fprintf(&sb, "Format:     %s\n", videoFormat)
	fmt.Fprintf(&sb, "Generated:  %s\n", now().UTC().Format(time.RFC3339))
	return sb.String()
}
