package image

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rstms/cfs"
	"github.com/rstms/cfs/block"
	"github.com/rstms/cfs/volume"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var ErrNotEmpty = errors.New("directory not empty")

// FileRecord describes one file or directory found in an image.
type FileRecord struct {
	Name  string
	Dir   bool
	Index block.Index
	Size  int64
}

// Image is a cfs volume persisted as a single file.
type Image struct {
	Filename string
	fs       afero.Fs
	codec    Codec
	vol      *volume.Volume
	fsys     *volume.FileSystem
	log      *zap.Logger
	dirty    bool
}

// OpenImage reads an existing image. The compression codec is detected
// from the file contents.
func OpenImage(filename string, opts ...Option) (*Image, error) {
	o := buildOptions(opts)
	i := Image{Filename: filename, fs: o.fs, log: o.logger}
	data, err := afero.ReadFile(i.fs, filename)
	if err != nil {
		return nil, Fatal(err)
	}
	detected := detectCodec(data)
	raw, err := detected.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	i.codec = detected
	if o.codecSet {
		i.codec = o.codec
	}
	maxBlocks := o.maxBlocks
	if maxBlocks == 0 {
		n, ok := blocksFor(len(raw))
		if !ok {
			return nil, fmt.Errorf("%s: %w: %d bytes is not a valid image size", filename, volume.ErrTruncatedImage, len(raw))
		}
		maxBlocks = n
	}
	i.vol, err = volume.Unmarshal(raw, volume.WithMaxBlocks(maxBlocks), volume.WithLogger(i.log))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	i.fsys = volume.NewFileSystem(i.vol)
	i.log.Debug("image opened",
		zap.String("file", filename),
		zap.Stringer("codec", detected),
		zap.Int("max_blocks", maxBlocks),
		zap.Int("used_blocks", i.vol.UsedBlocks()))
	return &i, nil
}

// CreateImage writes a new empty image, replacing any file already
// present.
func CreateImage(filename string, opts ...Option) (*Image, error) {
	i, err := newImage(filename, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	err = i.Save()
	if err != nil {
		return nil, err
	}
	return i, nil
}

// newImage returns an empty image that exists only in memory until it
// is saved.
func newImage(filename string, o options) (*Image, error) {
	i := Image{Filename: filename, fs: o.fs, codec: o.codec, log: o.logger}
	maxBlocks := o.maxBlocks
	if maxBlocks == 0 {
		maxBlocks = volume.DefaultMaxBlocks
	}
	var err error
	i.vol, err = volume.New(volume.WithMaxBlocks(maxBlocks), volume.WithLogger(i.log))
	if err != nil {
		return nil, err
	}
	i.fsys = volume.NewFileSystem(i.vol)
	return &i, nil
}

// blocksFor returns the block count whose raw image is exactly size bytes.
func blocksFor(size int) (int, bool) {
	estimate := (size - 9) * 8 / (8*block.SlotSize + 1)
	for n := max(estimate-2, 1); n <= estimate+2; n++ {
		if volume.ImageSize(n) == size {
			return n, true
		}
	}
	return 0, false
}

// Save writes the image to a temporary file beside the target and
// renames it into place.
func (i *Image) Save() error {
	raw, err := i.vol.MarshalBinary()
	if err != nil {
		return err
	}
	data, err := i.codec.encode(raw)
	if err != nil {
		return Fatal(err)
	}
	temp := i.Filename + ".tmp-" + uuid.NewString()
	err = afero.WriteFile(i.fs, temp, data, 0600)
	if err != nil {
		return Fatal(err)
	}
	err = i.fs.Rename(temp, i.Filename)
	if err != nil {
		i.fs.Remove(temp)
		return Fatal(err)
	}
	i.dirty = false
	i.log.Debug("image saved",
		zap.String("file", i.Filename),
		zap.Stringer("codec", i.codec),
		zap.Int("bytes", len(data)))
	return nil
}

// Close saves the image if it was modified.
func (i *Image) Close() error {
	if i.dirty {
		return i.Save()
	}
	return nil
}

func (i *Image) Volume() *volume.Volume {
	return i.vol
}

func (i *Image) Codec() Codec {
	return i.codec
}

func (i *Image) Check() error {
	return i.vol.Check()
}

func (i *Image) Bitmap() string {
	return i.vol.Bitmap()
}

func (i *Image) Info() (map[string]any, error) {
	info, err := i.fsys.Info()
	if err != nil {
		return nil, err
	}
	info["file"] = i.Filename
	info["compression"] = i.codec.String()
	return info, nil
}

func (i *Image) RootDir() (cfs.Directory, error) {
	return i.fsys.RootDir()
}

// splitPath separates the parent directory from the final name.
func splitPath(pathname string) (string, string) {
	dir, name := path.Split(strings.TrimRight(pathname, "/"))
	return dir, name
}

// searchDir returns the named directory, or nil when nothing by that
// name resolves to a directory.
func (i *Image) searchDir(name string) (cfs.Directory, error) {
	index, err := i.vol.Resolve(name, i.vol.Root())
	if errors.Is(err, volume.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if i.vol.Kind(index) != block.KindDir {
		return nil, nil
	}
	return i.fsys.Dir(index)
}

func (i *Image) getDir(name string) (cfs.Directory, error) {
	dir, err := i.searchDir(name)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: directory %q", volume.ErrNotFound, name)
	}
	return dir, nil
}

// getEntry returns the entry for pathname along with its parent.
func (i *Image) getEntry(pathname string) (cfs.Directory, cfs.DirectoryEntry, error) {
	parentName, name := splitPath(pathname)
	parent, err := i.getDir(parentName)
	if err != nil {
		return nil, nil, err
	}
	entry := parent.Entry(name)
	if entry == nil {
		return nil, nil, fmt.Errorf("%w: %q", volume.ErrNotFound, pathname)
	}
	return parent, entry, nil
}

func (i *Image) IsDir(name string) (bool, error) {
	dir, err := i.searchDir(name)
	if err != nil {
		return false, err
	}
	return dir != nil, nil
}

func (i *Image) Mkdir(pathname string) error {
	dir, name := splitPath(pathname)
	parent, err := i.getDir(dir)
	if err != nil {
		return err
	}
	_, err = parent.AddDirectory(name)
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", pathname, err)
	}
	i.dirty = true
	return nil
}

// MkdirAll creates pathname and any missing parents. Existing
// directories along the way are not an error.
func (i *Image) MkdirAll(pathname string) error {
	dir, err := i.fsys.RootDir()
	if err != nil {
		return err
	}
	for _, name := range strings.Split(pathname, "/") {
		if name == "" || name == "." {
			continue
		}
		// Entry prefers directories, so a file here means no directory
		// of that name exists yet
		entry := dir.Entry(name)
		if entry == nil || !entry.IsDir() {
			entry, err = dir.AddDirectory(name)
			if err != nil {
				return fmt.Errorf("mkdir %s: %w", pathname, err)
			}
			i.dirty = true
		}
		dir, err = entry.Dir()
		if err != nil {
			return fmt.Errorf("mkdir %s: %w", pathname, err)
		}
	}
	return nil
}

// Touch creates an empty file.
func (i *Image) Touch(pathname string) error {
	dir, name := splitPath(pathname)
	parent, err := i.getDir(dir)
	if err != nil {
		return err
	}
	_, err = parent.AddFile(name)
	if err != nil {
		return fmt.Errorf("touch %s: %w", pathname, err)
	}
	i.dirty = true
	return nil
}

// AddFile copies a host file into the image as a new file.
func (i *Image) AddFile(dstPathname, srcPathname string) error {
	srcInfo, err := i.fs.Stat(srcPathname)
	if err != nil {
		return Fatal(err)
	}
	data, err := afero.ReadFile(i.fs, srcPathname)
	if err != nil {
		return Fatal(err)
	}
	if int64(len(data)) != srcInfo.Size() {
		return Fatalf("read count mismatch; expected %d, read %d", srcInfo.Size(), len(data))
	}

	dstDir, dstName := splitPath(dstPathname)
	dir, err := i.getDir(dstDir)
	if err != nil {
		return err
	}
	entry, err := dir.AddFile(dstName)
	if err != nil {
		return fmt.Errorf("add %s: %w", dstPathname, err)
	}
	dst, err := entry.File()
	if err != nil {
		return err
	}
	i.dirty = true
	_, err = dst.Write(data)
	if err != nil {
		// the file was created but could not take the data
		if rmErr := dir.Remove(dstName); rmErr != nil {
			return errors.Join(err, rmErr)
		}
		return fmt.Errorf("add %s: %w", dstPathname, err)
	}
	i.log.Debug("file added",
		zap.String("path", dstPathname),
		zap.String("source", srcPathname),
		zap.Int("bytes", len(data)))
	return nil
}

// WriteFile appends data to pathname, creating the file if needed.
func (i *Image) WriteFile(pathname string, data []byte) error {
	dir, name := splitPath(pathname)
	parent, err := i.getDir(dir)
	if err != nil {
		return err
	}
	entry := parent.Entry(name)
	if entry == nil {
		entry, err = parent.AddFile(name)
		if err != nil {
			return fmt.Errorf("write %s: %w", pathname, err)
		}
		i.dirty = true
	}
	file, err := entry.File()
	if err != nil {
		return fmt.Errorf("write %s: %w", pathname, err)
	}
	_, err = file.Write(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", pathname, err)
	}
	i.dirty = true
	return nil
}

// fileEntry returns the file called pathname, passing over a directory
// of the same name.
func (i *Image) fileEntry(pathname string) (cfs.DirectoryEntry, error) {
	parentName, name := splitPath(pathname)
	parent, err := i.getDir(parentName)
	if err != nil {
		return nil, err
	}
	var found cfs.DirectoryEntry
	for _, entry := range parent.Entries() {
		if entry.Name() != name {
			continue
		}
		if !entry.IsDir() {
			return entry, nil
		}
		found = entry
	}
	if found != nil {
		return nil, fmt.Errorf("%w: %q is a directory", volume.ErrWrongKind, pathname)
	}
	return nil, fmt.Errorf("%w: %q", volume.ErrNotFound, pathname)
}

func (i *Image) ReadFile(pathname string) ([]byte, error) {
	entry, err := i.fileEntry(pathname)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pathname, err)
	}
	src, err := entry.File()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pathname, err)
	}
	return src.ReadAll()
}

// RemoveFile deletes the file called pathname even when a directory
// shares its name.
func (i *Image) RemoveFile(pathname string) error {
	entry, err := i.fileEntry(pathname)
	if err != nil {
		return fmt.Errorf("remove %s: %w", pathname, err)
	}
	err = i.vol.RemoveFile(entry.Index())
	if err != nil {
		return fmt.Errorf("remove %s: %w", pathname, err)
	}
	i.dirty = true
	return nil
}

// Remove deletes pathname. When a directory and a file share the name
// the directory is the one removed; RemoveFile reaches the file. A
// directory with children is only removed when recursive is set.
func (i *Image) Remove(pathname string, recursive bool) error {
	if strings.Trim(pathname, "/.") == "" {
		return volume.ErrRoot
	}
	parent, entry, err := i.getEntry(pathname)
	if err != nil {
		return err
	}
	if entry.IsDir() && !recursive {
		dir, err := entry.Dir()
		if err != nil {
			return err
		}
		if len(dir.Entries()) > 0 {
			return fmt.Errorf("remove %s: %w", pathname, ErrNotEmpty)
		}
	}
	err = parent.Remove(entry.Name())
	if err != nil {
		return fmt.Errorf("remove %s: %w", pathname, err)
	}
	i.dirty = true
	return nil
}

func (i *Image) Stat(pathname string) (FileRecord, error) {
	index, err := i.vol.Resolve(pathname, i.vol.Root())
	if err != nil {
		return FileRecord{}, err
	}
	record := FileRecord{
		Name:  path.Join("/", pathname),
		Index: index,
		Dir:   i.vol.Kind(index) == block.KindDir,
	}
	if !record.Dir {
		record.Size, err = i.vol.Size(index)
		if err != nil {
			return FileRecord{}, err
		}
	}
	return record, nil
}

// ScanFiles lists every file and directory below the root, each
// directory before its contents.
func (i *Image) ScanFiles() ([]FileRecord, error) {
	imgRoot, err := i.fsys.RootDir()
	if err != nil {
		return nil, err
	}
	return walk("/", imgRoot)
}

func entryRecord(dirPath string, entry cfs.DirectoryEntry) (FileRecord, error) {
	record := FileRecord{
		Name:  path.Join(dirPath, entry.Name()),
		Index: entry.Index(),
		Dir:   entry.IsDir(),
	}
	if record.Dir {
		return record, nil
	}
	file, err := entry.File()
	if err != nil {
		return FileRecord{}, err
	}
	record.Size, err = file.Size()
	if err != nil {
		return FileRecord{}, err
	}
	return record, nil
}

func walk(dirPath string, dir cfs.Directory) ([]FileRecord, error) {
	records := []FileRecord{}
	for _, entry := range dir.Entries() {
		record, err := entryRecord(dirPath, entry)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
		if !record.Dir {
			continue
		}
		subdir, err := entry.Dir()
		if err != nil {
			return nil, err
		}
		subRecords, err := walk(record.Name, subdir)
		if err != nil {
			return nil, err
		}
		records = append(records, subRecords...)
	}
	return records, nil
}

// OpenDir returns the named directory.
func (i *Image) OpenDir(name string) (cfs.Directory, error) {
	return i.getDir(name)
}

// List returns the entries of one directory without descending into
// subdirectories.
func (i *Image) List(name string) ([]FileRecord, error) {
	dir, err := i.getDir(name)
	if err != nil {
		return nil, err
	}
	records := []FileRecord{}
	for _, entry := range dir.Entries() {
		record, err := entryRecord(path.Join("/", name), entry)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Import copies a host directory tree into the image root.
func (i *Image) Import(hostDir string) error {
	err := afero.Walk(i.fs, hostDir, func(hostPath string, info fs.FileInfo, err error) error {
		if err != nil {
			return Fatal(err)
		}
		if hostPath == hostDir {
			return nil
		}
		rel, err := filepath.Rel(hostDir, hostPath)
		if err != nil {
			return Fatal(err)
		}
		dst := filepath.ToSlash(rel)
		i.log.Debug("import", zap.Bool("dir", info.IsDir()), zap.String("dst", dst), zap.String("path", hostPath))
		if info.IsDir() {
			return i.Mkdir(dst)
		}
		return i.AddFile(dst, hostPath)
	})
	if err != nil {
		return err
	}
	return nil
}
