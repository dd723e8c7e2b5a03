// Package thumbnail serves video thumbnails, resized on request and cached on disk.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/idhash"
)

// DefaultQuality is the jpeg quality used when a resize does not ask for one.
const DefaultQuality = 85

// ErrNotFound is returned for missing files and names that are not images.
var ErrNotFound = errors.New("thumbnail not found")

var isImg = regexp.MustCompile(`(?i)\.(png|jpg|jpeg)$`)

// Options configures a Resizer.
type Options struct {
	// Dir holds the original thumbnails.
	Dir string
	// CacheDir holds resized copies, empty disables caching.
	CacheDir string
	Logger   *zap.Logger
}

// Resizer opens thumbnails, resizing them when asked to.
type Resizer struct {
	dir      string
	cacheDir string
	logger   *zap.Logger

	resizeMutexMap     map[string]*sync.Mutex
	resizeMutexMapLock sync.Mutex
}

// New returns a Resizer.
func New(o *Options) *Resizer {
	r := &Resizer{
		dir:            o.Dir,
		cacheDir:       o.CacheDir,
		logger:         o.Logger,
		resizeMutexMap: make(map[string]*sync.Mutex),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("thumbnail")
	return r
}

// Size is a requested thumbnail size. Zero fields are unset.
type Size struct {
	Width     int
	Height    int
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// ParseSize reads the w, h, mw, mh and q query parameters.
func ParseSize(params url.Values) Size {
	return Size{
		Width:     param2int(params, "w"),
		Height:    param2int(params, "h"),
		MaxWidth:  param2int(params, "mw"),
		MaxHeight: param2int(params, "mh"),
		Quality:   param2int(params, "q"),
	}
}

func param2int(params url.Values, param string) int {
	x, _ := strconv.ParseUint(params.Get(param), 10, 16)
	return int(x)
}

// IsZero reports whether no resizing or re-encoding was asked for.
func (s Size) IsZero() bool {
	return s == Size{}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d-max%dx%d-q%d", s.Width, s.Height, s.MaxWidth, s.MaxHeight, s.Quality)
}

// Image is an opened thumbnail.
type Image struct {
	io.ReadSeekCloser
	Name        string
	ModTime     time.Time
	ContentType string
}

type nopCloser struct{ io.ReadSeeker }

func (nopCloser) Close() error { return nil }

// Open returns the thumbnail called name, resized to size.
func (r *Resizer) Open(name string, size Size) (*Image, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return nil, ErrNotFound
	}
	s := isImg.FindStringSubmatch(name)
	if len(s) == 0 {
		return nil, ErrNotFound
	}
	ctype := "image/jpeg"
	if strings.EqualFold(s[1], "png") {
		ctype = "image/png"
	}

	path := filepath.Join(r.dir, name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil, ErrNotFound
	}
	img := &Image{Name: name, ModTime: fi.ModTime(), ContentType: ctype}

	if size.IsZero() {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		img.ReadSeekCloser = f
		return img, nil
	}

	key := idhash.Hash(fmt.Sprintf("%s:%d:%s", name, fi.ModTime().UnixNano(), size)) + filepath.Ext(name)
	if f := r.cacheRead(key); f != nil {
		img.ReadSeekCloser = f
		return img, nil
	}

	// one resize per cache key at a time.
	r.resizeMutexMapLock.Lock()
	m, ok := r.resizeMutexMap[key]
	if !ok {
		m = &sync.Mutex{}
		r.resizeMutexMap[key] = m
	}
	r.resizeMutexMapLock.Unlock()
	m.Lock()
	defer m.Unlock()

	if f := r.cacheRead(key); f != nil {
		img.ReadSeekCloser = f
		return img, nil
	}

	blob, err := resize(path, size)
	if err != nil {
		return nil, err
	}
	r.cacheWrite(key, blob)
	r.logger.Debug("thumbnail resized", zap.String("name", name), zap.Stringer("size", size))

	img.ReadSeekCloser = nopCloser{bytes.NewReader(blob)}
	return img, nil
}

// resize decodes the image at path and encodes it again at size.
func resize(path string, size Size) ([]byte, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return nil, err
	}
	var src image.Image
	src, err = imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	ow, oh := src.Bounds().Dx(), src.Bounds().Dy()
	if (size.Width > 0 && size.Width != ow) || (size.Height > 0 && size.Height != oh) {
		src = imaging.Resize(src, size.Width, size.Height, imaging.Lanczos)
	}
	if size.MaxWidth > 0 || size.MaxHeight > 0 {
		mw, mh := size.MaxWidth, size.MaxHeight
		if mw == 0 {
			mw = src.Bounds().Dx()
		}
		if mh == 0 {
			mh = src.Bounds().Dy()
		}
		src = imaging.Fit(src, mw, mh, imaging.Lanczos)
	}

	quality := size.Quality
	if quality == 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cacheRead returns the cached resize stored under key, if any.
func (r *Resizer) cacheRead(key string) *os.File {
	if r.cacheDir == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(r.cacheDir, key))
	if err != nil {
		return nil
	}
	return f
}

// cacheWrite stores blob under key. Failures only cost a future resize.
func (r *Resizer) cacheWrite(key string, blob []byte) {
	if r.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		r.logger.Warn("creating cache dir", zap.Error(err))
		return
	}
	fn := filepath.Join(r.cacheDir, key)
	tmp := fmt.Sprintf("%s.%d", fn, os.Getpid())
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		r.logger.Warn("writing cache file", zap.Error(err))
		os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, fn); err != nil {
		r.logger.Warn("writing cache file", zap.Error(err))
		os.Remove(tmp)
	}
}

// ServeFile writes the thumbnail called name, resized according to the query of req.
func (r *Resizer) ServeFile(w http.ResponseWriter, req *http.Request, name string) {
	img, err := r.Open(name, ParseSize(req.URL.Query()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, req)
			return
		}
		r.logger.Error("opening thumbnail", zap.String("name", name), zap.Error(err))
		http.Error(w, "could not read thumbnail", http.StatusInternalServerError)
		return
	}
	defer img.Close()

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "max-age=3600")
	http.ServeContent(w, req, img.Name, img.ModTime, img)
}
