package onboard

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/google/uuid"
)

const (
	SampleWhole = "whole"
	SampleBBox  = "bbox"

	// samples waiting to be written before new ones are dropped
	RecorderQueue = 16
	JPEGQuality   = 95
)

var ErrRecorderStopped = errors.New("recorder stopped")

// Sample describes one recorded frame. Image is written to disk under
// Directory, whole or as one crop per box, and only the file paths are kept.
type Sample struct {
	ID        int    `storm:"increment"`
	Session   string `storm:"index"`
	FrameID   int
	Method    string
	Camera    string
	Config    string
	Directory string
	Centres   []image.Point
	Boxes     []image.Rectangle
	Files     []string
	Recorded  time.Time

	Image image.Image `json:"-"`
}

// Recorder stores samples in the device database under a session id that is
// fixed for the life of the recorder. Images are encoded on a worker so the
// frame loop never waits for the disk.
type Recorder struct {
	db      *storm.DB
	session string
	log     *slog.Logger

	queue chan Sample
	done  sync.WaitGroup

	lock    sync.Mutex
	stopped bool
	count   int
}

func NewRecorder(db *storm.DB, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}

	session := uuid.NewString()
	r := &Recorder{
		db:      db,
		session: session,
		log:     log.With("component", "recorder", "session", session),
		queue:   make(chan Sample, RecorderQueue),
	}

	r.done.Add(1)
	go r.worker()
	return r
}

func (r *Recorder) Session() string {
	return r.session
}

// Record queues s for writing. A full queue drops the sample with a warning.
func (r *Recorder) Record(s Sample) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.stopped {
		return ErrRecorderStopped
	}

	s.ID = 0
	s.Session = r.session
	if s.Recorded.IsZero() {
		s.Recorded = time.Now().UTC()
	}

	select {
	case r.queue <- s:
		return nil
	default:
		r.log.Warn("recorder busy, dropping sample", "frame", s.FrameID)
		return nil
	}
}

func (r *Recorder) worker() {
	defer r.done.Done()

	for s := range r.queue {
		if err := r.write(s); err != nil {
			r.log.Error("failed to record sample", "frame", s.FrameID, "err", err)
		}
	}
}

func (r *Recorder) write(s Sample) error {
	if s.Image != nil {
		files, err := r.saveImages(s)
		s.Files = files
		if err != nil {
			// keep what was written
			r.log.Error("failed to save sample image", "frame", s.FrameID, "err", err)
		}
	}

	s.Image = nil
	if err := r.db.Save(&s); err != nil {
		return err
	}

	r.lock.Lock()
	r.count++
	r.lock.Unlock()
	return nil
}

// saveImages writes the whole frame, or in bbox mode one crop per box.
func (r *Recorder) saveImages(s Sample) ([]string, error) {
	dir := filepath.Join(s.Directory, r.session)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	stamp := s.Recorded.Format("20060102-150405.000")
	base := fmt.Sprintf("%s_%s_frame%d", stamp, s.Camera, s.FrameID)

	if s.Method != SampleBBox {
		path := filepath.Join(dir, base+".jpg")
		if err := writeJPEG(path, s.Image); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	var files []string
	for i, box := range s.Boxes {
		box = box.Intersect(s.Image.Bounds())
		if box.Empty() {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_box%d.jpg", base, i))
		if err := writeJPEG(path, crop(s.Image, box)); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Samples returns everything recorded in session, oldest first.
func (r *Recorder) Samples(session string) ([]Sample, error) {
	var samples []Sample
	err := r.db.Find("Session", session, &samples)
	if errors.Is(err, storm.ErrNotFound) {
		return nil, nil
	}
	return samples, err
}

// Stop refuses further samples and waits for queued ones to be written. The
// database belongs to the caller.
func (r *Recorder) Stop() error {
	r.lock.Lock()
	if r.stopped {
		r.lock.Unlock()
		return nil
	}
	r.stopped = true
	close(r.queue)
	r.lock.Unlock()

	r.done.Wait()
	r.log.Info("recording stopped", "samples", r.count)
	return nil
}
