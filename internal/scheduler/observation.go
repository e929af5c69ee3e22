package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// Observation defaults, applied when a field entry leaves them unset.
const (
	DefaultExpTime    = 120 * time.Second
	DefaultPriority   = 100.0
	DefaultMinNExp    = 60
	DefaultExpSetSize = 10
)

// Image is one exposure or pointing image registered on an observation.
type Image struct {
	ID     string    `json:"id"`
	Camera string    `json:"camera"`
	Path   string    `json:"path"`
	Taken  time.Time `json:"taken"`
}

// Observation is a scheduled unit of work on a Field.
//
// The exposure parameters are fixed at creation. SeqTime, Merit and the
// image registries change during a session and are cleared by Reset.
//
// Thread Safety: cameras register images from their own goroutines, so all
// mutable state is guarded by mu.
type Observation struct {
	field      Field
	expTimes   []time.Duration
	priority   float64
	minNExp    int
	expSetSize int

	mu             sync.RWMutex
	seqTime        string
	merit          float64
	exposures      []Image
	pointingImages []Image
}

// NewObservation validates the parameters and creates an Observation.
//
// Each exposure time must be non-negative, priority must be above zero, and
// minNExp must be a multiple of expSetSize.
func NewObservation(field Field, expTimes []time.Duration, priority float64, minNExp, expSetSize int) (*Observation, error) {
	if len(expTimes) == 0 {
		return nil, fmt.Errorf("%w: %s: at least one exposure time is required", ErrInvalidObservation, field.Name())
	}
	for _, et := range expTimes {
		if et < 0 {
			return nil, fmt.Errorf("%w: %s: exposure time %v is negative", ErrInvalidObservation, field.Name(), et)
		}
	}
	if priority <= 0 {
		return nil, fmt.Errorf("%w: %s: priority must be larger than 0", ErrInvalidObservation, field.Name())
	}
	if expSetSize < 1 {
		return nil, fmt.Errorf("%w: %s: exp_set_size must be at least 1", ErrInvalidObservation, field.Name())
	}
	if minNExp < 0 || minNExp%expSetSize != 0 {
		return nil, fmt.Errorf("%w: %s: min_nexp=%d must be a multiple of exp_set_size=%d",
			ErrInvalidObservation, field.Name(), minNExp, expSetSize)
	}

	return &Observation{
		field:      field,
		expTimes:   append([]time.Duration(nil), expTimes...),
		priority:   priority,
		minNExp:    minNExp,
		expSetSize: expSetSize,
	}, nil
}

// Field returns the observed field.
func (o *Observation) Field() Field { return o.field }

// Name returns the field name.
func (o *Observation) Name() string { return o.field.Name() }

// Priority returns the priority multiplier.
func (o *Observation) Priority() float64 { return o.priority }

// MinNExp returns the minimum number of exposures.
func (o *Observation) MinNExp() int { return o.minNExp }

// ExpSetSize returns the number of exposures in a set.
func (o *Observation) ExpSetSize() int { return o.expSetSize }

// ExpTimes returns a copy of the exposure time cycle.
func (o *Observation) ExpTimes() []time.Duration {
	return append([]time.Duration(nil), o.expTimes...)
}

// expTimeAt returns the exposure time of exposure number i.
func (o *Observation) expTimeAt(i int) time.Duration {
	return o.expTimes[i%len(o.expTimes)]
}

// ExpTime returns the exposure time of the next exposure.
func (o *Observation) ExpTime() time.Duration {
	return o.expTimeAt(o.CurrentExpNum())
}

// MinimumDuration is the total exposure time of MinNExp exposures.
func (o *Observation) MinimumDuration() time.Duration {
	return o.sumExpTimes(o.minNExp)
}

// SetDuration is the total exposure time of one set.
func (o *Observation) SetDuration() time.Duration {
	return o.sumExpTimes(o.expSetSize)
}

func (o *Observation) sumExpTimes(n int) time.Duration {
	var total time.Duration
	for i := 0; i < n; i++ {
		total += o.expTimeAt(i)
	}
	return total
}

// CurrentExpNum returns the number of exposures taken so far.
func (o *Observation) CurrentExpNum() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.exposures)
}

// SetIsFinished reports whether the minimum number of exposures has been
// taken and the current set is complete.
func (o *Observation) SetIsFinished() bool {
	n := o.CurrentExpNum()
	return n > 0 && n >= o.minNExp && n%o.expSetSize == 0
}

// SeqTime returns the sequence time assigned when the observation was selected.
func (o *Observation) SeqTime() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.seqTime
}

func (o *Observation) setSeqTime(s string) {
	o.mu.Lock()
	o.seqTime = s
	o.mu.Unlock()
}

// Merit returns the score recorded when the observation was last selected.
func (o *Observation) Merit() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.merit
}

// SetMerit records the selection score.
func (o *Observation) SetMerit(m float64) {
	o.mu.Lock()
	o.merit = m
	o.mu.Unlock()
}

// AddExposure registers a science exposure.
func (o *Observation) AddExposure(img Image) {
	o.mu.Lock()
	o.exposures = append(o.exposures, img)
	o.mu.Unlock()
}

// AddPointingImage registers a pointing image.
func (o *Observation) AddPointingImage(img Image) {
	o.mu.Lock()
	o.pointingImages = append(o.pointingImages, img)
	o.mu.Unlock()
}

// Exposures returns the registered exposures in the order they were taken.
func (o *Observation) Exposures() []Image {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Image(nil), o.exposures...)
}

// PointingImages returns the registered pointing images in the order they were taken.
func (o *Observation) PointingImages() []Image {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Image(nil), o.pointingImages...)
}

// LastExposure returns the most recent exposure.
func (o *Observation) LastExposure() (Image, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.exposures) == 0 {
		return Image{}, false
	}
	return o.exposures[len(o.exposures)-1], true
}

// Reset clears the image registries, the sequence time and the merit.
func (o *Observation) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exposures = nil
	o.pointingImages = nil
	o.seqTime = ""
	o.merit = 0
}

// Status returns a snapshot for status reports.
func (o *Observation) Status() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()

	expTimes := make([]float64, len(o.expTimes))
	for i, et := range o.expTimes {
		expTimes[i] = et.Seconds()
	}
	return map[string]any{
		"field_name":       o.field.Name(),
		"field_ra":         o.field.Coord().RA,
		"field_dec":        o.field.Coord().Dec,
		"current_exp":      len(o.exposures),
		"pointing_images":  len(o.pointingImages),
		"exptime":          expTimes,
		"exp_set_size":     o.expSetSize,
		"min_nexp":         o.minNExp,
		"minimum_duration": o.sumExpTimes(o.minNExp).Seconds(),
		"set_duration":     o.sumExpTimes(o.expSetSize).Seconds(),
		"priority":         o.priority,
		"merit":            o.merit,
		"seq_time":         o.seqTime,
	}
}

func (o *Observation) String() string {
	return fmt.Sprintf("%s: %v exposures in blocks of %d, minimum %d, priority %.0f",
		o.field, o.expTimes, o.expSetSize, o.minNExp, o.priority)
}
