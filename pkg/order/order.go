package order

import (
	"errors"
	"maps"
	"time"
)

// UploadOrder describes an outbound transfer.
type UploadOrder struct {
	descriptor    Descriptor
	signatureFlag bool
	requestEDS    bool
	params        map[string]string
}

// UploadOption configures NewUploadOrder.
type UploadOption func(*UploadOrder)

// WithSignature sets whether the order carries the subscriber's ES. On by default.
func WithSignature(enabled bool) UploadOption {
	return func(o *UploadOrder) {
		o.signatureFlag = enabled
	}
}

// WithEDS requests a distributed signature (VEU) for the order.
func WithEDS(enabled bool) UploadOption {
	return func(o *UploadOrder) {
		o.requestEDS = enabled
	}
}

// WithUploadParams adds order parameters.
func WithUploadParams(params map[string]string) UploadOption {
	return func(o *UploadOrder) {
		o.params = maps.Clone(params)
	}
}

// NewUploadOrder validates d and builds an upload order.
func NewUploadOrder(d Descriptor, opts ...UploadOption) (UploadOrder, error) {
	if d == nil {
		return UploadOrder{}, errors.New("order descriptor is required")
	}
	if err := d.Validate(); err != nil {
		return UploadOrder{}, err
	}
	o := UploadOrder{descriptor: d, signatureFlag: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

func (o UploadOrder) Descriptor() Descriptor { return o.descriptor }

func (o UploadOrder) SignatureFlag() bool { return o.signatureFlag }

func (o UploadOrder) RequestEDS() bool { return o.requestEDS }

// Params returns a copy of the order parameters.
func (o UploadOrder) Params() map[string]string { return maps.Clone(o.params) }

// DateRange bounds a download by business date.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ErrInvalidDateRange is returned when a range ends before it starts.
var ErrInvalidDateRange = errors.New("date range ends before it starts")

// DownloadOrder describes an inbound transfer.
type DownloadOrder struct {
	descriptor Descriptor
	dateRange  *DateRange
	params     map[string]string
}

// DownloadOption configures NewDownloadOrder.
type DownloadOption func(*DownloadOrder)

// WithDateRange restricts the download to [start, end].
func WithDateRange(start, end time.Time) DownloadOption {
	return func(o *DownloadOrder) {
		o.dateRange = &DateRange{Start: start, End: end}
	}
}

// WithDownloadParams adds order parameters.
func WithDownloadParams(params map[string]string) DownloadOption {
	return func(o *DownloadOrder) {
		o.params = maps.Clone(params)
	}
}

// NewDownloadOrder validates d and builds a download order.
func NewDownloadOrder(d Descriptor, opts ...DownloadOption) (DownloadOrder, error) {
	if d == nil {
		return DownloadOrder{}, errors.New("order descriptor is required")
	}
	if err := d.Validate(); err != nil {
		return DownloadOrder{}, err
	}
	var o DownloadOrder
	o.descriptor = d
	for _, opt := range opts {
		opt(&o)
	}
	if o.dateRange != nil && o.dateRange.End.Before(o.dateRange.Start) {
		return DownloadOrder{}, ErrInvalidDateRange
	}
	return o, nil
}

func (o DownloadOrder) Descriptor() Descriptor { return o.descriptor }

// DateRange returns the requested range, if any.
func (o DownloadOrder) DateRange() (DateRange, bool) {
	if o.dateRange == nil {
		return DateRange{}, false
	}
	return *o.dateRange, true
}

// Params returns a copy of the order parameters.
func (o DownloadOrder) Params() map[string]string { return maps.Clone(o.params) }
