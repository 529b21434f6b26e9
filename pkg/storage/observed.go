package storage

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ObservedUploader 为上传器附加 prometheus 指标
type ObservedUploader struct {
	next     Uploader
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

// NewObservedUploader reg 为空时使用默认注册器
func NewObservedUploader(next Uploader, reg prometheus.Registerer) *ObservedUploader {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &ObservedUploader{
		next: next,
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Object store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "storage",
			Name:      "operation_errors_total",
			Help:      "Object store operation failures.",
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes moved through the object store.",
		}, []string{"direction"}),
	}
	o.latency = register(reg, o.latency)
	o.failures = register(reg, o.failures)
	o.bytes = register(reg, o.bytes)
	return o
}

// register 重复注册时复用已存在的 collector
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (o *ObservedUploader) observe(op string, start time.Time, err error) {
	o.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		o.failures.WithLabelValues(op).Inc()
	}
}

func (o *ObservedUploader) Create(ctx context.Context, objectID, contentType string) (string, error) {
	start := time.Now()
	id, err := o.next.Create(ctx, objectID, contentType)
	o.observe("create", start, err)
	return id, err
}

func (o *ObservedUploader) Put(ctx context.Context, objectID string, data []byte, contentType string) error {
	start := time.Now()
	err := o.next.Put(ctx, objectID, data, contentType)
	o.observe("put", start, err)
	if err == nil {
		o.bytes.WithLabelValues("in").Add(float64(len(data)))
	}
	return err
}

func (o *ObservedUploader) SetPublic(ctx context.Context, objectID string) error {
	start := time.Now()
	err := o.next.SetPublic(ctx, objectID)
	o.observe("set_public", start, err)
	return err
}

func (o *ObservedUploader) Get(ctx context.Context, objectID string) ([]byte, error) {
	start := time.Now()
	data, err := o.next.Get(ctx, objectID)
	o.observe("get", start, err)
	if err == nil {
		o.bytes.WithLabelValues("out").Add(float64(len(data)))
	}
	return data, err
}

func (o *ObservedUploader) Delete(ctx context.Context, objectID string) error {
	start := time.Now()
	err := o.next.Delete(ctx, objectID)
	o.observe("delete", start, err)
	return err
}

func (o *ObservedUploader) URL(objectID string) string {
	return o.next.URL(objectID)
}
