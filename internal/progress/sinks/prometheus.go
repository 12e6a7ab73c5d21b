package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/overageworks/deedwatch/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns the
// collectors for job lifecycle, record verdicts, and document fetches.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobRuntime    *prometheus.HistogramVec

	listings *prometheus.CounterVec
	records  *prometheus.CounterVec
	verdicts *prometheus.CounterVec

	docsFound      *prometheus.CounterVec
	docsDownloaded *prometheus.CounterVec
	docBytes       *prometheus.CounterVec
	docErrors      *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deedwatch_jobs_started_total",
			Help: "Total jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_jobs_completed_total",
			Help: "Total jobs completed partitioned by result.",
		}, []string{"result"}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deedwatch_job_runtime_seconds",
			Help:    "Wall time per completed job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_listings_scraped_total",
			Help: "Calendar listings parsed per county.",
		}, []string{"county"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_records_upserted_total",
			Help: "Prospect rows written partitioned by county and action.",
		}, []string{"county", "action"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_qualifications_total",
			Help: "Rule engine verdicts partitioned by county and outcome.",
		}, []string{"county", "verdict"}),
		docsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_documents_found_total",
			Help: "New portal documents discovered per county.",
		}, []string{"county"}),
		docsDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_documents_downloaded_total",
			Help: "Documents downloaded and validated per county.",
		}, []string{"county"}),
		docBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_document_bytes_total",
			Help: "Downloaded document payload bytes per county.",
		}, []string{"county"}),
		docErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deedwatch_document_errors_total",
			Help: "Document download failures per county.",
		}, []string{"county"}),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobRuntime,
		s.listings,
		s.records,
		s.verdicts,
		s.docsFound,
		s.docsDownloaded,
		s.docBytes,
		s.docErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent
// use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	county := evt.County
	if county == "" {
		county = "unknown"
	}
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	case progress.StagePageDone:
		s.listings.WithLabelValues(county).Add(float64(evt.Listings))
	case progress.StageRecordUpsert:
		action := "updated"
		if evt.Created {
			action = "created"
		}
		s.records.WithLabelValues(county, action).Inc()
	case progress.StageRecordVerdict:
		verdict := "disqualified"
		if evt.Qualified {
			verdict = "qualified"
		}
		s.verdicts.WithLabelValues(county, verdict).Inc()
	case progress.StageDocFound:
		s.docsFound.WithLabelValues(county).Inc()
	case progress.StageDocDownloaded:
		s.docsDownloaded.WithLabelValues(county).Inc()
		if evt.Bytes > 0 {
			s.docBytes.WithLabelValues(county).Add(float64(evt.Bytes))
		}
	case progress.StageDocError:
		s.docErrors.WithLabelValues(county).Inc()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
