// Copyright 2024 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fsops

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amigatools/imager/pkg/version"
)

// Metrics counts what copies did. Each Metrics has its own registry, so
// separate invocations never share counters.
type Metrics struct {
	registry    *prometheus.Registry
	files       prometheus.Counter
	directories prometheus.Counter
	bytes       prometheus.Counter
	duration    prometheus.Histogram
}

// NewMetrics creates a set of copy metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imager_copy_files_total",
			Help: "Total number of files copied",
		}),
		directories: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imager_copy_directories_total",
			Help: "Total number of directories created by copies",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imager_copy_bytes_total",
			Help: "Total bytes of file content copied",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imager_copy_duration_seconds",
			Help:    "Time spent executing copies",
			Buckets: prometheus.DefBuckets,
		}),
	}
	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "imager_build_info",
		Help:        "Version of the imager module that wrote the metrics",
		ConstLabels: prometheus.Labels{"version": version.ModuleVersion()},
	})
	buildInfo.Set(1)
	m.registry.MustRegister(m.files, m.directories, m.bytes, m.duration, buildInfo)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteToTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

func (m *Metrics) observe(s *Summary) {
	if m == nil {
		return
	}
	m.files.Add(float64(s.Files))
	m.directories.Add(float64(s.Directories))
	m.bytes.Add(float64(s.Bytes))
	m.duration.Observe(s.Elapsed.Seconds())
}
