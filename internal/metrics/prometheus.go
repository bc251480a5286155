/**
 * Copyright (c) 2025 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink serves the latest samples as gauges on an HTTP listener.
type PrometheusSink struct {
	server *http.Server

	temperature *prometheus.GaugeVec
	fanSpeed    *prometheus.GaugeVec
	bandMin     *prometheus.GaugeVec
	bandMax     *prometheus.GaugeVec
}

func NewPrometheusSink(listenAddress string) *PrometheusSink {
	labels := []string{"bus", "display"}
	s := &PrometheusSink{
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpufand_gpu_temperature_celsius",
			Help: "GPU core temperature.",
		}, labels),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpufand_fan_speed_percent",
			Help: "Commanded fan speed.",
		}, labels),
		bandMin: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpufand_fan_band_min_percent",
			Help: "Lower edge of the acceptable fan speed band.",
		}, labels),
		bandMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpufand_fan_band_max_percent",
			Help: "Upper edge of the acceptable fan speed band.",
		}, labels),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(s.temperature, s.fanSpeed, s.bandMin, s.bandMax)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{Addr: listenAddress, Handler: mux}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Prometheus listener failed: %v", err)
		}
	}()
	log.Infof("Prometheus metrics on %s/metrics", listenAddress)

	return s
}

func (s *PrometheusSink) Name() string { return "prometheus" }

func (s *PrometheusSink) Write(samples []Sample) error {
	for _, sample := range samples {
		labels := prometheus.Labels{"bus": sample.Bus, "display": sample.Display}
		s.temperature.With(labels).Set(float64(sample.Temperature))
		s.fanSpeed.With(labels).Set(float64(sample.Speed))
		s.bandMin.With(labels).Set(float64(sample.MinSpeed))
		s.bandMax.With(labels).Set(float64(sample.MaxSpeed))
	}
	return nil
}

func (s *PrometheusSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
