// Package internaldefs holds the metric names, help strings and bucket bounds shared
// by the Prometheus and OTel exporters, so both publish identical series.
package internaldefs
