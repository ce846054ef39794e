package model

import "time"

type MetricEvent struct {
	Time       time.Time         `json:"time"`
	MetricName string            `json:"metric_name"`
	Service    string            `json:"service"`
	Tags       map[string]string `json:"tags"`
}
