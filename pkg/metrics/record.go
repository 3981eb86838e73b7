package metrics

// Package-level helpers over the global manager, mirroring the call
// sites spread through the service.

// RecordRecompute counts one recompute by trigger ("batch" or "event").
func RecordRecompute(trigger string) { globalManager.recomputesTotal.WithLabelValues(trigger).Inc() }

// RecordRecomputeLatency records an end-to-end recompute latency in ms.
func RecordRecomputeLatency(ms float64) { globalManager.recomputeLatency.Observe(ms) }

// RecordRecomputeError counts a recompute that failed outright.
func RecordRecomputeError() { globalManager.recomputeErrors.Inc() }

// RecordFactorSkipped counts a factor skipped on a data gap.
func RecordFactorSkipped() { globalManager.factorsSkipped.Inc() }

// RecordPartialRecord counts a record flagged partial.
func RecordPartialRecord() { globalManager.partialRecords.Inc() }

// RecordEventAccepted counts an accepted inbound event.
func RecordEventAccepted() { globalManager.eventsAccepted.Inc() }

// RecordEventDuplicate counts a duplicate inbound event.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventRejected counts an event rejected on backpressure.
func RecordEventRejected() { globalManager.eventsRejected.Inc() }

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

// RecordQueueRejected counts a job rejected by a full queue.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerCount sets the running worker gauge.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordBundleOpened counts a newly opened alert bundle.
func RecordBundleOpened() { globalManager.bundlesOpened.Inc() }

// RecordBundleMember counts an alert folded into a bundle.
func RecordBundleMember() { globalManager.bundleMembers.Inc() }

// RecordAlertSuppressed counts an alert suppressed as a repeat.
func RecordAlertSuppressed() { globalManager.alertsSuppressed.Inc() }

// RecordBundleDelivery counts a delivery decision by mode.
func RecordBundleDelivery(mode string) { globalManager.bundlesByDelivery.WithLabelValues(mode).Inc() }

// RecordCalibrationRun counts a published calibration cycle.
func RecordCalibrationRun() { globalManager.calibrationRuns.Inc() }

// RecordCalibrationRejected counts a rejected calibration cycle.
func RecordCalibrationRejected() { globalManager.calibrationRejected.Inc() }

// RecordFeedback counts an accepted feedback record.
func RecordFeedback() { globalManager.feedbackRecorded.Inc() }

// RecordNarrativeRequest counts a narrative service call attempt.
func RecordNarrativeRequest() { globalManager.narrativeRequests.Inc() }

// RecordNarrativeFallback counts a call degraded to template output.
func RecordNarrativeFallback() { globalManager.narrativeFallbacks.Inc() }

// RecordNarrativeLatency records a narrative call latency in ms.
func RecordNarrativeLatency(ms float64) { globalManager.narrativeLatency.Observe(ms) }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in ms.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// UpdateTrackedEntities sets the tracked-entity gauge.
func UpdateTrackedEntities(n int) { globalManager.trackedEntities.Set(float64(n)) }
