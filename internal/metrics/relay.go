package metrics

import "time"

// RecordGateOutcome counts a wrapper decision for a gate.
func RecordGateOutcome(gate, kind, outcome string) {
	count(GateOutcomesTotal, labels{"gate": gate, "kind": kind, "outcome": outcome})
}

// RecordSinkDelivery counts a delivery attempt and its duration.
func RecordSinkDelivery(sink string, success bool, duration time.Duration) {
	count(SinkDeliveriesTotal, labels{"sink": sink, "status": status(success, "success", "failure")})
	observe(SinkDeliveryDuration, duration, labels{"sink": sink})
}

// RecordIngressRejected counts a request refused by the ingress limiter.
func RecordIngressRejected(route string) {
	count(IngressRejectedTotal, labels{"route": route})
}

// RecordOperation counts an admin operation on a gate key. hit reports
// whether the key had a pending event.
func RecordOperation(operation string, hit bool) {
	count(OperationsTotal, labels{"operation": operation, "status": status(hit, "hit", "miss")})
}

// RecordOperationError counts a failed gate operation by envelope code.
func RecordOperationError(operation string, errorCode string) {
	count(OperationsErrorsTotal, labels{"operation": operation, "error_type": errorCode})
}
