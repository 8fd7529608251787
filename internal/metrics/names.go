package metrics

const (
	DispatchRequests   = "dispatch.requests."
	DispatchDuration   = "dispatch.duration."
	RoutingFailures    = "dispatch.routing_failures"
	ForwardFailures    = "dispatch.forward_failures"
	RegistrationSkip   = "dispatch.registration_skipped"
	AdmissionProvision = "admission.provisioned"
	AdmissionFailed    = "admission.provision_failed"
	AdmissionLimited   = "admission.rate_limited"
	AdmissionDraining  = "admission.suppressed_draining"
	Reclaimed          = "reclaimer.reclaimed"
	TerminateFailures  = "pool.terminate_failures"
	PoolSize           = "pool.size"
	TaskCount          = "pool.tasks"
)
