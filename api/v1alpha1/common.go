package v1alpha1

func StringToJobStatus(s string) JobStatus {
	switch s {
	case string(JobStatusProcessing):
		return JobStatusProcessing
	case string(JobStatusCompleted):
		return JobStatusCompleted
	case string(JobStatusFailed):
		return JobStatusFailed
	case string(JobStatusCancelled):
		return JobStatusCancelled
	default:
		return JobStatusPending
	}
}

func BoolPtr(b bool) *bool {
	return &b
}
