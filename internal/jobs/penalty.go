package jobs

import "github.com/dgyard/backend/internal/models"

// PenaltyPercent returns the cancellation penalty tier for the job status at
// cancellation time.
func PenaltyPercent(status models.JobStatus) int {
	switch status {
	case models.JobStatusWaitingForPayment, models.JobStatusAssigned:
		return 5
	case models.JobStatusInProgress:
		return 20
	case models.JobStatusCompletionPendingApproval:
		return 50
	default:
		return 0
	}
}

// PenaltyAmount applies a tier percentage to the job total.
func PenaltyAmount(totalPaise int64, percent int) int64 {
	return totalPaise * int64(percent) / 100
}
