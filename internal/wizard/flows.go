package wizard

import (
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// UploadFlow is the full generic batch flow.
func UploadFlow(fileTimeout, stepTimeout time.Duration) Flow {
	return Flow{
		Name:        "upload",
		Kind:        domain.FlowBatch,
		FileTimeout: fileTimeout,
		StepTimeout: stepTimeout,
	}
}

// DRMFlow is the shorter protected-content flow. Every step, including the
// file upload, shares one short timeout.
func DRMFlow(stepTimeout time.Duration) Flow {
	return Flow{
		Name:        "drm",
		Kind:        domain.FlowBatch,
		FileTimeout: stepTimeout,
		StepTimeout: stepTimeout,
		Skip:        map[State]bool{AwaitWatermark: true, AwaitThumbnail: true},
	}
}
