// Package events wires the registry's consumed wire events
// (FileUploadValidationSuccess, NonStagedFileRequested) to eventbus.Route
// handlers, and its produced events (FileInternallyRegistered, FileDeleted)
// are published directly by the core through the shared eventbus.Publisher.
package events

import (
	"context"

	"github.com/marmos91/dittofs/internal/eventbus"
	"github.com/marmos91/dittofs/internal/ifrs"
)

// ValidationSuccessTopic is the topic FIS publishes
// FileUploadValidationSuccess to.
const ValidationSuccessTopic = "file-upload-validation-success"

// NonStagedRequestTopic is the topic DCS publishes
// NonStagedFileRequested to.
const NonStagedRequestTopic = "non-staged-file-requested"

// Routes builds the eventbus.Route table for the two topics the registry
// consumes. Each consumer only ever carries routes for its own topic
// (eventbus.NewConsumer enforces this), so callers build one *Consumer per
// topic from the matching subslice.
func Routes(registry *ifrs.RegistryController) []eventbus.Route {
	return []eventbus.Route{
		{
			Topic: ValidationSuccessTopic,
			Type:  "file_upload_validation_success",
			Handler: func(ctx context.Context, event eventbus.Event) error {
				return registry.HandleFileUploadValidationSuccess(ctx, event.Payload)
			},
		},
		{
			Topic: NonStagedRequestTopic,
			Type:  "non_staged_file_requested",
			Handler: func(ctx context.Context, event eventbus.Event) error {
				return registry.HandleNonStagedFileRequested(ctx, event.Payload)
			},
		},
	}
}
