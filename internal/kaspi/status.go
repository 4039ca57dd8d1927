package kaspi

import "kaspi-sync/internal/models"

// ResolveStatus maps raw marketplace attributes to a canonical business
// status. The vendor's state/status combination is unreliable on the wire,
// so the mapping is fact-based: archive terminal strings first, then
// delivery-transfer evidence, then new. Rule order matters.
func ResolveStatus(attrs OrderAttributes) string {
	if attrs.State == StateArchive {
		switch attrs.Status {
		case StatusCompleted:
			return models.OrderStatusCompleted
		case StatusCancelled, StatusCancelling:
			return models.OrderStatusCancelled
		case StatusReturned, StatusDeliveryReturn:
			return models.OrderStatusReturned
		}
		// Unknown status inside archive falls through to the checks below.
	}

	if IsTransferred(attrs) {
		return models.OrderStatusInTransit
	}

	return models.OrderStatusNew
}
