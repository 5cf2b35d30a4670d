package checkpoint

import (
	"context"
	"time"

	"github.com/entrhq/forge-recipe/pkg/types"
)

func (m *Manager) waitForResponse(ctx context.Context, approvalID string, responseChannel chan Response) (Decision, error) {
	timeout := time.NewTimer(m.timeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		m.emitEvent(types.NewApprovalRejectedEvent(approvalID))
		return NotGO, ctx.Err()

	case <-timeout.C:
		m.emitEvent(types.NewApprovalTimeoutEvent(approvalID))
		return NotGO, nil

	case response, ok := <-responseChannel:
		if !ok || !response.Decision.Approved() {
			m.emitEvent(types.NewApprovalRejectedEvent(approvalID))
			return NotGO, nil
		}
		m.emitEvent(types.NewApprovalGrantedEvent(approvalID))
		return GO, nil
	}
}
