package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/forge-recipe/pkg/types"
)

// Manager is a Gate whose answers arrive asynchronously through HandleResponse.
// Each request emits an approval_request event carrying the approval id the
// front end must echo back.
type Manager struct {
	timeout          time.Duration
	pendingApprovals map[string]*pendingApproval
	mu               sync.Mutex
	emitEvent        types.EventEmitter
}

type pendingApproval struct {
	approvalID string
	request    Request
	response   chan Response
	closeOnce  sync.Once
}

// NewManager creates a Manager. A non-positive timeout uses DefaultTimeout.
func NewManager(timeout time.Duration, emitEvent types.EventEmitter) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if emitEvent == nil {
		emitEvent = func(*types.RecoveryEvent) {}
	}
	return &Manager{
		timeout:          timeout,
		pendingApprovals: make(map[string]*pendingApproval),
		emitEvent:        emitEvent,
	}
}

// RequestApproval registers req and blocks until a response, the timeout, or ctx.
// A timeout is a NOT_GO decision, not an error.
func (m *Manager) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	approvalID := uuid.New().String()
	responseChannel := make(chan Response, 1)

	m.setupPendingApproval(approvalID, req, responseChannel)
	defer m.cleanupPendingApproval(approvalID)

	event := types.NewApprovalRequestEvent(approvalID, req.Message)
	event.StepID = req.StepID
	event.Metadata["reason"] = req.Reason
	event.Metadata["domain"] = req.Domain
	if req.Detail != "" {
		event.Metadata["detail"] = req.Detail
	}
	m.emitEvent(event)

	return m.waitForResponse(ctx, approvalID, responseChannel)
}

// HandleResponse delivers a decision to the matching pending request.
// Responses for unknown or finished requests are dropped.
func (m *Manager) HandleResponse(response Response) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pa, ok := m.pendingApprovals[response.ApprovalID]
	if !ok {
		return
	}
	select {
	case pa.response <- response:
	default:
	}
}

// Pending returns the ids of requests still waiting for a decision.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pendingApprovals))
	for id := range m.pendingApprovals {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) setupPendingApproval(approvalID string, req Request, responseChannel chan Response) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingApprovals[approvalID] = &pendingApproval{
		approvalID: approvalID,
		request:    req,
		response:   responseChannel,
	}
}

// cleanupPendingApproval is safe to call more than once.
func (m *Manager) cleanupPendingApproval(approvalID string) {
	m.mu.Lock()
	pa, ok := m.pendingApprovals[approvalID]
	if ok {
		delete(m.pendingApprovals, approvalID)
	}
	m.mu.Unlock()

	if ok && pa != nil {
		pa.closeOnce.Do(func() {
			close(pa.response)
		})
	}
}
