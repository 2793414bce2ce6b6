package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mistveil-core/internal/credstore"
	"mistveil-core/internal/model"
)

// RequestZkNymBudget bounds the joined per-type issuance tasks (§4.2 step 4
// "an overall budget (e.g. 5 minutes)").
const RequestZkNymBudget = 5 * time.Minute

func domainTag(typ model.TicketbookType) string {
	return fmt.Sprintf("mistveil-ecash-%s", typ)
}

// runRequestZkNym implements the RequestZkNym pipeline (§4.2 step 1-4): for
// each requestable type at or below the soft threshold, resume any pending
// request or start a fresh one, join them all under one budget, and persist
// the ticketbooks that succeed.
func (c *Controller) runRequestZkNym(ctx context.Context) commandResult {
	c.mu.Lock()
	c.shared.RequestZkNymResult = model.RequestZkNymInProgress
	identity := c.deviceIdentity
	c.mu.Unlock()
	c.publishStateChanged()

	if _, err := c.store.CleanUpStaleRequests(ctx, time.Now()); err != nil {
		c.log.Warnf("account", "stale pending-request sweep failed: %v", err)
	}

	avail, err := c.store.AvailableTicketbooks(ctx, time.Now())
	if err != nil {
		return c.finishRequestZkNym(nil, nil, model.Internal("read available tickets: %v", err))
	}

	var needed []model.TicketbookType
	for _, typ := range model.RequestableTicketbookTypes {
		if avail.RunningLow(typ) {
			needed = append(needed, typ)
		}
	}
	if len(needed) == 0 {
		return c.finishRequestZkNym(nil, nil, nil)
	}

	pending, err := c.store.GetPendingRequests(ctx)
	if err != nil {
		return c.finishRequestZkNym(nil, nil, model.Internal("read pending requests: %v", err))
	}
	pendingByType := indexPendingByType(pending)

	budgetCtx, cancel := context.WithTimeout(ctx, RequestZkNymBudget)
	defer cancel()

	g, gctx := errgroup.WithContext(budgetCtx)
	results := make([]ticketbookResult, len(needed))
	for i, typ := range needed {
		i, typ := i, typ
		g.Go(func() error {
			tb, reqErr := c.issueTicketbook(gctx, typ, identity, pendingByType[typ])
			results[i] = ticketbookResult{typ: typ, tb: tb, err: reqErr}
			return nil // collect all outcomes instead of failing fast
		})
	}
	_ = g.Wait()

	var successes []string
	var failed []error
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.err)
			continue
		}
		successes = append(successes, r.typ.String())
	}

	if len(failed) == 0 {
		return c.finishRequestZkNym(successes, nil, nil)
	}
	if len(successes) == 0 {
		return c.finishRequestZkNym(nil, failed, &model.AccountCommandError{Kind: model.ErrRequestZkNymGeneral, Message: failed[0].Error()})
	}
	return c.finishRequestZkNym(successes, failed, &model.AccountCommandError{
		Kind:      model.ErrRequestZkNymPartial,
		Successes: successes,
		Failed:    failed,
	})
}

type ticketbookResult struct {
	typ model.TicketbookType
	tb  model.Ticketbook
	err error
}

func indexPendingByType(rows []credstore.PendingRequest) map[model.TicketbookType]credstore.PendingRequest {
	// ExpirationDate is unset on fresh rows, so type association for resumed
	// requests is carried in the ID prefix; see issueTicketbook.
	out := make(map[model.TicketbookType]credstore.PendingRequest, len(rows))
	for _, row := range rows {
		for _, typ := range model.RequestableTicketbookTypes {
			if len(row.ID) > len(typ.String()) && row.ID[:len(typ.String())] == typ.String() {
				out[typ] = row
			}
		}
	}
	return out
}

// issueTicketbook runs one type's issuance round-trip (§4.2 step 3):
// resume a pending request if one exists, else build and persist a fresh
// one, POST it, insert the resulting ticketbook, and remove the pending
// row.
func (c *Controller) issueTicketbook(ctx context.Context, typ model.TicketbookType, deviceIdentity string, resumed credstore.PendingRequest) (model.Ticketbook, error) {
	req := BlindedWithdrawalRequest{TypeTag: domainTag(typ)}
	id := resumed.ID
	if id == "" {
		kp := deriveEcashKeyPair([]byte(deviceIdentity), domainTag(typ))
		req = buildBlindedWithdrawalRequest(kp, domainTag(typ))
		id = fmt.Sprintf("%s-%s", typ, uuid.NewString())
		if err := c.store.InsertPendingRequest(ctx, credstore.PendingRequest{
			ID:          id,
			RequestInfo: req.PublicKey,
			CreatedAt:   time.Now(),
		}); err != nil {
			return model.Ticketbook{}, model.Internal("persist pending request: %v", err)
		}
	} else {
		req.PublicKey = resumed.RequestInfo
	}

	tb, err := c.api.RequestTicketbook(ctx, req, typ)
	if err != nil {
		return model.Ticketbook{}, wrapEndpointFailure(model.ErrRequestZkNymGeneral, err)
	}
	tb.ID = id
	tb.Type = typ

	if err := c.store.InsertIssuedTicketbook(ctx, tb); err != nil {
		return model.Ticketbook{}, model.Internal("insert issued ticketbook: %v", err)
	}
	if err := c.store.RemovePendingRequest(ctx, id); err != nil {
		c.log.Warnf("account", "remove pending request %s after issuance: %v", id, err)
	}
	return tb, nil
}

// finishRequestZkNym updates shared state with the pipeline's outcome and
// the consecutive-failure streak that disables background refresh past
// ZkNymFailureCeiling (§4.2).
func (c *Controller) finishRequestZkNym(successes []string, failed []error, err error) commandResult {
	c.mu.Lock()
	if err != nil {
		c.zkNymFailureStreak++
		c.shared.RequestZkNymResult = model.RequestZkNymFailed
		c.shared.RequestZkNymError = err
	} else {
		c.zkNymFailureStreak = 0
		c.shared.RequestZkNymResult = model.RequestZkNymDone
	}
	c.shared.RequestZkNymSuccesses = successes
	c.shared.RequestZkNymFailed = failed
	c.mu.Unlock()
	c.publishStateChanged()

	var zkState model.RequestZkNymState
	if err != nil {
		zkState = model.RequestZkNymFailed
	} else {
		zkState = model.RequestZkNymDone
	}
	return commandResult{Err: err, ZkNymResult: &zkState, Successes: successes, Failed: failed}
}

// backgroundRefreshDisabled reports whether the consecutive-failure streak
// has crossed the ceiling, per §4.2. The streak is cleared when an explicit
// RequestZkNym command is dispatched, when a request run succeeds, and by
// ForgetAccount. The controller runs no background refresh loop, so
// nothing in this package consults it.
func (c *Controller) backgroundRefreshDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zkNymFailureStreak >= ZkNymFailureCeiling
}
