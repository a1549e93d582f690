package conn

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"github.com/nverba/redwire/pkg/common"
	"github.com/nverba/redwire/pkg/resp"
)

// TxFunc is the user step of an optimistic transaction. It is invoked
// with the connection and a fresh atomic pipeline, stages its commands,
// and must execute the pipeline itself. A nil result (with nil error)
// means the server aborted the transaction because a watched key
// changed, and the step will be retried.
type TxFunc func(con ConnectionLike, pipe *Pipeline) ([]resp.Value, error)

// Transaction runs fn inside a WATCH/MULTI/EXEC retry loop until a
// commit is observed with no watched-key modification in between. The
// loop is unbounded: under sustained contention it retries forever,
// trading starvation-avoidance for correctness. Errors other than the
// abort signal are returned immediately; transport failures are never
// retried here.
func Transaction(con ConnectionLike, keys []string, fn TxFunc) ([]resp.Value, error) {
	for {
		results, err := transactionAttempt(con, keys, fn)
		if err != nil {
			return nil, err
		}
		if results == nil {
			continue
		}
		return results, nil
	}
}

var errTxConflict = common.NewError(common.TryAgain,
	"watched key changed before EXEC")

// TransactionWithBackoff is Transaction with bounded exponential
// backoff between conflict retries. Success semantics are unchanged;
// sustained contention eventually surfaces the conflict error instead
// of looping forever.
func TransactionWithBackoff(ctx context.Context, con ConnectionLike, keys []string,
	maxTries uint, fn TxFunc) ([]resp.Value, error) {
	operation := func() ([]resp.Value, error) {
		results, err := transactionAttempt(con, keys, fn)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if results == nil {
			return nil, errTxConflict
		}
		return results, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries))
}

// transactionAttempt performs one WATCH/step round. A nil, nil return
// means the transaction was aborted and should be retried.
func transactionAttempt(con ConnectionLike, keys []string, fn TxFunc) ([]resp.Value, error) {
	watch := NewCmd("WATCH")
	for _, key := range keys {
		watch.Arg(key)
	}
	if _, err := watch.Query(con); err != nil {
		return nil, err
	}

	results, err := fn(con, Pipe().Atomic())
	if err != nil {
		return nil, err
	}
	if results == nil {
		return nil, nil
	}

	// No watch may be left behind on a connection that goes back to
	// ordinary use.
	if _, err := NewCmd("UNWATCH").Query(con); err != nil {
		return nil, err
	}
	return results, nil
}
