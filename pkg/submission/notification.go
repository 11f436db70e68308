package submission

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/pkg/errors"
)

type notificationFrame struct {
	Method string              `json:"method"`
	Params *notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// statusAliases maps the lowercased status names of both node generations onto the
// canonical TransactionStatus values.
var statusAliases = map[string]types.TransactionStatus{
	"future":          types.TransactionStatusFuture,
	"ready":           types.TransactionStatusReady,
	"broadcast":       types.TransactionStatusBroadcast,
	"inblock":         types.TransactionStatusInBlock,
	"retracted":       types.TransactionStatusRetracted,
	"finalitytimeout": types.TransactionStatusFinalityTimeout,
	"finalized":       types.TransactionStatusFinalized,
	"finalised":       types.TransactionStatusFinalized,
	"usurped":         types.TransactionStatusUsurped,
	"dropped":         types.TransactionStatusDropped,
	"invalid":         types.TransactionStatusInvalid,
}

func normalizeStatus(name string) types.TransactionStatus {
	if status, ok := statusAliases[strings.ToLower(name)]; ok {
		return status
	}
	return types.TransactionStatus(name)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseNotification decodes one push frame. The result is either a bare status string
// ("ready") or an object with a single status key whose value is a hash or, for
// broadcast, a list of peers.
func ParseNotification(raw []byte) (*types.NotificationEvent, error) {
	var frame notificationFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "not a json object: %v", err)
	}
	if frame.Params == nil {
		return nil, errors.Wrap(ErrMalformedPayload, "missing params")
	}
	if isNull(frame.Params.Subscription) {
		return nil, errors.Wrap(ErrMalformedPayload, "missing subscription")
	}

	var id types.SubscriptionId
	if err := json.Unmarshal(frame.Params.Subscription, &id); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "%v", err)
	}

	if isNull(frame.Params.Result) {
		return nil, errors.Wrap(ErrMalformedPayload, "missing result")
	}
	event := &types.NotificationEvent{
		SubscriptionId: id,
		Method:         frame.Method,
		Raw:            frame.Params.Result,
	}

	var name string
	if err := json.Unmarshal(frame.Params.Result, &name); err == nil {
		event.Status = normalizeStatus(name)
		return event, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(frame.Params.Result, &object); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "unreadable result: %s", string(frame.Params.Result))
	}
	if len(object) != 1 {
		return nil, errors.Wrapf(ErrMalformedPayload, "result must have exactly one status key, got %d", len(object))
	}

	for key, value := range object {
		event.Status = normalizeStatus(key)

		if event.Status == types.TransactionStatusBroadcast {
			if err := json.Unmarshal(value, &event.Peers); err != nil {
				return nil, errors.Wrapf(ErrMalformedPayload, "broadcast peers: %v", err)
			}
			continue
		}

		var hash string
		if err := json.Unmarshal(value, &hash); err == nil {
			event.BlockHash = hash
		}
	}
	return event, nil
}
