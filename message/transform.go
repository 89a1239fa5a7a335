package message

import "fmt"

// TransformRule takes a field from a prior reply in the same Sequence and
// substitutes it into a field of the next request. SourceReplyIndex is the
// 0-based position of the prior sub-reply within the sequence so far.
type TransformRule struct {
	SourceReplyIndex int
	SourceField      string
	TargetField      string
}

// LazilyTransformedRequest wraps a Request plus the rules that must be
// resolved against accumulated replies before the server dispatches it.
type LazilyTransformedRequest struct {
	Request    Request
	Transforms []TransformRule
}

// Resolve applies every TransformRule against priorReplies, returning the
// concrete Request to dispatch. It is called by the server's Sequence
// handler after each sub-reply lands.
func (l LazilyTransformedRequest) Resolve(priorReplies []Reply) (Request, error) {
	args, err := ArgsToMap(l.Request.Args)
	if err != nil {
		return Request{}, fmt.Errorf("message: resolve transform: %w", err)
	}

	for _, rule := range l.Transforms {
		if rule.SourceReplyIndex < 0 || rule.SourceReplyIndex >= len(priorReplies) {
			return Request{}, fmt.Errorf("message: transform rule references reply %d, only %d available", rule.SourceReplyIndex, len(priorReplies))
		}
		source, err := ArgsToMap(priorReplies[rule.SourceReplyIndex].Args)
		if err != nil {
			return Request{}, fmt.Errorf("message: resolve transform: %w", err)
		}
		value, ok := source[rule.SourceField]
		if !ok {
			return Request{}, fmt.Errorf("message: transform rule source field %q not found in reply %d", rule.SourceField, rule.SourceReplyIndex)
		}
		args[rule.TargetField] = value
	}

	return Request{Kind: l.Request.Kind, Args: args}, nil
}
