package eventstream

import "errors"

// ErrNilPairEvent indicates a nil pair event payload was provided to a publisher.
var ErrNilPairEvent = errors.New("nil pair event")
