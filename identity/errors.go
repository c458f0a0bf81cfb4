package identity

import "errors"

// ErrNonUniqueResult is returned by SingleResult when more than one record
// survives all filters. An empty result is not an error; SingleResult
// reports it as a nil record.
var ErrNonUniqueResult = errors.New("query returned more than one result")
