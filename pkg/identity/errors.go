package identity

import "errors"

var errNotRegular = errors.New("not a regular file")
