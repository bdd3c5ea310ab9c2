package stages

import "errors"

var errEmptyOutput = errors.New("output file is empty")
