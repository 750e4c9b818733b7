package dump

import "github.com/davecgh/go-spew/spew"

var config = spew.ConfigState{
	Indent:                  "\t",
	MaxDepth:                20,
	DisableMethods:          true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// Sdump returns arbitrary data as human readable string.
func Sdump(data any) string {
	return config.Sdump(data)
}
