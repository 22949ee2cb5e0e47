package wou

import "github.com/araisrobo/wou/pkg/bootstrap"

// boardEntry is one row of the board table (spec §6): a board_type maps
// to a chip type string and a bitstream-loader. Grounded on
// original_source's board_table[]/program_funct dispatch, narrowed to the
// single USB-bridge entry this spec requires.
type boardEntry struct {
	chipType string
	loader   bootstrap.Loader
}

var boardTable = map[string]boardEntry{
	"7i43u": {chipType: "usb", loader: bootstrap.NoopLoader{}},
}

func lookupBoard(boardType string) (boardEntry, bool) {
	e, ok := boardTable[boardType]
	return e, ok
}
