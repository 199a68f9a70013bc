package vm

import (
	"github.com/sasha-s/go-deadlock"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ivars.vm")

func init() {
	// Shape and object locks are deadlock.Mutex so lock-order checking can
	// be switched on from configuration; it stays off unless asked for.
	deadlock.Opts.Disable = true
}
