package stress

import (
	"fmt"

	"github.com/anishathalye/porcupine"
)

// registerInput is one operation against the protected register.
type registerInput struct {
	write bool
	value int64
}

type registerOutput struct {
	value int64
}

// Model is a linearizable single-register model: a read returns the value
// of the latest write that precedes it, or the register's initial 0.
var Model = porcupine.Model{
	Init: func() interface{} {
		return int64(0)
	},
	Step: func(state, input, output interface{}) (bool, interface{}) {
		inp := input.(registerInput)
		st := state.(int64)
		if inp.write {
			return true, inp.value
		}
		return output.(registerOutput).value == st, st
	},
	DescribeOperation: func(input, output interface{}) string {
		inp := input.(registerInput)
		if inp.write {
			return fmt.Sprintf("write(%d)", inp.value)
		}
		return fmt.Sprintf("read() -> %d", output.(registerOutput).value)
	},
}
