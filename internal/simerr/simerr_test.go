package simerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigErrorMessageFormat(t *testing.T) {
	err := &ConfigError{Field: "warp_size", Value: "0", Msg: "must be positive"}
	assert.Equal(t, `config: field "warp_size" value "0": must be positive`, err.Error())
}

func TestInvalidStateErrorMessageFormat(t *testing.T) {
	err := &InvalidStateError{Component: "fabric", Detail: "popped from empty VC"}
	assert.Equal(t, "invalid state in fabric: popped from empty VC", err.Error())
}

func TestDeadlockErrorMessageFormat(t *testing.T) {
	err := &DeadlockError{Cycle: 100, StalledCycles: 50000, FabricBusy: true, PartitionsBusy: []int{0, 2}}
	assert.Contains(t, err.Error(), "deadlock detected at cycle 100")
	assert.Contains(t, err.Error(), "50000 cycles")
	assert.Contains(t, err.Error(), "fabric busy=true")
}

func TestExitCodeMapsEachErrorKind(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(&ConfigError{}))
	assert.Equal(t, 3, ExitCode(&InvalidStateError{}))
	assert.Equal(t, 4, ExitCode(&DeadlockError{}))
	assert.Equal(t, 1, ExitCode(errors.New("something else")))
}
