package core

import (
	"github.com/drop-protocol/coordinator/coordinator/modules"
	"github.com/drop-protocol/coordinator/coordinator/modules/corestate"
	"github.com/drop-protocol/coordinator/coordinator/modules/validatorsstats"
)

// DefaultRegistry lists every check module shipped with the coordinator, in run order.
func DefaultRegistry() *modules.Registry {
	return modules.NewRegistry().
		MustRegister(corestate.Name, corestate.New).
		MustRegister(validatorsstats.Name, validatorsstats.New)
}
