// Package modules links the bundled modules into the binary. Importing it
// runs their init functions, which publish them to the plugin catalog and
// register their migrations.
package modules

import (
	_ "github.com/jask/nextool/internal/modules/sessiontracker"
)
