package app

import (
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/modules/isosurface"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/modules/print"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/modules/reader"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/modules/renderer"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/modules/threshold"
)

// coreModules is the list of module kinds compiled into the vizflow binary.
var coreModules = []registry.Module{
	&reader.Module{},
	&threshold.Module{},
	&isosurface.Module{},
	&renderer.Module{},
	&print.Module{},
}
