package app

import (
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/modules/artefact"
	"github.com/vk/modforge/modules/docs"
	"github.com/vk/modforge/modules/format"
	"github.com/vk/modforge/modules/install"
	"github.com/vk/modforge/modules/manifest"
	"github.com/vk/modforge/modules/merge"
	"github.com/vk/modforge/modules/publish"
	"github.com/vk/modforge/modules/sign"
	"github.com/vk/modforge/modules/stage"
	"github.com/vk/modforge/modules/tests"
	"github.com/vk/modforge/modules/validate"
)

// coreModules is the definitive list of all step handlers that are compiled
// into the modforge binary.
var coreModules = []registry.Module{
	&stage.Module{},
	&manifest.Module{},
	&merge.Module{},
	&docs.Module{},
	&format.Module{},
	&sign.Module{},
	&validate.Module{},
	&tests.Module{},
	&artefact.Module{},
	&publish.Module{},
	&install.Module{},
}
