// Package main is a module with a TSDF voxel mapping service model.
package main

import (
	"context"
	"strings"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/services/slam"
	"go.viam.com/utils"

	viamtsdf "github.com/viam-modules/viam-tsdf"
	"github.com/viam-modules/viam-tsdf/telemetry"
)

// Versioning variables which are replaced by LD flags.
var (
	Version     = "development"
	GitRevision = ""
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("tsdfModule"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var versionFields []interface{}
	if Version != "" {
		versionFields = append(versionFields, "version", Version)
	}
	if GitRevision != "" {
		versionFields = append(versionFields, "git_rev", GitRevision)
	}
	if len(versionFields) != 0 {
		logger.Infow(viamtsdf.Model.String(), versionFields...)
	} else {
		logger.Info(viamtsdf.Model.String() + " built from source; version unknown")
	}

	if len(args) == 2 && strings.HasSuffix(args[1], "-version") {
		return nil
	}

	exporter, err := telemetry.SetupTelemetry()
	if err != nil {
		return err
	}
	defer exporter.Stop()

	// Instantiate the module
	tsdfModule, err := module.NewModuleFromArgs(ctx, logger)
	if err != nil {
		return err
	}

	// Add the tsdf model to the module
	if err = tsdfModule.AddModelFromRegistry(ctx, slam.API, viamtsdf.Model); err != nil {
		return err
	}

	// Start the module
	err = tsdfModule.Start(ctx)
	defer tsdfModule.Close(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
