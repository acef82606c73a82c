// Package config implements functions to assist with attribute evaluation in the TSDF mapping service.
package config

import (
	"strconv"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// newError returns an error specific to a failure in the TSDF service configuration.
func newError(configError string) error {
	return errors.Errorf("TSDF service configuration error: %s", configError)
}

// Config describes how to configure the TSDF mapping service.
type Config struct {
	Camera                 map[string]string `json:"camera"`
	WorldFrame             string            `json:"world_frame"`
	VoxelsPerSide          int               `json:"voxels_per_side"`
	ResolutionMeters       float64           `json:"resolution_meters"`
	MaxDistanceMeters      float64           `json:"max_distance_meters"`
	MapRateSec             *int              `json:"map_rate_sec"`
	DataDirectory          string            `json:"data_dir"`
	TransformToleranceMsec int               `json:"transform_tolerance_msec"`
}

// OptionalConfigParams holds the optional config parameters of the service
// after defaulting.
type OptionalConfigParams struct {
	LidarName              string
	LidarDataFrequencyHz   int
	WorldFrame             string
	VoxelsPerSide          int
	ResolutionMeters       float64
	MaxDistanceMeters      float64
	MapRateSec             int
	DataDirectory          string
	TransformToleranceMsec int
}

// Validate creates the list of implicit dependencies.
func (config *Config) Validate(path string) ([]string, error) {
	cameraName, ok := config.Camera["name"]
	if !ok {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "camera[name]")
	}

	if freq, ok := config.Camera["data_frequency_hz"]; ok {
		dataFreqHz, err := strconv.Atoi(freq)
		if err != nil {
			return nil, errors.New("camera[data_frequency_hz] must be an int")
		}
		if dataFreqHz <= 0 {
			return nil, errors.New("cannot specify camera[data_frequency_hz] less than or equal to zero")
		}
	}

	if config.VoxelsPerSide < 0 {
		return nil, newError("cannot specify voxels_per_side less than zero")
	}

	if config.ResolutionMeters < 0 {
		return nil, newError("cannot specify resolution_meters less than zero")
	}

	if config.MaxDistanceMeters < 0 {
		return nil, newError("cannot specify max_distance_meters less than zero")
	}

	if config.TransformToleranceMsec < 0 {
		return nil, newError("cannot specify transform_tolerance_msec less than zero")
	}

	if config.MapRateSec != nil && *config.MapRateSec < 0 {
		return nil, errors.New("cannot specify map_rate_sec less than zero")
	}

	if config.MapRateSec != nil && *config.MapRateSec > 0 && config.DataDirectory == "" {
		return nil, newError("data_dir is required when map_rate_sec is set")
	}

	deps := []string{cameraName}

	return deps, nil
}

// GetOptionalParameters sets any unset optional config parameters to the
// values passed to this function, and returns them.
func GetOptionalParameters(
	config *Config,
	defaultLidarDataFrequencyHz int,
	defaultWorldFrame string,
	defaultVoxelsPerSide int,
	defaultResolutionMeters float64,
	defaultTransformToleranceMsec int,
	logger logging.Logger,
) (OptionalConfigParams, error) {
	optionalConfigParams := OptionalConfigParams{
		LidarName:         config.Camera["name"],
		WorldFrame:        config.WorldFrame,
		VoxelsPerSide:     config.VoxelsPerSide,
		ResolutionMeters:  config.ResolutionMeters,
		MaxDistanceMeters: config.MaxDistanceMeters,
		DataDirectory:     config.DataDirectory,
	}

	optionalConfigParams.LidarDataFrequencyHz = defaultLidarDataFrequencyHz
	if freq, ok := config.Camera["data_frequency_hz"]; ok {
		dataFreqHz, err := strconv.Atoi(freq)
		if err != nil {
			return OptionalConfigParams{}, newError("camera[data_frequency_hz] must be an int")
		}
		optionalConfigParams.LidarDataFrequencyHz = dataFreqHz
	} else {
		logger.Debugf("no camera data_frequency_hz given, setting to default value of %d", defaultLidarDataFrequencyHz)
	}

	if optionalConfigParams.WorldFrame == "" {
		logger.Debugf("no world_frame given, setting to default value of %q", defaultWorldFrame)
		optionalConfigParams.WorldFrame = defaultWorldFrame
	}

	if optionalConfigParams.VoxelsPerSide == 0 {
		logger.Debugf("no voxels_per_side given, setting to default value of %d", defaultVoxelsPerSide)
		optionalConfigParams.VoxelsPerSide = defaultVoxelsPerSide
	}

	if optionalConfigParams.ResolutionMeters == 0 {
		logger.Debugf("no resolution_meters given, setting to default value of %v", defaultResolutionMeters)
		optionalConfigParams.ResolutionMeters = defaultResolutionMeters
	}

	if optionalConfigParams.MaxDistanceMeters == 0 {
		logger.Debug("no max_distance_meters given, visualization export will not filter by distance")
	}

	optionalConfigParams.TransformToleranceMsec = config.TransformToleranceMsec
	if config.TransformToleranceMsec == 0 {
		logger.Debugf("no transform_tolerance_msec given, setting to default value of %d", defaultTransformToleranceMsec)
		optionalConfigParams.TransformToleranceMsec = defaultTransformToleranceMsec
	}

	if config.MapRateSec == nil {
		logger.Debug("no map_rate_sec given, map dumps are disabled")
	} else {
		optionalConfigParams.MapRateSec = *config.MapRateSec
	}

	return optionalConfigParams, nil
}
